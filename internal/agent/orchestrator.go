// internal/agent/orchestrator.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
)

const (
	completionMessage = "Goal completed successfully"
	// sessionCloseTimeout bounds cleanup when the run's context is already done.
	sessionCloseTimeout = 10 * time.Second
)

// ErrEmptyGoal is returned by Run for a blank goal.
var ErrEmptyGoal = errors.New("goal must not be empty")

// uuidNewString is a variable so tests can pin run IDs.
var uuidNewString = uuid.NewString

// OrchestratorConfig holds the two budgets of a run.
type OrchestratorConfig struct {
	MaxSteps    int
	MaxAttempts int
}

// NewOrchestratorConfig extracts the run budgets from the automation config.
func NewOrchestratorConfig(cfg config.AutomationConfig) OrchestratorConfig {
	return OrchestratorConfig{MaxSteps: cfg.MaxSteps, MaxAttempts: cfg.MaxAttempts}
}

// Orchestrator drives plan, act and verify cycles for one goal at a time per
// call. Each Run owns a fresh browser session; the orchestrator itself holds
// no run state and can serve concurrent runs.
type Orchestrator struct {
	launcher  schemas.BrowserLauncher
	reader    StateReader
	planner   Planner
	retry     *RetryController
	artifacts ArtifactRecorder
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

// NewOrchestrator wires the loop. A nil recorder disables artifacts.
func NewOrchestrator(launcher schemas.BrowserLauncher, reader StateReader, planner Planner, retry *RetryController, artifacts ArtifactRecorder, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if artifacts == nil {
		artifacts = nopRecorder{}
	}
	return &Orchestrator{
		launcher:  launcher,
		reader:    reader,
		planner:   planner,
		retry:     retry,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
	}
}

// Run pursues goal until the planner reports completion or the step budget
// is spent. The browser session is released exactly once before Run
// returns, on every path. On a fatal error the partial result is returned
// alongside the error with State set to FAILED.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*schemas.RunResult, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	if o.cfg.MaxSteps < 1 {
		return nil, fmt.Errorf("invalid step budget %d", o.cfg.MaxSteps)
	}

	runID := uuidNewString()
	logger := o.logger.With(zap.String("run_id", runID))

	session, err := o.launcher.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	defer o.release(ctx, session, logger)

	result := &schemas.RunResult{
		RunID:   runID,
		Command: goal,
		State:   schemas.RunRunning,
		Results: []schemas.StepRecord{},
	}
	logger.Info("Run started.", zap.String("goal", goal), zap.String("session_id", session.ID()), zap.Int("max_steps", o.cfg.MaxSteps))

	fail := func(step int, cause error) (*schemas.RunResult, error) {
		result.State = schemas.RunFailed
		logger.Error("Run failed.", zap.Int("step", step), zap.Error(cause))
		saveArtifact(ctx, session, logger, o.artifacts.SaveError)
		return result, cause
	}

	state, err := o.reader.Capture(ctx, session)
	if err != nil {
		return fail(0, fmt.Errorf("capturing initial state: %w", err))
	}

	var (
		history     []string
		lastOutcome *schemas.StepOutcome
		latest      []string
	)

loop:
	for step := 1; step <= o.cfg.MaxSteps; step++ {
		intent, err := o.planner.Next(ctx, state, goal, history)
		if err != nil {
			return fail(step, err)
		}
		logger.Info("Generated step.", zap.Int("step", step), zap.String("intent", string(intent)))

		switch intent {
		case schemas.IntentGoalCompleted:
			result.Results = append(result.Results, schemas.StepRecord{
				Step:    string(schemas.IntentGoalCompleted),
				Status:  string(schemas.VerificationSuccess),
				Message: completionMessage,
				URL:     state.URL,
				Title:   state.Title,
			})
			result.State = schemas.RunGoalReached
			break loop
		case schemas.IntentEnd:
			if lastOutcome != nil && lastOutcome.Extracted != nil {
				latest = lastOutcome.Extracted
			}
			result.State = schemas.RunGoalReached
			break loop
		}

		outcome, verdict, err := o.retry.Attempt(ctx, session, string(intent), o.cfg.MaxAttempts)
		if err != nil {
			return fail(step, fmt.Errorf("step %d: %w", step, err))
		}

		result.Results = append(result.Results, schemas.StepRecord{
			Step:    string(intent),
			Status:  string(verdict.Status),
			Message: verdict.Message,
			URL:     outcome.State.URL,
			Title:   outcome.State.Title,
		})
		history = append(history, string(intent))
		if outcome.Status == schemas.StatusExtracted {
			latest = outcome.Extracted
		}
		lastOutcome = &outcome
		state = outcome.State

		saveArtifact(ctx, session, logger, func(png []byte) (string, error) {
			return o.artifacts.SaveStep(step, png)
		})
	}

	if result.State == schemas.RunRunning {
		result.State = schemas.RunStepLimitReached
	}
	result.ExtractedContent = latest
	result.Message = finalMessage(result.State)
	logger.Info("Run finished.", zap.String("state", string(result.State)), zap.Int("steps", len(history)))
	return result, nil
}

func finalMessage(state schemas.RunState) string {
	if state == schemas.RunStepLimitReached {
		return schemas.MessageStepLimit
	}
	return schemas.MessageCompleted
}

// release closes the session. Cleanup errors are logged and never replace
// the run's own result or error.
func (o *Orchestrator) release(ctx context.Context, session schemas.BrowserSession, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Warn("Failed to close browser session.", zap.String("session_id", session.ID()), zap.Error(err))
	}
}
