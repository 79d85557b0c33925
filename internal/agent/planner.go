package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
)

// StepPlanner asks the reasoning service for exactly one next intent.
type StepPlanner struct {
	llm    schemas.Extractor
	logger *zap.Logger
}

var _ Planner = (*StepPlanner)(nil)

func NewStepPlanner(llm schemas.Extractor, logger *zap.Logger) *StepPlanner {
	return &StepPlanner{llm: llm, logger: logger.Named("planner")}
}

type nextStepResponse struct {
	NextStep string `json:"nextStep"`
}

// Next returns the next intent, or a sentinel. Every error wraps
// ErrPlanningFailure.
func (p *StepPlanner) Next(ctx context.Context, state schemas.PageState, goal string, history []string) (schemas.Intent, error) {
	prompt := buildPlannerPrompt(goal, state, history)

	var resp nextStepResponse
	if err := p.llm.Extract(ctx, prompt, nextStepSchema, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlanningFailure, err)
	}

	intent := normalizeIntent(resp.NextStep)
	if intent == "" {
		return "", fmt.Errorf("%w: reasoning service returned an empty next step", ErrPlanningFailure)
	}
	p.logger.Debug("Planned next step.", zap.String("intent", string(intent)), zap.Int("history_len", len(history)))
	return intent, nil
}

// normalizeIntent trims the decoration models tend to add and folds the
// sentinels to their canonical spelling.
func normalizeIntent(raw string) schemas.Intent {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(s)

	bare := strings.TrimSuffix(s, ".")
	switch {
	case strings.EqualFold(bare, string(schemas.IntentGoalCompleted)):
		return schemas.IntentGoalCompleted
	case strings.EqualFold(bare, string(schemas.IntentEnd)):
		return schemas.IntentEnd
	}
	return schemas.Intent(s)
}
