package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
)

// ExecutorConfig holds the timing and policy knobs of the executor.
type ExecutorConfig struct {
	SettleDelay         time.Duration
	DefaultWait         time.Duration
	WaitSelectorTimeout time.Duration
	ExtractWait         time.Duration
	AllowScripts        bool
}

// NewExecutorConfig extracts the executor settings from the automation config.
func NewExecutorConfig(cfg config.AutomationConfig) ExecutorConfig {
	return ExecutorConfig{
		SettleDelay:         cfg.SettleDelay,
		DefaultWait:         cfg.DefaultWait,
		WaitSelectorTimeout: cfg.WaitSelectorTimeout,
		ExtractWait:         cfg.ExtractWait,
		AllowScripts:        cfg.AllowScripts,
	}
}

// actionHandler performs one kind of action. It fills in the kind-specific
// parts of out; the executor owns state capture and error wrapping.
type actionHandler func(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, out *schemas.StepOutcome) error

// sleep waits for d or until ctx is done. Replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActionExecutor translates an intent into an ActionSpec through the
// reasoning service and performs it against a browser session. It is
// stateless across calls and may be shared by concurrent runs.
type ActionExecutor struct {
	llm       schemas.Extractor
	reader    StateReader
	artifacts ArtifactRecorder
	cfg       ExecutorConfig
	handlers  map[schemas.ActionKind]actionHandler
	logger    *zap.Logger
}

var _ Performer = (*ActionExecutor)(nil)

// NewActionExecutor creates an executor. A nil recorder disables artifacts.
func NewActionExecutor(llm schemas.Extractor, reader StateReader, artifacts ArtifactRecorder, cfg ExecutorConfig, logger *zap.Logger) *ActionExecutor {
	if artifacts == nil {
		artifacts = nopRecorder{}
	}
	e := &ActionExecutor{
		llm:       llm,
		reader:    reader,
		artifacts: artifacts,
		cfg:       cfg,
		handlers:  make(map[schemas.ActionKind]actionHandler, len(schemas.AllActionKinds)),
		logger:    logger.Named("executor"),
	}
	e.registerHandlers()
	return e
}

func (e *ActionExecutor) registerHandlers() {
	e.handlers[schemas.KindClick] = e.handleClick
	e.handlers[schemas.KindType] = e.handleType
	e.handlers[schemas.KindSelect] = e.handleSelect
	e.handlers[schemas.KindNavigate] = e.handleNavigate
	e.handlers[schemas.KindWait] = e.handleWait
	e.handlers[schemas.KindWaitForSelector] = e.handleWaitForSelector
	e.handlers[schemas.KindWaitForNavigation] = e.handleWaitForNavigation
	e.handlers[schemas.KindPressKey] = e.handlePressKey
	e.handlers[schemas.KindHover] = e.handleHover
	e.handlers[schemas.KindScrollIntoView] = e.handleScrollIntoView
	e.handlers[schemas.KindExecuteScript] = e.handleExecuteScript
	e.handlers[schemas.KindExtract] = e.handleExtract
}

// Perform executes one intent. It never returns an error: translation,
// validation and browser failures all become ERROR outcomes.
func (e *ActionExecutor) Perform(ctx context.Context, session schemas.BrowserSession, intent string, state schemas.PageState) schemas.StepOutcome {
	logger := e.logger.With(zap.String("intent", intent))

	if schemas.Intent(intent) == schemas.IntentGoalCompleted {
		return schemas.StepOutcome{State: e.recapture(ctx, session, state, logger), Status: schemas.StatusCompleted}
	}

	spec, err := e.translate(ctx, intent, state)
	if err != nil {
		logger.Warn("Failed to translate intent into an action.", zap.Error(err))
		e.saveErrorArtifact(ctx, session, logger)
		return errorOutcome(state, nil, ErrCodeTranslationFailure, err)
	}

	// Precondition failures never reach the browser.
	if err := spec.Validate(); err != nil {
		logger.Info("Action failed validation.", zap.String("action", string(spec.Kind)), zap.Error(err))
		return errorOutcome(state, &spec, ErrCodeInvalidParameters, err)
	}

	handler, ok := e.handlers[spec.Kind]
	if !ok {
		return errorOutcome(state, &spec, ErrCodeInvalidParameters, fmt.Errorf("no handler registered for action %q", spec.Kind))
	}

	logger.Debug("Dispatching action.", zap.String("action", string(spec.Kind)), zap.String("selector", spec.Selector))
	out := schemas.StepOutcome{Status: schemas.StatusSuccess, Action: &spec}
	if err := handler(ctx, session, spec, &out); err != nil {
		code, details := ParseBrowserError(err, spec)
		logger.Warn("Action failed.", zap.String("error_code", string(code)), zap.Any("details", details))
		e.saveErrorArtifact(ctx, session, logger)
		return errorOutcome(e.recapture(ctx, session, state, logger), &spec, code, err)
	}

	if spec.Kind.Mutates() {
		if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
			return errorOutcome(state, &spec, ErrCodeExecutionFailure, err)
		}
	}

	newState, err := e.reader.Capture(ctx, session)
	if err != nil {
		logger.Warn("Failed to capture page state after action.", zap.Error(err))
		return errorOutcome(state, &spec, ErrCodeExecutionFailure, err)
	}
	out.State = newState
	return out
}

// translate asks the reasoning service for the ActionSpec of intent.
func (e *ActionExecutor) translate(ctx context.Context, intent string, state schemas.PageState) (schemas.ActionSpec, error) {
	var spec schemas.ActionSpec
	if err := e.llm.Extract(ctx, buildActionPrompt(intent, state), actionSpecSchema, &spec); err != nil {
		return schemas.ActionSpec{}, fmt.Errorf("action translation failed: %w", err)
	}
	spec.Kind = canonicalKind(spec.Kind)
	spec.Selector = strings.TrimSpace(spec.Selector)
	spec.Key = strings.TrimSpace(spec.Key)
	return spec, nil
}

// canonicalKind matches a kind case-insensitively against the enumerated
// kinds. An unknown kind is returned unchanged and fails validation.
func canonicalKind(k schemas.ActionKind) schemas.ActionKind {
	trimmed := strings.TrimSpace(string(k))
	for _, known := range schemas.AllActionKinds {
		if strings.EqualFold(trimmed, string(known)) {
			return known
		}
	}
	return schemas.ActionKind(trimmed)
}

// recapture returns a fresh snapshot, or fallback if capture fails.
func (e *ActionExecutor) recapture(ctx context.Context, session schemas.BrowserSession, fallback schemas.PageState, logger *zap.Logger) schemas.PageState {
	state, err := e.reader.Capture(ctx, session)
	if err != nil {
		logger.Debug("Recapture failed, keeping previous state.", zap.Error(err))
		return fallback
	}
	return state
}

func (e *ActionExecutor) saveErrorArtifact(ctx context.Context, session schemas.BrowserSession, logger *zap.Logger) {
	saveArtifact(ctx, session, logger, e.artifacts.SaveError)
}

func errorOutcome(state schemas.PageState, spec *schemas.ActionSpec, code ErrorCode, err error) schemas.StepOutcome {
	return schemas.StepOutcome{
		State:     state,
		Status:    schemas.StatusError,
		Action:    spec,
		ErrorCode: string(code),
		Error:     err.Error(),
	}
}

// saveArtifact screenshots the session and hands the bytes to save. Failures
// are logged and never affect the run.
func saveArtifact(ctx context.Context, session schemas.BrowserSession, logger *zap.Logger, save func([]byte) (string, error)) {
	png, err := session.Screenshot(ctx)
	if err != nil {
		logger.Warn("Failed to capture diagnostic screenshot.", zap.Error(err))
		return
	}
	path, err := save(png)
	if err != nil {
		logger.Warn("Failed to save diagnostic artifact.", zap.Error(err))
		return
	}
	if path != "" {
		logger.Debug("Saved diagnostic artifact.", zap.String("path", path))
	}
}

// -- Action Handlers --

func (e *ActionExecutor) handleClick(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.Click(ctx, spec.Selector)
}

func (e *ActionExecutor) handleType(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, out *schemas.StepOutcome) error {
	if err := session.Fill(ctx, spec.Selector, spec.Value); err != nil {
		return err
	}
	e.readBack(ctx, session, spec.Selector, out)
	return nil
}

func (e *ActionExecutor) handleSelect(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, out *schemas.StepOutcome) error {
	if err := session.SelectOption(ctx, spec.Selector, spec.Value); err != nil {
		return err
	}
	e.readBack(ctx, session, spec.Selector, out)
	return nil
}

// readBack records the field's value so the verifier can see what the page
// holds. The action already succeeded, so a failed read only loses evidence.
func (e *ActionExecutor) readBack(ctx context.Context, session schemas.BrowserSession, selector string, out *schemas.StepOutcome) {
	v, err := session.FieldValue(ctx, selector)
	if err != nil {
		e.logger.Debug("Could not read back field value.", zap.String("selector", selector), zap.Error(err))
		return
	}
	out.FieldValue = &v
}

func (e *ActionExecutor) handleNavigate(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.Navigate(ctx, strings.TrimSpace(spec.Value))
}

func (e *ActionExecutor) handleWait(ctx context.Context, _ schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return sleep(ctx, e.waitFor(spec, e.cfg.DefaultWait))
}

func (e *ActionExecutor) handleWaitForSelector(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.WaitVisible(ctx, spec.Selector, e.waitFor(spec, e.cfg.WaitSelectorTimeout))
}

func (e *ActionExecutor) handleWaitForNavigation(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.WaitForNavigation(ctx, e.waitFor(spec, e.cfg.WaitSelectorTimeout))
}

func (e *ActionExecutor) handlePressKey(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.PressKey(ctx, spec.Key)
}

func (e *ActionExecutor) handleHover(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.Hover(ctx, spec.Selector)
}

func (e *ActionExecutor) handleScrollIntoView(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, _ *schemas.StepOutcome) error {
	return session.ScrollIntoView(ctx, spec.Selector)
}

// handleExecuteScript runs model-written JavaScript in the page. This is a
// trust boundary: the script has the full privileges of the page, so it is
// gated by automation.allow_scripts.
func (e *ActionExecutor) handleExecuteScript(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, out *schemas.StepOutcome) error {
	if !e.cfg.AllowScripts {
		return errScriptsDisabled
	}
	expr, err := wrapScript(spec.Value)
	if err != nil {
		return err
	}
	var result interface{}
	if err := session.Evaluate(ctx, expr, &result); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	out.Status = schemas.StatusScriptExecuted
	out.ScriptResult = result
	return nil
}

func (e *ActionExecutor) handleExtract(ctx context.Context, session schemas.BrowserSession, spec schemas.ActionSpec, out *schemas.StepOutcome) error {
	texts, err := session.ExtractText(ctx, spec.Selector, e.cfg.ExtractWait)
	if err != nil {
		return err
	}
	if texts == nil {
		texts = []string{}
	}
	out.Status = schemas.StatusExtracted
	out.Extracted = texts
	return nil
}

func (e *ActionExecutor) waitFor(spec schemas.ActionSpec, fallback time.Duration) time.Duration {
	if spec.WaitTimeMs > 0 {
		return time.Duration(spec.WaitTimeMs) * time.Millisecond
	}
	return fallback
}

// wrapScript turns a function body into an expression whose value is the
// body's return value. The body is passed as a string literal so it cannot
// break out of the wrapper.
func wrapScript(body string) (string, error) {
	quoted, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode script: %w", err)
	}
	return fmt.Sprintf("(new Function(%s))()", quoted), nil
}
