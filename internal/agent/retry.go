package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
)

// RetryController bounds repeated perform+check cycles of one intent. The
// intent text is re-executed unchanged; the verifier's suggestion is logged
// but not fed back.
type RetryController struct {
	reader   StateReader
	executor Performer
	verifier Checker
	logger   *zap.Logger
}

func NewRetryController(reader StateReader, executor Performer, verifier Checker, logger *zap.Logger) *RetryController {
	return &RetryController{reader: reader, executor: executor, verifier: verifier, logger: logger.Named("retry")}
}

// Attempt runs at most maxAttempts cycles of capture, perform and check, and
// returns the first outcome whose verdict is SUCCESS or whose next action is
// END. A failed state capture or a done context ends the attempt with an
// error, as does an exhausted budget (*RetryExhaustedError).
func (r *RetryController) Attempt(ctx context.Context, session schemas.BrowserSession, intent string, maxAttempts int) (schemas.StepOutcome, schemas.VerificationResult, error) {
	if maxAttempts < 1 {
		return schemas.StepOutcome{}, schemas.VerificationResult{}, fmt.Errorf("invalid retry budget %d for step %q", maxAttempts, intent)
	}

	var (
		outcome schemas.StepOutcome
		verdict schemas.VerificationResult
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		state, err := r.reader.Capture(ctx, session)
		if err != nil {
			return outcome, verdict, fmt.Errorf("capturing state for step %q: %w", intent, err)
		}

		r.logger.Info("Executing step.", zap.String("intent", intent), zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))
		outcome = r.executor.Perform(ctx, session, intent, state)

		verdict, err = r.verifier.Check(ctx, intent, outcome)
		if err != nil {
			return outcome, verdict, fmt.Errorf("verifying step %q: %w", intent, err)
		}
		if verdict.Done() {
			r.logger.Info("Step completed.", zap.String("intent", intent), zap.String("message", verdict.Message))
			return outcome, verdict, nil
		}
		r.logger.Info("Step failed verification.",
			zap.String("intent", intent),
			zap.String("message", verdict.Message),
			zap.String("suggestion", verdict.NextAction),
		)
	}

	return outcome, verdict, &RetryExhaustedError{Intent: intent, Attempts: maxAttempts, Last: verdict.Message}
}
