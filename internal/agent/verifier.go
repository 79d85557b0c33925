package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
)

// Messages reported by the verifier without consulting the reasoning service.
const (
	msgFastPathSuccess       = "All steps completed successfully"
	msgParseFailedAssumeOK   = "Verification parsing failed, assuming success"
	msgParseFailedAssumeFail = "Verification parsing failed, treating step as failed"
)

// StepVerifier judges whether an outcome satisfies its intent.
type StepVerifier struct {
	llm schemas.Extractor
	// failOpen decides how an unusable verdict is treated.
	failOpen bool
	logger   *zap.Logger
}

var _ Checker = (*StepVerifier)(nil)

func NewStepVerifier(llm schemas.Extractor, failOpen bool, logger *zap.Logger) *StepVerifier {
	return &StepVerifier{llm: llm, failOpen: failOpen, logger: logger.Named("verifier")}
}

// Check returns the verdict for outcome. COMPLETED and EXTRACTED outcomes are
// accepted without a reasoning call. An unusable verdict follows the
// configured policy. The only error is the context's.
func (v *StepVerifier) Check(ctx context.Context, intent string, outcome schemas.StepOutcome) (schemas.VerificationResult, error) {
	if outcome.Status == schemas.StatusCompleted || outcome.Status == schemas.StatusExtracted {
		return schemas.VerificationResult{
			Status:     schemas.VerificationSuccess,
			Message:    msgFastPathSuccess,
			NextAction: schemas.NextActionEnd,
		}, nil
	}

	var verdict schemas.VerificationResult
	err := v.llm.Extract(ctx, buildVerificationPrompt(intent, outcome), verificationSchema, &verdict)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return schemas.VerificationResult{}, ctxErr
	}
	if err != nil {
		v.logger.Warn("Verification response unusable, applying policy.", zap.String("intent", intent), zap.Bool("fail_open", v.failOpen), zap.Error(err))
		return v.policyVerdict(), nil
	}

	verdict.Status = schemas.VerificationStatus(strings.ToUpper(strings.TrimSpace(string(verdict.Status))))
	switch verdict.Status {
	case schemas.VerificationSuccess:
		if strings.TrimSpace(verdict.NextAction) == "" {
			verdict.NextAction = schemas.NextActionEnd
		}
	case schemas.VerificationFailure:
	default:
		v.logger.Warn("Verification returned an unknown status, applying policy.", zap.String("status", string(verdict.Status)))
		return v.policyVerdict(), nil
	}
	if strings.EqualFold(strings.TrimSpace(verdict.NextAction), schemas.NextActionEnd) {
		verdict.NextAction = schemas.NextActionEnd
	}
	return verdict, nil
}

func (v *StepVerifier) policyVerdict() schemas.VerificationResult {
	if v.failOpen {
		return schemas.VerificationResult{
			Status:     schemas.VerificationSuccess,
			Message:    msgParseFailedAssumeOK,
			NextAction: schemas.NextActionEnd,
		}
	}
	return schemas.VerificationResult{
		Status:     schemas.VerificationFailure,
		Message:    msgParseFailedAssumeFail,
		NextAction: "Retry the step",
	}
}
