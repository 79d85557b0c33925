// internal/agent/agent.go
package agent

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
)

// Models hands out the reasoning service per model tier.
type Models interface {
	For(tier schemas.ModelTier) schemas.Extractor
}

// New assembles the full automation loop. Planning goes to the powerful
// tier; translating and verifying single steps go to the fast tier.
func New(cfg config.AutomationConfig, models Models, launcher schemas.BrowserLauncher, artifacts ArtifactRecorder, logger *zap.Logger) *Orchestrator {
	if artifacts == nil {
		artifacts = nopRecorder{}
	}
	fast := models.For(schemas.TierFast)

	reader := NewPageStateReader(cfg.ElementLimit, logger)
	planner := NewStepPlanner(models.For(schemas.TierPowerful), logger)
	executor := NewActionExecutor(fast, reader, artifacts, NewExecutorConfig(cfg), logger)
	verifier := NewStepVerifier(fast, cfg.VerificationFailOpen, logger)
	retry := NewRetryController(reader, executor, verifier, logger)

	return NewOrchestrator(launcher, reader, planner, retry, artifacts, NewOrchestratorConfig(cfg), logger)
}
