package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/browser/fake"
	"github.com/xkilldash9x/crust/internal/config"
)

type tieredModels struct {
	fast, powerful *scriptedLLM
}

func (m tieredModels) For(tier schemas.ModelTier) schemas.Extractor {
	if tier == schemas.TierFast {
		return m.fast
	}
	return m.powerful
}

func TestNew_RoutesTiers(t *testing.T) {
	stubSleep(t)
	script := searchScript()
	models := tieredModels{
		fast:     &scriptedLLM{actions: script.actions},
		powerful: &scriptedLLM{plans: script.plans},
	}
	cfg := config.AutomationConfig{MaxSteps: 5, MaxAttempts: 2, ElementLimit: 10, VerificationFailOpen: true}
	launcher := fake.NewLauncher(exampleSite(), fake.WithStartURL("https://example.com"))

	orch := New(cfg, models, launcher, nil, zaptest.NewLogger(t))
	result, err := orch.Run(context.Background(), "search for cats")
	require.NoError(t, err)
	assert.Equal(t, schemas.RunGoalReached, result.State)

	plans, actions, verifies := models.powerful.counts()
	assert.Equal(t, 3, plans)
	assert.Zero(t, actions)
	assert.Zero(t, verifies)

	plans, actions, verifies = models.fast.counts()
	assert.Zero(t, plans)
	assert.Equal(t, 2, actions)
	assert.Equal(t, 2, verifies)
}
