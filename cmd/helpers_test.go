// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/agent"
	"github.com/xkilldash9x/crust/internal/browser/fake"
	"github.com/xkilldash9x/crust/internal/config"
)

// completingModels answers every planning prompt with the completion
// sentinel and records which tiers were requested.
type completingModels struct {
	mu    sync.Mutex
	tiers []schemas.ModelTier
	err   error
}

func (m *completingModels) For(tier schemas.ModelTier) schemas.Extractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = append(m.tiers, tier)
	return m
}

func (m *completingModels) Extract(_ context.Context, _ string, schema *schemas.Schema, out interface{}) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := schema.Properties["nextStep"]; !ok {
		return errors.New("only planning is scripted")
	}
	raw, err := jsoniter.Marshal(map[string]string{"nextStep": string(schemas.IntentGoalCompleted)})
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(raw, out)
}

// testDeps wires the command tree to an in-memory browser and filesystem.
type testDeps struct {
	launcher    *fake.Launcher
	models      *completingModels
	fs          afero.Fs
	launchErr   error
	modelsErr   error
	launches    int
	shutdowns   int
	browserCfgs []config.BrowserConfig
}

func newTestDeps() *testDeps {
	return &testDeps{
		launcher: fake.NewLauncher(fake.Site{
			"https://example.com": "<html><head><title>Example</title></head><body></body></html>",
		}, fake.WithStartURL("https://example.com")),
		models: &completingModels{},
		fs:     afero.NewMemMapFs(),
	}
}

func (d *testDeps) dependencies() dependencies {
	return dependencies{
		newLauncher: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserLauncher, shutdownFunc, error) {
			d.browserCfgs = append(d.browserCfgs, cfg)
			if d.launchErr != nil {
				return nil, nil, d.launchErr
			}
			d.launches++
			return d.launcher, func(context.Context) error {
				d.shutdowns++
				return nil
			}, nil
		},
		newModels: func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (agent.Models, error) {
			if d.modelsErr != nil {
				return nil, d.modelsErr
			}
			return d.models, nil
		},
		fs: d.fs,
	}
}

// execute runs the command tree with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// isolateConfig keeps the tests away from a config.yaml in the working
// directory and from CRUST_* variables of the environment.
func isolateConfig(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"CRUST_AUTOMATION_MAX_STEPS", "CRUST_SERVER_ADDR", "CRUST_ARTIFACTS_DIR"} {
		t.Setenv(key, "")
	}
	return t.TempDir()
}
