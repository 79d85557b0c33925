// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/agent"
	"github.com/xkilldash9x/crust/internal/artifacts"
	"github.com/xkilldash9x/crust/internal/browser"
	"github.com/xkilldash9x/crust/internal/config"
	"github.com/xkilldash9x/crust/internal/llmclient"
)

const browserShutdownTimeout = 15 * time.Second

// shutdownFunc releases a component within the deadline of ctx.
type shutdownFunc func(ctx context.Context) error

// dependencies are the constructors of the external collaborators. Tests
// replace them with in-memory versions.
type dependencies struct {
	newLauncher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserLauncher, shutdownFunc, error)
	newModels   func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (agent.Models, error)
	fs          afero.Fs
}

func defaultDependencies() dependencies {
	return dependencies{
		newLauncher: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserLauncher, shutdownFunc, error) {
			mgr, err := browser.NewManager(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return mgr, mgr.Shutdown, nil
		},
		newModels: func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (agent.Models, error) {
			return llmclient.NewRouterFromConfig(ctx, cfg, logger)
		},
		fs: afero.NewOsFs(),
	}
}

// components is everything a run needs, plus the means to release it.
type components struct {
	runner   *agent.Orchestrator
	shutdown shutdownFunc
	logger   *zap.Logger
}

// Shutdown releases the browser. Open sessions get until ctx expires.
func (c *components) Shutdown(ctx context.Context) {
	if c.shutdown == nil {
		return
	}
	if err := c.shutdown(ctx); err != nil {
		c.logger.Warn("Browser shutdown did not complete cleanly.", zap.Error(err))
	}
}

// initializeComponents builds the reasoning client first so a missing API
// key fails before a browser is launched.
func (a *app) initializeComponents(ctx context.Context) (*components, error) {
	logger := a.logger

	models, err := a.deps.newModels(ctx, a.cfg.LLM(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	recorder, err := artifacts.NewRecorder(a.deps.fs, a.cfg.Artifacts(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact recorder: %w", err)
	}

	launcher, shutdown, err := a.deps.newLauncher(ctx, a.cfg.Browser(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	return &components{
		runner:   agent.New(a.cfg.Automation(), models, launcher, recorder, logger),
		shutdown: shutdown,
		logger:   logger,
	}, nil
}

// shutdownContext returns a fresh context for cleanup, independent of a
// canceled command context.
func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), browserShutdownTimeout)
}
