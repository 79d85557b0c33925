// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
)

// ErrManagerClosed is returned by NewSession after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager owns one Chrome process and hands out isolated sessions. Each
// session runs in its own browser context, so cookies and storage never
// leak between runs.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// allocatorCtx manages the browser process. browserCtx is the root tab
	// every session context is derived from.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

var _ schemas.BrowserLauncher = (*Manager)(nil)

// NewManager launches the browser and verifies it responds. The process
// lives until Shutdown, independent of ctx.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
	}
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	// The first Run allocates the browser. It must not carry a deadline or
	// the whole process would die with it, so ctx is only watched.
	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(m.browserCtx) }()
	select {
	case err := <-launched:
		if err != nil {
			m.browserCancel()
			m.allocatorCancel()
			return nil, fmt.Errorf("browser failed to start or respond: %w", err)
		}
	case <-ctx.Done():
		m.browserCancel()
		m.allocatorCancel()
		<-launched
		return nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return m, nil
}

// NewSession opens a new tab in a fresh browser context.
func (m *Manager) NewSession(ctx context.Context) (schemas.BrowserSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	sessionCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())
	s := newSession(sessionCtx, cancel, m.cfg, m.logger, uuid.NewString(), m.wg.Done)

	if err := s.initialize(ctx); err != nil {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
		defer cleanupCancel()
		_ = s.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize browser session: %w", err)
	}
	m.logger.Debug("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown waits for open sessions, bounded by ctx, then terminates the
// browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
		err = ctx.Err()
	}

	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	return err
}

// -- Allocator Options --

// allocatorFlags translates the browser configuration into Chrome command
// line flags. A false value removes a flag set by chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                  cfg.Headless,
		"enable-automation":         false,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
		"disable-dev-shm-usage":     true,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"allow-insecure-localhost":  cfg.IgnoreTLSErrors,
	}
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(strings.TrimSpace(arg), "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions returns chromedp's defaults overridden by the configured
// flags, executable path and user agent.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}
