// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
)

const (
	sessionCloseTimeout = 10 * time.Second
	// defaultActionTimeout applies when the configuration leaves it unset.
	defaultActionTimeout = 30 * time.Second
)

// Session is one browser tab in its own browser context. It implements
// schemas.BrowserSession on top of chromedp.
type Session struct {
	id            string
	ctx           context.Context
	cancel        context.CancelFunc
	cfg           config.BrowserConfig
	actionTimeout time.Duration
	logger        *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.BrowserSession = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, id string, onClose func()) *Session {
	timeout := cfg.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &Session{
		id:            id,
		ctx:           ctx,
		cancel:        cancel,
		cfg:           cfg,
		actionTimeout: timeout,
		logger:        logger.Named("session").With(zap.String("session_id", id)),
		onClose:       onClose,
	}
}

// initialize creates the target and applies the viewport. The first Run on
// a chromedp context creates its tab, so it runs on the session context
// itself; ctx only bounds how long the caller waits.
func (s *Session) initialize(ctx context.Context) error {
	tasks := chromedp.Tasks{}
	if w, h := s.cfg.Viewport["width"], s.cfg.Viewport["height"]; w > 0 && h > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(w), int64(h)))
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx, tasks) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to create browser target: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Session) ID() string { return s.id }

// runActions executes actions bounded by the session lifetime, the caller's
// context and the action timeout.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed() {
		return errSessionClosed
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, s.actionTimeout)
	defer cancelTimeout()
	return chromedp.Run(runCtx, actions...)
}

// onElement runs actions that wait for selector. A timeout while the
// caller is still waiting means the element never appeared.
func (s *Session) onElement(ctx context.Context, selector string, actions ...chromedp.Action) error {
	err := s.runActions(ctx, actions...)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("no element found for selector %q within %s", selector, s.actionTimeout)
	}
	return err
}

var errSessionClosed = errors.New("browser session is closed")

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// -- Navigation and Page Reads --

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.runActions(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.runActions(ctx, chromedp.Location(&u))
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.runActions(ctx, chromedp.Title(&title))
	return title, err
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// -- Interaction --

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.onElement(ctx, selector, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.onElement(ctx, selector,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

const selectOptionJS = `(function(sel, want) {
	const el = document.querySelector(sel);
	if (!el) return "missing";
	if (!el.options) return "not-select";
	for (const o of el.options) {
		if (o.value === want || o.text.trim() === want) {
			el.value = o.value;
			el.dispatchEvent(new Event("input", {bubbles: true}));
			el.dispatchEvent(new Event("change", {bubbles: true}));
			return "ok";
		}
	}
	return "no-option";
})(%s, %s)`

// SelectOption selects the option whose value or visible text equals value.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	var status string
	if err := s.onElement(ctx, selector,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(jsCall(selectOptionJS, selector, value), &status),
	); err != nil {
		return err
	}
	switch status {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("no element found for selector %q", selector)
	case "not-select":
		return fmt.Errorf("element %q is not a select element", selector)
	default:
		return fmt.Errorf("select %q has no option %q", selector, value)
	}
}

// Hover moves the mouse to the center of the first match.
func (s *Session) Hover(ctx context.Context, selector string) error {
	var nodes []*cdp.Node
	return s.onElement(ctx, selector,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return fmt.Errorf("no element found for selector %q", selector)
			}
			box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
			if err != nil {
				return fmt.Errorf("could not compute box for %q: %w", selector, err)
			}
			x, y := quadCenter(box.Content)
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}),
	)
}

func quadCenter(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4
}

const scrollIntoViewJS = `(function(sel) {
	const el = document.querySelector(sel);
	if (el) el.scrollIntoView({block: "center", inline: "nearest"});
	return !!el;
})(%s)`

// ScrollIntoView scrolls the first match into view. A missing element is
// not an error.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	var found bool
	if err := s.runActions(ctx, chromedp.Evaluate(jsCall(scrollIntoViewJS, selector), &found)); err != nil {
		return err
	}
	if !found {
		s.logger.Debug("Nothing to scroll into view.", zap.String("selector", selector))
	}
	return nil
}

func (s *Session) PressKey(ctx context.Context, key string) error {
	seq, err := keySequence(key)
	if err != nil {
		return err
	}
	return s.runActions(ctx, chromedp.KeyEvent(seq))
}

// -- Waiting --

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runCtx, cancelRun := CombineContext(s.ctx, waitCtx)
	defer cancelRun()

	err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("waiting for selector %q: timeout after %s", selector, timeout)
	}
	return err
}

// WaitForNavigation blocks until the next load event of the tab.
func (s *Session) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	if s.closed() {
		return errSessionClosed
	}
	loaded := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(s.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-loaded:
		return nil
	case <-timer.C:
		return fmt.Errorf("waiting for navigation: timeout after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errSessionClosed
	}
}

// -- Scripts, Extraction and Screenshots --

// Evaluate runs expression and awaits it if it yields a promise. An
// undefined or null result leaves res untouched.
func (s *Session) Evaluate(ctx context.Context, expression string, res interface{}) error {
	err := s.runActions(ctx, chromedp.Evaluate(expression, res, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
		return nil
	}
	return err
}

const extractTextJS = `Array.from(document.querySelectorAll(%s), el => (el.textContent || "").trim())`

// ExtractText waits up to wait for selector to attach, then reads every
// match. Content that never renders yields an empty slice.
func (s *Session) ExtractText(ctx context.Context, selector string, wait time.Duration) ([]string, error) {
	if wait > 0 {
		if err := s.waitAttached(ctx, selector, wait); err != nil {
			return nil, err
		}
	}
	var texts []string
	if err := s.runActions(ctx, chromedp.Evaluate(jsCall(extractTextJS, selector), &texts)); err != nil {
		return nil, err
	}
	if texts == nil {
		texts = []string{}
	}
	return texts, nil
}

// waitAttached is a best-effort wait for selector. Only a done caller
// context or a closed session is reported.
func (s *Session) waitAttached(ctx context.Context, selector string, wait time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	err := s.runActions(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errSessionClosed):
		return err
	}
	s.logger.Debug("Selector did not attach before extraction.", zap.String("selector", selector), zap.Duration("wait", wait))
	return nil
}

const fieldValueJS = `(function(sel) {
	const el = document.querySelector(sel);
	if (!el) return {found: false, value: ""};
	return {found: true, value: el.value === undefined ? (el.textContent || "") : String(el.value)};
})(%s)`

func (s *Session) FieldValue(ctx context.Context, selector string) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	if err := s.runActions(ctx, chromedp.Evaluate(jsCall(fieldValueJS, selector), &res)); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("no element found for selector %q", selector)
	}
	return res.Value, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.runActions(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Close closes the tab and its browser context. Later calls are no-ops.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	defer func() {
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	}()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to close browser tab: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out closing browser tab: %w", ctx.Err())
	}
}

// jsCall formats a script template with JSON-encoded string arguments so
// selectors and values cannot break out of their literals.
func jsCall(template string, args ...string) string {
	quoted := make([]interface{}, len(args))
	for i, a := range args {
		encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(a)
		if err != nil {
			encoded = `""`
		}
		quoted[i] = encoded
	}
	return fmt.Sprintf(template, quoted...)
}
