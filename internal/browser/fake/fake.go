// Package fake provides an in-memory BrowserSession backed by goquery. It
// serves a fixed map of URL to HTML, follows links and GET form
// submissions, and records every browser-affecting call, which makes it
// suitable for deterministic tests of the automation loop.
package fake

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crust/api/schemas"
)

const blankURL = "about:blank"

const blankHTML = "<html><head><title></title></head><body></body></html>"

// pngSignature prefixes every fake screenshot so artifact writers see PNG bytes.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = errors.New("browser session is closed")

// ScriptFunc evaluates a JavaScript expression for Session.Evaluate.
type ScriptFunc func(expression string) (interface{}, error)

// Site maps absolute URLs to HTML documents.
type Site map[string]string

// -- Launcher --

// Launcher creates fake sessions over a shared Site.
type Launcher struct {
	mu       sync.Mutex
	site     Site
	startURL string
	script   ScriptFunc
	sessions []*Session

	// NewSessionErr, when set, is returned by NewSession.
	NewSessionErr error
	// Configure, when set, is applied to every new session before it is returned.
	Configure func(*Session)
}

var _ schemas.BrowserLauncher = (*Launcher)(nil)

// Option customizes a Launcher.
type Option func(*Launcher)

// WithStartURL makes new sessions open at u instead of about:blank.
func WithStartURL(u string) Option {
	return func(l *Launcher) { l.startURL = u }
}

// WithScript installs the evaluator used by Session.Evaluate.
func WithScript(fn ScriptFunc) Option {
	return func(l *Launcher) { l.script = fn }
}

func NewLauncher(site Site, opts ...Option) *Launcher {
	l := &Launcher{site: site}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewSession returns a new session. The session is recorded so tests can
// inspect it after the run.
func (l *Launcher) NewSession(ctx context.Context) (schemas.BrowserSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.NewSessionErr != nil {
		return nil, l.NewSessionErr
	}
	s := NewSession(l.site)
	s.script = l.script
	if l.startURL != "" {
		if err := s.Navigate(ctx, l.startURL); err != nil {
			return nil, err
		}
		s.resetCalls()
	}
	if l.Configure != nil {
		l.Configure(s)
	}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Sessions returns every session created so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// -- Session --

// Session is a single fake browser tab.
type Session struct {
	mu     sync.Mutex
	id     string
	site   Site
	url    string
	doc    *goquery.Document
	script ScriptFunc

	focused     *goquery.Selection
	navigations int
	navsSeen    int

	pending []pendingRender

	calls      []string
	faults     map[string]error
	closeCount int
	closeErr   error
}

var _ schemas.BrowserSession = (*Session)(nil)

// NewSession returns a session on about:blank serving site.
func NewSession(site Site) *Session {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(blankHTML))
	return &Session{
		id:     uuid.NewString(),
		site:   site,
		url:    blankURL,
		doc:    doc,
		faults: make(map[string]error),
	}
}

// FailOn makes every later call of method (e.g. "Click", "Screenshot")
// return err. A nil err clears the fault.
func (s *Session) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// SetCloseError makes the first Close return err.
func (s *Session) SetCloseError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeErr = err
}

// SetScript replaces the evaluator used by Evaluate.
func (s *Session) SetScript(fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = fn
}

// Calls returns the browser-affecting calls made so far, formatted as
// "Method arg...".
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CloseCount reports how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Value returns the current value of the first element matching selector,
// or "" when nothing matches.
func (s *Session) Value(selector string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldValue(s.doc.Find(selector).First())
}

func fieldValue(sel *goquery.Selection) string {
	switch goquery.NodeName(sel) {
	case "textarea":
		return sel.Text()
	case "select":
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		if v, ok := opt.Attr("value"); ok {
			return v
		}
		return strings.TrimSpace(opt.Text())
	}
	v, _ := sel.Attr("value")
	return v
}

// pendingRender is markup appended to the document once its time has come,
// the way client-side rendering fills a page after load.
type pendingRender struct {
	at     time.Time
	parent string
	html   string
}

// RenderLater appends html to the first element matching parent once delay
// has passed. Navigating away drops it.
func (s *Session) RenderLater(parent, html string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingRender{at: time.Now().Add(delay), parent: parent, html: html})
}

// applyDue renders every pending fragment whose time has passed. The caller
// holds the lock.
func (s *Session) applyDue() {
	if len(s.pending) == 0 {
		return
	}
	now := time.Now()
	kept := s.pending[:0]
	for _, p := range s.pending {
		if now.Before(p.at) {
			kept = append(kept, p)
			continue
		}
		s.doc.Find(p.parent).First().AppendHtml(p.html)
	}
	s.pending = kept
}

func (s *Session) ID() string { return s.id }

func (s *Session) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// begin locks the session, records the call and checks for faults. The
// caller must unlock.
func (s *Session) begin(method string, args ...string) error {
	s.mu.Lock()
	if s.closeCount > 0 {
		return ErrSessionClosed
	}
	if err := s.faults[method]; err != nil {
		return err
	}
	s.applyDue()
	if args != nil {
		s.calls = append(s.calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
	}
	return nil
}

// readOnly is begin without call recording.
func (s *Session) readOnly(method string) error {
	return s.begin(method)
}

func (s *Session) Navigate(ctx context.Context, target string) error {
	defer s.mu.Unlock()
	if err := s.begin("Navigate", target); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.load(target)
}

// load replaces the current document. Query strings fall back to the bare
// URL so search result pages can be registered once.
func (s *Session) load(target string) error {
	html, ok := s.site[target]
	if !ok {
		if u, err := url.Parse(target); err == nil && u.RawQuery != "" {
			u.RawQuery = ""
			html, ok = s.site[u.String()]
		}
	}
	if !ok {
		return fmt.Errorf("navigation to %s failed: net::ERR_NAME_NOT_RESOLVED", target)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
	s.url = target
	s.doc = doc
	s.focused = nil
	s.pending = nil
	s.navigations++
	return nil
}

func (s *Session) URL(context.Context) (string, error) {
	defer s.mu.Unlock()
	if err := s.readOnly("URL"); err != nil {
		return "", err
	}
	return s.url, nil
}

func (s *Session) Title(context.Context) (string, error) {
	defer s.mu.Unlock()
	if err := s.readOnly("Title"); err != nil {
		return "", err
	}
	return strings.TrimSpace(s.doc.Find("title").First().Text()), nil
}

func (s *Session) HTML(context.Context) (string, error) {
	defer s.mu.Unlock()
	if err := s.readOnly("HTML"); err != nil {
		return "", err
	}
	return s.doc.Html()
}

func (s *Session) find(selector string) (*goquery.Selection, error) {
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("no element found for selector %q", selector)
	}
	return sel, nil
}

// Click follows links and submits the enclosing form of submit buttons.
func (s *Session) Click(_ context.Context, selector string) error {
	defer s.mu.Unlock()
	if err := s.begin("Click", selector); err != nil {
		return err
	}
	el, err := s.find(selector)
	if err != nil {
		return err
	}
	s.focused = el

	switch goquery.NodeName(el) {
	case "a":
		if href, ok := el.Attr("href"); ok && href != "" && !strings.HasPrefix(href, "#") {
			return s.load(s.resolve(href))
		}
	case "button", "input":
		typ, _ := el.Attr("type")
		isButton := goquery.NodeName(el) == "button"
		if typ == "submit" || (isButton && typ == "") {
			if form := el.Closest("form"); form.Length() > 0 {
				return s.submit(form)
			}
		}
	}
	return nil
}

func (s *Session) Fill(_ context.Context, selector, value string) error {
	defer s.mu.Unlock()
	if err := s.begin("Fill", selector, value); err != nil {
		return err
	}
	el, err := s.find(selector)
	if err != nil {
		return err
	}
	switch goquery.NodeName(el) {
	case "textarea":
		el.SetText(value)
	case "input":
		el.SetAttr("value", value)
	default:
		return fmt.Errorf("element %q is not an input field", selector)
	}
	s.focused = el
	return nil
}

func (s *Session) SelectOption(_ context.Context, selector, value string) error {
	defer s.mu.Unlock()
	if err := s.begin("SelectOption", selector, value); err != nil {
		return err
	}
	el, err := s.find(selector)
	if err != nil {
		return err
	}
	if goquery.NodeName(el) != "select" {
		return fmt.Errorf("element %q is not a select element", selector)
	}
	var match *goquery.Selection
	el.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		v, ok := opt.Attr("value")
		if (ok && v == value) || strings.TrimSpace(opt.Text()) == value {
			match = opt
			return false
		}
		return true
	})
	if match == nil {
		return fmt.Errorf("no option %q in select %q", value, selector)
	}
	el.Find("option").RemoveAttr("selected")
	match.SetAttr("selected", "selected")
	return nil
}

func (s *Session) Hover(_ context.Context, selector string) error {
	defer s.mu.Unlock()
	if err := s.begin("Hover", selector); err != nil {
		return err
	}
	_, err := s.find(selector)
	return err
}

// ScrollIntoView never fails on a missing element.
func (s *Session) ScrollIntoView(_ context.Context, selector string) error {
	defer s.mu.Unlock()
	return s.begin("ScrollIntoView", selector)
}

// PressKey submits the focused element's form on Enter.
func (s *Session) PressKey(_ context.Context, key string) error {
	defer s.mu.Unlock()
	if err := s.begin("PressKey", key); err != nil {
		return err
	}
	if strings.EqualFold(key, "Enter") && s.focused != nil {
		if form := s.focused.Closest("form"); form.Length() > 0 {
			return s.submit(form)
		}
	}
	return nil
}

// submit performs a GET submission of form with its named fields.
func (s *Session) submit(form *goquery.Selection) error {
	action, _ := form.Attr("action")
	target, err := url.Parse(s.resolve(action))
	if err != nil {
		return fmt.Errorf("invalid form action %q: %w", action, err)
	}
	query := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, field *goquery.Selection) {
		name, _ := field.Attr("name")
		switch goquery.NodeName(field) {
		case "textarea":
			query.Add(name, field.Text())
		case "select":
			v, _ := field.Find("option[selected]").First().Attr("value")
			query.Add(name, v)
		default:
			v, _ := field.Attr("value")
			query.Add(name, v)
		}
	})
	target.RawQuery = query.Encode()
	return s.load(target.String())
}

func (s *Session) resolve(ref string) string {
	base, err := url.Parse(s.url)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// WaitVisible succeeds immediately when the selector matches and otherwise
// fails with a timeout error without sleeping.
func (s *Session) WaitVisible(_ context.Context, selector string, timeout time.Duration) error {
	defer s.mu.Unlock()
	if err := s.begin("WaitVisible", selector); err != nil {
		return err
	}
	if s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("waiting for selector %q: timeout after %s", selector, timeout)
	}
	return nil
}

// WaitForNavigation succeeds if a navigation happened since the previous
// call and otherwise fails with a timeout error.
func (s *Session) WaitForNavigation(_ context.Context, timeout time.Duration) error {
	defer s.mu.Unlock()
	if err := s.begin("WaitForNavigation", timeout.String()); err != nil {
		return err
	}
	if s.navigations == s.navsSeen {
		return fmt.Errorf("waiting for navigation: timeout after %s", timeout)
	}
	s.navsSeen = s.navigations
	return nil
}

func (s *Session) Evaluate(_ context.Context, expression string, res interface{}) error {
	defer s.mu.Unlock()
	if err := s.begin("Evaluate", expression); err != nil {
		return err
	}
	if s.script == nil {
		return fmt.Errorf("script evaluation is not supported by this session")
	}
	value, err := s.script(expression)
	if err != nil {
		return err
	}
	if res == nil || value == nil {
		return nil
	}
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding script result: %w", err)
	}
	return jsoniter.Unmarshal(raw, res)
}

// pollInterval is how often ExtractText rechecks while waiting.
const pollInterval = 10 * time.Millisecond

// ExtractText waits up to wait for a match while renders are pending. With
// nothing pending the document cannot change, so a miss returns at once.
func (s *Session) ExtractText(ctx context.Context, selector string, wait time.Duration) ([]string, error) {
	deadline := time.Now().Add(wait)
	record := true
	for {
		texts, waiting, err := s.extractOnce(selector, record)
		if err != nil {
			return nil, err
		}
		if len(texts) > 0 || !waiting || !time.Now().Before(deadline) {
			return texts, nil
		}
		record = false

		timer := time.NewTimer(pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (s *Session) extractOnce(selector string, record bool) ([]string, bool, error) {
	defer s.mu.Unlock()
	var err error
	if record {
		err = s.begin("ExtractText", selector)
	} else {
		err = s.readOnly("ExtractText")
	}
	if err != nil {
		return nil, false, err
	}
	texts := []string{}
	s.doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(el.Text()))
	})
	return texts, len(s.pending) > 0, nil
}

func (s *Session) FieldValue(_ context.Context, selector string) (string, error) {
	defer s.mu.Unlock()
	if err := s.readOnly("FieldValue"); err != nil {
		return "", err
	}
	el, err := s.find(selector)
	if err != nil {
		return "", err
	}
	return fieldValue(el), nil
}

// Screenshot returns a PNG signature followed by the current URL.
func (s *Session) Screenshot(context.Context) ([]byte, error) {
	defer s.mu.Unlock()
	if err := s.readOnly("Screenshot"); err != nil {
		return nil, err
	}
	return append(append([]byte(nil), pngSignature...), s.url...), nil
}

// Close is idempotent; only the first call can return the configured error.
func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if s.closeCount == 1 && s.closeErr != nil {
		return s.closeErr
	}
	return nil
}
