package schemas

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// -- Page State Schemas --

// PageState is a read-only snapshot of the browser context at one point in a
// run. A new PageState is captured after every browser-affecting action; an
// existing snapshot is never mutated.
type PageState struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	HTML     string         `json:"-"`
	Elements ElementSummary `json:"elements"`
}

// ElementKind categorizes an entry of the interactive element summary.
type ElementKind string

const (
	ElementButton ElementKind = "Button"
	ElementInput  ElementKind = "Input"
	ElementLink   ElementKind = "Link"
)

// ElementInfo describes one interactive element with a best-effort label and
// a best-effort selector hint the reasoning service can reuse.
type ElementInfo struct {
	Kind     ElementKind `json:"kind"`
	Label    string      `json:"label"`
	Selector string      `json:"selector,omitempty"`
	Href     string      `json:"href,omitempty"`
}

// DegradedSummaryText replaces the element listing when it could not be built.
const DegradedSummaryText = "Unable to extract page elements information"

// ElementSummary is the bounded list of interactive elements on a page.
type ElementSummary struct {
	Elements []ElementInfo `json:"items"`
	Degraded bool          `json:"degraded,omitempty"`
}

// String renders the summary in the line format used inside prompts.
func (s ElementSummary) String() string {
	if s.Degraded {
		return DegradedSummaryText
	}
	lines := make([]string, 0, len(s.Elements))
	for _, el := range s.Elements {
		if el.Kind == ElementLink {
			lines = append(lines, fmt.Sprintf("Link: %q [href=%q]", el.Label, el.Href))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %q %s", el.Kind, el.Label, el.Selector))
	}
	return strings.Join(lines, "\n")
}

// -- Browser Session Interfaces --

// BrowserSession is the browser-driving capability used by a single run. A
// session is exclusively owned by one run and must be closed exactly once.
// Selector arguments are CSS selectors.
type BrowserSession interface {
	// ID returns the unique identifier of the session.
	ID() string

	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// HTML returns the outer HTML of the current document.
	HTML(ctx context.Context) (string, error)

	Click(ctx context.Context, selector string) error
	// Fill clears the matched field and types value into it.
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	Hover(ctx context.Context, selector string) error
	// ScrollIntoView scrolls the first match into view. A missing element is not an error.
	ScrollIntoView(ctx context.Context, selector string) error
	PressKey(ctx context.Context, key string) error

	// WaitVisible blocks until the selector matches a visible element or the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// WaitForNavigation blocks until the next document load completes or the timeout elapses.
	WaitForNavigation(ctx context.Context, timeout time.Duration) error

	// Evaluate runs a JavaScript expression in page context. A non-nil res
	// receives the JSON-decoded result.
	Evaluate(ctx context.Context, expression string, res interface{}) error
	// ExtractText returns the trimmed text content of every element matching
	// the selector, in document order. It first waits up to wait for a match
	// to attach; no match by then yields an empty slice, not an error.
	ExtractText(ctx context.Context, selector string, wait time.Duration) ([]string, error)
	// FieldValue returns the current value of the first form field matching
	// the selector.
	FieldValue(ctx context.Context, selector string) (string, error)
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the session and its browser resources. It is idempotent.
	Close(ctx context.Context) error
}

// BrowserLauncher creates new, isolated browser sessions.
type BrowserLauncher interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}
