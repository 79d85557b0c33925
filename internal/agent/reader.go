package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
)

const (
	buttonSelector = "button, input[type=button], input[type=submit], [role=button]"
	inputSelector  = "input[type=text], input[type=email], input[type=password], input[type=search], input:not([type]), textarea"
	linkSelector   = "a"

	// maxLabelLen keeps one odd element from flooding the prompt.
	maxLabelLen = 100
)

// PageStateReader captures PageState snapshots. The element summary is built
// from the captured markup rather than by querying the live page, so a
// snapshot is internally consistent.
type PageStateReader struct {
	limit  int
	logger *zap.Logger
}

var _ StateReader = (*PageStateReader)(nil)

// NewPageStateReader returns a reader that lists at most limit elements of
// each kind.
func NewPageStateReader(limit int, logger *zap.Logger) *PageStateReader {
	if limit <= 0 {
		limit = 10
	}
	return &PageStateReader{limit: limit, logger: logger.Named("page_reader")}
}

// Capture reads URL, title and markup from the session. Failing to read any
// of those is an error; failing to summarize the markup only degrades the
// summary.
func (r *PageStateReader) Capture(ctx context.Context, session schemas.BrowserSession) (schemas.PageState, error) {
	pageURL, err := session.URL(ctx)
	if err != nil {
		return schemas.PageState{}, fmt.Errorf("failed to read page url: %w", err)
	}
	title, err := session.Title(ctx)
	if err != nil {
		return schemas.PageState{}, fmt.Errorf("failed to read page title: %w", err)
	}
	html, err := session.HTML(ctx)
	if err != nil {
		return schemas.PageState{}, fmt.Errorf("failed to read page content: %w", err)
	}

	summary, err := SummarizeElements(html, pageURL, r.limit)
	if err != nil {
		r.logger.Warn("Could not summarize page elements.", zap.String("url", pageURL), zap.Error(err))
		summary = schemas.ElementSummary{Degraded: true}
	}
	return schemas.PageState{URL: pageURL, Title: title, HTML: html, Elements: summary}, nil
}

// SummarizeElements lists the first limit buttons, text inputs and links in
// html. Relative link targets are resolved against pageURL.
func SummarizeElements(html, pageURL string, limit int) (schemas.ElementSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return schemas.ElementSummary{}, fmt.Errorf("failed to parse page markup: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var items []schemas.ElementInfo
	collect := func(selector string, build func(*goquery.Selection) schemas.ElementInfo) {
		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= limit {
				return false
			}
			items = append(items, build(s))
			return true
		})
	}

	collect(buttonSelector, func(s *goquery.Selection) schemas.ElementInfo {
		return schemas.ElementInfo{
			Kind:     schemas.ElementButton,
			Label:    firstNonEmpty(s.Text(), attr(s, "value"), attr(s, "aria-label"), attr(s, "name")),
			Selector: selectorHint(s, false),
		}
	})
	collect(inputSelector, func(s *goquery.Selection) schemas.ElementInfo {
		return schemas.ElementInfo{
			Kind:     schemas.ElementInput,
			Label:    firstNonEmpty(attr(s, "placeholder"), attr(s, "name"), attr(s, "aria-label"), attr(s, "value")),
			Selector: selectorHint(s, true),
		}
	})
	collect(linkSelector, func(s *goquery.Selection) schemas.ElementInfo {
		return schemas.ElementInfo{
			Kind:     schemas.ElementLink,
			Label:    firstNonEmpty(s.Text(), attr(s, "title"), attr(s, "aria-label")),
			Selector: selectorHint(s, false),
			Href:     resolveHref(base, attr(s, "href")),
		}
	})
	return schemas.ElementSummary{Elements: items}, nil
}

// selectorHint prefers #id, then [name] for inputs, then the class list,
// then the bare tag.
func selectorHint(s *goquery.Selection, isInput bool) string {
	if id := attr(s, "id"); id != "" && !strings.ContainsAny(id, " \t\n") {
		return "#" + id
	}
	if isInput {
		if name := attr(s, "name"); name != "" {
			return fmt.Sprintf("[name=%q]", name)
		}
	}
	if classes := strings.Fields(attr(s, "class")); len(classes) > 0 {
		return "." + strings.Join(classes, ".")
	}
	return goquery.NodeName(s)
}

func resolveHref(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return v
}

// firstNonEmpty returns the first candidate with visible content, with
// whitespace collapsed and truncated to maxLabelLen runes.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if collapsed := strings.Join(strings.Fields(c), " "); collapsed != "" {
			if r := []rune(collapsed); len(r) > maxLabelLen {
				return string(r[:maxLabelLen])
			}
			return collapsed
		}
	}
	return ""
}
