package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchHome = `<html><head><title>Example Search</title></head><body>
<form action="/search" method="get">
  <input type="text" name="q" placeholder="Search">
  <button type="submit" id="go">Search</button>
</form>
<select id="lang"><option value="en">English</option><option value="fr">French</option></select>
<a href="/about" class="nav">About</a>
</body></html>`

const searchResults = `<html><head><title>Results</title></head><body>
<ul><li class="result"> Cats 101 </li><li class="result">Big cats</li></ul>
</body></html>`

func testSite() Site {
	return Site{
		"https://example.com":        searchHome,
		"https://example.com/search": searchResults,
		"https://example.com/about":  "<html><head><title>About</title></head><body><p>about</p></body></html>",
	}
}

func newOpenSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(testSite())
	require.NoError(t, s.Navigate(context.Background(), "https://example.com"))
	return s
}

func TestNavigate(t *testing.T) {
	ctx := context.Background()
	s := NewSession(testSite())

	u, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", u)

	require.NoError(t, s.Navigate(ctx, "https://example.com"))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Example Search", title)

	err = s.Navigate(ctx, "https://nowhere.invalid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net::ERR_NAME_NOT_RESOLVED")
}

func TestFillAndSubmitWithEnter(t *testing.T) {
	ctx := context.Background()
	s := newOpenSession(t)

	require.NoError(t, s.Fill(ctx, "input[name=q]", "cats"))
	assert.Equal(t, "cats", s.Value("input[name=q]"))
	typed, err := s.FieldValue(ctx, "input[name=q]")
	require.NoError(t, err)
	assert.Equal(t, "cats", typed)

	require.NoError(t, s.PressKey(ctx, "Enter"))
	u, _ := s.URL(ctx)
	assert.Equal(t, "https://example.com/search?q=cats", u)
	title, _ := s.Title(ctx)
	assert.Equal(t, "Results", title)
}

func TestClick(t *testing.T) {
	ctx := context.Background()

	t.Run("submit button submits the form", func(t *testing.T) {
		s := newOpenSession(t)
		require.NoError(t, s.Fill(ctx, "input[name=q]", "dogs"))
		require.NoError(t, s.Click(ctx, "#go"))
		u, _ := s.URL(ctx)
		assert.Equal(t, "https://example.com/search?q=dogs", u)
	})

	t.Run("link navigates", func(t *testing.T) {
		s := newOpenSession(t)
		require.NoError(t, s.Click(ctx, "a.nav"))
		u, _ := s.URL(ctx)
		assert.Equal(t, "https://example.com/about", u)
	})

	t.Run("missing element", func(t *testing.T) {
		s := newOpenSession(t)
		err := s.Click(ctx, "#missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no element found")
	})
}

func TestSelectOption(t *testing.T) {
	ctx := context.Background()
	s := newOpenSession(t)
	require.NoError(t, s.SelectOption(ctx, "#lang", "French"))
	html, err := s.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `<option value="fr" selected="selected">`)

	selected, err := s.FieldValue(ctx, "#lang")
	require.NoError(t, err)
	assert.Equal(t, "fr", selected)

	assert.Error(t, s.SelectOption(ctx, "#lang", "German"))
	assert.Error(t, s.SelectOption(ctx, "input[name=q]", "x"))
}

func TestExtractText(t *testing.T) {
	ctx := context.Background()
	s := NewSession(testSite())
	require.NoError(t, s.Navigate(ctx, "https://example.com/search"))

	texts, err := s.ExtractText(ctx, ".result", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats 101", "Big cats"}, texts)

	start := time.Now()
	none, err := s.ExtractText(ctx, ".does-not-exist", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
	assert.Less(t, time.Since(start), time.Second, "a static page is not waited on")
	assert.Equal(t, []string{"Navigate https://example.com/search", "ExtractText .result", "ExtractText .does-not-exist"}, s.Calls())
}

func TestExtractText_LateContent(t *testing.T) {
	ctx := context.Background()

	t.Run("waits for content rendered after load", func(t *testing.T) {
		s := newOpenSession(t)
		s.RenderLater("body", `<p class="late">Rendered late</p>`, 50*time.Millisecond)

		texts, err := s.ExtractText(ctx, ".late", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, []string{"Rendered late"}, texts)
	})

	t.Run("reads immediately without a wait", func(t *testing.T) {
		s := newOpenSession(t)
		s.RenderLater("body", `<p class="late">Rendered late</p>`, time.Hour)

		texts, err := s.ExtractText(ctx, ".late", 0)
		require.NoError(t, err)
		assert.Empty(t, texts)
	})

	t.Run("gives up with an empty result", func(t *testing.T) {
		s := newOpenSession(t)
		s.RenderLater("body", `<p class="late">Rendered late</p>`, time.Hour)

		start := time.Now()
		texts, err := s.ExtractText(ctx, ".late", 100*time.Millisecond)
		require.NoError(t, err)
		assert.NotNil(t, texts)
		assert.Empty(t, texts)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("caller cancellation stops the wait", func(t *testing.T) {
		s := newOpenSession(t)
		s.RenderLater("body", `<p class="late">Rendered late</p>`, time.Hour)

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := s.ExtractText(cctx, ".late", time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("navigation drops pending content", func(t *testing.T) {
		s := newOpenSession(t)
		s.RenderLater("body", `<p class="late">Rendered late</p>`, 10*time.Millisecond)
		require.NoError(t, s.Navigate(ctx, "https://example.com/about"))
		time.Sleep(20 * time.Millisecond)

		texts, err := s.ExtractText(ctx, ".late", time.Second)
		require.NoError(t, err)
		assert.Empty(t, texts)
	})
}

func TestFieldValue_Missing(t *testing.T) {
	s := newOpenSession(t)
	_, err := s.FieldValue(context.Background(), "#missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no element found")
}

func TestWaits(t *testing.T) {
	ctx := context.Background()
	s := newOpenSession(t)

	assert.NoError(t, s.WaitVisible(ctx, "input[name=q]", time.Second))
	err := s.WaitVisible(ctx, "#late", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	// The initial navigation counts once.
	assert.NoError(t, s.WaitForNavigation(ctx, time.Second))
	assert.Error(t, s.WaitForNavigation(ctx, time.Second))
	require.NoError(t, s.Click(ctx, "a.nav"))
	assert.NoError(t, s.WaitForNavigation(ctx, time.Second))
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	s := newOpenSession(t)

	var res interface{}
	assert.Error(t, s.Evaluate(ctx, "1+1", &res), "no evaluator installed")

	s.SetScript(func(expr string) (interface{}, error) {
		return map[string]interface{}{"expr": expr, "n": 2}, nil
	})
	var out struct {
		Expr string `json:"expr"`
		N    int    `json:"n"`
	}
	require.NoError(t, s.Evaluate(ctx, "1+1", &out))
	assert.Equal(t, "1+1", out.Expr)
	assert.Equal(t, 2, out.N)
}

func TestFaultsAndClose(t *testing.T) {
	ctx := context.Background()
	s := newOpenSession(t)

	boom := errors.New("boom")
	s.FailOn("Screenshot", boom)
	_, err := s.Screenshot(ctx)
	assert.ErrorIs(t, err, boom)
	s.FailOn("Screenshot", nil)
	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, pngSignature, png[:len(pngSignature)])

	s.SetCloseError(errors.New("close failed"))
	assert.Error(t, s.Close(ctx))
	assert.NoError(t, s.Close(ctx), "close is idempotent")
	assert.Equal(t, 2, s.CloseCount())

	_, err = s.URL(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCallsRecordOnlyBrowserActions(t *testing.T) {
	ctx := context.Background()
	s := newOpenSession(t)
	_, _ = s.URL(ctx)
	_, _ = s.HTML(ctx)
	require.NoError(t, s.Hover(ctx, "#go"))
	require.NoError(t, s.ScrollIntoView(ctx, "#absent"))

	assert.Equal(t, []string{"Navigate https://example.com", "Hover #go", "ScrollIntoView #absent"}, s.Calls())
}

func TestLauncher(t *testing.T) {
	ctx := context.Background()
	l := NewLauncher(testSite(), WithStartURL("https://example.com"))

	sess, err := l.NewSession(ctx)
	require.NoError(t, err)
	u, _ := sess.URL(ctx)
	assert.Equal(t, "https://example.com", u)
	require.Len(t, l.Sessions(), 1)
	assert.Empty(t, l.Sessions()[0].Calls(), "start navigation is not recorded")

	other, err := l.NewSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID(), other.ID())

	l.NewSessionErr = errors.New("no browser")
	_, err = l.NewSession(ctx)
	assert.Error(t, err)
}
