package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/browser/fake"
)

// -- Scripted Reasoning Service --

// scriptedLLM answers each of the three prompt kinds from a script. Plans
// are consumed in order and the last one repeats. Actions are looked up by
// the intent named in the action prompt. Verdicts are consumed in order and
// fall back to SUCCESS/END.
type scriptedLLM struct {
	mu sync.Mutex

	plans    []string
	actions  map[string]schemas.ActionSpec
	verdicts []schemas.VerificationResult
	// alwaysVerdict, when set, answers every verification.
	alwaysVerdict *schemas.VerificationResult

	planErr   error
	actionErr error
	verifyErr error
	// rawVerdict, when set, is decoded instead of a structured verdict.
	rawVerdict string

	planCalls   int
	actionCalls int
	verifyCalls int
	prompts     []string
}

var _ schemas.Extractor = (*scriptedLLM)(nil)

const actionPromptMarker = "Step to execute: "

func (s *scriptedLLM) Extract(_ context.Context, prompt string, schema *schemas.Schema, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)

	var answer interface{}
	switch schema {
	case nextStepSchema:
		s.planCalls++
		if s.planErr != nil {
			return s.planErr
		}
		if len(s.plans) == 0 {
			return errors.New("script has no plans")
		}
		idx := min(s.planCalls-1, len(s.plans)-1)
		answer = map[string]string{"nextStep": s.plans[idx]}
	case actionSpecSchema:
		s.actionCalls++
		if s.actionErr != nil {
			return s.actionErr
		}
		intent := intentFromPrompt(prompt)
		spec, ok := s.actions[intent]
		if !ok {
			return fmt.Errorf("no scripted action for intent %q", intent)
		}
		answer = spec
	case verificationSchema:
		s.verifyCalls++
		if s.verifyErr != nil {
			return s.verifyErr
		}
		if s.rawVerdict != "" {
			return jsoniter.UnmarshalFromString(s.rawVerdict, out)
		}
		answer = s.nextVerdict()
	default:
		return fmt.Errorf("unexpected schema %+v", schema)
	}
	raw, err := jsoniter.Marshal(answer)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(raw, out)
}

func intentFromPrompt(prompt string) string {
	_, rest, ok := strings.Cut(prompt, actionPromptMarker)
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(rest, "\n")
	return line
}

func (s *scriptedLLM) nextVerdict() schemas.VerificationResult {
	if s.alwaysVerdict != nil {
		return *s.alwaysVerdict
	}
	if len(s.verdicts) > 0 {
		v := s.verdicts[0]
		s.verdicts = s.verdicts[1:]
		return v
	}
	return schemas.VerificationResult{Status: schemas.VerificationSuccess, Message: "looks good", NextAction: schemas.NextActionEnd}
}

func (s *scriptedLLM) counts() (plans, actions, verifies int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planCalls, s.actionCalls, s.verifyCalls
}

// -- Recording Artifact Sink --

type recordingArtifacts struct {
	mu     sync.Mutex
	steps  []int
	errors int
	fail   error
}

var _ ArtifactRecorder = (*recordingArtifacts)(nil)

func (r *recordingArtifacts) SaveStep(step int, png []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return "", r.fail
	}
	r.steps = append(r.steps, step)
	return fmt.Sprintf("step-%d.png", step), nil
}

func (r *recordingArtifacts) SaveError(png []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return "", r.fail
	}
	r.errors++
	return "error.png", nil
}

// -- Fixtures --

const homePage = `<html><head><title>Example Search</title></head><body>
<form action="/search" method="get">
  <input type="text" name="q" placeholder="Search">
  <button type="submit" id="go">Search</button>
</form>
<a href="/about">About us</a>
</body></html>`

const resultsPage = `<html><head><title>Search Results</title></head><body>
<ul><li class="result">Cats 101</li><li class="result">Big cats</li></ul>
</body></html>`

func exampleSite() fake.Site {
	return fake.Site{
		"https://example.com":        homePage,
		"https://example.com/search": resultsPage,
		"https://example.com/about":  `<html><head><title>About</title></head><body><p>About</p></body></html>`,
	}
}

// fataler is the part of testing.T and rapid.T the fixtures need.
type fataler interface {
	Helper()
	Fatalf(format string, args ...interface{})
}

// openSession returns a fake session already showing the example home page.
func openSession(t fataler) *fake.Session {
	t.Helper()
	s := fake.NewSession(exampleSite())
	if err := s.Navigate(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("navigating fixture session: %v", err)
	}
	return s
}

// stubSleep replaces the package sleep with a recorder for the duration of
// the test.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		SettleDelay:         500 * time.Millisecond,
		DefaultWait:         2 * time.Second,
		WaitSelectorTimeout: 30 * time.Second,
		ExtractWait:         10 * time.Second,
		AllowScripts:        true,
	}
}
