// internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/crust/api/schemas"
)

// StateReader captures a read-only snapshot of a session.
type StateReader interface {
	Capture(ctx context.Context, session schemas.BrowserSession) (schemas.PageState, error)
}

// Planner decides the next intent for a goal.
type Planner interface {
	Next(ctx context.Context, state schemas.PageState, goal string, history []string) (schemas.Intent, error)
}

// Performer translates an intent into an action and performs it. It reports
// every failure through the outcome instead of an error.
type Performer interface {
	Perform(ctx context.Context, session schemas.BrowserSession, intent string, state schemas.PageState) schemas.StepOutcome
}

// Checker judges an outcome against the intent that produced it. An error
// is only returned when the caller's context is done.
type Checker interface {
	Check(ctx context.Context, intent string, outcome schemas.StepOutcome) (schemas.VerificationResult, error)
}

// ArtifactRecorder persists diagnostic screenshots. Implementations choose
// file names; the returned string identifies the stored artifact.
type ArtifactRecorder interface {
	SaveStep(step int, png []byte) (string, error)
	SaveError(png []byte) (string, error)
}

type nopRecorder struct{}

func (nopRecorder) SaveStep(int, []byte) (string, error) { return "", nil }
func (nopRecorder) SaveError([]byte) (string, error)     { return "", nil }
