package schemas

import (
	"fmt"
	"strings"
)

// -- Intents --

// Intent is a single natural-language instruction for one UI action, or one
// of the sentinel values that end a run.
type Intent string

const (
	// IntentGoalCompleted signals that the reasoning service judges the goal met.
	IntentGoalCompleted Intent = "GOAL_COMPLETED"
	// IntentEnd signals that the run should stop and report the last extraction.
	IntentEnd Intent = "END"
)

// IsSentinel reports whether the intent terminates the run instead of
// describing an action.
func (i Intent) IsSentinel() bool {
	return i == IntentGoalCompleted || i == IntentEnd
}

// -- Action Specs --

// ActionKind enumerates the browser primitives an intent can be translated into.
type ActionKind string

const (
	KindClick             ActionKind = "click"
	KindType              ActionKind = "type"
	KindSelect            ActionKind = "select"
	KindNavigate          ActionKind = "navigate"
	KindWait              ActionKind = "wait"
	KindWaitForSelector   ActionKind = "waitForSelector"
	KindWaitForNavigation ActionKind = "waitForNavigation"
	KindPressKey          ActionKind = "pressKey"
	KindHover             ActionKind = "hover"
	KindScrollIntoView    ActionKind = "scrollIntoView"
	KindExecuteScript     ActionKind = "executeScript"
	KindExtract           ActionKind = "extract"
)

// AllActionKinds lists every ActionKind in declaration order.
var AllActionKinds = []ActionKind{
	KindClick, KindType, KindSelect, KindNavigate, KindWait, KindWaitForSelector,
	KindWaitForNavigation, KindPressKey, KindHover, KindScrollIntoView, KindExecuteScript, KindExtract,
}

// Valid reports whether k is one of the enumerated kinds.
func (k ActionKind) Valid() bool {
	for _, known := range AllActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Mutates reports whether performing the kind may change the DOM, in which
// case the executor lets the page settle before capturing a new state.
func (k ActionKind) Mutates() bool {
	switch k {
	case KindClick, KindType, KindSelect, KindNavigate, KindPressKey, KindHover, KindScrollIntoView, KindExecuteScript:
		return true
	default:
		return false
	}
}

// ActionSpec is the structured, executable representation of an intent.
type ActionSpec struct {
	Kind       ActionKind `json:"action"`
	Selector   string     `json:"selector,omitempty"`
	Value      string     `json:"value,omitempty"`
	WaitTimeMs int        `json:"waitTime,omitempty"`
	Key        string     `json:"key,omitempty"`
}

// PreconditionError reports an ActionSpec that lacks a field its kind requires.
type PreconditionError struct {
	Kind  ActionKind
	Field string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s is required for %s action", e.Field, e.Kind)
}

// Validate checks the kind-dependent required fields. It never touches a browser.
func (a ActionSpec) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	needsSelector := false
	needsValue := false
	switch a.Kind {
	case KindClick, KindSelect, KindHover, KindScrollIntoView, KindWaitForSelector, KindExtract:
		needsSelector = true
	case KindType:
		needsSelector, needsValue = true, true
	case KindNavigate, KindExecuteScript:
		needsValue = true
	case KindPressKey:
		if strings.TrimSpace(a.Key) == "" {
			return &PreconditionError{Kind: a.Kind, Field: "key"}
		}
	}
	if needsSelector && strings.TrimSpace(a.Selector) == "" {
		return &PreconditionError{Kind: a.Kind, Field: "selector"}
	}
	if needsValue && a.Value == "" {
		return &PreconditionError{Kind: a.Kind, Field: "value"}
	}
	return nil
}

// -- Outcomes --

// StepStatus is the execution status of one performed intent.
type StepStatus string

const (
	StatusSuccess        StepStatus = "SUCCESS"
	StatusError          StepStatus = "ERROR"
	StatusExtracted      StepStatus = "EXTRACTED"
	StatusCompleted      StepStatus = "COMPLETED"
	StatusScriptExecuted StepStatus = "SCRIPT_EXECUTED"
)

// StepOutcome is the result of performing one intent against the browser.
// An EXTRACTED outcome always carries a non-nil Extracted slice.
type StepOutcome struct {
	State        PageState   `json:"state"`
	Status       StepStatus  `json:"status"`
	Action       *ActionSpec `json:"action,omitempty"`
	Extracted    []string    `json:"extractedContent,omitempty"`
	ScriptResult interface{} `json:"scriptResult,omitempty"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	Error        string      `json:"error,omitempty"`

	// FieldValue is the field's value read back after a type or select.
	FieldValue *string `json:"fieldValue,omitempty"`
}

// VerificationStatus is the verdict on one outcome.
type VerificationStatus string

const (
	VerificationSuccess VerificationStatus = "SUCCESS"
	VerificationFailure VerificationStatus = "FAILURE"
)

// NextActionEnd tells the retry loop that no further attempt is needed.
const NextActionEnd = "END"

// VerificationResult judges whether an outcome satisfied its intent. On
// failure NextAction holds a free-text retry suggestion.
type VerificationResult struct {
	Status     VerificationStatus `json:"status"`
	Message    string             `json:"message"`
	NextAction string             `json:"nextAction"`
}

// Done reports whether the retry loop may stop after this verdict.
func (v VerificationResult) Done() bool {
	return v.Status == VerificationSuccess || v.NextAction == NextActionEnd
}

// -- Run Results --

// RunState is the orchestrator's state machine position.
type RunState string

const (
	RunRunning          RunState = "RUNNING"
	RunGoalReached      RunState = "GOAL_REACHED"
	RunStepLimitReached RunState = "STEP_LIMIT_REACHED"
	RunFailed           RunState = "FAILED"
)

// Response messages reported for a finished run.
const (
	MessageCompleted = "Automation completed successfully"
	MessageStepLimit = "Automation reached maximum step limit"
)

// StepRecord is one entry of the result log returned to the caller.
type StepRecord struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Title   string `json:"title"`
}

// RunResult is the single response produced for one goal.
type RunResult struct {
	RunID            string       `json:"runId,omitempty"`
	Command          string       `json:"command"`
	State            RunState     `json:"state,omitempty"`
	Results          []StepRecord `json:"results"`
	ExtractedContent []string     `json:"extractedContent"`
	Message          string       `json:"message"`
}
