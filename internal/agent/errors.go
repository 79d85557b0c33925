// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/crust/api/schemas"
)

// ErrorCode is a string type used for structured error reporting from action
// handlers. It is carried on ERROR outcomes and fed back to the verifier.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure   ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters  ErrorCode = "INVALID_PARAMETERS"
	ErrCodeTranslationFailure ErrorCode = "TRANSLATION_FAILURE"
	ErrCodeScriptDisabled     ErrorCode = "SCRIPT_DISABLED"
	// -- Browser/DOM Errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"
)

// ErrPlanningFailure is wrapped by every error the planner returns. It ends
// the run.
var ErrPlanningFailure = errors.New("planning failure")

// errScriptsDisabled is returned by the executeScript handler when scripts
// are turned off in configuration.
var errScriptsDisabled = errors.New("executeScript is disabled by configuration")

// RetryExhaustedError reports an intent that never verified within its budget.
type RetryExhaustedError struct {
	Intent   string
	Attempts int
	// Last is the verifier's final message, if any.
	Last string
}

func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("failed to execute step %q after %d attempts", e.Intent, e.Attempts)
	if e.Last != "" {
		msg += ": " + e.Last
	}
	return msg
}

// ParseBrowserError classifies a handler error heuristically from its message.
// chromedp and the in-memory browser both phrase their failures so that
// these substrings are stable.
func ParseBrowserError(err error, action schemas.ActionSpec) (ErrorCode, map[string]interface{}) {
	errStr := err.Error()
	details := map[string]interface{}{
		"message": errStr,
		"action":  string(action.Kind),
	}

	var precondition *schemas.PreconditionError
	switch {
	case errors.As(err, &precondition):
		details["field"] = precondition.Field
		return ErrCodeInvalidParameters, details
	case errors.Is(err, errScriptsDisabled):
		return ErrCodeScriptDisabled, details
	}

	lower := strings.ToLower(errStr)
	if strings.Contains(lower, "selector") || strings.Contains(lower, "no element found") || strings.Contains(lower, "could not find node") {
		details["selector"] = action.Selector
		return ErrCodeElementNotFound, details
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return ErrCodeTimeoutError, details
	}
	if strings.Contains(errStr, "net::ERR") || strings.Contains(lower, "navigation") {
		return ErrCodeNavigationError, details
	}
	return ErrCodeExecutionFailure, details
}
