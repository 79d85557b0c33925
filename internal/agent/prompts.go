package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/crust/api/schemas"
)

// -- Response Schemas --

var nextStepSchema = &schemas.Schema{
	Type: schemas.TypeObject,
	Properties: map[string]*schemas.Schema{
		"nextStep": {
			Type:        schemas.TypeString,
			Description: "A single precise instruction, or GOAL_COMPLETED when the goal is met.",
		},
	},
	Required: []string{"nextStep"},
}

func actionKindNames() []string {
	names := make([]string, len(schemas.AllActionKinds))
	for i, k := range schemas.AllActionKinds {
		names[i] = string(k)
	}
	return names
}

var actionSpecSchema = &schemas.Schema{
	Type: schemas.TypeObject,
	Properties: map[string]*schemas.Schema{
		"action":   {Type: schemas.TypeString, Enum: actionKindNames()},
		"selector": {Type: schemas.TypeString, Description: "CSS selector of the target element."},
		"value":    {Type: schemas.TypeString, Description: "Text to type, option to select, URL to open or script body."},
		"waitTime": {Type: schemas.TypeInteger, Description: "Milliseconds to wait."},
		"key":      {Type: schemas.TypeString, Description: "Keyboard key to press."},
	},
	Required: []string{"action"},
}

var verificationSchema = &schemas.Schema{
	Type: schemas.TypeObject,
	Properties: map[string]*schemas.Schema{
		"status":     {Type: schemas.TypeString, Enum: []string{string(schemas.VerificationSuccess), string(schemas.VerificationFailure)}},
		"message":    {Type: schemas.TypeString, Description: "Explanation with evidence from the page state."},
		"nextAction": {Type: schemas.TypeString, Description: "END when successful, otherwise a concrete suggestion."},
	},
	Required: []string{"status", "message", "nextAction"},
}

// -- Prompt Builders --

func buildPlannerPrompt(goal string, state schemas.PageState, history []string) string {
	var sb strings.Builder
	sb.WriteString("You are an AI assistant for browser automation. Given the current page state and the overall goal, determine the next step to take.\n\n")
	fmt.Fprintf(&sb, "Overall goal: %s\n\n", goal)
	sb.WriteString("Current page state:\n")
	fmt.Fprintf(&sb, "URL: %s\nTitle: %s\n\n", state.URL, state.Title)
	fmt.Fprintf(&sb, "Available elements (sample of important selectors):\n%s\n\n", state.Elements.String())

	sb.WriteString("Previous steps taken:\n")
	if len(history) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, step := range history {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}

	sb.WriteString(`
Based on this information, what is the next specific action to take? Be precise and technical.
Your response should be a single step.

Example responses:
- "Navigate to https://example.com"
- "Click on the element with selector '#login-button'"
- "Type 'search term' into the input field with selector 'input[name=\"q\"]'"
- "Extract data from elements matching '.product-item'"

If you believe the overall goal has been completed, respond with "GOAL_COMPLETED".
Provide only the next step, nothing else.
`)
	return sb.String()
}

func buildActionPrompt(intent string, state schemas.PageState) string {
	var sb strings.Builder
	sb.WriteString("You are a browser automation assistant. Given the following step and current page state, determine the best action to take.\n\n")
	fmt.Fprintf(&sb, "Step to execute: %s\n\n", intent)
	fmt.Fprintf(&sb, "Current page state:\nURL: %s\nTitle: %s\n\n", state.URL, state.Title)
	fmt.Fprintf(&sb, "Available elements:\n%s\n\n", state.Elements.String())
	sb.WriteString(`Determine the action to take. Choose from:
- click: click an element
- type: clear an input field and type text into it
- select: select an option of a <select> element
- navigate: go to a URL
- wait: wait for a fixed time
- waitForSelector: wait until an element is visible
- waitForNavigation: wait for the next page load
- pressKey: press a keyboard key (e.g. Enter, Tab, Escape)
- hover: move the mouse over an element
- scrollIntoView: scroll an element into view
- executeScript: run a JavaScript function body in the page and return its result
- extract: extract the text of every element matching a selector

For the chosen action, provide:
- selector: CSS selector for the element (not needed for navigate, wait, waitForNavigation or pressKey)
- value: text to type, option to select, URL to navigate to, or script to execute
- waitTime: time to wait in milliseconds (for wait actions)
- key: keyboard key to press (for pressKey action)
`)
	return sb.String()
}

func buildVerificationPrompt(intent string, outcome schemas.StepOutcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Step that was executed: %q\n\n", intent)
	sb.WriteString("Current page state:\n")
	fmt.Fprintf(&sb, "URL: %s\nTitle: %s\nStatus: %s\n", outcome.State.URL, outcome.State.Title, outcome.Status)
	if outcome.Action != nil {
		fmt.Fprintf(&sb, "Action performed: %s", outcome.Action.Kind)
		if outcome.Action.Selector != "" {
			fmt.Fprintf(&sb, " on %s", outcome.Action.Selector)
		}
		sb.WriteString("\n")
		if outcome.Action.Value != "" {
			fmt.Fprintf(&sb, "Value: %q\n", outcome.Action.Value)
		}
	}
	if outcome.FieldValue != nil {
		fmt.Fprintf(&sb, "Field value after action: %q\n", *outcome.FieldValue)
	}
	if outcome.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", outcome.Error)
		if outcome.ErrorCode != "" {
			fmt.Fprintf(&sb, "Error code: %s\n", outcome.ErrorCode)
		}
	}
	if outcome.ScriptResult != nil {
		fmt.Fprintf(&sb, "Script result: %v\n", outcome.ScriptResult)
	}
	fmt.Fprintf(&sb, "\nCurrent page elements:\n%s\n", outcome.State.Elements.String())
	sb.WriteString(`
Verification guidelines:
1. For navigation steps: Check if the URL matches the expected destination
2. For click steps: Reply with success, no further evidence is needed.
3. For type and select steps: Check if the field value after the action matches the expected text
4. For extract steps: Check if data was successfully extracted
5. For wait steps: Check if the expected elements are now visible

Analyze if the step appears to have been completed successfully based on the current page state and elements.
Respond with:
- status: "SUCCESS" or "FAILURE"
- message: detailed explanation of success or failure with evidence from the page state
- nextAction: "END" if successful, or a specific suggestion for what to try next if failed
`)
	return sb.String()
}
