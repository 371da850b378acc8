// Package session holds per-user conversation state. A Flow is a fixed
// sequence of prompts; the manager walks one user through one flow at a
// time, step by step, accumulating validated answers.
package session

import "strings"

// SkipCommand lets the user leave an optional step unanswered.
const SkipCommand = "/skip"

// Validator checks one answer and returns its canonical form. The data map
// holds the answers accepted so far, so later steps can depend on earlier
// ones (complaint suggestions depend on the chosen appliance).
type Validator func(input string, data map[string]string) (string, error)

// Step is a single prompt within a flow.
type Step struct {
	// Field keys the accepted answer in the session data map.
	Field string
	// Prompt is shown when the step becomes current.
	Prompt string
	// Options, when set, are offered as reply keyboard buttons.
	Options []string
	// Optional steps accept SkipCommand and store an empty value.
	Optional bool
	// Validate checks the answer. Nil means any non-blank text.
	Validate Validator
}

// Finalizer receives the complete answer set once the last step is accepted.
type Finalizer func(userID int64, data map[string]string) error

// Flow is a named sequence of steps ending in a finalizer.
type Flow struct {
	Name     string
	Steps    []Step
	Finalize Finalizer
}

func (f *Flow) step(i int) *Step {
	if i < 0 || i >= len(f.Steps) {
		return nil
	}
	return &f.Steps[i]
}

// accept runs the step's validation and returns the canonical value.
func (s *Step) accept(input string, data map[string]string) (string, error) {
	input = strings.TrimSpace(input)
	if s.Optional && strings.EqualFold(input, SkipCommand) {
		return "", nil
	}
	if s.Validate != nil {
		return s.Validate(input, data)
	}
	if input == "" {
		return "", errInput("please enter a value")
	}
	return input, nil
}

// InputError marks an answer the user should correct and resend. The flow
// stays on the same step.
type InputError struct{ msg string }

func (e *InputError) Error() string { return e.msg }

func errInput(msg string) *InputError { return &InputError{msg: msg} }

// NewInputError builds a retryable validation error for flow validators.
func NewInputError(msg string) error { return errInput(msg) }
