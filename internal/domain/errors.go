package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by ResolutionError.
	ErrNotFound = errors.New("not found")

	// ErrUnknownTool means the model asked for a tool that was never offered.
	// Tool names only come from the definitions sent to the model, so this is
	// an invariant violation rather than a user-facing condition.
	ErrUnknownTool = errors.New("unknown tool")
)

// ResolutionError reports that a course name could not be mapped to a catalog title.
type ResolutionError struct {
	Name   string
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("no course found matching %q", e.Name)
	}
	return fmt.Sprintf("no course found matching %q: %s", e.Name, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return ErrNotFound }

// ConfigurationError reports an invalid retrieval parameter such as a
// non-positive search limit.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// ToolExecutionError wraps an unexpected failure inside a tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ModelAPIError is returned by providers when the generative model is
// unreachable, rate-limited, or returns something unusable. Status is 0 for
// transport failures.
type ModelAPIError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ModelAPIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ModelAPIError) Unwrap() error { return e.Err }
