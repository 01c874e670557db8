package ux

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/storyforge/storyforge/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError analyzes an error and adds contextual suggestions.
// ForgeErrors already carry their own suggestions and pass through with
// the first one surfaced.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var forgeErr *errors.ForgeError
	if stderrors.As(err, &forgeErr) {
		if len(forgeErr.Suggestions) > 0 {
			return NewErrorWithSuggestion(err, forgeErr.Suggestions[0])
		}
		return err
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "no such file or directory") {
		if strings.Contains(errMsg, "storyforge.yaml") {
			return NewErrorWithSuggestion(err,
				"Create a config with 'storyforge config init' or pass --config pointing at one")
		}
		return NewErrorWithSuggestion(err,
			"Check the path; batch files are YAML documents with a top-level 'stories' list")
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no route to host") {
		return NewErrorWithSuggestion(err,
			"Check that the configured backend (postgres or redis) is reachable from this host")
	}

	if strings.Contains(errMsg, "permission denied") {
		return NewErrorWithSuggestion(err,
			"Check file permissions and ensure you have access to the required files/directories")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}
