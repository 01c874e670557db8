package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Graph errors (GRAPH-001 to GRAPH-099)
	ErrCodeGraphCycle       ErrorCode = "GRAPH-001"
	ErrCodeGraphUnknownDep  ErrorCode = "GRAPH-002"
	ErrCodeGraphDuplicateID ErrorCode = "GRAPH-003"

	// Budget errors (BUDGET-001 to BUDGET-099)
	ErrCodeBudgetInvalidLimit ErrorCode = "BUDGET-001"
	ErrCodeBudgetInvalidCost  ErrorCode = "BUDGET-002"

	// Retry errors (RETRY-001 to RETRY-099)
	ErrCodeRetryExhausted      ErrorCode = "RETRY-001"
	ErrCodeRetryInvalidAttempt ErrorCode = "RETRY-002"

	// Scheduler errors (SCHED-001 to SCHED-099)
	ErrCodeSchedBatchEmpty       ErrorCode = "SCHED-001"
	ErrCodeSchedBatchCancelled   ErrorCode = "SCHED-002"
	ErrCodeSchedDuplicateBatch   ErrorCode = "SCHED-003"
	ErrCodeSchedUnknownJob       ErrorCode = "SCHED-004"
	ErrCodeSchedJobTerminal      ErrorCode = "SCHED-005"
	ErrCodeSchedStageUnknown     ErrorCode = "SCHED-006"
	ErrCodeSchedAlreadyRunning   ErrorCode = "SCHED-007"
	ErrCodeSchedInvalidStory     ErrorCode = "SCHED-008"

	// Story source errors (SOURCE-001 to SOURCE-099)
	ErrCodeSourceNotFound    ErrorCode = "SOURCE-001"
	ErrCodeSourceInvalid     ErrorCode = "SOURCE-002"
	ErrCodeSourceUnavailable ErrorCode = "SOURCE-003"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-004"
)

// ForgeError represents an enhanced error with code, suggestions, and documentation
type ForgeError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *ForgeError) Error() string {
	var b strings.Builder

	// Error code and message
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Add cause if present
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	// Add suggestions
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	// Add documentation link
	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// New creates a new ForgeError
func New(code ErrorCode, message string) *ForgeError {
	return &ForgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new ForgeError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *ForgeError {
	return &ForgeError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *ForgeError) WithSuggestion(suggestion string) *ForgeError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *ForgeError) WithSuggestions(suggestions ...string) *ForgeError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *ForgeError) WithDocs(url string) *ForgeError {
	e.DocsURL = url
	return e
}

// Common error constructors for frequently used errors

// NewCycleDetectedError creates a dependency cycle error naming the stories involved
func NewCycleDetectedError(storyIDs []string) *ForgeError {
	return New(ErrCodeGraphCycle, fmt.Sprintf("dependency cycle detected among stories: %s", strings.Join(storyIDs, ", "))).
		WithSuggestion("Remove one of the circular dependencies to make the subset schedulable").
		WithSuggestion("Run 'storyforge schedule --proceed-on-cycle' to schedule the orderable remainder")
}

// NewUnknownDependencyError creates an error for dependencies that reference ids outside the batch
func NewUnknownDependencyError(storyID string, depIDs []string) *ForgeError {
	return New(ErrCodeGraphUnknownDep, fmt.Sprintf("story %s depends on ids not present in the batch: %s", storyID, strings.Join(depIDs, ", "))).
		WithSuggestion("Include the missing stories in the batch").
		WithSuggestion("Set external_dependencies: assume-satisfied to treat out-of-batch ids as already completed")
}

// NewRetryExhaustedError creates a retry exhaustion error for a dead-lettered job
func NewRetryExhaustedError(storyID, stage string, attempts int) *ForgeError {
	return New(ErrCodeRetryExhausted, fmt.Sprintf("story %s exhausted %d attempts at stage %s", storyID, attempts, stage)).
		WithSuggestion("Inspect the dead-letter queue for the full error history").
		WithSuggestion("Replay the story manually once the underlying failure is resolved")
}

// NewJobTerminalError creates an error for outcome reports against a finished job
func NewJobTerminalError(storyID, stage string) *ForgeError {
	return New(ErrCodeSchedJobTerminal, fmt.Sprintf("job for story %s at stage %s already reached a terminal state", storyID, stage)).
		WithSuggestion("Terminal jobs are never re-dispatched; replay dead-lettered stories explicitly")
}

// NewDuplicateBatchError creates an error for resubmission of an already-completed batch
func NewDuplicateBatchError(fingerprint string) *ForgeError {
	return New(ErrCodeSchedDuplicateBatch, fmt.Sprintf("batch with fingerprint %s already reached a terminal outcome", fingerprint)).
		WithSuggestion("Pass --force to schedule the batch again")
}

// NewSourceNotFoundError creates a story source not found error
func NewSourceNotFoundError(path string) *ForgeError {
	return New(ErrCodeSourceNotFound, fmt.Sprintf("story batch file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewConfigInvalidError creates a config validation error
func NewConfigInvalidError(details string) *ForgeError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid scheduler configuration: %s", details)).
		WithSuggestion("Check storyforge.yaml against the documented schema")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *ForgeError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
