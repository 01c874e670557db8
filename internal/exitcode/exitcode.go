// Package exitcode maps scheduling outcomes and errors to process exit
// codes so shell pipelines can branch on what happened.
package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/storyforge/storyforge/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// CycleDetected indicates the batch held a dependency cycle
	CycleDetected = 3

	// DeadLettered indicates the batch finished but some stories were
	// dead-lettered
	DeadLettered = 4

	// SourceError indicates the story source could not be read
	SourceError = 5

	// ConfigError indicates invalid configuration
	ConfigError = 6

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var forgeErr *errors.ForgeError
	if stderrors.As(err, &forgeErr) {
		switch {
		case forgeErr.Code == errors.ErrCodeGraphCycle:
			return CycleDetected
		case strings.HasPrefix(string(forgeErr.Code), "SOURCE-"),
			forgeErr.Code == errors.ErrCodeFileReadFailed,
			forgeErr.Code == errors.ErrCodeFileUnmarshal:
			return SourceError
		case strings.HasPrefix(string(forgeErr.Code), "CONFIG-"):
			return ConfigError
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "missing argument") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case CycleDetected:
		return "Dependency cycle detected in the batch"
	case DeadLettered:
		return "Batch finished with dead-lettered stories"
	case SourceError:
		return "Story source error"
	case ConfigError:
		return "Configuration error"
	default:
		return "Unknown error"
	}
}
