package exitcode

import (
	stderrors "errors"
	"testing"

	"github.com/storyforge/storyforge/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"CycleDetected", CycleDetected, 3},
		{"DeadLettered", DeadLettered, 4},
		{"SourceError", SourceError, 5},
		{"ConfigError", ConfigError, 6},
		{"Interrupted", Interrupted, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "cycle error",
			err:      errors.NewCycleDetectedError([]string{"S1", "S2"}),
			expected: CycleDetected,
		},
		{
			name:     "source not found",
			err:      errors.NewSourceNotFoundError("batch.yaml"),
			expected: SourceError,
		},
		{
			name:     "unreadable batch file",
			err:      errors.Wrap(errors.ErrCodeFileReadFailed, "read failed", stderrors.New("permission denied")),
			expected: SourceError,
		},
		{
			name:     "unparseable batch file",
			err:      errors.NewFileUnmarshalError("batch.yaml", "yaml", stderrors.New("bad indent")),
			expected: SourceError,
		},
		{
			name:     "invalid config",
			err:      errors.NewConfigInvalidError("retry.max_attempts must be at least 1"),
			expected: ConfigError,
		},
		{
			name:     "other coded error falls back to general",
			err:      errors.NewDuplicateBatchError("abc"),
			expected: GeneralError,
		},
		{
			name:     "usage error from cobra",
			err:      stderrors.New(`unknown command "shedule" for "storyforge"`),
			expected: UsageError,
		},
		{
			name:     "required flag missing",
			err:      stderrors.New(`required flag(s) "batch-id" not set`),
			expected: UsageError,
		},
		{
			name:     "plain error",
			err:      stderrors.New("something went wrong"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{Success, "Success"},
		{DeadLettered, "Batch finished with dead-lettered stories"},
		{99, "Unknown error"},
	}

	for _, tt := range tests {
		if got := GetExitCodeDescription(tt.code); got != tt.want {
			t.Errorf("GetExitCodeDescription(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
