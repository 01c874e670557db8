package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/scheduler"
)

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		want    interface{}
		wantErr bool
	}{
		{"json", &JSONFormatter{}, false},
		{"yaml", &YAMLFormatter{}, false},
		{"text", &TextFormatter{}, false},
		{"", &TextFormatter{}, false},
		{"xml", nil, true},
	}

	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			f, err := NewFormatter(tt.format, &FormatterOptions{Writer: &bytes.Buffer{}})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("json", &FormatterOptions{Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, f.Format(map[string]int{"succeeded": 3}))
	assert.JSONEq(t, `{"succeeded": 3}`, buf.String())
	assert.Contains(t, buf.String(), "\n  ", "default output is indented")

	buf.Reset()
	f, err = NewFormatter("json", &FormatterOptions{Writer: &buf, Compact: true})
	require.NoError(t, err)
	require.NoError(t, f.Format(map[string]int{"succeeded": 3}))
	assert.Equal(t, "{\"succeeded\":3}\n", buf.String())
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("yaml", &FormatterOptions{Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, f.Format(map[string]string{"state": "succeeded"}))
	assert.Equal(t, "state: succeeded\n", buf.String())
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("text", &FormatterOptions{Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, f.Format("plain message"))
	assert.Equal(t, "plain message\n", buf.String())

	// Complex values fall back to YAML.
	buf.Reset()
	require.NoError(t, f.Format(map[string]int{"stories": 4}))
	assert.Equal(t, "stories: 4\n", buf.String())
}

func TestRenderBatchSummary(t *testing.T) {
	result := scheduler.BatchResult{
		BatchID:     "b-1",
		Fingerprint: "abcd1234",
		Stories: map[string]scheduler.StoryStatus{
			"S1": {StoryID: "S1", State: "succeeded", Level: 0, Score: domain.PriorityScore{Score: 12.5}, Attempts: 1},
			"S2": {StoryID: "S2", State: "dead-lettered", Level: 1, Score: domain.PriorityScore{Score: 8.0}, Attempts: 3, LastError: "connection reset"},
			"S3": {StoryID: "S3", State: "rejected", Level: -1, Attempts: 1, LastError: "dependency cycle detected among stories: S3"},
		},
		Succeeded:    1,
		DeadLettered: 1,
		Rejected:     1,
		TotalCost:    23_400,
		Duration:     1512 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderBatchSummary(&buf, result))
	out := buf.String()

	assert.Contains(t, out, "Batch b-1")
	assert.Contains(t, out, "Fingerprint abcd1234")
	assert.Contains(t, out, "attempts=3")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, "1 succeeded, 1 dead-lettered, 0 cancelled, 1 rejected of 3 stories")
	assert.Contains(t, out, "Tokens spent: 23400")
	assert.Contains(t, out, "Wall time: 1.512s")

	// Rejected stories sort first with a level placeholder.
	lines := strings.Split(out, "\n")
	var storyLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "  ") {
			storyLines = append(storyLines, line)
		}
	}
	require.Len(t, storyLines, 3)
	assert.Contains(t, storyLines[0], "--")
	assert.Contains(t, storyLines[0], "S3")
	assert.Contains(t, storyLines[1], "L0")
	assert.Contains(t, storyLines[1], "S1")
	assert.Contains(t, storyLines[2], "L1")
	assert.Contains(t, storyLines[2], "S2")
}
