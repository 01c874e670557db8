package source

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/errors"
)

const sampleBatch = `
batch_id: sprint-42
sprint:
  sprint_goals:
    - improve checkout funnel
  available_hours: 60
  risk_tolerance: high
stories:
  - id: S1
    title: Payment integration
    description: external billing api client
    priority: high
    estimated_hours: 8
  - id: S2
    title: Receipt emails
    priority: medium
    estimated_hours: 4
    dependencies: [S1]
    tags: [email]
`

func writeBatch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSourceLoad(t *testing.T) {
	src := NewFileSource(writeBatch(t, sampleBatch))

	batch, err := src.Load()
	require.NoError(t, err)

	assert.Equal(t, "sprint-42", batch.BatchID)
	require.Len(t, batch.Stories, 2)
	assert.Equal(t, "S1", batch.Stories[0].ID)
	assert.Equal(t, domain.PriorityHigh, batch.Stories[0].Priority)
	assert.Equal(t, []string{"S1"}, batch.Stories[1].Dependencies)
	assert.Equal(t, 60.0, batch.Sprint.AvailableHours)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := src.Load()
	require.Error(t, err)

	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeSourceNotFound, forgeErr.Code)
}

func TestFileSourceMalformedYAML(t *testing.T) {
	src := NewFileSource(writeBatch(t, "stories: [{id: S1"))

	_, err := src.Load()
	require.Error(t, err)

	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeFileUnmarshal, forgeErr.Code)
}

func TestFileSourceInvalidStory(t *testing.T) {
	src := NewFileSource(writeBatch(t, `
stories:
  - id: ""
    title: Missing id
    priority: low
`))

	_, err := src.Load()
	require.Error(t, err)

	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeSourceInvalid, forgeErr.Code)
}

func TestFetchBatchChecksBatchID(t *testing.T) {
	src := NewFileSource(writeBatch(t, sampleBatch))

	stories, err := src.FetchBatch(context.Background(), "sprint-42")
	require.NoError(t, err)
	assert.Len(t, stories, 2)

	// Empty requested id always matches.
	stories, err = src.FetchBatch(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, stories, 2)

	_, err = src.FetchBatch(context.Background(), "sprint-43")
	require.Error(t, err)
	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeSourceInvalid, forgeErr.Code)
}

func TestSprintContextDefaults(t *testing.T) {
	src := NewFileSource(writeBatch(t, `
stories:
  - id: S1
    title: Solo
    priority: medium
`))

	sprint, err := src.SprintContext()
	require.NoError(t, err)
	assert.Equal(t, 40.0, sprint.AvailableHours)
	assert.Equal(t, "medium", sprint.RiskTolerance)
}

func TestSprintContextFromFile(t *testing.T) {
	src := NewFileSource(writeBatch(t, sampleBatch))

	sprint, err := src.SprintContext()
	require.NoError(t, err)
	assert.Equal(t, 60.0, sprint.AvailableHours)
	assert.Equal(t, "high", sprint.RiskTolerance)
	assert.Equal(t, []string{"improve checkout funnel"}, sprint.SprintGoals)
}
