// Package source provides story batch backends: YAML files for local
// runs and Postgres for shared pipelines.
package source

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/errors"
)

// BatchFile is the YAML document a file-backed batch is read from.
type BatchFile struct {
	// BatchID names the batch. Optional; the file path stands in when
	// empty.
	BatchID string `yaml:"batch_id"`

	// Sprint is the sprint context used for priority scoring.
	Sprint domain.SprintContext `yaml:"sprint"`

	// Stories are the work items of the batch.
	Stories []domain.Story `yaml:"stories"`
}

// FileSource reads batches from a YAML file on disk.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from the given file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load parses the batch file.
func (s *FileSource) Load() (*BatchFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSourceNotFoundError(s.path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed,
			fmt.Sprintf("failed to read batch file: %s", s.path), err)
	}

	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, errors.NewFileUnmarshalError(s.path, "yaml", err)
	}

	for i := range batch.Stories {
		if err := batch.Stories[i].Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSourceInvalid,
				fmt.Sprintf("invalid story at index %d in %s", i, s.path), err).
				WithSuggestion("Fix the story entry and re-run")
		}
	}
	return &batch, nil
}

// FetchBatch returns the stories from the file. A non-empty batchID
// must match the file's batch_id when the file declares one.
func (s *FileSource) FetchBatch(_ context.Context, batchID string) ([]domain.Story, error) {
	batch, err := s.Load()
	if err != nil {
		return nil, err
	}
	if batchID != "" && batch.BatchID != "" && batch.BatchID != batchID {
		return nil, errors.New(errors.ErrCodeSourceInvalid,
			fmt.Sprintf("batch file %s holds batch %q, not %q", s.path, batch.BatchID, batchID)).
			WithSuggestion("Point --batch at the file containing the requested batch")
	}
	return batch.Stories, nil
}

// SprintContext returns the sprint context from the file, or defaults
// when the file omits it.
func (s *FileSource) SprintContext() (domain.SprintContext, error) {
	batch, err := s.Load()
	if err != nil {
		return domain.SprintContext{}, err
	}
	sprint := batch.Sprint
	if sprint.AvailableHours <= 0 {
		sprint.AvailableHours = 40
	}
	if sprint.RiskTolerance == "" {
		sprint.RiskTolerance = "medium"
	}
	return sprint, nil
}
