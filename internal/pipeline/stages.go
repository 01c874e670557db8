// Package pipeline defines the per-story stage chain and its tunables.
// Every story walks the same sequential chain; concurrency exists only
// across stories, never across one story's own stages.
package pipeline

import (
	"fmt"
	"time"
)

// Stage is one step in the per-story sequential chain.
type Stage string

// The stage chain, in execution order.
const (
	StageDraft   Stage = "draft"
	StageLogic   Stage = "logic"
	StageStyle   Stage = "style"
	StageTest    Stage = "test"
	StageA11y    Stage = "a11y"
	StageTypefix Stage = "typefix"
	StageReport  Stage = "report"
)

// Chain returns the stage chain in execution order.
func Chain() []Stage {
	return []Stage{StageDraft, StageLogic, StageStyle, StageTest, StageA11y, StageTypefix, StageReport}
}

// Validate checks the stage is part of the chain.
func (s Stage) Validate() error {
	for _, known := range Chain() {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown pipeline stage %q", string(s))
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// BaseCost is the baseline token cost of the stage for an average story.
// Draft and logic carry the full story context; the later passes work on
// smaller diffs.
func (s Stage) BaseCost() int64 {
	switch s {
	case StageDraft:
		return 4000
	case StageLogic:
		return 3000
	case StageTest:
		return 2500
	case StageStyle, StageA11y, StageTypefix:
		return 1200
	case StageReport:
		return 600
	default:
		return 1000
	}
}

// StageConfig holds the per-stage scheduling tunables.
type StageConfig struct {
	// Concurrency bounds how many stories may be in flight at this stage
	// at once.
	Concurrency int `yaml:"concurrency"`
	// Timeout is the max duration one job may spend at this stage before
	// it is treated as a transient failure.
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts overrides the retry policy's attempt budget for this
	// stage. Zero means use the policy default.
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultStageConfigs returns the default per-stage tunables: expensive
// stages run narrow, cheap ones a little wider.
func DefaultStageConfigs() map[Stage]StageConfig {
	return map[Stage]StageConfig{
		StageDraft:   {Concurrency: 1, Timeout: 10 * time.Minute},
		StageLogic:   {Concurrency: 2, Timeout: 8 * time.Minute},
		StageStyle:   {Concurrency: 3, Timeout: 4 * time.Minute},
		StageTest:    {Concurrency: 2, Timeout: 8 * time.Minute},
		StageA11y:    {Concurrency: 3, Timeout: 4 * time.Minute},
		StageTypefix: {Concurrency: 3, Timeout: 4 * time.Minute},
		StageReport:  {Concurrency: 3, Timeout: 2 * time.Minute},
	}
}
