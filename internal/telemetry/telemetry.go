// Package telemetry records actual token consumption reported by
// pipeline stages so admission-time estimates can be audited against
// real usage.
package telemetry

import (
	"sync"

	"github.com/storyforge/storyforge/internal/log"
	"github.com/storyforge/storyforge/internal/pipeline"
)

// CostRecorder aggregates actual token cost per stage and logs each
// report. It satisfies the scheduler's TelemetrySink.
type CostRecorder struct {
	mu      sync.Mutex
	byStage map[pipeline.Stage]int64
	total   int64
	logger  *log.Logger
}

// NewCostRecorder creates a recorder logging through the given logger.
func NewCostRecorder(logger *log.Logger) *CostRecorder {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &CostRecorder{
		byStage: make(map[pipeline.Stage]int64),
		logger:  logger.WithGroup("telemetry"),
	}
}

// ReportCost records the actual cost of one stage job.
func (r *CostRecorder) ReportCost(storyID string, stage pipeline.Stage, actualCost int64) {
	r.mu.Lock()
	r.byStage[stage] += actualCost
	r.total += actualCost
	r.mu.Unlock()

	r.logger.Debug("stage cost reported",
		"story_id", storyID,
		"stage", stage.String(),
		"actual_cost", actualCost,
	)
}

// Total returns the accumulated actual cost across all stages.
func (r *CostRecorder) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// ByStage returns a copy of the per-stage totals.
func (r *CostRecorder) ByStage() map[pipeline.Stage]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[pipeline.Stage]int64, len(r.byStage))
	for k, v := range r.byStage {
		out[k] = v
	}
	return out
}
