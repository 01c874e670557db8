package scheduler

import (
	"context"
	"time"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/pipeline"
)

// StorySource supplies the work items for a batch. The scheduler does
// not know how stories are persisted or authored.
type StorySource interface {
	FetchBatch(ctx context.Context, batchID string) ([]domain.Story, error)
}

// JobHandle identifies one dispatch attempt of one story at one stage.
// Stage workers pass it back when reporting the outcome.
type JobHandle string

// DispatchRequest is what the scheduler hands to a pipeline stage queue.
type DispatchRequest struct {
	Handle   JobHandle
	Stage    pipeline.Stage
	Story    domain.Story
	Payload  map[string]string
	Priority float64
	Attempt  int
}

// StageSink receives dispatched jobs. Implementations enqueue the job
// for their worker pool and later report the outcome back through the
// scheduler's ReportOutcome. Dispatch is the only externally observable
// enqueue event.
type StageSink interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// TelemetrySink receives actual token consumption per story and stage,
// used to reconcile the estimate spent at admission time.
type TelemetrySink interface {
	ReportCost(storyID string, stage pipeline.Stage, actualCost int64)
}

// DeadLetter is the record published for a job that exhausted its retry
// budget or failed permanently.
type DeadLetter struct {
	StoryID      string
	Stage        pipeline.Stage
	ErrorHistory []AttemptError
	FailedAt     time.Time
}

// AttemptError is one entry in a job's error history.
type AttemptError struct {
	Attempt int
	Stage   pipeline.Stage
	Err     string
	At      time.Time
}

// DeadLetterSink receives dead-lettered jobs. Dead-lettering is
// terminal: replay requires explicit manual intervention outside the
// scheduler.
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, dl DeadLetter) error
}

// CostEstimator predicts the token cost of running a story through a
// stage. The estimate is what the budget governor charges at admission.
type CostEstimator func(story domain.Story, stage pipeline.Stage) int64

// DefaultCostEstimator scales a per-stage base cost by the story's
// estimated hours. Rule of thumb: bigger stories carry more context into
// every stage prompt.
func DefaultCostEstimator(story domain.Story, stage pipeline.Stage) int64 {
	hours := story.EstimatedHours
	if hours <= 0 {
		hours = 4
	}
	return int64(float64(stage.BaseCost()) * (1 + hours/8))
}
