package scheduler

import (
	"time"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/pipeline"
)

// JobState is the lifecycle state of a story's current stage job.
type JobState int

const (
	// StatePending means the job is waiting on dependencies or budget.
	StatePending JobState = iota
	// StateAdmitted means the budget governor approved the dispatch.
	StateAdmitted
	// StateDispatched means the job was handed to the stage queue.
	StateDispatched
	// StateRetryWait means the job failed transiently and is waiting out
	// its backoff before being admitted again.
	StateRetryWait
	// StateSucceeded means the story completed its whole stage chain.
	StateSucceeded
	// StateDeadLettered means the job exhausted its retries or failed
	// permanently. Terminal.
	StateDeadLettered
	// StateCancelled means the batch was cancelled before the story
	// reached a terminal outcome. Terminal.
	StateCancelled
	// StateRejected means the story was part of a dependency cycle and
	// was never scheduled. Terminal.
	StateRejected
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAdmitted:
		return "admitted"
	case StateDispatched:
		return "dispatched"
	case StateRetryWait:
		return "retry-wait"
	case StateSucceeded:
		return "succeeded"
	case StateDeadLettered:
		return "dead-lettered"
	case StateCancelled:
		return "cancelled"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final for the story.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateDeadLettered, StateCancelled, StateRejected:
		return true
	default:
		return false
	}
}

// RetryState tracks the retry budget of one story at its current stage.
type RetryState struct {
	Attempt        int
	MaxAttempts    int
	LastError      string
	NextEligibleAt time.Time
}

// storyJob is the scheduler-internal tracking record for one story. It
// owns the story's position in the stage chain, its retry bookkeeping,
// and its accumulated error history.
type storyJob struct {
	story    domain.Story
	level    int
	score    domain.PriorityScore
	state    JobState
	stageIdx int

	retry    RetryState
	history  []AttemptError
	handle   JobHandle // current in-flight dispatch, empty otherwise
	estimate int64     // cost charged at admission for the in-flight dispatch

	// waitingOnBudget marks a job that got a retry-after hint and has a
	// wake-up scheduled; it must not be re-admitted until the wake fires.
	waitingOnBudget bool
}

// stage returns the job's current pipeline stage.
func (j *storyJob) stage() pipeline.Stage {
	return pipeline.Chain()[j.stageIdx]
}

// lastStage reports whether the job is at the final stage of the chain.
func (j *storyJob) lastStage() bool {
	return j.stageIdx == len(pipeline.Chain())-1
}

// StoryStatus is the per-story outcome reported in the batch result.
type StoryStatus struct {
	StoryID   string               `json:"story_id"`
	State     string               `json:"state"`
	Level     int                  `json:"level"`
	Score     domain.PriorityScore `json:"score"`
	Attempts  int                  `json:"attempts"`
	LastError string               `json:"last_error,omitempty"`
}

// BatchResult is the per-story final status of one scheduling run.
// A batch never collapses to a single opaque success flag.
type BatchResult struct {
	BatchID      string                 `json:"batch_id"`
	Fingerprint  string                 `json:"fingerprint"`
	Stories      map[string]StoryStatus `json:"stories"`
	Succeeded    int                    `json:"succeeded"`
	DeadLettered int                    `json:"dead_lettered"`
	Cancelled    int                    `json:"cancelled"`
	Rejected     int                    `json:"rejected"`
	TotalCost    int64                  `json:"total_cost"`
	Duration     time.Duration          `json:"duration"`
}
