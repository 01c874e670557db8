// Package scheduler orders story batches by dependency level and
// priority score, gates every dispatch through the shared token budget,
// and walks each story through the pipeline stage chain with retry and
// dead-letter handling.
//
// The dispatch decision has a single logical owner: one run loop
// goroutine consumes completion, wake-up, and timeout events and decides
// what dispatches next. Stage workers execute in parallel behind the
// StageSink, bounded by per-stage concurrency limits.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/storyforge/internal/budget"
	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/errors"
	"github.com/storyforge/storyforge/internal/graph"
	"github.com/storyforge/storyforge/internal/log"
	"github.com/storyforge/storyforge/internal/metrics"
	"github.com/storyforge/storyforge/internal/pipeline"
	"github.com/storyforge/storyforge/internal/retry"
	"github.com/storyforge/storyforge/internal/scoring"
)

// Options configures a Scheduler.
type Options struct {
	// ExternalDeps controls how out-of-batch dependency ids are treated.
	ExternalDeps graph.ExternalDepPolicy
	// ProceedOnCycle schedules the orderable remainder of a batch when a
	// cycle is found, reporting cycle members as rejected. When false a
	// cycle fails the whole batch.
	ProceedOnCycle bool
	// Stages overrides the per-stage tunables.
	Stages map[pipeline.Stage]pipeline.StageConfig
	// RetryPolicy overrides the default backoff policy.
	RetryPolicy *retry.Policy
	// Estimator overrides the default cost estimator.
	Estimator CostEstimator
	// Metrics receives scheduler instrumentation; nil disables it.
	Metrics *metrics.Metrics
	// Logger overrides the default logger.
	Logger *log.Logger
}

// Scheduler is the dispatch coordinator for story batches. One batch
// runs at a time; all derived structures (scores, levels, retry state)
// live only for the duration of the run.
type Scheduler struct {
	graph     *graph.Graph
	scorer    *scoring.Scorer
	governor  *budget.Governor
	policy    retry.Policy
	stages    map[pipeline.Stage]pipeline.StageConfig
	estimate  CostEstimator
	sink      StageSink
	telemetry TelemetrySink
	dlq       DeadLetterSink
	logger    *log.Logger
	metrics   *metrics.Metrics

	proceedOnCycle bool

	// afterFunc schedules wake-ups; injectable for tests.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu        sync.Mutex
	running   bool
	events    chan event
	handles   map[JobHandle]*pendingDispatch
	completed map[string]struct{} // fingerprints of batches with terminal outcomes
}

// pendingDispatch tracks one in-flight stage job.
type pendingDispatch struct {
	job        *storyJob
	stage      pipeline.Stage
	attempt    int
	dispatched time.Time
}

// event is a message consumed by the run loop.
type event struct {
	kind    eventKind
	handle  JobHandle
	storyID string
	success bool
	err     error
	cost    int64
}

type eventKind int

const (
	eventOutcome eventKind = iota
	eventWake
	eventTimeout
)

// New creates a Scheduler wired to the given collaborators.
func New(governor *budget.Governor, sink StageSink, telemetry TelemetrySink, dlq DeadLetterSink, opts Options) (*Scheduler, error) {
	if governor == nil {
		return nil, fmt.Errorf("budget governor is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("stage sink is required")
	}

	g, err := graph.New(opts.ExternalDeps)
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy()
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}

	stages := opts.Stages
	if stages == nil {
		stages = pipeline.DefaultStageConfigs()
	}

	estimate := opts.Estimator
	if estimate == nil {
		estimate = DefaultCostEstimator
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &Scheduler{
		graph:          g,
		scorer:         scoring.New(),
		governor:       governor,
		policy:         policy,
		stages:         stages,
		estimate:       estimate,
		sink:           sink,
		telemetry:      telemetry,
		dlq:            dlq,
		logger:         logger.WithGroup("scheduler"),
		metrics:        opts.Metrics,
		proceedOnCycle: opts.ProceedOnCycle,
		afterFunc:      time.AfterFunc,
		handles:        make(map[JobHandle]*pendingDispatch),
		completed:      make(map[string]struct{}),
	}, nil
}

// RunOptions tunes one scheduling run.
type RunOptions struct {
	// Force schedules the batch even if an identical batch already
	// reached a terminal outcome.
	Force bool
}

// Run schedules a batch to completion and returns the per-story final
// status. Cancelling the context stops new admissions immediately;
// in-flight jobs run to completion or failure and remaining stories are
// marked cancelled.
func (s *Scheduler) Run(ctx context.Context, stories []domain.Story, sprint domain.SprintContext, opts RunOptions) (*BatchResult, error) {
	if len(stories) == 0 {
		return nil, errors.New(errors.ErrCodeSchedBatchEmpty, "batch contains no stories")
	}
	for _, st := range stories {
		if err := st.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSchedInvalidStory,
				fmt.Sprintf("story %q failed validation", st.ID), err)
		}
	}

	fingerprint, err := domain.BatchFingerprint(stories)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrCodeSchedAlreadyRunning, "a batch is already being scheduled")
	}
	if _, done := s.completed[fingerprint]; done && !opts.Force {
		s.mu.Unlock()
		return nil, errors.NewDuplicateBatchError(fingerprint)
	}
	s.running = true
	// Capacity covers every event any run can produce, so posting never
	// blocks a worker callback after the loop exits.
	maxAtt := s.policy.MaxAttempts
	if maxAtt <= 0 {
		maxAtt = 3
	}
	for _, cfg := range s.stages {
		if cfg.MaxAttempts > maxAtt {
			maxAtt = cfg.MaxAttempts
		}
	}
	s.events = make(chan event, len(stories)*len(pipeline.Chain())*maxAtt*3+64)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.handles = make(map[JobHandle]*pendingDispatch)
		s.mu.Unlock()
	}()

	run, err := s.prepare(stories, sprint, fingerprint)
	if err != nil {
		return nil, err
	}

	result := s.loop(ctx, run)

	s.mu.Lock()
	s.completed[fingerprint] = struct{}{}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BatchDuration.Observe(result.Duration.Seconds())
		s.metrics.BatchStories.Observe(float64(len(stories)))
		for _, st := range result.Stories {
			s.metrics.StoryFinalState.WithLabelValues(st.State).Inc()
		}
	}

	return result, nil
}

// batchRun is the per-run working state owned by the loop goroutine.
type batchRun struct {
	batchID     string
	fingerprint string
	jobs        map[string]*storyJob
	order       []string // dispatch preference: level order, ranked within level
	inflight    map[pipeline.Stage]int
	started     time.Time
	cancelled   bool
	totalCost   int64
}

// prepare builds levels, scores, and job records for a batch.
func (s *Scheduler) prepare(stories []domain.Story, sprint domain.SprintContext, fingerprint string) (*batchRun, error) {
	run := &batchRun{
		batchID:     uuid.NewString(),
		fingerprint: fingerprint,
		jobs:        make(map[string]*storyJob, len(stories)),
		inflight:    make(map[pipeline.Stage]int),
		started:     time.Now(),
	}

	levels, err := s.graph.BuildLevels(stories)
	var cycleErr *graph.CycleError
	if err != nil {
		if !stderrors.As(err, &cycleErr) {
			return nil, err
		}
		if !s.proceedOnCycle {
			return nil, errors.Wrap(errors.ErrCodeGraphCycle, "batch cannot be ordered", cycleErr)
		}
		s.logger.Warn("scheduling orderable remainder despite cycle",
			"batch_id", run.batchID,
			"cycle", cycleErr.StoryIDs,
			"blocked", cycleErr.Blocked,
		)
	}

	scores := s.scorer.ScoreBatch(stories, sprint)

	byID := make(map[string]domain.Story, len(stories))
	for _, st := range stories {
		byID[st.ID] = st
	}

	for level, group := range levels {
		ranked := scoring.RankLevel(group, scores)
		for _, st := range ranked {
			run.jobs[st.ID] = &storyJob{
				story: st,
				level: level,
				score: scores[st.ID],
				state: StatePending,
				retry: RetryState{Attempt: 1, MaxAttempts: s.maxAttempts(pipeline.StageDraft)},
			}
			run.order = append(run.order, st.ID)
		}
	}

	// Cycle members and stories blocked behind them are rejected up
	// front; they never corrupt the levels of the orderable remainder.
	if cycleErr != nil {
		for _, id := range append(append([]string{}, cycleErr.StoryIDs...), cycleErr.Blocked...) {
			run.jobs[id] = &storyJob{
				story: byID[id],
				level: -1,
				score: scores[id],
				state: StateRejected,
			}
			run.jobs[id].retry.LastError = cycleErr.Error()
		}
	}

	s.logger.Info("batch prepared",
		"batch_id", run.batchID,
		"fingerprint", fingerprint,
		"stories", len(stories),
		"levels", len(levels),
		"recommended_batch_size", scoring.RecommendedBatchSize(sprint),
	)

	return run, nil
}

// loop is the cooperative dispatch loop: it dispatches everything
// currently eligible, then blocks until a completion, wake-up, or
// timeout event arrives. No busy-waiting: between events the loop is
// parked on the channel.
func (s *Scheduler) loop(ctx context.Context, run *batchRun) *BatchResult {
	done := ctx.Done()
	for {
		if !run.cancelled {
			s.dispatchReady(ctx, run)
		}
		if s.allTerminal(run) {
			break
		}

		select {
		case ev := <-s.events:
			s.handleEvent(ctx, run, ev)
		case <-done:
			s.cancel(run)
			done = nil // keep draining events for in-flight jobs
		}
	}

	return s.buildResult(run)
}

// cancel stops new admissions and marks every story that is not
// in flight and not terminal as cancelled. In-flight jobs keep running.
func (s *Scheduler) cancel(run *batchRun) {
	run.cancelled = true
	for _, job := range run.jobs {
		if job.state.Terminal() || job.state == StateDispatched {
			continue
		}
		job.state = StateCancelled
	}
	s.logger.Info("batch cancelled, waiting for in-flight jobs", "batch_id", run.batchID)
}

// dispatchReady walks the batch in priority order and dispatches every
// job that is eligible: dependencies succeeded, stage slot free, budget
// admitted.
func (s *Scheduler) dispatchReady(ctx context.Context, run *batchRun) {
	for _, id := range run.order {
		job := run.jobs[id]
		if job.state != StatePending || job.waitingOnBudget {
			continue
		}
		if !s.depsSatisfied(run, job) {
			continue
		}

		stage := job.stage()
		cfg := s.stages[stage]
		limit := cfg.Concurrency
		if limit <= 0 {
			limit = 1
		}
		if run.inflight[stage] >= limit {
			continue
		}

		cost := s.estimate(job.story, stage)
		admission, err := s.governor.Admit(cost)
		if err != nil {
			// Estimator produced a cost the governor rejects outright;
			// treat as a permanent stage failure.
			s.failJob(ctx, run, job, err, retry.Permanent)
			continue
		}
		if !admission.Allowed {
			s.deferOnBudget(run, job, admission)
			continue
		}

		job.state = StateAdmitted
		job.estimate = cost
		run.totalCost += cost
		if s.metrics != nil {
			s.metrics.TokensAdmitted.Add(float64(cost))
		}
		s.dispatch(ctx, run, job)
	}
}

// depsSatisfied reports whether every in-batch dependency of the story
// has succeeded. Dependencies that reached a terminal state other than
// success make the story unschedulable; it is cancelled rather than left
// pending forever.
func (s *Scheduler) depsSatisfied(run *batchRun, job *storyJob) bool {
	for _, dep := range job.story.Dependencies {
		depJob, ok := run.jobs[dep]
		if !ok {
			// Out-of-batch id: policy already applied at level build.
			continue
		}
		switch depJob.state {
		case StateSucceeded:
			continue
		case StateDeadLettered, StateCancelled, StateRejected:
			job.state = StateCancelled
			job.retry.LastError = fmt.Sprintf("dependency %s %s", dep, depJob.state)
			s.logger.Warn("story unschedulable, dependency failed",
				"batch_id", run.batchID,
				"story_id", job.story.ID,
				"dependency", dep,
				"dependency_state", depJob.state.String(),
			)
			return false
		default:
			return false
		}
	}
	return true
}

// deferOnBudget schedules a wake-up for when the tightest budget window
// has headroom again.
func (s *Scheduler) deferOnBudget(run *batchRun, job *storyJob, admission budget.Admission) {
	job.waitingOnBudget = true
	if s.metrics != nil {
		s.metrics.BudgetDenials.WithLabelValues(string(admission.Window)).Inc()
		s.metrics.BudgetWaitTime.WithLabelValues(string(admission.Window)).Observe(admission.RetryAfter.Seconds())
	}
	s.logger.Debug("budget denied admission",
		"batch_id", run.batchID,
		"story_id", job.story.ID,
		"stage", job.stage().String(),
		"retry_after", admission.RetryAfter.String(),
		"window", string(admission.Window),
	)

	storyID := job.story.ID
	s.afterFunc(admission.RetryAfter, func() {
		s.postEvent(event{kind: eventWake, storyID: storyID})
	})
}

// dispatch hands the job to its stage queue and arms the stage timeout.
func (s *Scheduler) dispatch(ctx context.Context, run *batchRun, job *storyJob) {
	stage := job.stage()
	handle := JobHandle(uuid.NewString())

	req := DispatchRequest{
		Handle:   handle,
		Stage:    stage,
		Story:    job.story,
		Priority: job.score.Score,
		Attempt:  job.retry.Attempt,
		Payload: map[string]string{
			"batch_id": run.batchID,
			"level":    fmt.Sprintf("%d", job.level),
		},
	}

	// Register the handle before handing the job over: a fast worker may
	// report its outcome before Dispatch returns.
	s.mu.Lock()
	s.handles[handle] = &pendingDispatch{job: job, stage: stage, attempt: job.retry.Attempt, dispatched: time.Now()}
	s.mu.Unlock()

	if err := s.sink.Dispatch(ctx, req); err != nil {
		s.mu.Lock()
		delete(s.handles, handle)
		s.mu.Unlock()
		s.failJob(ctx, run, job, err, retry.Classify(err))
		return
	}

	job.state = StateDispatched
	job.handle = handle
	run.inflight[stage]++

	if s.metrics != nil {
		s.metrics.Dispatches.WithLabelValues(stage.String()).Inc()
	}
	s.logger.Debug("dispatched",
		"batch_id", run.batchID,
		"story_id", job.story.ID,
		"stage", stage.String(),
		"attempt", job.retry.Attempt,
		"score", job.score.Score,
	)

	if timeout := s.stages[stage].Timeout; timeout > 0 {
		s.afterFunc(timeout, func() {
			s.postEvent(event{kind: eventTimeout, handle: handle})
		})
	}
}

// ReportOutcome is the callback for stage workers. Reporting against an
// unknown or already-finished handle returns an explicit error and
// changes nothing; dead-lettered jobs are never revived by late
// reports.
func (s *Scheduler) ReportOutcome(handle JobHandle, success bool, actualCost int64, reportErr error) error {
	s.mu.Lock()
	pd, ok := s.handles[handle]
	s.mu.Unlock()
	if !ok {
		return errors.New(errors.ErrCodeSchedUnknownJob,
			fmt.Sprintf("no in-flight job for handle %s", handle))
	}

	s.postEvent(event{
		kind:    eventOutcome,
		handle:  handle,
		storyID: pd.job.story.ID,
		success: success,
		err:     reportErr,
		cost:    actualCost,
	})
	return nil
}

// postEvent delivers an event to the run loop if a run is active.
func (s *Scheduler) postEvent(ev event) {
	s.mu.Lock()
	ch := s.events
	running := s.running
	s.mu.Unlock()
	if !running || ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		// Channel capacity is sized for the worst case; dropping here
		// would mean a bookkeeping bug, so make it loud.
		s.logger.Error("event channel full, dropping event", "story_id", ev.storyID)
	}
}

// handleEvent applies one event to the run state.
func (s *Scheduler) handleEvent(ctx context.Context, run *batchRun, ev event) {
	switch ev.kind {
	case eventWake:
		job, ok := run.jobs[ev.storyID]
		if !ok {
			return
		}
		if run.cancelled {
			return
		}
		if job.waitingOnBudget {
			job.waitingOnBudget = false
		}
		if job.state == StateRetryWait {
			job.state = StatePending
		}

	case eventTimeout:
		s.mu.Lock()
		pd, ok := s.handles[ev.handle]
		if ok {
			delete(s.handles, ev.handle)
		}
		s.mu.Unlock()
		if !ok {
			return // outcome already arrived
		}
		run.inflight[pd.stage]--
		pd.job.handle = ""
		timeoutErr := fmt.Errorf("stage %s timeout exceeded after %s", pd.stage, s.stages[pd.stage].Timeout)
		if s.metrics != nil {
			s.metrics.StageOutcomes.WithLabelValues(pd.stage.String(), "timeout").Inc()
		}
		s.failJob(ctx, run, pd.job, timeoutErr, retry.Transient)

	case eventOutcome:
		s.mu.Lock()
		pd, ok := s.handles[ev.handle]
		if ok {
			delete(s.handles, ev.handle)
		}
		s.mu.Unlock()
		if !ok {
			// Stale report after a timeout already consumed the handle.
			s.logger.Debug("ignoring stale outcome report", "story_id", ev.storyID)
			return
		}

		run.inflight[pd.stage]--
		pd.job.handle = ""

		if s.metrics != nil {
			s.metrics.StageDuration.WithLabelValues(pd.stage.String()).Observe(time.Since(pd.dispatched).Seconds())
		}

		if ev.cost > 0 {
			if s.telemetry != nil {
				s.telemetry.ReportCost(pd.job.story.ID, pd.stage, ev.cost)
			}
			if s.metrics != nil {
				s.metrics.TokensActual.Add(float64(ev.cost))
			}
			s.governor.ReportActual(pd.job.story.ID, pd.stage.String(), pd.job.estimate, ev.cost)
		}

		if ev.success {
			if s.metrics != nil {
				s.metrics.StageOutcomes.WithLabelValues(pd.stage.String(), "succeeded").Inc()
			}
			s.advance(run, pd.job)
		} else {
			if s.metrics != nil {
				s.metrics.StageOutcomes.WithLabelValues(pd.stage.String(), "failed").Inc()
			}
			s.failJob(ctx, run, pd.job, ev.err, retry.Classify(ev.err))
		}
	}
}

// advance moves a job to its next stage, or marks the story succeeded
// when the chain is complete. Cancelled batches admit nothing new, so a
// mid-chain story stops here.
func (s *Scheduler) advance(run *batchRun, job *storyJob) {
	if job.lastStage() {
		job.state = StateSucceeded
		s.logger.Info("story succeeded",
			"batch_id", run.batchID,
			"story_id", job.story.ID,
			"attempts", len(job.history)+1,
		)
		return
	}

	if run.cancelled {
		job.state = StateCancelled
		return
	}

	job.stageIdx++
	job.state = StatePending
	job.retry = RetryState{Attempt: 1, MaxAttempts: s.maxAttempts(job.stage())}
}

// failJob applies the retry policy to a failed stage job: permanent
// failures and exhausted retry budgets dead-letter, everything else
// backs off and re-enters the pending queue.
func (s *Scheduler) failJob(ctx context.Context, run *batchRun, job *storyJob, cause error, class retry.Class) {
	if cause == nil {
		cause = fmt.Errorf("stage %s failed", job.stage())
	}

	stage := job.stage()
	job.retry.LastError = cause.Error()
	job.history = append(job.history, AttemptError{
		Attempt: job.retry.Attempt,
		Stage:   stage,
		Err:     cause.Error(),
		At:      time.Now(),
	})

	if run.cancelled {
		job.state = StateCancelled
		return
	}

	if class == retry.Permanent || s.exhausted(job) {
		s.deadLetter(ctx, run, job)
		return
	}

	delay := s.policy.NextDelay(job.retry.Attempt)
	job.retry.Attempt++
	job.retry.NextEligibleAt = time.Now().Add(delay)
	job.state = StateRetryWait

	if s.metrics != nil {
		s.metrics.Retries.WithLabelValues(stage.String(), string(class)).Inc()
	}
	s.logger.Warn("stage failed, retrying",
		"batch_id", run.batchID,
		"story_id", job.story.ID,
		"stage", stage.String(),
		"class", string(class),
		"attempt", job.retry.Attempt,
		"delay", delay.String(),
		"error", cause.Error(),
	)

	storyID := job.story.ID
	s.afterFunc(delay, func() {
		s.postEvent(event{kind: eventWake, storyID: storyID})
	})
}

// deadLetter terminates a job and publishes it with its full error
// history. Dead-lettering is terminal: the scheduler never re-dispatches
// the story; replay is a manual operation against the sink.
func (s *Scheduler) deadLetter(ctx context.Context, run *batchRun, job *storyJob) {
	stage := job.stage()
	job.state = StateDeadLettered

	if s.metrics != nil {
		s.metrics.DeadLetters.WithLabelValues(stage.String()).Inc()
	}
	s.logger.Error("story dead-lettered",
		"batch_id", run.batchID,
		"story_id", job.story.ID,
		"stage", stage.String(),
		"attempts", job.retry.Attempt,
		"last_error", job.retry.LastError,
	)

	if s.dlq == nil {
		return
	}
	dl := DeadLetter{
		StoryID:      job.story.ID,
		Stage:        stage,
		ErrorHistory: append([]AttemptError{}, job.history...),
		FailedAt:     time.Now(),
	}
	if err := s.dlq.PublishDeadLetter(ctx, dl); err != nil {
		s.logger.WithError(err).Error("failed to publish dead letter",
			"story_id", job.story.ID,
			"stage", stage.String(),
		)
	}
}

// exhausted reports whether the job has used its attempt budget at the
// current stage.
func (s *Scheduler) exhausted(job *storyJob) bool {
	return job.retry.Attempt >= s.maxAttempts(job.stage())
}

// maxAttempts resolves the attempt budget for a stage: per-stage
// override first, then the retry policy default.
func (s *Scheduler) maxAttempts(stage pipeline.Stage) int {
	if cfg, ok := s.stages[stage]; ok && cfg.MaxAttempts > 0 {
		return cfg.MaxAttempts
	}
	if s.policy.MaxAttempts > 0 {
		return s.policy.MaxAttempts
	}
	return 3
}

// allTerminal reports whether every story reached a terminal state.
func (s *Scheduler) allTerminal(run *batchRun) bool {
	for _, job := range run.jobs {
		if !job.state.Terminal() {
			return false
		}
	}
	return true
}

// buildResult assembles the per-story final status map.
func (s *Scheduler) buildResult(run *batchRun) *BatchResult {
	result := &BatchResult{
		BatchID:     run.batchID,
		Fingerprint: run.fingerprint,
		Stories:     make(map[string]StoryStatus, len(run.jobs)),
		TotalCost:   run.totalCost,
		Duration:    time.Since(run.started),
	}

	for id, job := range run.jobs {
		// Every attempt of a dead-lettered job failed and is in the
		// history; for any other state the current attempt is not.
		attempts := len(job.history) + 1
		if job.state == StateDeadLettered {
			attempts = len(job.history)
		}
		result.Stories[id] = StoryStatus{
			StoryID:   id,
			State:     job.state.String(),
			Level:     job.level,
			Score:     job.score,
			Attempts:  attempts,
			LastError: job.retry.LastError,
		}
		switch job.state {
		case StateSucceeded:
			result.Succeeded++
		case StateDeadLettered:
			result.DeadLettered++
		case StateCancelled:
			result.Cancelled++
		case StateRejected:
			result.Rejected++
		}
	}
	return result
}
