package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/storyforge/storyforge/internal/log"
	"github.com/storyforge/storyforge/internal/pipeline"
)

var errNoReporter = errors.New("worker pool has no outcome reporter bound")

// StageFunc executes one stage job and returns the actual token cost.
type StageFunc func(ctx context.Context, req DispatchRequest) (actualCost int64, err error)

// OutcomeReporter is the callback surface workers report through.
// *Scheduler satisfies it.
type OutcomeReporter interface {
	ReportOutcome(handle JobHandle, success bool, actualCost int64, reportErr error) error
}

// WorkerPool is an in-process StageSink: each stage gets a bounded pool
// of goroutines executing a StageFunc and reporting outcomes back to the
// scheduler. External deployments replace this with a real queue; the
// contract is the same Dispatch/ReportOutcome pair.
type WorkerPool struct {
	fn       StageFunc
	reporter OutcomeReporter
	slots    map[pipeline.Stage]chan struct{}
	logger   *log.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewWorkerPool creates a pool with per-stage concurrency bounds taken
// from the stage configs.
func NewWorkerPool(fn StageFunc, stages map[pipeline.Stage]pipeline.StageConfig, logger *log.Logger) *WorkerPool {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	slots := make(map[pipeline.Stage]chan struct{}, len(stages))
	for stage, cfg := range stages {
		n := cfg.Concurrency
		if n <= 0 {
			n = 1
		}
		slots[stage] = make(chan struct{}, n)
	}
	return &WorkerPool{
		fn:     fn,
		slots:  slots,
		logger: logger.WithGroup("workers"),
	}
}

// Bind attaches the reporter the pool calls back into. Must be called
// before the first Dispatch.
func (p *WorkerPool) Bind(reporter OutcomeReporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reporter = reporter
}

// Dispatch hands the job to a stage worker goroutine. The scheduler
// already bounds in-flight jobs per stage; the semaphore here keeps the
// bound even if a different coordinator drives the pool.
func (p *WorkerPool) Dispatch(ctx context.Context, req DispatchRequest) error {
	p.mu.Lock()
	reporter := p.reporter
	p.mu.Unlock()
	if reporter == nil {
		return errNoReporter
	}

	slot, ok := p.slots[req.Stage]
	if !ok {
		slot = make(chan struct{}, 1)
		p.slots[req.Stage] = slot
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case slot <- struct{}{}:
			defer func() { <-slot }()
		case <-ctx.Done():
			_ = reporter.ReportOutcome(req.Handle, false, 0, ctx.Err())
			return
		}

		cost, err := p.fn(ctx, req)
		if reportErr := reporter.ReportOutcome(req.Handle, err == nil, cost, err); reportErr != nil {
			// Handle already consumed, typically by a stage timeout.
			p.logger.Debug("outcome not accepted",
				"story_id", req.Story.ID,
				"stage", req.Stage.String(),
				"reason", reportErr.Error(),
			)
		}
	}()
	return nil
}

// Wait blocks until every in-flight worker has finished.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
