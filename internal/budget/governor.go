// Package budget enforces a shared token budget across rolling time
// windows. The governor never rejects work outright: when a window has
// no headroom it answers with the wait until the tightest window resets,
// and the caller re-attempts after that hint.
package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/storyforge/storyforge/internal/errors"
	"github.com/storyforge/storyforge/internal/log"
)

// WindowKind identifies one of the three rolling windows.
type WindowKind string

const (
	WindowMinute WindowKind = "minute"
	WindowHour   WindowKind = "hour"
	WindowDay    WindowKind = "day"
)

// duration returns the wall-clock span of the window.
func (k WindowKind) duration() time.Duration {
	switch k {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Limits configures the per-window token limits. A zero limit disables
// that window.
type Limits struct {
	PerMinute int64 `yaml:"per_minute"`
	PerHour   int64 `yaml:"per_hour"`
	PerDay    int64 `yaml:"per_day"`
}

// Validate checks the limits are not negative.
func (l Limits) Validate() error {
	if l.PerMinute < 0 || l.PerHour < 0 || l.PerDay < 0 {
		return errors.New(errors.ErrCodeBudgetInvalidLimit, "budget limits must not be negative")
	}
	return nil
}

// Admission is the governor's answer to an admit request.
type Admission struct {
	Allowed bool
	// RetryAfter is the minimum wait before re-attempting when not
	// allowed. Always > 0 when Allowed is false.
	RetryAfter time.Duration
	// Window names the tightest window that denied admission.
	Window WindowKind
}

// window is one rolling counter keyed on wall-clock window boundaries.
type window struct {
	kind     WindowKind
	limit    int64
	consumed int64
	start    time.Time
}

// rollover resets the counter when now has crossed the window boundary.
func (w *window) rollover(now time.Time) {
	span := w.kind.duration()
	if now.Sub(w.start) >= span {
		w.start = now.Truncate(span)
		w.consumed = 0
	}
}

// headroom returns how much cost the window can still absorb.
func (w *window) headroom() int64 {
	return w.limit - w.consumed
}

// resetAt returns when the window next rolls over.
func (w *window) resetAt() time.Time {
	return w.start.Add(w.kind.duration())
}

// Governor tracks token consumption across minute, hour, and day
// windows. All three counters live behind a single mutex: admission
// checks and increments are one critical section, so concurrent
// dispatch attempts can never both pass for headroom only one can
// afford.
type Governor struct {
	mu      sync.Mutex
	windows []*window
	now     func() time.Time
	logger  *log.Logger
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock injects a clock, used by tests to control window boundaries.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithLogger sets the logger used for reconciliation reporting.
func WithLogger(logger *log.Logger) Option {
	return func(g *Governor) { g.logger = logger }
}

// New creates a Governor with the given limits.
func New(limits Limits, opts ...Option) (*Governor, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	g := &Governor{
		now:    time.Now,
		logger: log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	now := g.now()
	for kind, limit := range map[WindowKind]int64{
		WindowMinute: limits.PerMinute,
		WindowHour:   limits.PerHour,
		WindowDay:    limits.PerDay,
	} {
		if limit <= 0 {
			continue
		}
		g.windows = append(g.windows, &window{
			kind:  kind,
			limit: limit,
			start: now.Truncate(kind.duration()),
		})
	}
	return g, nil
}

// Admit asks whether estimatedCost may be spent now.
//
// If every window has headroom, all three counters are incremented
// atomically and the admission is allowed. Otherwise no counter is
// touched and the caller receives the minimum wait until the tightest
// window frees enough headroom. Admission is never a hard rejection.
func (g *Governor) Admit(estimatedCost int64) (Admission, error) {
	if estimatedCost < 0 {
		return Admission{}, errors.New(errors.ErrCodeBudgetInvalidCost,
			fmt.Sprintf("estimated cost must not be negative, got %d", estimatedCost))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var wait time.Duration
	var tightest WindowKind
	for _, w := range g.windows {
		w.rollover(now)
		if w.headroom() < estimatedCost {
			// Soft invariant: consumed may reach limit but never pass
			// it. The wait hint is the time until this window resets.
			if d := w.resetAt().Sub(now); d > wait {
				wait = d
				tightest = w.kind
			}
		}
	}

	if wait > 0 {
		return Admission{Allowed: false, RetryAfter: wait, Window: tightest}, nil
	}

	for _, w := range g.windows {
		w.consumed += estimatedCost
	}
	return Admission{Allowed: true}, nil
}

// ReportActual reconciles the estimate admitted for a dispatch with the
// real consumption reported by the pipeline stage. Drift is logged, not
// corrected: the windows keep counting estimates so admission stays
// conservative and predictable.
func (g *Governor) ReportActual(storyID, stage string, estimated, actual int64) {
	if estimated == actual {
		return
	}
	g.logger.Warn("budget reconciliation drift",
		"story_id", storyID,
		"stage", stage,
		"estimated_cost", estimated,
		"actual_cost", actual,
		"drift", actual-estimated,
	)
}

// Consumed returns the current counter for the given window kind,
// after rolling it over to the present. Returns 0 for disabled windows.
func (g *Governor) Consumed(kind WindowKind) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for _, w := range g.windows {
		if w.kind == kind {
			w.rollover(now)
			return w.consumed
		}
	}
	return 0
}
