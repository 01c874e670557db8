// Package deadletter provides sinks for jobs that exhausted their retry
// budget. Dead-lettering is terminal: entries stay until explicitly
// replayed or purged by an operator.
package deadletter

import (
	"context"
	"sync"

	"github.com/storyforge/storyforge/internal/scheduler"
)

// MemorySink keeps dead letters in memory. Used by tests and by runs
// that have no queue backend configured.
type MemorySink struct {
	mu      sync.Mutex
	entries []scheduler.DeadLetter
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// PublishDeadLetter appends the entry.
func (s *MemorySink) PublishDeadLetter(_ context.Context, dl scheduler.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, dl)
	return nil
}

// Entries returns a copy of everything published so far.
func (s *MemorySink) Entries() []scheduler.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduler.DeadLetter, len(s.entries))
	copy(out, s.entries)
	return out
}
