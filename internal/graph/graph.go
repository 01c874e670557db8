// Package graph computes dependency ordering for story batches.
//
// Stories are peeled into levels: level 0 holds stories with no
// unresolved in-batch dependency, level k holds stories whose
// dependencies are all satisfied by levels < k. Stories left over after
// an iteration makes no progress form a cycle and are reported as such
// rather than silently dropped.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/errors"
)

// ExternalDepPolicy controls how dependencies referencing ids outside
// the batch are treated.
type ExternalDepPolicy string

const (
	// AssumeSatisfied treats out-of-batch dependency ids as already
	// completed by an earlier batch.
	AssumeSatisfied ExternalDepPolicy = "assume-satisfied"
	// Reject refuses to build levels when a dependency references an id
	// not present in the batch.
	Reject ExternalDepPolicy = "reject"
)

// Validate checks that the policy is one of the known values.
func (p ExternalDepPolicy) Validate() error {
	switch p {
	case AssumeSatisfied, Reject:
		return nil
	default:
		return fmt.Errorf("invalid external dependency policy %q: must be %s or %s", string(p), AssumeSatisfied, Reject)
	}
}

// CycleError reports the subset of a batch that cannot be ordered.
// Stories outside the named sets are unaffected and keep correct levels.
type CycleError struct {
	// StoryIDs are the ids of the stories on the cycle itself, sorted
	// for determinism.
	StoryIDs []string
	// Blocked are ids of stories that are not on the cycle but depend on
	// it transitively, so they can never become ready either.
	Blocked []string
}

// Error implements the error interface
func (e *CycleError) Error() string {
	msg := fmt.Sprintf("dependency cycle detected among stories: %s", strings.Join(e.StoryIDs, ", "))
	if len(e.Blocked) > 0 {
		msg += fmt.Sprintf(" (transitively blocking: %s)", strings.Join(e.Blocked, ", "))
	}
	return msg
}

// Node is the graph-internal representation of a story's dependency state.
type Node struct {
	StoryID   string
	DependsOn []string // in-batch dependency ids only
	Level     int      // 0 = no unresolved dependencies
}

// Graph holds the dependency structure of one batch.
type Graph struct {
	policy ExternalDepPolicy
}

// New creates a Graph with the given external dependency policy.
func New(policy ExternalDepPolicy) (*Graph, error) {
	if policy == "" {
		policy = AssumeSatisfied
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Graph{policy: policy}, nil
}

// BuildLevels orders a batch into dependency levels.
//
// The returned levels satisfy the monotonicity invariant: every
// dependency of a story appears in a strictly lower level than the story
// itself. When a cycle exists the orderable remainder is still returned
// alongside a *CycleError naming the stuck story ids; the caller decides
// whether to proceed with the remainder or fail the whole batch.
func (g *Graph) BuildLevels(stories []domain.Story) ([][]domain.Story, error) {
	inBatch := make(map[string]domain.Story, len(stories))
	for _, s := range stories {
		if _, dup := inBatch[s.ID]; dup {
			return nil, errors.New(errors.ErrCodeGraphDuplicateID,
				fmt.Sprintf("duplicate story id in batch: %s", s.ID))
		}
		inBatch[s.ID] = s
	}

	// Resolve each story's in-batch dependency set up front. Out-of-batch
	// ids are either assumed satisfied or rejected, depending on policy.
	unresolved := make(map[string]map[string]struct{}, len(stories))
	for _, s := range stories {
		deps := make(map[string]struct{})
		var external []string
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				// Self-dependency is a one-story cycle; leave it in the
				// unresolved set so the peeling loop reports it.
				deps[dep] = struct{}{}
				continue
			}
			if _, ok := inBatch[dep]; ok {
				deps[dep] = struct{}{}
			} else {
				external = append(external, dep)
			}
		}
		if len(external) > 0 && g.policy == Reject {
			sort.Strings(external)
			return nil, errors.NewUnknownDependencyError(s.ID, external)
		}
		unresolved[s.ID] = deps
	}

	// Kahn-style peeling: each pass collects every story whose remaining
	// dependency set is empty, assigns it the current level, and removes
	// it from the dependency sets of the rest.
	var levels [][]domain.Story
	satisfied := make(map[string]struct{}, len(stories))

	remaining := len(stories)
	for remaining > 0 {
		var ready []domain.Story
		for id, deps := range unresolved {
			if _, done := satisfied[id]; done {
				continue
			}
			blocked := false
			for dep := range deps {
				if _, ok := satisfied[dep]; !ok {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, inBatch[id])
			}
		}

		if len(ready) == 0 {
			// No progress: everything left is on a cycle or blocked
			// behind one. Fail closed for that subset.
			stuck := make(map[string]struct{})
			for id := range unresolved {
				if _, done := satisfied[id]; !done {
					stuck[id] = struct{}{}
				}
			}
			members, blocked := splitCycleMembers(stuck, unresolved)
			return levels, &CycleError{StoryIDs: members, Blocked: blocked}
		}

		// Deterministic intra-level order; the scorer decides the final
		// ranking within a level.
		sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })

		for _, s := range ready {
			satisfied[s.ID] = struct{}{}
		}
		levels = append(levels, ready)
		remaining -= len(ready)
	}

	return levels, nil
}

// splitCycleMembers separates stories that sit on a cycle from stories
// that are merely blocked behind one. Every stuck story has at least one
// unresolved dependency inside the stuck set, so repeatedly peeling
// stories no other stuck story depends on leaves exactly the cycle core.
func splitCycleMembers(stuck map[string]struct{}, unresolved map[string]map[string]struct{}) (members, blocked []string) {
	core := make(map[string]struct{}, len(stuck))
	for id := range stuck {
		core[id] = struct{}{}
	}

	for {
		dependedOn := make(map[string]struct{}, len(core))
		for id := range core {
			for dep := range unresolved[id] {
				if _, ok := core[dep]; ok {
					dependedOn[dep] = struct{}{}
				}
			}
		}

		var peel []string
		for id := range core {
			if _, ok := dependedOn[id]; !ok {
				peel = append(peel, id)
			}
		}
		if len(peel) == 0 {
			break
		}
		for _, id := range peel {
			delete(core, id)
		}
	}

	for id := range stuck {
		if _, ok := core[id]; ok {
			members = append(members, id)
		} else {
			blocked = append(blocked, id)
		}
	}
	sort.Strings(members)
	sort.Strings(blocked)
	return members, blocked
}

// Nodes returns the per-story dependency nodes with assigned levels.
// It is a convenience view over BuildLevels for callers that want the
// level of each story by id.
func (g *Graph) Nodes(stories []domain.Story) (map[string]Node, error) {
	levels, err := g.BuildLevels(stories)
	if err != nil {
		return nil, err
	}

	inBatch := make(map[string]struct{}, len(stories))
	for _, s := range stories {
		inBatch[s.ID] = struct{}{}
	}

	nodes := make(map[string]Node, len(stories))
	for level, group := range levels {
		for _, s := range group {
			var deps []string
			for _, dep := range s.Dependencies {
				if _, ok := inBatch[dep]; ok {
					deps = append(deps, dep)
				}
			}
			sort.Strings(deps)
			nodes[s.ID] = Node{StoryID: s.ID, DependsOn: deps, Level: level}
		}
	}
	return nodes, nil
}
