package graph

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/errors"
)

func story(id string, deps ...string) domain.Story {
	return domain.Story{ID: id, Priority: domain.PriorityMedium, Dependencies: deps}
}

func levelIDs(levels [][]domain.Story) [][]string {
	out := make([][]string, len(levels))
	for i, level := range levels {
		for _, s := range level {
			out[i] = append(out[i], s.ID)
		}
	}
	return out
}

func TestBuildLevelsLinearChain(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	levels, err := g.BuildLevels([]domain.Story{
		story("S3", "S2"),
		story("S1"),
		story("S2", "S1"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"S1"}, {"S2"}, {"S3"}}, levelIDs(levels))
}

func TestBuildLevelsDiamond(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	levels, err := g.BuildLevels([]domain.Story{
		story("D", "B", "C"),
		story("B", "A"),
		story("C", "A"),
		story("A"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A"}, {"B", "C"}, {"D"}}, levelIDs(levels))
}

func TestBuildLevelsMonotonicity(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	stories := []domain.Story{
		story("A"),
		story("B", "A"),
		story("C", "A"),
		story("D", "B", "C"),
		story("E", "A", "D"),
		story("F"),
	}
	nodes, err := g.Nodes(stories)
	require.NoError(t, err)

	for _, node := range nodes {
		for _, dep := range node.DependsOn {
			assert.Less(t, nodes[dep].Level, node.Level,
				"dependency %s of %s must sit in a strictly lower level", dep, node.StoryID)
		}
	}
}

func TestBuildLevelsDeterministic(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	a := []domain.Story{story("A"), story("C"), story("B"), story("D", "A")}
	b := []domain.Story{story("D", "A"), story("B"), story("A"), story("C")}

	la, err := g.BuildLevels(a)
	require.NoError(t, err)
	lb, err := g.BuildLevels(b)
	require.NoError(t, err)

	assert.Equal(t, levelIDs(la), levelIDs(lb), "levels must not depend on submission order")
}

func TestBuildLevelsCycleNamesExactMembers(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	levels, err := g.BuildLevels([]domain.Story{
		story("A", "C"),
		story("B", "A"),
		story("C", "B"),
		story("D"),
		story("E", "D"),
	})
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, stderrors.As(err, &cycleErr))
	assert.Equal(t, []string{"A", "B", "C"}, cycleErr.StoryIDs)
	assert.Empty(t, cycleErr.Blocked)

	// The orderable remainder still gets correct levels.
	assert.Equal(t, [][]string{{"D"}, {"E"}}, levelIDs(levels))
}

func TestBuildLevelsCycleSeparatesBlocked(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	_, err = g.BuildLevels([]domain.Story{
		story("A", "B"),
		story("B", "A"),
		story("C", "A"), // not on the cycle, blocked behind it
		story("D", "C"),
	})
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, stderrors.As(err, &cycleErr))
	assert.Equal(t, []string{"A", "B"}, cycleErr.StoryIDs)
	assert.Equal(t, []string{"C", "D"}, cycleErr.Blocked)
}

func TestBuildLevelsSelfDependency(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	_, err = g.BuildLevels([]domain.Story{story("A", "A"), story("B")})
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, stderrors.As(err, &cycleErr))
	assert.Equal(t, []string{"A"}, cycleErr.StoryIDs)
}

func TestBuildLevelsDuplicateID(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	_, err = g.BuildLevels([]domain.Story{story("A"), story("A")})
	require.Error(t, err)

	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeGraphDuplicateID, forgeErr.Code)
}

func TestBuildLevelsExternalDeps(t *testing.T) {
	t.Run("assume-satisfied treats external ids as done", func(t *testing.T) {
		g, err := New(AssumeSatisfied)
		require.NoError(t, err)

		levels, err := g.BuildLevels([]domain.Story{story("A", "X99"), story("B", "A")})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"A"}, {"B"}}, levelIDs(levels))
	})

	t.Run("reject fails on external ids", func(t *testing.T) {
		g, err := New(Reject)
		require.NoError(t, err)

		_, err = g.BuildLevels([]domain.Story{story("A", "X99")})
		require.Error(t, err)

		var forgeErr *errors.ForgeError
		require.True(t, stderrors.As(err, &forgeErr))
		assert.Equal(t, errors.ErrCodeGraphUnknownDep, forgeErr.Code)
		assert.Contains(t, forgeErr.Message, "X99")
	})
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(ExternalDepPolicy("whatever"))
	require.Error(t, err)
}

func TestEmptyBatchHasNoLevels(t *testing.T) {
	g, err := New(AssumeSatisfied)
	require.NoError(t, err)

	levels, err := g.BuildLevels(nil)
	require.NoError(t, err)
	assert.Empty(t, levels)
}
