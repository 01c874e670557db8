// Package scoring computes deterministic priority scores for stories.
//
// A score is a pure function of (story, sprint context, batch shape):
// recomputing with identical inputs yields an identical score, which is
// what makes within-level ranking stable across scheduling passes.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/storyforge/storyforge/internal/domain"
)

// complexityWeights is the fixed base weight per complexity bucket.
var complexityWeights = map[string]float64{
	"simple":  1,
	"medium":  2,
	"complex": 4,
}

// Scorer computes priority scores. The zero value is not usable; use New.
type Scorer struct{}

// New creates a Scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score computes the priority score for one story.
//
// dependents is the number of other stories in the batch that declare a
// dependency on this story; callers scoring a whole batch should prefer
// ScoreBatch, which computes it.
func (sc *Scorer) Score(story domain.Story, sprint domain.SprintContext, dependents int) domain.PriorityScore {
	text := storyText(story)

	complexity := sc.complexity(story)
	risk, riskMatched := sc.risk(text)
	sprintValue := sc.sprintValue(story, sprint, text)
	depBonus := 0.1*float64(dependents) + 0.05*float64(len(story.Dependencies))
	impact, impactMatched := sc.businessImpact(text)

	score := (complexity * risk / sprintValue) * (1 + depBonus) * impact
	score = round2(score)

	return domain.PriorityScore{
		StoryID: story.ID,
		Score:   score,
		Factors: domain.ScoreFactors{
			Complexity:      round2(complexity),
			Risk:            round2(risk),
			SprintValue:     round2(sprintValue),
			DependencyBonus: round2(depBonus),
			BusinessImpact:  round2(impact),
		},
		Reasoning: buildReasoning(story, riskMatched, impactMatched, dependents),
	}
}

// ScoreBatch scores every story in a batch, computing the dependent
// count for each story from the batch itself.
func (sc *Scorer) ScoreBatch(stories []domain.Story, sprint domain.SprintContext) map[string]domain.PriorityScore {
	dependents := make(map[string]int, len(stories))
	for _, s := range stories {
		for _, dep := range s.Dependencies {
			dependents[dep]++
		}
	}

	scores := make(map[string]domain.PriorityScore, len(stories))
	for _, s := range stories {
		scores[s.ID] = sc.Score(s, sprint, dependents[s.ID])
	}
	return scores
}

// RankLevel sorts the stories of one dependency level in dispatch order:
// descending by score, ties broken by story id so the order is stable
// and deterministic.
func RankLevel(level []domain.Story, scores map[string]domain.PriorityScore) []domain.Story {
	ranked := make([]domain.Story, len(level))
	copy(ranked, level)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID].Score, scores[ranked[j].ID].Score
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// RecommendedBatchSize suggests how many stories fit a sprint given its
// available hours and risk tolerance.
func RecommendedBatchSize(sprint domain.SprintContext) int {
	riskMultiplier := map[string]float64{
		"low":    0.7,
		"medium": 1.0,
		"high":   1.3,
	}
	mult, ok := riskMultiplier[strings.ToLower(sprint.RiskTolerance)]
	if !ok {
		mult = 1.0
	}

	size := int(math.Floor(sprint.AvailableHours/8) * mult)
	if size < 1 {
		size = 1
	}
	return size
}

// complexity = baseWeight[bucket] * hoursFactor * (1 + 0.1 * deps).
func (sc *Scorer) complexity(story domain.Story) float64 {
	base := complexityWeights[complexityBucket(story)]
	return base * hoursFactor(story.EstimatedHours) * (1 + 0.1*float64(len(story.Dependencies)))
}

// complexityBucket classifies a story by its estimated hours.
// Stories without an estimate default to medium.
func complexityBucket(story domain.Story) string {
	switch {
	case story.EstimatedHours == 0:
		return "medium"
	case story.EstimatedHours <= 4:
		return "simple"
	case story.EstimatedHours <= 16:
		return "medium"
	default:
		return "complex"
	}
}

// hoursFactor adjusts complexity by estimated hours.
func hoursFactor(hours float64) float64 {
	switch {
	case hours > 16:
		return 1.5
	case hours > 8:
		return 1.2
	case hours > 0 && hours < 2:
		return 0.8
	default:
		return 1.0
	}
}

// risk starts at 1.0 and is multiplied by every matching keyword factor,
// capped at maxRisk.
func (sc *Scorer) risk(text string) (float64, []string) {
	risk, matched := applyFactors(text, riskFactors)
	if risk > maxRisk {
		risk = maxRisk
	}
	return risk, matched
}

// sprintValue reflects how well a story fits the sprint: goal alignment,
// business alignment, declared priority, and time fit. Floored at 0.1 so
// the final score's division is always defined.
func (sc *Scorer) sprintValue(story domain.Story, sprint domain.SprintContext, text string) float64 {
	value := 1.0
	value *= 1 + alignment(text, sprint.SprintGoals)
	value *= 1 + 0.5*alignment(text, sprint.BusinessPriorities)
	value *= story.Priority.Multiplier()

	if sprint.AvailableHours > 0 {
		value *= math.Min(story.EstimatedHours/sprint.AvailableHours, 1.0)
	}

	if value < 0.1 {
		value = 0.1
	}
	return value
}

// businessImpact starts at 1.0 and is multiplied by every matching
// impact factor.
func (sc *Scorer) businessImpact(text string) (float64, []string) {
	return applyFactors(text, businessImpactFactors)
}

// alignment returns the fraction of phrase keywords (words longer than
// three characters) found in the story text.
func alignment(text string, phrases []string) float64 {
	var total, found int
	for _, phrase := range phrases {
		for _, word := range strings.Fields(strings.ToLower(phrase)) {
			if len(word) <= 3 {
				continue
			}
			total++
			if strings.Contains(text, word) {
				found++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(found) / float64(total)
}

// storyText is the lowercased haystack for keyword matching.
func storyText(story domain.Story) string {
	parts := append([]string{story.Title, story.Description}, story.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

func buildReasoning(story domain.Story, riskMatched, impactMatched []string, dependents int) string {
	parts := []string{
		fmt.Sprintf("%s complexity (%0.1fh estimate)", complexityBucket(story), story.EstimatedHours),
		fmt.Sprintf("%s priority", story.Priority),
	}
	if len(riskMatched) > 0 {
		parts = append(parts, fmt.Sprintf("risk: %s", strings.Join(riskMatched, ", ")))
	}
	if len(impactMatched) > 0 {
		parts = append(parts, fmt.Sprintf("impact: %s", strings.Join(impactMatched, ", ")))
	}
	if dependents > 0 {
		parts = append(parts, fmt.Sprintf("unblocks %d stories", dependents))
	}
	return strings.Join(parts, "; ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
