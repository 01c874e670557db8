package domain

// ScoreFactors holds the individual components that make up a priority
// score. Each factor is kept separately so the reasoning string can
// explain where a score came from.
type ScoreFactors struct {
	Complexity      float64 `json:"complexity"`
	Risk            float64 `json:"risk"`
	SprintValue     float64 `json:"sprint_value"`
	DependencyBonus float64 `json:"dependency_bonus"`
	BusinessImpact  float64 `json:"business_impact"`
}

// PriorityScore represents a computed scheduling score for a story.
// Scores are derived per scheduling pass and never persisted as a source
// of truth: recomputing with identical inputs yields an identical score.
type PriorityScore struct {
	StoryID   string       `json:"story_id"`
	Score     float64      `json:"score"`
	Factors   ScoreFactors `json:"factors"`
	Reasoning string       `json:"reasoning"`
}
