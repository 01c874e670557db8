package domain

// Story represents a single unit of work submitted for scheduling.
// Stories are immutable while a batch is in flight; the pipeline stage
// that processes a story reports its terminal outcome back to the
// scheduler.
type Story struct {
	ID             string   `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description" yaml:"description"`
	Priority       Priority `json:"priority" yaml:"priority"`
	EstimatedHours float64  `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Validate checks that the story is well-formed enough to schedule.
func (s Story) Validate() error {
	if s.ID == "" {
		return ErrEmptyStoryID
	}
	if err := s.Priority.Validate(); err != nil {
		return err
	}
	if s.EstimatedHours < 0 {
		return ErrNegativeEstimate
	}
	return nil
}

// DependsOn reports whether the story declares a dependency on the given id.
func (s Story) DependsOn(id string) bool {
	for _, dep := range s.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// SprintContext is the static per-batch configuration that drives priority
// scoring. It is supplied once per batch and never mutated during scheduling.
type SprintContext struct {
	SprintGoals        []string `json:"sprint_goals" yaml:"sprint_goals"`
	AvailableHours     float64  `json:"available_hours" yaml:"available_hours"`
	TeamVelocity       float64  `json:"team_velocity" yaml:"team_velocity"`
	RiskTolerance      string   `json:"risk_tolerance" yaml:"risk_tolerance"` // low, medium, high
	BusinessPriorities []string `json:"business_priorities" yaml:"business_priorities"`
}
