package domain

import (
	"errors"
	"testing"
)

func TestStoryValidate(t *testing.T) {
	tests := []struct {
		name    string
		story   Story
		wantErr error
	}{
		{
			name:  "valid story",
			story: Story{ID: "S1", Title: "Login form", Priority: PriorityHigh, EstimatedHours: 4},
		},
		{
			name:  "valid without estimate",
			story: Story{ID: "S2", Priority: PriorityLow},
		},
		{
			name:    "empty id",
			story:   Story{Priority: PriorityMedium},
			wantErr: ErrEmptyStoryID,
		},
		{
			name:    "negative estimate",
			story:   Story{ID: "S3", Priority: PriorityMedium, EstimatedHours: -1},
			wantErr: ErrNegativeEstimate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.story.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoryValidateBadPriority(t *testing.T) {
	story := Story{ID: "S1", Priority: Priority("urgent")}
	if err := story.Validate(); err == nil {
		t.Error("expected validation error for unknown priority")
	}
}

func TestStoryDependsOn(t *testing.T) {
	story := Story{ID: "S3", Priority: PriorityMedium, Dependencies: []string{"S1", "S2"}}

	if !story.DependsOn("S1") {
		t.Error("expected S3 to depend on S1")
	}
	if story.DependsOn("S4") {
		t.Error("S3 does not depend on S4")
	}
	if story.DependsOn("") {
		t.Error("empty id is never a dependency")
	}
}
