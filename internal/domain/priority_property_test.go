package domain

import (
	"testing"

	"pgregory.net/rapid"
)

// genValidPriority generates valid Priority values for property testing
func genValidPriority() *rapid.Generator[Priority] {
	return rapid.SampledFrom([]Priority{PriorityLow, PriorityMedium, PriorityHigh})
}

// genInvalidPriority generates invalid Priority strings
func genInvalidPriority() *rapid.Generator[string] {
	return rapid.OneOf(
		// Empty string
		rapid.Just(""),
		// Wrong case or padding
		rapid.SampledFrom([]string{"Low", "MEDIUM", "High", "low ", " high"}),
		// Wrong vocabulary
		rapid.SampledFrom([]string{"P0", "P1", "critical", "urgent", "none"}),
		// Random strings
		rapid.StringMatching(`[A-Za-z]{1,10}`).Filter(func(s string) bool {
			return s != "low" && s != "medium" && s != "high"
		}),
	)
}

// TestPriority_ValidPrioritiesAlwaysValidate tests that all valid priorities pass validation
func TestPriority_ValidPrioritiesAlwaysValidate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		validPriority := genValidPriority().Draw(t, "valid_priority")

		if err := validPriority.Validate(); err != nil {
			t.Fatalf("valid priority %q should pass validation: %v", validPriority, err)
		}

		if validPriority.String() != string(validPriority) {
			t.Fatalf("String() should return the underlying value")
		}
	})
}

// TestPriority_InvalidPrioritiesAlwaysFail tests that invalid strings never validate
func TestPriority_InvalidPrioritiesAlwaysFail(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		invalid := genInvalidPriority().Draw(t, "invalid_priority")

		if _, err := NewPriority(invalid); err == nil {
			t.Fatalf("invalid priority %q should fail validation", invalid)
		}
	})
}

// TestPriority_ComparisonIsStrictOrdering tests comparison consistency
func TestPriority_ComparisonIsStrictOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genValidPriority().Draw(t, "a")
		b := genValidPriority().Draw(t, "b")

		if a.IsHigherThan(b) && b.IsHigherThan(a) {
			t.Fatalf("comparison must be antisymmetric: %q vs %q", a, b)
		}
		if a == b && (a.IsHigherThan(b) || a.IsLowerThan(b)) {
			t.Fatalf("equal priorities must compare equal: %q", a)
		}
		if a.IsHigherThan(b) != b.IsLowerThan(a) {
			t.Fatalf("IsHigherThan and IsLowerThan must mirror: %q vs %q", a, b)
		}
	})
}

// TestPriority_MultiplierMatchesOrdering tests that higher priorities never
// get a smaller sprint-value multiplier
func TestPriority_MultiplierMatchesOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genValidPriority().Draw(t, "a")
		b := genValidPriority().Draw(t, "b")

		if a.IsHigherThan(b) && a.Multiplier() <= b.Multiplier() {
			t.Fatalf("priority %q outranks %q but has multiplier %v <= %v",
				a, b, a.Multiplier(), b.Multiplier())
		}
	})
}
