package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// CanonicalizeBatch returns a canonical JSON representation of a story
// batch with stable ordering for consistent hashing. Stories are sorted
// by id and every set-valued field is sorted, so the fingerprint is
// independent of submission order.
func CanonicalizeBatch(stories []Story) ([]byte, error) {
	sorted := make([]Story, len(stories))
	copy(sorted, stories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	entries := make([]map[string]interface{}, len(sorted))
	for i, s := range sorted {
		entry := map[string]interface{}{
			"id":       s.ID,
			"title":    s.Title,
			"desc":     s.Description,
			"priority": s.Priority.String(),
		}
		if s.EstimatedHours > 0 {
			entry["estimated_hours"] = s.EstimatedHours
		}
		if len(s.Dependencies) > 0 {
			deps := make([]string, len(s.Dependencies))
			copy(deps, s.Dependencies)
			sort.Strings(deps)
			entry["dependencies"] = deps
		}
		if len(s.Tags) > 0 {
			tags := make([]string, len(s.Tags))
			copy(tags, s.Tags)
			sort.Strings(tags)
			entry["tags"] = tags
		}
		entries[i] = entry
	}

	return json.Marshal(entries)
}

// BatchFingerprint computes the blake3 hash of a canonicalized batch.
// Identical batches produce identical fingerprints regardless of story
// ordering, which lets the scheduler detect resubmission of a batch that
// already reached a terminal outcome.
func BatchFingerprint(stories []Story) (string, error) {
	canonical, err := CanonicalizeBatch(stories)
	if err != nil {
		return "", fmt.Errorf("canonicalize batch: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash batch: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
