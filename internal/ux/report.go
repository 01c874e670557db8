package ux

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/storyforge/storyforge/internal/scheduler"
)

// RenderBatchSummary writes a human-readable report for a finished
// batch: one line per story in level order, then the totals.
func RenderBatchSummary(w io.Writer, result scheduler.BatchResult) error {
	statuses := make([]scheduler.StoryStatus, 0, len(result.Stories))
	for _, st := range result.Stories {
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Level != statuses[j].Level {
			return statuses[i].Level < statuses[j].Level
		}
		if statuses[i].Score.Score != statuses[j].Score.Score {
			return statuses[i].Score.Score > statuses[j].Score.Score
		}
		return statuses[i].StoryID < statuses[j].StoryID
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s\n", result.BatchID)
	fmt.Fprintf(&b, "Fingerprint %s\n\n", result.Fingerprint)

	for _, st := range statuses {
		level := fmt.Sprintf("L%d", st.Level)
		if st.Level < 0 {
			level = "--"
		}
		fmt.Fprintf(&b, "  %-3s %-24s %6.2f  %-13s", level, st.StoryID, st.Score.Score, st.State)
		if st.Attempts > 1 {
			fmt.Fprintf(&b, "  attempts=%d", st.Attempts)
		}
		if st.LastError != "" {
			fmt.Fprintf(&b, "  %s", st.LastError)
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n%d succeeded, %d dead-lettered, %d cancelled, %d rejected of %d stories\n",
		result.Succeeded, result.DeadLettered, result.Cancelled, result.Rejected, len(result.Stories))
	fmt.Fprintf(&b, "Tokens spent: %d\n", result.TotalCost)
	fmt.Fprintf(&b, "Wall time: %s\n", result.Duration.Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())
	return err
}
