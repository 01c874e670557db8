package cmd

import (
	stderrors "errors"

	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge/internal/graph"
	"github.com/storyforge/storyforge/internal/ux"
)

var graphCmd = &cobra.Command{
	Use:   "graph [batch-file]",
	Short: "Show the dependency levels of a story batch",
	Long: `Graph builds the dependency levels a batch would be scheduled in
and prints them. A dependency cycle is reported with its exact member
stories and everything transitively blocked behind them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

var graphBatchID string

func init() {
	graphCmd.Flags().StringVar(&graphBatchID, "batch-id", "", "batch id to fetch from the story source")
	rootCmd.AddCommand(graphCmd)
}

// graphReport is the graph command's output document.
type graphReport struct {
	Levels  [][]string `json:"levels" yaml:"levels"`
	Cycle   []string   `json:"cycle,omitempty" yaml:"cycle,omitempty"`
	Blocked []string   `json:"blocked,omitempty" yaml:"blocked,omitempty"`
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}

	batchFile := ""
	if len(args) == 1 {
		batchFile = args[0]
	}
	stories, _, err := loadBatch(ctx, cfg, batchFile, graphBatchID)
	if err != nil {
		return ux.EnhanceError(err)
	}

	g, err := graph.New(externalDepPolicy(cfg))
	if err != nil {
		return err
	}

	var report graphReport
	levels, err := g.BuildLevels(stories)
	var cycleErr *graph.CycleError
	if err != nil && !stderrors.As(err, &cycleErr) {
		return ux.EnhanceError(err)
	}
	if cycleErr != nil {
		report.Cycle = cycleErr.StoryIDs
		report.Blocked = cycleErr.Blocked
	}
	for _, level := range levels {
		ids := make([]string, 0, len(level))
		for _, st := range level {
			ids = append(ids, st.ID)
		}
		report.Levels = append(report.Levels, ids)
	}

	formatter, err := ux.NewFormatter(outFormat, nil)
	if err != nil {
		return err
	}
	if err := formatter.Format(report); err != nil {
		return err
	}

	if cycleErr != nil {
		return ux.EnhanceError(err)
	}
	return nil
}
