package cmd

import (
	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge/internal/scoring"
	"github.com/storyforge/storyforge/internal/ux"
)

var scoreCmd = &cobra.Command{
	Use:   "score [batch-file]",
	Short: "Score and rank a story batch without scheduling it",
	Long: `Score computes the weighted priority score for every story in the
batch and prints them ranked, together with the recommended batch size
for the sprint. Nothing is dispatched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

var scoreBatchID string

func init() {
	scoreCmd.Flags().StringVar(&scoreBatchID, "batch-id", "", "batch id to fetch from the story source")
	rootCmd.AddCommand(scoreCmd)
}

// scoreReport is the score command's output document.
type scoreReport struct {
	Ranked               []scoredStory `json:"ranked" yaml:"ranked"`
	RecommendedBatchSize int           `json:"recommended_batch_size" yaml:"recommended_batch_size"`
}

type scoredStory struct {
	StoryID   string  `json:"story_id" yaml:"story_id"`
	Title     string  `json:"title" yaml:"title"`
	Score     float64 `json:"score" yaml:"score"`
	Reasoning string  `json:"reasoning" yaml:"reasoning"`
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}

	batchFile := ""
	if len(args) == 1 {
		batchFile = args[0]
	}
	stories, sprint, err := loadBatch(ctx, cfg, batchFile, scoreBatchID)
	if err != nil {
		return ux.EnhanceError(err)
	}

	scorer := scoring.New()
	scores := scorer.ScoreBatch(stories, sprint)
	ranked := scoring.RankLevel(stories, scores)

	report := scoreReport{
		RecommendedBatchSize: scoring.RecommendedBatchSize(sprint),
	}
	for _, st := range ranked {
		score := scores[st.ID]
		report.Ranked = append(report.Ranked, scoredStory{
			StoryID:   st.ID,
			Title:     st.Title,
			Score:     score.Score,
			Reasoning: score.Reasoning,
		})
	}

	formatter, err := ux.NewFormatter(outFormat, nil)
	if err != nil {
		return err
	}
	return formatter.Format(report)
}
