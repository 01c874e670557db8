package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge/internal/deadletter"
	"github.com/storyforge/storyforge/internal/errors"
	"github.com/storyforge/storyforge/internal/ux"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead-letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered stories, oldest first",
	RunE:  runDLQList,
}

var dlqListLimit int64

func init() {
	dlqListCmd.Flags().Int64Var(&dlqListLimit, "limit", 100, "maximum entries to list")
	dlqCmd.AddCommand(dlqListCmd)
	rootCmd.AddCommand(dlqCmd)
}

func runDLQList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	if cfg.DeadLetter.Type != "redis" {
		return errors.NewConfigInvalidError("dlq list requires dead_letter.type: redis").
			WithSuggestion("In-memory dead letters only live for the duration of one schedule run")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.DeadLetter.Addr,
		Password: cfg.DeadLetter.Password,
		DB:       cfg.DeadLetter.DB,
	})
	defer rdb.Close()

	sink := deadletter.NewRedisSink(rdb)
	ids, err := sink.List(ctx, dlqListLimit)
	if err != nil {
		return ux.EnhanceError(err)
	}

	if len(ids) == 0 {
		fmt.Println("dead-letter queue is empty")
		return nil
	}

	formatter, err := ux.NewFormatter(outFormat, nil)
	if err != nil {
		return err
	}
	if outFormat == "text" || outFormat == "" {
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}
	return formatter.Format(ids)
}
