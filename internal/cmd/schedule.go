package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge/internal/budget"
	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/deadletter"
	"github.com/storyforge/storyforge/internal/exitcode"
	"github.com/storyforge/storyforge/internal/log"
	"github.com/storyforge/storyforge/internal/metrics"
	"github.com/storyforge/storyforge/internal/pipeline"
	"github.com/storyforge/storyforge/internal/retry"
	"github.com/storyforge/storyforge/internal/scheduler"
	"github.com/storyforge/storyforge/internal/telemetry"
	"github.com/storyforge/storyforge/internal/ux"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [batch-file]",
	Short: "Schedule a story batch through the pipeline",
	Long: `Schedule reads a story batch, orders it by dependency level, ranks
each level by priority score, and runs every story through the stage
chain under the configured token budget.

The batch file argument overrides the configured story source. With no
stage commands configured the run is a dry run: every stage succeeds
immediately at its estimated cost.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchedule,
}

var (
	scheduleBatchID        string
	scheduleForce          bool
	scheduleProceedOnCycle bool
	scheduleMetricsAddr    string
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleBatchID, "batch-id", "", "batch id to fetch from the story source")
	scheduleCmd.Flags().BoolVar(&scheduleForce, "force", false, "re-schedule a batch that already completed")
	scheduleCmd.Flags().BoolVar(&scheduleProceedOnCycle, "proceed-on-cycle", false, "schedule the orderable remainder when a cycle is found")
	scheduleCmd.Flags().StringVar(&scheduleMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	logger := log.DefaultLogger()

	batchFile := ""
	if len(args) == 1 {
		batchFile = args[0]
	}
	stories, sprint, err := loadBatch(ctx, cfg, batchFile, scheduleBatchID)
	if err != nil {
		return ux.EnhanceError(err)
	}

	var m *metrics.Metrics
	if scheduleMetricsAddr != "" {
		m = metrics.InitDefault()
		srv := &http.Server{Addr: scheduleMetricsAddr, Handler: metricsMux()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	governor, err := budget.New(budget.Limits{
		PerMinute: cfg.Budget.TokensPerMinute,
		PerHour:   cfg.Budget.TokensPerHour,
		PerDay:    cfg.Budget.TokensPerDay,
	}, budget.WithLogger(logger))
	if err != nil {
		return ux.EnhanceError(err)
	}

	dlq, closeDLQ, err := buildDeadLetterSink(cfg)
	if err != nil {
		return ux.EnhanceError(err)
	}
	defer closeDLQ()

	stages := cfg.StageConfigs()
	pool := scheduler.NewWorkerPool(stageFunc(cfg.StageCommands()), stages, logger)

	policy := retry.Policy{
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		MaxAttempts:    cfg.Retry.MaxAttempts,
		JitterFraction: cfg.Retry.JitterFraction,
	}

	sched, err := scheduler.New(governor, pool, telemetry.NewCostRecorder(logger), dlq, scheduler.Options{
		ExternalDeps:   externalDepPolicy(cfg),
		ProceedOnCycle: scheduleProceedOnCycle || cfg.Scheduler.ProceedOnCycle,
		Stages:         stages,
		RetryPolicy:    &policy,
		Metrics:        m,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	pool.Bind(sched)

	result, err := sched.Run(ctx, stories, sprint, scheduler.RunOptions{Force: scheduleForce})
	if err != nil {
		return ux.EnhanceError(err)
	}
	pool.Wait()

	if outFormat == "text" || outFormat == "" {
		if err := ux.RenderBatchSummary(os.Stdout, *result); err != nil {
			return err
		}
	} else {
		formatter, err := ux.NewFormatter(outFormat, nil)
		if err != nil {
			return err
		}
		if err := formatter.Format(result); err != nil {
			return err
		}
	}

	if result.DeadLettered > 0 {
		exitcode.Exit(exitcode.DeadLettered)
	}
	return nil
}

// stageFunc builds the worker StageFunc from the configured per-stage
// shell commands. Stages without a command succeed immediately.
func stageFunc(commands map[pipeline.Stage]string) scheduler.StageFunc {
	return func(ctx context.Context, req scheduler.DispatchRequest) (int64, error) {
		command, ok := commands[req.Stage]
		if !ok {
			return scheduler.DefaultCostEstimator(req.Story, req.Stage), nil
		}

		c := exec.CommandContext(ctx, "sh", "-c", command)
		c.Env = append(os.Environ(),
			"STORYFORGE_STORY_ID="+req.Story.ID,
			"STORYFORGE_STAGE="+req.Stage.String(),
			"STORYFORGE_BATCH_ID="+req.Payload["batch_id"],
			fmt.Sprintf("STORYFORGE_ATTEMPT=%d", req.Attempt),
		)
		c.Stdout = os.Stderr
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return 0, fmt.Errorf("stage %s command failed for story %s: %w", req.Stage, req.Story.ID, err)
		}
		// Shell stages report no token telemetry of their own.
		return scheduler.DefaultCostEstimator(req.Story, req.Stage), nil
	}
}

// buildDeadLetterSink returns the configured sink and a cleanup func.
func buildDeadLetterSink(cfg config.Config) (scheduler.DeadLetterSink, func(), error) {
	if cfg.DeadLetter.Type != "redis" {
		return deadletter.NewMemorySink(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.DeadLetter.Addr,
		Password: cfg.DeadLetter.Password,
		DB:       cfg.DeadLetter.DB,
	})
	return deadletter.NewRedisSink(rdb), func() { _ = rdb.Close() }, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
