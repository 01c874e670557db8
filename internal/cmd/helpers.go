package cmd

import (
	"context"
	"os"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/graph"
	"github.com/storyforge/storyforge/internal/source"
)

// defaultConfigPath returns storyforge.yaml when it exists in the
// working directory, otherwise empty (built-in defaults).
func defaultConfigPath() string {
	if _, err := os.Stat("storyforge.yaml"); err == nil {
		return "storyforge.yaml"
	}
	return ""
}

// externalDepPolicy maps the config string to the graph policy.
func externalDepPolicy(cfg config.Config) graph.ExternalDepPolicy {
	if cfg.Scheduler.ExternalDeps == "reject" {
		return graph.Reject
	}
	return graph.AssumeSatisfied
}

// loadBatch resolves stories and sprint context from the configured
// source, with a batch file argument taking precedence.
func loadBatch(ctx context.Context, cfg config.Config, batchFile, batchID string) ([]domain.Story, domain.SprintContext, error) {
	if batchFile == "" && cfg.Source.Type == "postgres" {
		src, err := source.NewPostgresSource(ctx, cfg.Source.DSN)
		if err != nil {
			return nil, domain.SprintContext{}, err
		}
		defer src.Close()

		stories, err := src.FetchBatch(ctx, batchID)
		if err != nil {
			return nil, domain.SprintContext{}, err
		}
		// Postgres carries no sprint context; callers layer their own.
		return stories, defaultSprint(), nil
	}

	path := batchFile
	if path == "" {
		path = cfg.Source.Path
	}
	src := source.NewFileSource(path)

	stories, err := src.FetchBatch(ctx, batchID)
	if err != nil {
		return nil, domain.SprintContext{}, err
	}
	sprint, err := src.SprintContext()
	if err != nil {
		return nil, domain.SprintContext{}, err
	}
	return stories, sprint, nil
}

func defaultSprint() domain.SprintContext {
	return domain.SprintContext{
		AvailableHours: 40,
		RiskTolerance:  "medium",
	}
}
