// Package cmd wires the storyforge CLI: batch scheduling, scoring and
// dependency inspection over a shared config.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "storyforge",
	Short: "Dependency-aware priority scheduler for code-generation pipelines",
	Long: `storyforge schedules user-story batches through a multi-stage
code-generation pipeline. It orders stories by dependency level, ranks
them by a weighted priority score, gates every dispatch through a
rolling token budget, and retries transient failures with exponential
backoff. Stories that exhaust their retries are dead-lettered with
their full error history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgPath   string
	logLevel  string
	logFormat string
	outFormat string
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with the given context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default storyforge.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "output", "o", "text", "output format: text, json, yaml")
}

// loadConfig resolves the effective config and installs the default
// logger from it. Flags override file values.
func loadConfig() (config.Config, error) {
	path := cfgPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(cfg.Log.Level)
	logCfg.Format = log.ParseFormat(cfg.Log.Format)
	logCfg.AddSource = cfg.Log.AddSource
	log.SetDefaultLogger(log.New(logCfg))

	return cfg, nil
}
