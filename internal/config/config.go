// Package config loads and validates storyforge configuration from
// YAML files, layering file values over built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/storyforge/storyforge/internal/errors"
	"github.com/storyforge/storyforge/internal/pipeline"
)

// Config is the top-level configuration document.
type Config struct {
	// Log controls structured logging output.
	Log LogConfig `yaml:"log"`

	// Budget sets rolling-window token limits. Zero disables a window.
	Budget BudgetConfig `yaml:"budget"`

	// Stages overrides per-stage concurrency, timeout and retry caps.
	Stages map[string]StageConfig `yaml:"stages"`

	// Retry sets the backoff policy for transient failures.
	Retry RetryConfig `yaml:"retry"`

	// Scheduler holds batch-level behavior switches.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Source selects where batches are read from.
	Source SourceConfig `yaml:"source"`

	// DeadLetter selects where exhausted jobs are published.
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
}

// LogConfig mirrors the log package settings in YAML form.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// BudgetConfig holds token limits per rolling window.
type BudgetConfig struct {
	TokensPerMinute int64 `yaml:"tokens_per_minute"`
	TokensPerHour   int64 `yaml:"tokens_per_hour"`
	TokensPerDay    int64 `yaml:"tokens_per_day"`
}

// StageConfig overrides pipeline stage settings. Zero values keep the
// built-in default for that field.
type StageConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`

	// Command runs the stage through a shell. Empty commands make the
	// stage a no-op that costs its admission estimate, which is what
	// dry runs and capacity planning want.
	Command string `yaml:"command"`
}

// StageCommands returns the configured shell command per stage.
func (c Config) StageCommands() map[pipeline.Stage]string {
	out := make(map[pipeline.Stage]string)
	for name, sc := range c.Stages {
		if sc.Command != "" {
			out[pipeline.Stage(name)] = sc.Command
		}
	}
	return out
}

// RetryConfig holds the transient-failure backoff policy.
type RetryConfig struct {
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	JitterFraction float64       `yaml:"jitter_fraction"`
}

// SchedulerConfig holds batch-level behavior switches.
type SchedulerConfig struct {
	// ExternalDeps is "assume-satisfied" or "reject".
	ExternalDeps string `yaml:"external_deps"`

	// ProceedOnCycle schedules the acyclic remainder of a batch instead
	// of failing the whole batch when a cycle is found.
	ProceedOnCycle bool `yaml:"proceed_on_cycle"`
}

// SourceConfig selects the story source backend.
type SourceConfig struct {
	// Type is "yaml" or "postgres".
	Type string `yaml:"type"`

	// Path is the batch file for the yaml source.
	Path string `yaml:"path"`

	// DSN is the connection string for the postgres source.
	DSN string `yaml:"dsn"`
}

// DeadLetterConfig selects the dead-letter backend.
type DeadLetterConfig struct {
	// Type is "memory" or "redis".
	Type string `yaml:"type"`

	// Addr is the redis address, e.g. "localhost:6379".
	Addr string `yaml:"addr"`

	// Password is the redis password, empty for none.
	Password string `yaml:"password"`

	// DB is the redis database index.
	DB int `yaml:"db"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Budget: BudgetConfig{
			TokensPerMinute: 100_000,
			TokensPerHour:   2_000_000,
			TokensPerDay:    20_000_000,
		},
		Retry: RetryConfig{
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			MaxAttempts:    3,
			JitterFraction: 0.2,
		},
		Scheduler: SchedulerConfig{
			ExternalDeps: "assume-satisfied",
		},
		Source: SourceConfig{
			Type: "yaml",
		},
		DeadLetter: DeadLetterConfig{
			Type: "memory",
		},
	}
}

// Load reads the file at path, layers it over Default and validates the
// result. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeFileReadFailed,
			fmt.Sprintf("failed to read config file: %s", path), err).
			WithSuggestion("Check that the file exists and is readable")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.NewFileUnmarshalError(path, "yaml", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.Budget.TokensPerMinute < 0 || c.Budget.TokensPerHour < 0 || c.Budget.TokensPerDay < 0 {
		return errors.NewConfigInvalidError("budget: token limits must not be negative")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.NewConfigInvalidError("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.NewConfigInvalidError("retry.base_delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.NewConfigInvalidError("retry.max_delay must not be below retry.base_delay")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
		return errors.NewConfigInvalidError("retry.jitter_fraction must be in [0, 1)")
	}

	switch c.Scheduler.ExternalDeps {
	case "", "assume-satisfied", "reject":
	default:
		return errors.NewConfigInvalidError(
			fmt.Sprintf("scheduler.external_deps: unknown policy %q, expected assume-satisfied or reject", c.Scheduler.ExternalDeps))
	}

	switch c.Source.Type {
	case "", "yaml":
	case "postgres":
		if c.Source.DSN == "" {
			return errors.NewConfigInvalidError("source.dsn is required for the postgres source")
		}
	default:
		return errors.NewConfigInvalidError(
			fmt.Sprintf("source.type: unknown source %q, expected yaml or postgres", c.Source.Type))
	}

	switch c.DeadLetter.Type {
	case "", "memory":
	case "redis":
		if c.DeadLetter.Addr == "" {
			return errors.NewConfigInvalidError("dead_letter.addr is required for the redis sink")
		}
	default:
		return errors.NewConfigInvalidError(
			fmt.Sprintf("dead_letter.type: unknown sink %q, expected memory or redis", c.DeadLetter.Type))
	}

	for name, sc := range c.Stages {
		stage := pipeline.Stage(name)
		if err := stage.Validate(); err != nil {
			return errors.NewConfigInvalidError(fmt.Sprintf("stages: unknown stage %q", name))
		}
		if sc.Concurrency < 0 {
			return errors.NewConfigInvalidError(fmt.Sprintf("stages.%s: concurrency must not be negative", name))
		}
		if sc.Timeout < 0 {
			return errors.NewConfigInvalidError(fmt.Sprintf("stages.%s: timeout must not be negative", name))
		}
	}

	return nil
}

// StageConfigs merges the file overrides onto the built-in stage
// defaults and returns the full per-stage map.
func (c Config) StageConfigs() map[pipeline.Stage]pipeline.StageConfig {
	out := pipeline.DefaultStageConfigs()
	for name, sc := range c.Stages {
		stage := pipeline.Stage(name)
		base, ok := out[stage]
		if !ok {
			continue
		}
		if sc.Concurrency > 0 {
			base.Concurrency = sc.Concurrency
		}
		if sc.Timeout > 0 {
			base.Timeout = sc.Timeout
		}
		if sc.MaxAttempts > 0 {
			base.MaxAttempts = sc.MaxAttempts
		}
		out[stage] = base
	}
	return out
}
