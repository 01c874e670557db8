package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/internal/errors"
	"github.com/storyforge/storyforge/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storyforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, int64(100_000), cfg.Budget.TokensPerMinute)
	assert.Equal(t, "assume-satisfied", cfg.Scheduler.ExternalDeps)
	assert.Equal(t, "memory", cfg.DeadLetter.Type)
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
budget:
  tokens_per_minute: 50000
retry:
  max_attempts: 5
stages:
  draft:
    concurrency: 2
    timeout: 5m
    command: "forge run draft"
scheduler:
  external_deps: reject
  proceed_on_cycle: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(50_000), cfg.Budget.TokensPerMinute)
	assert.Equal(t, int64(2_000_000), cfg.Budget.TokensPerHour, "untouched fields keep defaults")
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay, "untouched fields keep defaults")
	assert.True(t, cfg.Scheduler.ProceedOnCycle)
	assert.Equal(t, "reject", cfg.Scheduler.ExternalDeps)
	assert.Equal(t, 2, cfg.Stages["draft"].Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Stages["draft"].Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeFileReadFailed, forgeErr.Code)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "log: [not: a: mapping")

	_, err := Load(path)
	require.Error(t, err)

	var forgeErr *errors.ForgeError
	require.True(t, stderrors.As(err, &forgeErr))
	assert.Equal(t, errors.ErrCodeFileUnmarshal, forgeErr.Code)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative budget", func(c *Config) { c.Budget.TokensPerHour = -1 }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"zero base delay", func(c *Config) { c.Retry.BaseDelay = 0 }},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }},
		{"jitter out of range", func(c *Config) { c.Retry.JitterFraction = 1.0 }},
		{"unknown external deps policy", func(c *Config) { c.Scheduler.ExternalDeps = "ignore" }},
		{"unknown source type", func(c *Config) { c.Source.Type = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Source.Type = "postgres" }},
		{"unknown dead letter type", func(c *Config) { c.DeadLetter.Type = "kafka" }},
		{"redis without addr", func(c *Config) { c.DeadLetter.Type = "redis" }},
		{"unknown stage name", func(c *Config) {
			c.Stages = map[string]StageConfig{"deploy": {Concurrency: 1}}
		}},
		{"negative stage concurrency", func(c *Config) {
			c.Stages = map[string]StageConfig{"draft": {Concurrency: -1}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var forgeErr *errors.ForgeError
			require.True(t, stderrors.As(err, &forgeErr))
			assert.Equal(t, errors.ErrCodeConfigInvalid, forgeErr.Code)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestStageConfigsMergesOverrides(t *testing.T) {
	cfg := Default()
	cfg.Stages = map[string]StageConfig{
		"draft": {Concurrency: 4},
		"test":  {Timeout: 20 * time.Minute, MaxAttempts: 5},
	}

	merged := cfg.StageConfigs()
	defaults := pipeline.DefaultStageConfigs()

	assert.Equal(t, 4, merged[pipeline.StageDraft].Concurrency)
	assert.Equal(t, defaults[pipeline.StageDraft].Timeout, merged[pipeline.StageDraft].Timeout,
		"fields left at zero keep the built-in default")

	assert.Equal(t, 20*time.Minute, merged[pipeline.StageTest].Timeout)
	assert.Equal(t, 5, merged[pipeline.StageTest].MaxAttempts)
	assert.Equal(t, defaults[pipeline.StageTest].Concurrency, merged[pipeline.StageTest].Concurrency)

	assert.Equal(t, defaults[pipeline.StageReport], merged[pipeline.StageReport],
		"stages without overrides are untouched")
}

func TestStageCommands(t *testing.T) {
	cfg := Default()
	cfg.Stages = map[string]StageConfig{
		"draft": {Command: "forge run draft"},
		"logic": {Concurrency: 2},
	}

	commands := cfg.StageCommands()
	assert.Equal(t, map[pipeline.Stage]string{
		pipeline.StageDraft: "forge run draft",
	}, commands, "stages without a command are dry-run no-ops")
}
