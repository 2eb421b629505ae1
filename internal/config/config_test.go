// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 500*time.Millisecond, cfg.Recorder.PollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Recorder.ScrollDebounce)
	assert.Equal(t, 200*time.Millisecond, cfg.Recorder.MouseMoveDebounce)
	assert.Equal(t, 2*time.Second, cfg.Replay.ClickTimeout)
	assert.Equal(t, 1.0, cfg.Replay.Speed)
	assert.Equal(t, "recordings", cfg.Storage.RecordingsDir)
	assert.Equal(t, "snapshots", cfg.Storage.SnapshotsDir)
	assert.Equal(t, "states_schema.json", cfg.Storage.SchemaPath)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("recorder.poll_interval", "250ms")
	v.Set("replay.speed", 2.5)
	v.Set("browser.headless", true)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Recorder.PollInterval)
	assert.Equal(t, 2.5, cfg.Replay.Speed)
	assert.True(t, cfg.Browser.Headless)
}

func TestNewConfigFromViper_EnvAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Analyzer.APIKey)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll interval", func(c *Config) { c.Recorder.PollInterval = 0 }},
		{"negative scroll debounce", func(c *Config) { c.Recorder.ScrollDebounce = -time.Second }},
		{"zero click timeout", func(c *Config) { c.Replay.ClickTimeout = 0 }},
		{"zero speed", func(c *Config) { c.Replay.Speed = 0 }},
		{"negative speed", func(c *Config) { c.Replay.Speed = -1 }},
		{"no recordings dir", func(c *Config) { c.Storage.RecordingsDir = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPaths(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.RecordingsDir = "~/recordings"

	require.NoError(t, cfg.ExpandPaths())
	assert.NotContains(t, cfg.Storage.RecordingsDir, "~")
}
