// internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Replay   ReplayConfig   `mapstructure:"replay" yaml:"replay"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the driven browser instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	Args         []string `mapstructure:"args" yaml:"args"`
}

// RecorderConfig tunes the event recorder. The debounce windows apply to
// the in-page capture script; the poll interval drives the host-side loop
// that drains the buffer and samples state.
type RecorderConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ScrollDebounce    time.Duration `mapstructure:"scroll_debounce" yaml:"scroll_debounce"`
	MouseMoveDebounce time.Duration `mapstructure:"mousemove_debounce" yaml:"mousemove_debounce"`
	CaptureSnapshots  bool          `mapstructure:"capture_snapshots" yaml:"capture_snapshots"`
}

// ReplayConfig tunes the event replayer.
type ReplayConfig struct {
	// ClickTimeout bounds selector-based click resolution before falling
	// back to raw coordinates.
	ClickTimeout time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	Speed        float64       `mapstructure:"speed" yaml:"speed"`
	// HoldOpen keeps the browser alive after replay or restore so the
	// settled application can be inspected.
	HoldOpen time.Duration `mapstructure:"hold_open" yaml:"hold_open"`
}

// StorageConfig names the on-disk session directories.
type StorageConfig struct {
	RecordingsDir string `mapstructure:"recordings_dir" yaml:"recordings_dir"`
	SnapshotsDir  string `mapstructure:"snapshots_dir" yaml:"snapshots_dir"`
	SchemaPath    string `mapstructure:"schema_path" yaml:"schema_path"`
}

// AnalyzerConfig configures the LLM-backed schema analyzer.
type AnalyzerConfig struct {
	Model   string        `mapstructure:"model" yaml:"model"`
	APIKey  string        `mapstructure:"api_key" yaml:"-"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stagehand")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	// Recording and stage testing are interactive by nature, so the browser
	// is visible unless explicitly told otherwise.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)

	// -- Recorder --
	v.SetDefault("recorder.poll_interval", 500*time.Millisecond)
	v.SetDefault("recorder.scroll_debounce", 100*time.Millisecond)
	v.SetDefault("recorder.mousemove_debounce", 200*time.Millisecond)
	v.SetDefault("recorder.capture_snapshots", false)

	// -- Replay --
	v.SetDefault("replay.click_timeout", 2*time.Second)
	v.SetDefault("replay.speed", 1.0)
	v.SetDefault("replay.hold_open", 5*time.Minute)

	// -- Storage --
	v.SetDefault("storage.recordings_dir", "recordings")
	v.SetDefault("storage.snapshots_dir", "snapshots")
	v.SetDefault("storage.schema_path", "states_schema.json")

	// -- Analyzer --
	v.SetDefault("analyzer.model", "gemini-2.5-flash")
	v.SetDefault("analyzer.timeout", 2*time.Minute)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object,
// expands home-relative paths, and validates the result.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("analyzer.api_key", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves "~" in the configured storage directories.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Storage.RecordingsDir, &c.Storage.SnapshotsDir, &c.Storage.SchemaPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Recorder.PollInterval <= 0 {
		return fmt.Errorf("recorder.poll_interval must be a positive duration")
	}
	if c.Recorder.ScrollDebounce <= 0 || c.Recorder.MouseMoveDebounce <= 0 {
		return fmt.Errorf("recorder debounce windows must be positive durations")
	}
	if c.Replay.ClickTimeout <= 0 {
		return fmt.Errorf("replay.click_timeout must be a positive duration")
	}
	if c.Replay.Speed <= 0 {
		return fmt.Errorf("replay.speed must be greater than zero")
	}
	if c.Storage.RecordingsDir == "" || c.Storage.SnapshotsDir == "" {
		return fmt.Errorf("storage.recordings_dir and storage.snapshots_dir are required")
	}
	return nil
}
