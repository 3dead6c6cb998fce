package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete piper configuration
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
}

// PipelineConfig controls how pipelines are spawned and wired
type PipelineConfig struct {
	// AttachTerminal makes the first stage read the caller's stdin and the last
	// stage write the caller's stdout, unless those channels are redirected.
	AttachTerminal bool `mapstructure:"attach_terminal" yaml:"attach_terminal"`
	// ErrorBuffer is the capacity of a pipeline's error channel (default: 64).
	// Notifications beyond it are logged and dropped when nobody is reading.
	ErrorBuffer int `mapstructure:"error_buffer" yaml:"error_buffer"`
	// InheritEnv controls whether stages start from the parent's environment
	// before their own Env entries are applied (default: true)
	InheritEnv bool `mapstructure:"inherit_env" yaml:"inherit_env"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where piper.log is written. Empty means stderr.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// OutputConfig controls how the CLI renders results
type OutputConfig struct {
	// Color selects colored summaries: "auto", "always" or "never" (default: "auto")
	Color string `mapstructure:"color" yaml:"color"`
}

// ResolveDir returns the log directory with ~ expanded. An empty Dir stays
// empty.
func (l *LoggingConfig) ResolveDir() string {
	path := l.Dir
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return path
}

// UseColor reports whether colored output should be produced given whether
// the destination is a terminal.
func (o *OutputConfig) UseColor(isTerminal bool) bool {
	switch o.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			AttachTerminal: false,
			ErrorBuffer:    64,
			InheritEnv:     true,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
			Dir:     "",
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Pipeline defaults
	viper.SetDefault("pipeline.attach_terminal", defaults.Pipeline.AttachTerminal)
	viper.SetDefault("pipeline.error_buffer", defaults.Pipeline.ErrorBuffer)
	viper.SetDefault("pipeline.inherit_env", defaults.Pipeline.InheritEnv)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Output defaults
	viper.SetDefault("output.color", defaults.Output.Color)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "piper")
	}
	// Fall back to ~/.config/piper
	home, err := os.UserHomeDir()
	if err != nil {
		return ".piper"
	}
	return filepath.Join(home, ".config", "piper")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidColorModes returns the list of valid output.color values
func ValidColorModes() []string {
	return []string{"auto", "always", "never"}
}
