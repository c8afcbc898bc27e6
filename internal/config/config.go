// Package config loads afk configuration with viper.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all afk configuration.
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Gates    GatesConfig    `mapstructure:"gates"`
	Markers  []string       `mapstructure:"markers"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
}

// AgentConfig holds agent invocation settings.
type AgentConfig struct {
	// Command is the agent executable name.
	Command string `mapstructure:"command"`

	// Args are the base arguments passed on every invocation.
	Args []string `mapstructure:"args"`

	// PromptVia selects how the prompt reaches the agent:
	// "arg" appends it as the final argument, "stdin" pipes it.
	PromptVia string `mapstructure:"prompt_via"`
}

// LimitsConfig holds the loop limit settings.
type LimitsConfig struct {
	MaxIterations     int `mapstructure:"max_iterations"`
	MaxTaskFailures   int `mapstructure:"max_task_failures"`
	TimeoutMinutes    int `mapstructure:"timeout_minutes"`
	MaxTaskIterations int `mapstructure:"max_task_iterations"`
	StallSeconds      int `mapstructure:"stall_seconds"`
}

// CustomGate is an arbitrary named verification command.
type CustomGate struct {
	Name    string `mapstructure:"name"`
	Command string `mapstructure:"command"`
}

// GatesConfig holds quality gate settings. The four standard gates run
// in fixed order (types, lint, test, build); custom gates follow in
// declaration order. Empty commands are not configured.
type GatesConfig struct {
	Types  string       `mapstructure:"types"`
	Lint   string       `mapstructure:"lint"`
	Test   string       `mapstructure:"test"`
	Build  string       `mapstructure:"build"`
	Custom []CustomGate `mapstructure:"custom"`

	// CountFailures controls whether a gate failure increments the same
	// failure count used for auto-skip, coupling verification failures
	// with agent-crash failures.
	CountFailures bool `mapstructure:"count_failures"`
}

// Configured returns true if at least one gate command is set.
func (g GatesConfig) Configured() bool {
	return g.Types != "" || g.Lint != "" || g.Test != "" || g.Build != "" || len(g.Custom) > 0
}

// ArchiveConfig holds session archiving settings.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// GuardConfig holds sleep-prevention settings.
type GuardConfig struct {
	PreventSleep bool `mapstructure:"prevent_sleep"`
}

// FeedbackConfig holds console feedback settings.
type FeedbackConfig struct {
	Spinner bool `mapstructure:"spinner"`
}

// LoadConfigWithFile loads configuration from a specific file if provided,
// otherwise falls back to LoadConfig against the working directory.
func LoadConfigWithFile(workDir, configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromPath(configFile)
	}
	return LoadConfig(workDir)
}

// LoadConfig loads configuration from .afk/afk.yaml in the given
// directory, falling back to the XDG global config when the project has
// none. If neither exists, defaults are returned.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("afk")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir + "/.afk")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		if global, gerr := GlobalConfigPath(); gerr == nil {
			if _, serr := os.Stat(global); serr == nil {
				v.SetConfigFile(global)
				if err := v.ReadInConfig(); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, validate(cfg)
}

// LoadConfigFromPath loads configuration from a specific file path.
// A missing file yields defaults.
func LoadConfigFromPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, err
			}
			return cfg, validate(cfg)
		}
		return nil, err
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, validate(cfg)
}

// validate rejects configurations the loop cannot run with.
func validate(cfg *Config) error {
	if cfg.Agent.Command == "" {
		return fmt.Errorf("agent.command must not be empty")
	}
	if cfg.Agent.PromptVia != "arg" && cfg.Agent.PromptVia != "stdin" {
		return fmt.Errorf("agent.prompt_via must be %q or %q, got %q", "arg", "stdin", cfg.Agent.PromptVia)
	}
	if cfg.Limits.MaxIterations <= 0 {
		return fmt.Errorf("limits.max_iterations must be positive")
	}
	if cfg.Limits.MaxTaskFailures <= 0 {
		return fmt.Errorf("limits.max_task_failures must be positive")
	}
	if cfg.Limits.TimeoutMinutes <= 0 {
		return fmt.Errorf("limits.timeout_minutes must be positive")
	}
	return nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("agent.command", DefaultAgentCommand)
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.prompt_via", DefaultPromptVia)

	// Limit defaults
	v.SetDefault("limits.max_iterations", DefaultMaxIterations)
	v.SetDefault("limits.max_task_failures", DefaultMaxTaskFailures)
	v.SetDefault("limits.timeout_minutes", DefaultTimeoutMinutes)
	v.SetDefault("limits.max_task_iterations", DefaultMaxTaskIterations)
	v.SetDefault("limits.stall_seconds", DefaultStallSeconds)

	// Gate defaults (no gates configured)
	v.SetDefault("gates.types", "")
	v.SetDefault("gates.lint", "")
	v.SetDefault("gates.test", "")
	v.SetDefault("gates.build", "")
	v.SetDefault("gates.count_failures", true)

	// Marker defaults
	v.SetDefault("markers", []string{
		"<promise>COMPLETE</promise>",
		"AFK_COMPLETE",
		"AFK_STOP",
	})

	// Archive defaults
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.dir", DefaultArchiveDir)

	// Guard defaults
	v.SetDefault("guard.prevent_sleep", true)

	// Feedback defaults
	v.SetDefault("feedback.spinner", true)
}
