// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
}

// LoggerConfig controls zap logger construction.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LLMConfig configures the model provider client.
type LLMConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	// SystemPrompt frames the agent's browser environment for the model.
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// BrowserConfig controls the launched Chrome instance and per-page setup.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	OverlayEnabled    bool          `mapstructure:"overlay_enabled" yaml:"overlay_enabled"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// AgentConfig bounds the agent loop and fixes coordinate translation.
type AgentConfig struct {
	// MaxSteps is the hard cap on model invocations per run. Reaching it is a
	// soft termination, not an error.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// WallClockBudget bounds one run's total duration, independent of MaxSteps.
	// Zero disables the budget.
	WallClockBudget time.Duration `mapstructure:"wall_clock_budget" yaml:"wall_clock_budget"`
	// ScaleFactor is the ratio between logical coordinates the model reasons
	// about and actual device pixels. Must be in (0, 2].
	ScaleFactor float64 `mapstructure:"scale_factor" yaml:"scale_factor"`
	// MouseMoveSteps is the number of interpolated positions for one
	// mouse_move, so the overlay can render smooth cursor motion.
	MouseMoveSteps int `mapstructure:"mouse_move_steps" yaml:"mouse_move_steps"`
}

// TranscriptConfig selects and configures the step store backend.
type TranscriptConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// Load reads configuration from the given file (or ./config.yaml when empty)
// and the BROWSERPILOT_* environment, applying defaults for anything unset.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("BROWSERPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants the core depends on.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.ScaleFactor <= 0 || c.Agent.ScaleFactor > 2 {
		return fmt.Errorf("agent.scale_factor must be in (0, 2], got %v", c.Agent.ScaleFactor)
	}
	if c.Agent.MouseMoveSteps <= 0 {
		return fmt.Errorf("agent.mouse_move_steps must be positive, got %d", c.Agent.MouseMoveSteps)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	switch c.Transcript.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("transcript.backend must be postgres or memory, got %q", c.Transcript.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "browserpilot")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("server.addr", ":8787")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.api_timeout", 2*time.Minute)
	v.SetDefault("llm.system_prompt",
		"The browser is your tool; it is already open at the start page when you "+
			"initialize. Describe the actions necessary to complete the task end-to-end, "+
			"then carry them out with the computer tool.")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.start_url", "https://www.google.com")
	v.SetDefault("browser.overlay_enabled", true)
	v.SetDefault("browser.navigation_timeout", 60*time.Second)

	v.SetDefault("agent.max_steps", 40)
	v.SetDefault("agent.wall_clock_budget", 10*time.Minute)
	v.SetDefault("agent.scale_factor", 1.0)
	v.SetDefault("agent.mouse_move_steps", 20)

	v.SetDefault("transcript.backend", "memory")
}
