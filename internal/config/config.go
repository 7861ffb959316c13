// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Policy  PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser backend.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	IdleWait          time.Duration `mapstructure:"idle_wait" yaml:"idle_wait"`
}

// AgentConfig holds settings for the agent loop, the one-shot planner and
// the LLM router behind them.
type AgentConfig struct {
	MaxSteps         int             `mapstructure:"max_steps" yaml:"max_steps"`
	ScratchLines     int             `mapstructure:"scratch_lines" yaml:"scratch_lines"`
	FailureLimit     int             `mapstructure:"failure_limit" yaml:"failure_limit"`
	ConsentTimeoutMs int             `mapstructure:"consent_timeout_ms" yaml:"consent_timeout_ms"`
	LLM              LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    int                       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// PolicyConfig drives the permission gate. Hosts are compared on their
// normalized registered domain, so "news.ycombinator.com" matches an
// allowlist entry of "ycombinator.com".
type PolicyConfig struct {
	AllowAll     bool     `mapstructure:"allow_all" yaml:"allow_all"`
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	BlockedHosts []string `mapstructure:"blocked_hosts" yaml:"blocked_hosts"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "file", "postgres" or "none"
	FilePath    string `mapstructure:"file_path" yaml:"file_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.ready_timeout", "15s")
	v.SetDefault("browser.idle_wait", "800ms")

	// -- Agent --
	v.SetDefault("agent.max_steps", 24)
	v.SetDefault("agent.scratch_lines", 12)
	v.SetDefault("agent.failure_limit", 3)
	v.SetDefault("agent.consent_timeout_ms", 15000)
	v.SetDefault("agent.llm.default_fast_model", "flash")
	v.SetDefault("agent.llm.default_powerful_model", "pro")
	v.SetDefault("agent.llm.requests_per_minute", 30)

	// -- Policy --
	v.SetDefault("policy.allow_all", true)

	// -- Audit --
	v.SetDefault("audit.backend", "file")
	v.SetDefault("audit.file_path", "webpilot-audit.jsonl")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("audit.postgres_dsn", "WEBPILOT_AUDIT_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in file paths so sinks work regardless of cwd.
func (c *Config) expandPaths() error {
	var err error
	if c.Logger.LogFile != "" {
		if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
			return fmt.Errorf("cannot expand logger.log_file: %w", err)
		}
	}
	if c.Audit.FilePath != "" {
		if c.Audit.FilePath, err = homedir.Expand(c.Audit.FilePath); err != nil {
			return fmt.Errorf("cannot expand audit.file_path: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.FailureLimit <= 0 {
		return fmt.Errorf("agent.failure_limit must be a positive integer")
	}
	if c.Agent.ConsentTimeoutMs <= 0 {
		return fmt.Errorf("agent.consent_timeout_ms must be a positive integer")
	}
	switch c.Audit.Backend {
	case "file", "none":
	case "postgres":
		if c.Audit.PostgresDSN == "" {
			return fmt.Errorf("audit.postgres_dsn is required for the postgres audit backend")
		}
	default:
		return fmt.Errorf("unknown audit backend %q", c.Audit.Backend)
	}
	for name, model := range c.Agent.LLM.Models {
		if model.Model == "" {
			return fmt.Errorf("agent.llm.models.%s.model is required", name)
		}
	}
	return nil
}
