// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	LLM() LLMConfig
	Automation() AutomationConfig
	Artifacts() ArtifactsConfig
	Server() ServerConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Automation Setters
	SetAutomationMaxSteps(int)
	SetAutomationAllowScripts(bool)

	// Artifacts Setters
	SetArtifactsDir(string)

	// Server Setters
	SetServerAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	LLMCfg        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	AutomationCfg AutomationConfig `mapstructure:"automation" yaml:"automation"`
	ArtifactsCfg  ArtifactsConfig  `mapstructure:"artifacts" yaml:"artifacts"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) LLM() LLMConfig               { return c.LLMCfg }
func (c *Config) Automation() AutomationConfig { return c.AutomationCfg }
func (c *Config) Artifacts() ArtifactsConfig   { return c.ArtifactsCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetAutomationMaxSteps(n int)      { c.AutomationCfg.MaxSteps = n }
func (c *Config) SetAutomationAllowScripts(b bool) { c.AutomationCfg.AllowScripts = b }
func (c *Config) SetArtifactsDir(dir string)       { c.ArtifactsCfg.Dir = dir }
func (c *Config) SetServerAddr(addr string)        { c.ServerCfg.Addr = addr }

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

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	// ActionTimeout bounds how long a single primitive waits for its element.
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the reasoning service client.
type LLMConfig struct {
	Provider        LLMProvider `mapstructure:"provider" yaml:"provider"`
	FastModel       string      `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel   string      `mapstructure:"powerful_model" yaml:"powerful_model"`
	APIKey          string      `mapstructure:"api_key" yaml:"api_key"`
	Endpoint        string      `mapstructure:"endpoint" yaml:"endpoint"`
	Temperature     float32     `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int         `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	// RequestsPerSecond paces outbound calls shared by all runs.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	// MaxRetries is the number of extra attempts for transient transport errors.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// AutomationConfig holds the budgets and policies of a single run.
type AutomationConfig struct {
	MaxSteps     int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ElementLimit int           `mapstructure:"element_limit" yaml:"element_limit"`
	// AllowScripts enables the executeScript action, which runs model-written
	// JavaScript in the page.
	AllowScripts         bool          `mapstructure:"allow_scripts" yaml:"allow_scripts"`
	VerificationFailOpen bool          `mapstructure:"verification_fail_open" yaml:"verification_fail_open"`
	DefaultWait          time.Duration `mapstructure:"default_wait" yaml:"default_wait"`
	WaitSelectorTimeout  time.Duration `mapstructure:"wait_selector_timeout" yaml:"wait_selector_timeout"`
	// ExtractWait is how long an extract waits for its selector to attach
	// before reading. Zero reads immediately.
	ExtractWait time.Duration `mapstructure:"extract_wait" yaml:"extract_wait"`
}

// ArtifactsConfig controls where diagnostic screenshots are written.
type ArtifactsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// JWTSecret enables HS256 bearer authentication when non-empty.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "crust")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.action_timeout", "30s")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 2048)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("llm.max_retries", 3)

	// -- Automation --
	v.SetDefault("automation.max_steps", 20)
	v.SetDefault("automation.max_attempts", 3)
	v.SetDefault("automation.settle_delay", "500ms")
	v.SetDefault("automation.element_limit", 10)
	v.SetDefault("automation.allow_scripts", true)
	v.SetDefault("automation.verification_fail_open", true)
	v.SetDefault("automation.default_wait", "2s")
	v.SetDefault("automation.wait_selector_timeout", "30s")
	v.SetDefault("automation.extract_wait", "10s")

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", true)
	v.SetDefault("artifacts.dir", "~/.crust/artifacts")

	// -- Server --
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.max_concurrent_runs", 4)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. The first set variable wins.
	v.BindEnv("llm.api_key", "CRUST_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	v.BindEnv("server.jwt_secret", "CRUST_SERVER_JWT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AutomationCfg.Validate(); err != nil {
		return fmt.Errorf("automation configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.BrowserCfg.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	if c.ServerCfg.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("server.max_concurrent_runs must be a positive integer")
	}
	if c.ArtifactsCfg.Enabled && c.ArtifactsCfg.Dir == "" {
		return fmt.Errorf("artifacts.dir is required when artifacts are enabled")
	}
	return nil
}

// Validate checks the run budgets.
func (a *AutomationConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if a.ElementLimit <= 0 {
		return fmt.Errorf("element_limit must be a positive integer")
	}
	if a.SettleDelay < 0 || a.DefaultWait < 0 || a.WaitSelectorTimeout < 0 || a.ExtractWait < 0 {
		return fmt.Errorf("settle_delay, default_wait, wait_selector_timeout and extract_wait must not be negative")
	}
	return nil
}

// Validate checks the LLM client settings. The API key is checked when a
// client is built, so commands that never reach the model can run without one.
func (l *LLMConfig) Validate() error {
	if l.Provider != ProviderGemini {
		return fmt.Errorf("unsupported provider %q", l.Provider)
	}
	if l.FastModel == "" || l.PowerfulModel == "" {
		return fmt.Errorf("fast_model and powerful_model are required")
	}
	if l.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}
