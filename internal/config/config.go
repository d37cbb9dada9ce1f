// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Locator() LocatorConfig
	CLI() CLIConfig

	// Locator Setters
	SetLocatorDefaultTimeout(d time.Duration)
	SetLocatorTestIDAttribute(attr string)
	SetLocatorAdapters(names []string)

	// CLI Setters
	SetCLIOutputFormat(format string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LocatorCfg LocatorConfig `mapstructure:"locator" yaml:"locator"`
	CLICfg     CLIConfig     `mapstructure:"cli" yaml:"cli"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Locator() LocatorConfig { return c.LocatorCfg }
func (c *Config) CLI() CLIConfig         { return c.CLICfg }

// --- Interface Method Implementations (Setters) ---

// Locator Setters
func (c *Config) SetLocatorDefaultTimeout(d time.Duration) { c.LocatorCfg.DefaultTimeout = d }
func (c *Config) SetLocatorTestIDAttribute(attr string)    { c.LocatorCfg.TestIDAttribute = attr }
func (c *Config) SetLocatorAdapters(names []string) {
	c.LocatorCfg.Adapters = append([]string(nil), names...)
}

// CLI Setters
func (c *Config) SetCLIOutputFormat(format string) { c.CLICfg.OutputFormat = format }

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

// LocatorConfig tunes query resolution, waiting and action dispatch.
type LocatorConfig struct {
	// DefaultTimeout bounds every waiting operation that does not pass its own.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	// PollInterval is the fixed re-evaluation period of the wait loop.
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	TestIDAttribute string        `mapstructure:"test_id_attribute" yaml:"test_id_attribute"`
	// BlurDelay is how long after a fill the synthetic blur fires.
	BlurDelay   time.Duration `mapstructure:"blur_delay" yaml:"blur_delay"`
	TypingDelay time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
	// Adapters lists framework adapters by name, in priority order.
	Adapters []string `mapstructure:"adapters" yaml:"adapters"`
}

// CLIConfig controls how the command line renders results.
type CLIConfig struct {
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
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
	v.SetDefault("logger.service_name", "scalpel-locator")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Locator --
	v.SetDefault("locator.default_timeout", "30s")
	v.SetDefault("locator.poll_interval", "100ms")
	v.SetDefault("locator.test_id_attribute", "data-testid")
	v.SetDefault("locator.blur_delay", "10ms")
	v.SetDefault("locator.typing_delay", "0s")
	v.SetDefault("locator.adapters", []string{"react", "vue"})

	// -- CLI --
	v.SetDefault("cli.output_format", "text")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
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
	if err := c.LocatorCfg.Validate(); err != nil {
		return fmt.Errorf("locator configuration invalid: %w", err)
	}
	switch strings.ToLower(c.CLICfg.OutputFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("cli.output_format must be 'text' or 'json', got %q", c.CLICfg.OutputFormat)
	}
	return nil
}

// Validate checks the locator configuration.
func (l *LocatorConfig) Validate() error {
	if l.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	if l.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if l.PollInterval > l.DefaultTimeout {
		return fmt.Errorf("poll_interval (%s) must not exceed default_timeout (%s)", l.PollInterval, l.DefaultTimeout)
	}
	if strings.TrimSpace(l.TestIDAttribute) == "" {
		return fmt.Errorf("test_id_attribute is required")
	}
	if l.BlurDelay < 0 || l.TypingDelay < 0 {
		return fmt.Errorf("blur_delay and typing_delay must not be negative")
	}
	seen := make(map[string]bool, len(l.Adapters))
	for _, name := range l.Adapters {
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("adapter %q listed more than once", name)
		}
		seen[key] = true
	}
	return nil
}
