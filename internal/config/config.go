// Package config defines the application configuration, loaded from a
// YAML file and environment variables through viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the crawler.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Crawl   CrawlConfig   `mapstructure:"crawl" yaml:"crawl"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
}

// LoggerConfig holds settings for the structured logger.
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

// BrowserConfig holds Chromium launch settings.
type BrowserConfig struct {
	Headful bool     `mapstructure:"headful" yaml:"headful"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

// CrawlConfig holds the measurement run parameters.
type CrawlConfig struct {
	Input       string `mapstructure:"input" yaml:"input"`
	Out         string `mapstructure:"out" yaml:"out"`
	Evidence    string `mapstructure:"evidence" yaml:"evidence"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	Runs        int    `mapstructure:"runs" yaml:"runs"`
	Locale      string `mapstructure:"locale" yaml:"locale"`
	GeoCountry  string `mapstructure:"geo_country" yaml:"geo_country"`
	Resume      bool   `mapstructure:"resume" yaml:"resume"`
	RetryErrors bool   `mapstructure:"retry_errors" yaml:"retry_errors"`
}

// NetworkConfig holds per-page timing settings.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// SetDefaults registers the default value for every configuration key on
// the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "consent-probe")
	v.SetDefault("logger.log_file", "consent-probe.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headful", false)
	v.SetDefault("browser.args", []string{})

	// -- Crawl --
	v.SetDefault("crawl.input", "candidate.csv")
	v.SetDefault("crawl.out", "observations_raw.csv")
	v.SetDefault("crawl.evidence", "evidence")
	v.SetDefault("crawl.concurrency", 3)
	v.SetDefault("crawl.runs", 2)
	v.SetDefault("crawl.locale", "th-TH")
	v.SetDefault("crawl.geo_country", "TH")
	v.SetDefault("crawl.resume", true)
	v.SetDefault("crawl.retry_errors", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.settle_delay", "3500ms")
}

// NewConfigFromViper unmarshals and validates the configuration held by
// the given viper instance.
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
	if c.Crawl.Input == "" {
		return fmt.Errorf("crawl.input is a required configuration field")
	}
	if c.Crawl.Out == "" {
		return fmt.Errorf("crawl.out is a required configuration field")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be a positive integer")
	}
	if c.Crawl.Runs <= 0 {
		return fmt.Errorf("crawl.runs must be a positive integer")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Network.SettleDelay < 0 {
		return fmt.Errorf("network.settle_delay must not be negative")
	}
	return nil
}
