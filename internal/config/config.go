// Package config resolves process configuration from flags, environment
// variables (GOAPPLY_*), an optional config file, and defaults — in that
// priority order, highest first.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every resolved setting the core components need at
// process start. Field names mirror "Environment".
type Config struct {
	BrowserBackend    string        `mapstructure:"browser_backend"` // "direct-automation" | "devtools-mcp"
	DevtoolsEndpoint  string        `mapstructure:"devtools_endpoint"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	Headless          bool          `mapstructure:"headless"`
	SlowMoMillis      int           `mapstructure:"slow_mo_millis"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`

	CaptchaAPIKey string `mapstructure:"captcha_api_key"`

	StateDir       string `mapstructure:"state_dir"`
	ReportsDir     string `mapstructure:"reports_dir"`
	ScreenshotsDir string `mapstructure:"screenshots_dir"`

	MaxAutomatedPerDay int `mapstructure:"max_automated_per_day"`
	MaxAutoOnlyPerDay  int `mapstructure:"max_auto_only_per_day"`
	RedisAddr          string `mapstructure:"redis_addr"`

	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	MaxApplications   int           `mapstructure:"max_applications"`
	DelayBetweenApps  time.Duration `mapstructure:"delay_between_apps"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	AutoSubmit        bool          `mapstructure:"auto_submit"`

	APIBaseURL string `mapstructure:"api_url"`
	DryRun     bool   `mapstructure:"dry_run"`
}

// Defaults returns the base configuration with the values spec names.
func Defaults() Config {
	return Config{
		BrowserBackend:     "direct-automation",
		ViewportWidth:      1280,
		ViewportHeight:     800,
		Headless:           true,
		SlowMoMillis:       0,
		DefaultTimeout:     30 * time.Second,
		StateDir:           "",
		ReportsDir:         "",
		ScreenshotsDir:     "",
		MaxAutomatedPerDay: 10,
		MaxAutoOnlyPerDay:  5,
		RedisAddr:          "localhost:6379",
		IdleTimeout:        1800 * time.Second,
		CleanupInterval:    300 * time.Second,
		MaxApplications:    5,
		DelayBetweenApps:   60 * time.Second,
		MaxRetries:         3,
		RetryDelayBase:     120 * time.Second,
		AutoSubmit:         false,
	}
}

// Load builds the final configuration: defaults < config file < GOAPPLY_*
// env vars < bound flags. flags may be nil (e.g. library callers, tests).
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	def := Defaults()
	v.SetDefault("browser_backend", def.BrowserBackend)
	v.SetDefault("viewport_width", def.ViewportWidth)
	v.SetDefault("viewport_height", def.ViewportHeight)
	v.SetDefault("headless", def.Headless)
	v.SetDefault("slow_mo_millis", def.SlowMoMillis)
	v.SetDefault("default_timeout", def.DefaultTimeout)
	v.SetDefault("max_automated_per_day", def.MaxAutomatedPerDay)
	v.SetDefault("max_auto_only_per_day", def.MaxAutoOnlyPerDay)
	v.SetDefault("redis_addr", def.RedisAddr)
	v.SetDefault("idle_timeout", def.IdleTimeout)
	v.SetDefault("cleanup_interval", def.CleanupInterval)
	v.SetDefault("max_applications", def.MaxApplications)
	v.SetDefault("delay_between_apps", def.DelayBetweenApps)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("retry_delay_base", def.RetryDelayBase)
	v.SetDefault("auto_submit", def.AutoSubmit)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return def, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("GOAPPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return def, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return def, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c Config) Validate() error {
	if c.BrowserBackend != "direct-automation" && c.BrowserBackend != "devtools-mcp" {
		return fmt.Errorf("browser_backend must be direct-automation or devtools-mcp, got %q", c.BrowserBackend)
	}
	if c.BrowserBackend == "devtools-mcp" && c.DevtoolsEndpoint == "" {
		return fmt.Errorf("devtools_endpoint is required when browser_backend is devtools-mcp")
	}
	if c.MaxAutoOnlyPerDay > c.MaxAutomatedPerDay {
		return fmt.Errorf("max_auto_only_per_day (%d) cannot exceed max_automated_per_day (%d)", c.MaxAutoOnlyPerDay, c.MaxAutomatedPerDay)
	}
	if c.MaxApplications < 0 {
		return fmt.Errorf("max_applications must be >= 0, got %d", c.MaxApplications)
	}
	return nil
}
