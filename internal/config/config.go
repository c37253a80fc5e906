// Package config provides configuration management for the back office.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Market    MarketConfig    `mapstructure:"market"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// MarketConfig holds market-hour and calendar configuration. Clock times are
// "HH:MM" strings interpreted in Timezone.
type MarketConfig struct {
	Timezone        string   `mapstructure:"timezone"`
	OpenTime        string   `mapstructure:"open_time"`
	CloseTime       string   `mapstructure:"close_time"`
	CollectionStart string   `mapstructure:"collection_start"`
	// Weekdays on which order collection is refused, beyond market-closed
	// days. Policy, not protocol: the legacy system also refused Mondays
	// here, which operations can reproduce by listing "Monday".
	CollectionClosedDays []string `mapstructure:"collection_closed_days"`
	Holidays             []string `mapstructure:"holidays"` // "2006-01-02"
	SettlementLagDays    int      `mapstructure:"settlement_lag_days"`
}

// SchedulerConfig holds the background job cadences and tick limits.
type SchedulerConfig struct {
	MatchInterval    time.Duration `mapstructure:"match_interval"`
	EndOfDayInterval time.Duration `mapstructure:"end_of_day_interval"`
	Workers          int           `mapstructure:"workers"`
	PriceTimeout     time.Duration `mapstructure:"price_timeout"`
	PriceCacheTTL    time.Duration `mapstructure:"price_cache_ttl"`
}

// TradingConfig holds commission and fee configuration.
type TradingConfig struct {
	DefaultCommissionRate float64 `mapstructure:"default_commission_rate"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/backoffice"
	}
	return filepath.Join(home, ".config", "backoffice")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		// Missing file is fine: run on defaults.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("market.timezone", "Europe/Istanbul")
	v.SetDefault("market.open_time", "10:00")
	v.SetDefault("market.close_time", "18:00")
	v.SetDefault("market.collection_start", "09:30")
	v.SetDefault("market.collection_closed_days", []string{})
	v.SetDefault("market.settlement_lag_days", 2)

	v.SetDefault("scheduler.match_interval", 30*time.Second)
	v.SetDefault("scheduler.end_of_day_interval", 5*time.Minute)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.price_timeout", 2*time.Second)
	v.SetDefault("scheduler.price_cache_ttl", 10*time.Second)

	v.SetDefault("trading.default_commission_rate", 0.001)

	v.SetDefault("storage.db_path", filepath.Join(DefaultConfigDir(), "backoffice.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "backoffice.log"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKOFFICE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BACKOFFICE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKOFFICE_TIMEZONE"); v != "" {
		cfg.Market.Timezone = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Market.Timezone, err)
	}
	for _, field := range []struct{ name, value string }{
		{"open_time", c.Market.OpenTime},
		{"close_time", c.Market.CloseTime},
		{"collection_start", c.Market.CollectionStart},
	} {
		if _, err := time.Parse("15:04", field.value); err != nil {
			return fmt.Errorf("invalid market.%s %q: %w", field.name, field.value, err)
		}
	}
	for _, d := range c.Market.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid holiday %q: %w", d, err)
		}
	}
	for _, d := range c.Market.CollectionClosedDays {
		if _, ok := weekdayNames[d]; !ok {
			return fmt.Errorf("invalid collection_closed_day %q", d)
		}
	}
	if c.Market.SettlementLagDays < 0 {
		return fmt.Errorf("settlement_lag_days must be non-negative")
	}
	if c.Scheduler.MatchInterval <= 0 {
		return fmt.Errorf("match_interval must be positive")
	}
	if c.Scheduler.EndOfDayInterval <= 0 {
		return fmt.Errorf("end_of_day_interval must be positive")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Trading.DefaultCommissionRate < 0 || c.Trading.DefaultCommissionRate > 1 {
		return fmt.Errorf("default_commission_rate must be between 0 and 1")
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// CollectionClosedWeekdays resolves the configured closed-day names.
func (c *MarketConfig) CollectionClosedWeekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(c.CollectionClosedDays))
	for _, name := range c.CollectionClosedDays {
		if wd, ok := weekdayNames[name]; ok {
			days = append(days, wd)
		}
	}
	return days
}
