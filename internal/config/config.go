package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database   DatabaseConfig
	API        APIConfig
	Moderation ModerationConfig
	Queue      QueueConfig
	Cache      CacheConfig
	UI         UIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// APIConfig holds the external service endpoints.
type APIConfig struct {
	ScriptURL    string `mapstructure:"script_url"`
	PostcodesURL string `mapstructure:"postcodes_url"`
}

// ModerationConfig holds review moderation settings.
type ModerationConfig struct {
	FlagThreshold     int `mapstructure:"flag_threshold"`
	MaxReviewsPerFarm int `mapstructure:"max_reviews_per_farm"`
}

// QueueConfig bounds the offline write queue.
type QueueConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	MaxRetries    int `mapstructure:"max_retries"`
}

// CacheConfig controls snapshot staleness.
type CacheConfig struct {
	MaxAgeMinutes int `mapstructure:"max_age_minutes"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	CurrencySymbol string `mapstructure:"currency_symbol"`
}

// Retention returns the pending-write retention window as a duration.
func (q QueueConfig) Retention() time.Duration {
	return time.Duration(q.RetentionDays) * 24 * time.Hour
}

// MaxAge returns the snapshot staleness window as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMinutes) * time.Minute
}

// Path returns the config file location, honoring FARMMAP_CONFIG.
func Path() string {
	if p := os.Getenv("FARMMAP_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "farmmap", "config.toml")
}

// Load reads configuration from file and env. Env var overrides use prefix FARMMAP_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "farmmap", "farmmap.db"))
	v.SetDefault("api.script_url", "https://script.google.com/macros/s/FARMMAP_DEPLOYMENT/exec")
	v.SetDefault("api.postcodes_url", "https://api.postcodes.io/postcodes")
	v.SetDefault("moderation.flag_threshold", 3)
	v.SetDefault("moderation.max_reviews_per_farm", 50)
	v.SetDefault("queue.retention_days", 7)
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("cache.max_age_minutes", 5)
	v.SetDefault("ui.currency_symbol", "£")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("FARMMAP_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "farmmap"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("FARMMAP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config
// directory if needed. Seeds the default file on first run so users
// have something to edit.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("api.script_url", cfg.API.ScriptURL)
	v.Set("api.postcodes_url", cfg.API.PostcodesURL)
	v.Set("moderation.flag_threshold", cfg.Moderation.FlagThreshold)
	v.Set("moderation.max_reviews_per_farm", cfg.Moderation.MaxReviewsPerFarm)
	v.Set("queue.retention_days", cfg.Queue.RetentionDays)
	v.Set("queue.max_retries", cfg.Queue.MaxRetries)
	v.Set("cache.max_age_minutes", cfg.Cache.MaxAgeMinutes)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
