package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Detector DetectorConfig `mapstructure:"detector"`
	Gate     GateConfig     `mapstructure:"gate"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// FeedConfig holds Polymarket Gamma API configuration
type FeedConfig struct {
	GammaAPIURL        string        `mapstructure:"gamma_api_url"`
	MaxMarkets         int           `mapstructure:"max_markets"`
	PageSize           int           `mapstructure:"page_size"`
	RequestsPerSec     int           `mapstructure:"requests_per_sec"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetryElapsed    time.Duration `mapstructure:"max_retry_elapsed"`
	MinLiquidity       float64       `mapstructure:"min_liquidity"`
	MinVolume          float64       `mapstructure:"min_volume"`
	ResolvedLookbackMin time.Duration `mapstructure:"resolved_lookback_min"`
	ResolvedLookbackMax time.Duration `mapstructure:"resolved_lookback_max"`
}

// DetectorConfig holds detection pass configuration
type DetectorConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ResolutionInterval time.Duration `mapstructure:"resolution_interval"`
	WindowHours        []int         `mapstructure:"window_hours"`
	Workers            int           `mapstructure:"workers"`
	BatchSize          int           `mapstructure:"batch_size"`
}

// GateConfig holds alert rate-limit configuration
type GateConfig struct {
	MarketCooldown time.Duration `mapstructure:"market_cooldown"`
	MinSpacing     time.Duration `mapstructure:"min_spacing"`
	DailyCap       int           `mapstructure:"daily_cap"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and retention configuration
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	MarketDays  int    `mapstructure:"market_days"`
	HistoryDays int    `mapstructure:"history_days"`
	SignalDays  int    `mapstructure:"signal_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("POLYWATCHER")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Feed defaults
	v.SetDefault("feed.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("feed.max_markets", 500)
	v.SetDefault("feed.page_size", 100)
	v.SetDefault("feed.requests_per_sec", 5)
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.max_retry_elapsed", "30s")
	v.SetDefault("feed.min_liquidity", 1000.0)
	v.SetDefault("feed.min_volume", 5000.0)
	v.SetDefault("feed.resolved_lookback_min", "24h")
	v.SetDefault("feed.resolved_lookback_max", "336h") // 14 days

	// Detector defaults
	v.SetDefault("detector.poll_interval", "5m")
	v.SetDefault("detector.resolution_interval", "1h")
	v.SetDefault("detector.window_hours", []int{1, 6, 24})
	v.SetDefault("detector.workers", 10)
	v.SetDefault("detector.batch_size", 25)

	// Gate defaults
	v.SetDefault("gate.market_cooldown", "6h")
	v.SetDefault("gate.min_spacing", "15m")
	v.SetDefault("gate.daily_cap", 100)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/polywatcher.db")
	v.SetDefault("storage.market_days", 30)
	v.SetDefault("storage.history_days", 90)
	v.SetDefault("storage.signal_days", 365)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Feed config
	if c.Feed.GammaAPIURL == "" {
		return fmt.Errorf("feed.gamma_api_url is required")
	}
	if c.Feed.MaxMarkets < 1 {
		return fmt.Errorf("feed.max_markets must be at least 1")
	}
	if c.Feed.PageSize < 1 || c.Feed.PageSize > 500 {
		return fmt.Errorf("feed.page_size must be between 1 and 500")
	}
	if c.Feed.RequestsPerSec < 1 {
		return fmt.Errorf("feed.requests_per_sec must be at least 1")
	}
	if c.Feed.MinLiquidity < 0 {
		return fmt.Errorf("feed.min_liquidity must not be negative")
	}
	if c.Feed.MinVolume < 0 {
		return fmt.Errorf("feed.min_volume must not be negative")
	}
	if c.Feed.ResolvedLookbackMax <= c.Feed.ResolvedLookbackMin {
		return fmt.Errorf("feed.resolved_lookback_max must exceed feed.resolved_lookback_min")
	}

	// Validate Detector config
	if c.Detector.PollInterval < 1*time.Minute {
		return fmt.Errorf("detector.poll_interval must be at least 1 minute")
	}
	if c.Detector.ResolutionInterval < 1*time.Minute {
		return fmt.Errorf("detector.resolution_interval must be at least 1 minute")
	}
	if len(c.Detector.WindowHours) == 0 {
		return fmt.Errorf("detector.window_hours must contain at least one window")
	}
	for _, h := range c.Detector.WindowHours {
		if h < 1 {
			return fmt.Errorf("detector.window_hours entries must be at least 1")
		}
	}
	if c.Detector.Workers < 1 {
		return fmt.Errorf("detector.workers must be at least 1")
	}
	if c.Detector.BatchSize < 1 {
		return fmt.Errorf("detector.batch_size must be at least 1")
	}

	// Validate Gate config
	if c.Gate.MarketCooldown < 0 {
		return fmt.Errorf("gate.market_cooldown must not be negative")
	}
	if c.Gate.MinSpacing < 0 {
		return fmt.Errorf("gate.min_spacing must not be negative")
	}
	if c.Gate.DailyCap < 1 {
		return fmt.Errorf("gate.daily_cap must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MarketDays < 1 {
		return fmt.Errorf("storage.market_days must be at least 1")
	}
	if c.Storage.HistoryDays < 1 {
		return fmt.Errorf("storage.history_days must be at least 1")
	}
	if c.Storage.SignalDays < 1 {
		return fmt.Errorf("storage.signal_days must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
