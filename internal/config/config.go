package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultQuoteTTL        = 15 * time.Second
	maxQuoteTTL            = time.Hour
	DefaultMarketMinutes   = 5
	DefaultOffMinutes      = 30
	DefaultDelayMillis     = 100
	DefaultDigestCron      = "0 35 15 * * 1-5"
	DefaultSQLitePath      = "data/price_sentinel.db"
	DefaultMetricsAddr     = ":9102"
	DefaultPromoteAfterHrs = 48
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Quote struct {
		// Provider is nse, yahoo or mock.
		Provider     string `yaml:"provider"`
		BaseURL      string `yaml:"base_url"`
		Cookie       string `yaml:"cookie"`
		CacheSeconds int    `yaml:"cache_seconds"`
		TimeoutSecs  int    `yaml:"timeout_seconds"`
	} `yaml:"quote"`
	Refresh struct {
		MarketMinutes int  `yaml:"market_minutes"`
		OffMinutes    int  `yaml:"off_minutes"`
		DelayMillis   int  `yaml:"delay_ms"`
		Disabled      bool `yaml:"disabled"`
		PromoteHours  int  `yaml:"promote_after_hours"`
	} `yaml:"refresh"`
	Schedule struct {
		DigestCron string `yaml:"digest_cron"`
	} `yaml:"schedule"`
	Database struct {
		// Driver is sqlite, postgres or memory.
		Driver     string `yaml:"driver"`
		URL        string `yaml:"url"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Cache struct {
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
	} `yaml:"cache"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads .env, then the YAML file at path, then applies environment
// variable overrides and defaults. Missing files are not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Environment variable overrides
func (c *Config) applyEnv() {
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.Quote.Provider, "QUOTE_PROVIDER")
	setString(&c.Quote.BaseURL, "NSE_BASE_URL")
	setString(&c.Quote.Cookie, "NSE_COOKIE")
	setInt(&c.Quote.CacheSeconds, "NSE_QUOTE_CACHE_SECONDS")
	setInt(&c.Refresh.MarketMinutes, "PRICE_REFRESH_MINUTES_MARKET")
	setInt(&c.Refresh.OffMinutes, "PRICE_REFRESH_MINUTES_OFF")
	setInt(&c.Refresh.DelayMillis, "PRICE_REFRESH_DELAY_MS")
	if v := os.Getenv("PRICE_REFRESH_DISABLED"); v != "" {
		c.Refresh.Disabled = strings.EqualFold(v, "true") || v == "1"
	}
	setString(&c.Schedule.DigestCron, "DIGEST_CRON")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Cache.RedisAddr, "REDIS_ADDR")
	setString(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Proxy, "HTTPS_PROXY")
}

func (c *Config) applyDefaults() {
	if c.Quote.Provider == "" {
		c.Quote.Provider = "nse"
	}
	if c.Refresh.MarketMinutes <= 0 {
		c.Refresh.MarketMinutes = DefaultMarketMinutes
	}
	if c.Refresh.OffMinutes <= 0 {
		c.Refresh.OffMinutes = DefaultOffMinutes
	}
	if c.Refresh.DelayMillis <= 0 {
		c.Refresh.DelayMillis = DefaultDelayMillis
	}
	if c.Refresh.PromoteHours <= 0 {
		c.Refresh.PromoteHours = DefaultPromoteAfterHrs
	}
	if c.Schedule.DigestCron == "" {
		c.Schedule.DigestCron = DefaultDigestCron
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = DefaultSQLitePath
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Quote.Provider {
	case "nse", "yahoo", "mock":
	default:
		return fmt.Errorf("quote.provider must be nse, yahoo or mock, got %q", c.Quote.Provider)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or memory, got %q", c.Database.Driver)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether alerts and commands go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// QuoteTTL is the quote cache lifetime. Values outside (0, 3600) seconds
// fall back to 15s.
func (c *Config) QuoteTTL() time.Duration {
	ttl := time.Duration(c.Quote.CacheSeconds) * time.Second
	if ttl <= 0 || ttl >= maxQuoteTTL {
		return DefaultQuoteTTL
	}
	return ttl
}

func (c *Config) MarketInterval() time.Duration {
	return time.Duration(c.Refresh.MarketMinutes) * time.Minute
}

func (c *Config) OffInterval() time.Duration {
	return time.Duration(c.Refresh.OffMinutes) * time.Minute
}

func (c *Config) RefreshDelay() time.Duration {
	return time.Duration(c.Refresh.DelayMillis) * time.Millisecond
}

func (c *Config) PromoteAfter() time.Duration {
	return time.Duration(c.Refresh.PromoteHours) * time.Hour
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Quote.TimeoutSecs) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}
