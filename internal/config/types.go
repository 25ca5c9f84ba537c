package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Digest controls the update dispatch pipeline (cycle cadence, dedup
	// horizon, quiet duration, retry policy).
	Digest DigestConfig `json:"digest"`

	// Sources lists the RSS feeds polled each cycle.
	Sources []SourceConfig `json:"sources"`

	Market  MarketConfig   `json:"market"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Health  HealthConfig   `json:"health"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Channel is the target chat: a numeric chat id or an @channelname.
	Channel string `json:"channel"`
	// BotName overrides the bot username reported by Telegram; normally
	// left empty and discovered at startup.
	BotName string `json:"bot_name,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// DigestConfig controls the dispatch pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
//
// Defaults (when fields are omitted/zero):
//   - interval: "1h"
//   - fetch_timeout: "15s"
//   - daily_at: "09:00"
//   - timezone: "America/Los_Angeles"
//   - quiet_for: "6h"
//   - dedup_capacity: 512
//   - retry_max: 2 (3 attempts total)
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
//   - post_timeout: "15s"
//   - rate_per_sec: 3
type DigestConfig struct {
	Interval string `json:"interval,omitempty"`
	// FetchTimeout bounds each news-feed fetch within a cycle.
	FetchTimeout  string `json:"fetch_timeout,omitempty"`
	DailyAt       string `json:"daily_at,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	StartupDigest *bool  `json:"startup_digest,omitempty"`
	QuietFor      string `json:"quiet_for,omitempty"`
	DedupCapacity int    `json:"dedup_capacity,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	PostTimeout   string `json:"post_timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	Greeting      string `json:"greeting,omitempty"`
}

type SourceConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Category is one of "crypto", "igaming", "capital-raise".
	Category string   `json:"category"`
	Emoji    string   `json:"emoji,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type MarketConfig struct {
	// APIKey is the CoinMarketCap API key (env: COINMARKETCAP_API_KEY).
	APIKey string `json:"api_key,omitempty"`
	// Symbols are CoinMarketCap symbols quoted in USD.
	Symbols []string `json:"symbols,omitempty"`
	// Yahoo lists extra Yahoo Finance chart symbols (indexes, commodities, equities).
	Yahoo []YahooSymbol `json:"yahoo,omitempty"`
	// Timeout is a Go duration string for each quote request.
	Timeout string `json:"timeout,omitempty"`
}

type YahooSymbol struct {
	Symbol   string `json:"symbol"`
	Label    string `json:"label"`
	Decimals int    `json:"decimals,omitempty"`
}

// StorageConfig controls the optional persistence layer for seen ids and
// the quiet-until timestamp.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./mtbot_store.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	MaxSeen     int    `json:"max_seen,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: ":8080"
}

// ApplyEnv overlays secrets and debug toggles from the environment, matching
// the deployment contract: BOT_TOKEN, CHANNEL, COINMARKETCAP_API_KEY, DEBUG.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("BOT_TOKEN")); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("CHANNEL")); v != "" {
		c.Telegram.Channel = v
	}
	if v := strings.TrimSpace(os.Getenv("COINMARKETCAP_API_KEY")); v != "" {
		c.Market.APIKey = v
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG"))) {
	case "1", "true", "yes", "on":
		c.Logging.Level = "debug"
	}
}

// Validate rejects configs that would break at runtime. It is also used as
// the hot-reload gate, so a bad edit never replaces a working config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or BOT_TOKEN)")
	}
	if strings.TrimSpace(c.Telegram.Channel) == "" {
		return fmt.Errorf("telegram.channel is required (or CHANNEL)")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	for _, f := range []struct{ path, raw string }{
		{"digest.interval", c.Digest.Interval},
		{"digest.fetch_timeout", c.Digest.FetchTimeout},
		{"digest.quiet_for", c.Digest.QuietFor},
		{"digest.retry_base", c.Digest.RetryBase},
		{"digest.retry_max_delay", c.Digest.RetryMaxDelay},
		{"digest.post_timeout", c.Digest.PostTimeout},
		{"market.timeout", c.Market.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Digest.RetryMax < 0 {
		return fmt.Errorf("digest.retry_max must be >= 0")
	}
	if c.Digest.DedupCapacity < 0 {
		return fmt.Errorf("digest.dedup_capacity must be >= 0")
	}
	if at := strings.TrimSpace(c.Digest.DailyAt); at != "" {
		if _, _, err := ParseHHMM(at); err != nil {
			return fmt.Errorf("digest.daily_at: %w", err)
		}
	}
	if tz := strings.TrimSpace(c.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
		}
	}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("sources[%d].url is required", i)
		}
		switch s.Category {
		case "crypto", "igaming", "capital-raise":
		default:
			return fmt.Errorf("sources[%d].category: unknown %q", i, s.Category)
		}
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// ParseHHMM parses a "HH:MM" clock value.
func ParseHHMM(s string) (hour, minute int, err error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	if h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
