package config

import (
	"strings"
	"testing"
	"time"

	logx "mtbot/pkg/logx"
)

const validYAML = `
telegram:
  token: "123:abc"
  channel: "@bignews"
  bot_name: "mtbot"
digest:
  interval: "30m"
  fetch_timeout: "20s"
  daily_at: "09:00"
  timezone: "America/Los_Angeles"
  quiet_for: "6h"
sources:
  - name: "coindesk"
    url: "https://example.com/rss"
    category: "crypto"
    keywords: ["bitcoin", "etf"]
market:
  symbols: ["BTC", "ETH"]
`

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager("unused.yaml", logx.Nop())
}

func TestParseValidYAML(t *testing.T) {
	cfg, err := newManager(t).Parse([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Channel != "@bignews" {
		t.Errorf("channel = %q", cfg.Telegram.Channel)
	}
	if cfg.Telegram.BotName != "mtbot" {
		t.Errorf("bot_name = %q", cfg.Telegram.BotName)
	}
	if cfg.Digest.Interval != "30m" {
		t.Errorf("interval = %q", cfg.Digest.Interval)
	}
	if cfg.Digest.FetchTimeout != "20s" {
		t.Errorf("fetch_timeout = %q", cfg.Digest.FetchTimeout)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Category != "crypto" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if len(cfg.Sources[0].Keywords) != 2 {
		t.Errorf("keywords = %v", cfg.Sources[0].Keywords)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := newManager(t).Parse([]byte(validYAML + "\nbogus_key: true\n"))
	if err == nil || !strings.Contains(err.Error(), "bogus_key") {
		t.Fatalf("unknown field should be rejected, got %v", err)
	}
}

func TestParseValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing token", "telegram:\n  channel: \"@c\"\n", "telegram.token"},
		{"missing channel", "telegram:\n  token: \"t\"\n", "telegram.channel"},
		{
			"bad duration",
			"telegram:\n  token: \"t\"\n  channel: \"@c\"\ndigest:\n  interval: \"soon\"\n",
			"digest.interval",
		},
		{
			"bad fetch_timeout",
			"telegram:\n  token: \"t\"\n  channel: \"@c\"\ndigest:\n  fetch_timeout: \"fast\"\n",
			"digest.fetch_timeout",
		},
		{
			"bad daily_at",
			"telegram:\n  token: \"t\"\n  channel: \"@c\"\ndigest:\n  daily_at: \"25:00\"\n",
			"digest.daily_at",
		},
		{
			"bad timezone",
			"telegram:\n  token: \"t\"\n  channel: \"@c\"\ndigest:\n  timezone: \"Mars/Olympus\"\n",
			"digest.timezone",
		},
		{
			"bad category",
			"telegram:\n  token: \"t\"\n  channel: \"@c\"\nsources:\n  - name: \"x\"\n    url: \"https://x\"\n    category: \"sports\"\n",
			"category",
		},
		{
			"bad storage driver",
			"telegram:\n  token: \"t\"\n  channel: \"@c\"\nstorage:\n  driver: \"redis\"\n  path: \"x\"\n",
			"storage.driver",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newManager(t).Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("CHANNEL", "@env-channel")
	t.Setenv("COINMARKETCAP_API_KEY", "env-key")
	t.Setenv("DEBUG", "true")

	cfg, err := newManager(t).Parse([]byte("telegram: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "env-token" || cfg.Telegram.Channel != "@env-channel" {
		t.Errorf("telegram overlay not applied: %+v", cfg.Telegram)
	}
	if cfg.Market.APIKey != "env-key" {
		t.Errorf("api key overlay not applied")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("DEBUG should force debug level, got %q", cfg.Logging.Level)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be unset, got %v %v", d, err)
	}
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration should fail")
	}
	if _, err := ParseDurationField("x", "later"); err == nil {
		t.Fatal("junk should fail")
	}
}

func TestDurationOrDefault(t *testing.T) {
	t.Parallel()

	if got := DurationOrDefault("", time.Hour); got != time.Hour {
		t.Fatalf("got %v", got)
	}
	if got := DurationOrDefault("15m", time.Hour); got != 15*time.Minute {
		t.Fatalf("got %v", got)
	}
	if got := DurationOrDefault("junk", time.Hour); got != time.Hour {
		t.Fatalf("got %v", got)
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	h, m, err := ParseHHMM("09:30")
	if err != nil || h != 9 || m != 30 {
		t.Fatalf("got %d:%d %v", h, m, err)
	}
	for _, bad := range []string{"24:00", "12:60", "noon", ""} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Errorf("ParseHHMM(%q) should fail", bad)
		}
	}
}
