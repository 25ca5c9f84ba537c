package digest

import (
	"strings"
	"testing"
	"time"
)

func TestEscapeMarkdown(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"plain title", "plain title"},
		{"under_score", "under\\_score"},
		{"star*and*star", "star\\*and\\*star"},
		{"`code` [link", "\\`code\\` \\[link"},
	}
	for _, tc := range cases {
		if got := EscapeMarkdown(tc.in); got != tc.want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildDigestSections(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	items := []Item{
		{Title: "BTC rallies", URL: "https://x/a", Category: CategoryCrypto, Emoji: "🪙"},
		{Title: "Casino Co raises $10M", URL: "https://x/b", Category: CategoryCapitalRaise},
	}
	quotes := []PriceQuote{
		{Label: "BTC", Value: "$50,000.00", OK: true},
		{Label: "GOLD", OK: false},
	}

	out := BuildDigest(now, quotes, items)

	for _, want := range []string{
		"Morning Digest — Mon, Mar 2",
		"💰 *Market Prices*",
		"• BTC: $50,000.00",
		"• GOLD: N/A",
		"🪙 *Crypto*",
		"[BTC rallies](https://x/a)",
		"💼 *Capital Raises*",
		"[Casino Co raises $10M](https://x/b)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("digest missing %q\n%s", want, out)
		}
	}
	// The empty iGaming section still appears, with the no-news line.
	if !strings.Contains(out, "🎰 *iGaming*\n_No pertinent news_") {
		t.Errorf("empty section should render no-news line\n%s", out)
	}
}

func TestFormatItem(t *testing.T) {
	t.Parallel()

	got := FormatItem(Item{Title: "BTC_rallies", URL: "https://x/a", Emoji: "🪙"})
	if got != "🪙 [BTC\\_rallies](https://x/a)" {
		t.Fatalf("got %q", got)
	}
	// No URL: plain text line with the default bullet.
	got = FormatItem(Item{Title: "Slots firm expands"})
	if got != "🔹 Slots firm expands" {
		t.Fatalf("got %q", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Fatal("single item message should not end with a newline")
	}
}
