package digest

import (
	"strings"
	"time"
)

// Section headers in digest order.
var sections = []struct {
	cat    Category
	header string
}{
	{CategoryCrypto, "🪙 *Crypto*"},
	{CategoryIGaming, "🎰 *iGaming*"},
	{CategoryCapitalRaise, "💼 *Capital Raises*"},
}

const noNewsLine = "_No pertinent news_"

// EscapeMarkdown escapes the characters Telegram's legacy Markdown mode
// treats as markup. Link URLs and our own formatting stay unescaped.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '_', '*', '`', '[':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BuildDigest renders the full morning digest: date header, market prices,
// then every news section. Empty sections render the no-news line so the
// digest shape stays recognizable day to day.
func BuildDigest(now time.Time, quotes []PriceQuote, items []Item) string {
	var b strings.Builder
	b.WriteString("🌅 *Morning Digest — ")
	b.WriteString(now.Format("Mon, Jan 2"))
	b.WriteString("*\n")

	b.WriteString("\n")
	b.WriteString(FormatPrices(quotes))

	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(sec.header)
		b.WriteString("\n")
		n := 0
		for _, it := range items {
			if it.Category != sec.cat {
				continue
			}
			b.WriteString(formatItemLine(it))
			n++
		}
		if n == 0 {
			b.WriteString(noNewsLine)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatItem renders a single headline as its own channel message.
func FormatItem(it Item) string {
	return strings.TrimRight(formatItemLine(it), "\n")
}

func formatItemLine(it Item) string {
	emoji := it.Emoji
	if emoji == "" {
		emoji = "🔹"
	}
	title := EscapeMarkdown(it.Title)
	if it.URL != "" {
		return emoji + " [" + title + "](" + it.URL + ")\n"
	}
	return emoji + " " + title + "\n"
}

// FormatPrices renders the market block. Failed quotes show as N/A rather
// than dropping silently.
func FormatPrices(quotes []PriceQuote) string {
	var b strings.Builder
	b.WriteString("💰 *Market Prices*\n")
	if len(quotes) == 0 {
		b.WriteString("_Unavailable_\n")
		return b.String()
	}
	for _, q := range quotes {
		b.WriteString("• ")
		b.WriteString(EscapeMarkdown(q.Label))
		b.WriteString(": ")
		if q.OK {
			b.WriteString(q.Value)
		} else {
			b.WriteString("N/A")
		}
		b.WriteString("\n")
	}
	return b.String()
}
