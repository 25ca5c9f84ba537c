package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mtbot/internal/digest"
	logx "mtbot/pkg/logx"
)

func rssBody(titles ...string) string {
	items := ""
	for i, title := range titles {
		items += fmt.Sprintf(
			"<item><title>%s</title><link>https://example.com/%d</link>"+
				"<pubDate>Mon, 02 Mar 2026 09:00:00 GMT</pubDate></item>", title, i)
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>` + items + `</channel></rss>`
}

func serveRSS(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFiltersAndOrders(t *testing.T) {
	t.Parallel()

	crypto := serveRSS(t, rssBody("Bitcoin ETF approved", "Weather today", "Ethereum upgrade lands"), 200)
	gaming := serveRSS(t, rssBody("Casino group expands"), 200)

	svc := New([]Source{
		{Name: "crypto-feed", URL: crypto.URL, Category: digest.CategoryCrypto,
			Keywords: []string{"bitcoin", "ethereum"}},
		{Name: "gaming-feed", URL: gaming.URL, Category: digest.CategoryIGaming},
	}, 5*time.Second, logx.Nop())

	items, err := svc.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d: %+v", len(items), items)
	}
	// Source order is stable regardless of which fetch finished first.
	if items[0].Title != "Bitcoin ETF approved" || items[2].Title != "Casino group expands" {
		t.Fatalf("unexpected order: %+v", items)
	}
	// Keyword filter dropped the off-topic headline.
	for _, it := range items {
		if it.Title == "Weather today" {
			t.Fatal("keyword filter failed")
		}
	}
	if items[0].Category != digest.CategoryCrypto || items[0].ID == 0 {
		t.Fatalf("item metadata missing: %+v", items[0])
	}
	if items[0].Published.IsZero() {
		t.Fatal("pubDate should be parsed")
	}
}

func TestFetchRespectsLimit(t *testing.T) {
	t.Parallel()

	titles := make([]string, 15)
	for i := range titles {
		titles[i] = fmt.Sprintf("headline %d", i)
	}
	srv := serveRSS(t, rssBody(titles...), 200)

	svc := New([]Source{
		{Name: "many", URL: srv.URL, Category: digest.CategoryCrypto, Limit: 4},
	}, 5*time.Second, logx.Nop())

	items, err := svc.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Fatalf("limit ignored: got %d items", len(items))
	}
}

func TestFetchPartialFailure(t *testing.T) {
	t.Parallel()

	good := serveRSS(t, rssBody("Bitcoin steady"), 200)
	bad := serveRSS(t, "nope", 500)

	svc := New([]Source{
		{Name: "good", URL: good.URL, Category: digest.CategoryCrypto},
		{Name: "bad", URL: bad.URL, Category: digest.CategoryIGaming},
	}, 5*time.Second, logx.Nop())

	items, err := svc.Fetch(context.Background())
	if err != nil {
		t.Fatalf("one healthy feed should be enough: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Bitcoin steady" {
		t.Fatalf("items = %+v", items)
	}
}

func TestFetchAllFailed(t *testing.T) {
	t.Parallel()

	bad := serveRSS(t, "nope", 500)
	svc := New([]Source{
		{Name: "bad", URL: bad.URL, Category: digest.CategoryCrypto},
	}, 5*time.Second, logx.Nop())

	if _, err := svc.Fetch(context.Background()); err == nil {
		t.Fatal("all feeds failing should return an error")
	}
}

func TestFetchNoSources(t *testing.T) {
	t.Parallel()

	svc := New(nil, time.Second, logx.Nop())
	items, err := svc.Fetch(context.Background())
	if err != nil || items != nil {
		t.Fatalf("no sources should be a clean no-op: %v %v", items, err)
	}
}

func TestMatchKeywords(t *testing.T) {
	t.Parallel()

	if !matchKeywords("anything", nil) {
		t.Fatal("no keywords means match all")
	}
	if !matchKeywords("Bitcoin Hits High", []string{"bitcoin"}) {
		t.Fatal("case-insensitive match failed")
	}
	if matchKeywords("Weather report", []string{"bitcoin", "etf"}) {
		t.Fatal("unrelated title should not match")
	}
}
