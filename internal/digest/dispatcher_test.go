package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "mtbot/internal/transport"
	logx "mtbot/pkg/logx"
)

type fakeNews struct {
	items   []Item
	err     error
	fetches int
}

func (f *fakeNews) Fetch(context.Context) ([]Item, error) {
	f.fetches++
	return f.items, f.err
}

type fakePrices struct {
	quotes []PriceQuote
	err    error
	calls  int
}

func (f *fakePrices) Quotes(context.Context) ([]PriceQuote, error) {
	f.calls++
	return f.quotes, f.err
}

type fakeSink struct {
	mu    sync.Mutex
	errs  []error // consumed per Post call; nil entries mean success
	posts []string
}

func (f *fakeSink) Post(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.posts = append(f.posts, text)
	}
	return err
}

func (f *fakeSink) posted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

type fakeSeen struct {
	mu  sync.Mutex
	ids []uint64
}

func (f *fakeSeen) MarkSeen(_ context.Context, ids []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, ids...)
	return nil
}

func fastSettings() Settings {
	return Settings{
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		PostTimeout:   time.Second,
	}
}

func testItems() []Item {
	return []Item{
		{ID: ItemID("a"), Title: "a", Category: CategoryCrypto},
		{ID: ItemID("b"), Title: "b", Category: CategoryIGaming},
	}
}

func postedTitles(res Result) []string {
	out := make([]string, 0, len(res.Posted))
	for _, it := range res.Posted {
		out = append(out, it.Title)
	}
	return out
}

func newTestDispatcher(news NewsSource, prices PriceSource, sink Sink, seen SeenStore) (*Dispatcher, *Quiet, *Dedup) {
	quiet := NewQuiet()
	dedup := NewDedup(16)
	d := NewDispatcher(news, prices, sink, seen, quiet, dedup, fastSettings(), logx.Nop(), nil)
	return d, quiet, dedup
}

func TestRunCyclePostsFreshAndMarks(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	seen := &fakeSeen{}
	d, _, dedup := newTestDispatcher(&fakeNews{items: testItems()}, nil, sink, seen)

	res := d.RunCycle(context.Background(), time.Now(), false)
	if !res.OK() || len(res.Posted) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// One message per headline, in arrival order.
	posts := sink.posted()
	if len(posts) != 2 || !strings.Contains(posts[0], "a") || !strings.Contains(posts[1], "b") {
		t.Fatalf("posts = %v", posts)
	}
	if dedup.IsNew(ItemID("a")) || dedup.IsNew(ItemID("b")) {
		t.Fatal("posted items should be in the dedup window")
	}
	if len(seen.ids) != 2 {
		t.Fatalf("want 2 persisted ids, got %d", len(seen.ids))
	}

	// Second cycle with identical feed content: nothing fresh, no post.
	res = d.RunCycle(context.Background(), time.Now(), false)
	if len(res.Posted) != 0 || !res.OK() || len(sink.posted()) != 2 {
		t.Fatalf("duplicate items were reposted: %+v", res)
	}
}

func TestRunCycleQuietSkipsFetch(t *testing.T) {
	t.Parallel()

	news := &fakeNews{items: testItems()}
	sink := &fakeSink{}
	d, quiet, dedup := newTestDispatcher(news, nil, sink, nil)

	now := time.Now()
	quiet.Activate(now, 6*time.Hour)

	res := d.RunCycle(context.Background(), now.Add(time.Hour), false)
	if !res.Suppressed {
		t.Fatal("cycle should be suppressed during quiet")
	}
	// Suppression happens before any external call.
	if news.fetches != 0 {
		t.Fatal("no fetch should happen while muted")
	}
	if len(sink.posted()) != 0 {
		t.Fatal("nothing should be posted during quiet")
	}
	if !dedup.IsNew(ItemID("a")) {
		t.Fatal("suppressed cycles must not touch the dedup window")
	}

	// After lazy expiry the held headlines go out normally.
	res = d.RunCycle(context.Background(), now.Add(7*time.Hour), false)
	if res.Suppressed || len(res.Posted) != 2 {
		t.Fatalf("post-quiet cycle should deliver: %+v", res)
	}
}

func TestRunCycleForceBypassesQuietNotDedup(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	d, quiet, dedup := newTestDispatcher(&fakeNews{items: testItems()}, nil, sink, nil)

	now := time.Now()
	dedup.MarkPosted(ItemID("a")) // already posted earlier
	quiet.Activate(now, time.Hour)

	res := d.RunCycle(context.Background(), now, true)
	if res.Suppressed || !res.OK() {
		t.Fatalf("forced cycle should run during quiet: %+v", res)
	}
	// Quiet is bypassed, the dedup window is not.
	if got := postedTitles(res); len(got) != 1 || got[0] != "b" {
		t.Fatalf("posted = %v, want just b", got)
	}
}

func TestRunCycleForceNothingFresh(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	d, _, dedup := newTestDispatcher(&fakeNews{items: testItems()}, nil, sink, nil)
	for _, it := range testItems() {
		dedup.MarkPosted(it.ID)
	}

	res := d.RunCycle(context.Background(), time.Now(), true)
	if !res.OK() || len(res.Posted) != 0 || len(sink.posted()) != 0 {
		t.Fatalf("stale forced cycle should post nothing: %+v", res)
	}
}

func TestRunCycleRetriesTransient(t *testing.T) {
	t.Parallel()

	transient := kit.NewPostError(kit.PostTransient, errors.New("flood"))
	sink := &fakeSink{errs: []error{transient, transient, nil}}
	d, _, dedup := newTestDispatcher(&fakeNews{items: testItems()}, nil, sink, nil)

	res := d.RunCycle(context.Background(), time.Now(), false)
	if !res.OK() || len(res.Posted) != 2 {
		t.Fatalf("first item should succeed on its third attempt: %+v", res)
	}
	if dedup.IsNew(ItemID("a")) || dedup.IsNew(ItemID("b")) {
		t.Fatal("items should be marked after eventual success")
	}
}

func TestRunCycleRetryExhaustionIsPerItem(t *testing.T) {
	t.Parallel()

	transient := kit.NewPostError(kit.PostTransient, errors.New("502"))
	// Item a burns its whole budget (3 attempts); item b succeeds.
	sink := &fakeSink{errs: []error{transient, transient, transient}}
	d, _, dedup := newTestDispatcher(&fakeNews{items: testItems()}, nil, sink, nil)

	res := d.RunCycle(context.Background(), time.Now(), false)
	if got := postedTitles(res); len(got) != 1 || got[0] != "b" {
		t.Fatalf("one item's failure must not block the next: %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].ItemID != ItemID("a") || res.Errors[0].Permanent {
		t.Fatalf("errors = %+v", res.Errors)
	}
	// The failed item stays fresh and recovers on the next cycle.
	if !dedup.IsNew(ItemID("a")) {
		t.Fatal("failed item must not be marked as posted")
	}
	res = d.RunCycle(context.Background(), time.Now(), false)
	if got := postedTitles(res); len(got) != 1 || got[0] != "a" {
		t.Fatalf("next cycle should deliver the failed item: %+v", res)
	}
}

func TestRunCyclePermanentFailsFast(t *testing.T) {
	t.Parallel()

	permanent := kit.NewPostError(kit.PostPermanent, errors.New("chat not found"))
	sink := &fakeSink{errs: []error{permanent}}
	d, _, dedup := newTestDispatcher(&fakeNews{items: testItems()}, nil, sink, nil)

	res := d.RunCycle(context.Background(), time.Now(), false)
	if len(res.Errors) != 1 || !res.Errors[0].Permanent || res.Errors[0].Stage != "post" {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	// A single attempt for item a (no retries), then item b proceeds.
	if got := postedTitles(res); len(got) != 1 || got[0] != "b" {
		t.Fatalf("posted = %v", got)
	}
	if !dedup.IsNew(ItemID("a")) {
		t.Fatal("failed item must not be marked as posted")
	}
}

func TestRunCycleFetchError(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	d, _, _ := newTestDispatcher(&fakeNews{err: errors.New("all feeds down")}, nil, sink, nil)

	res := d.RunCycle(context.Background(), time.Now(), false)
	if res.OK() || len(res.Errors) != 1 || res.Errors[0].Stage != "fetch" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sink.posted()) != 0 {
		t.Fatal("nothing should be posted when the fetch fails")
	}
}

func TestSendDigestHonorsQuiet(t *testing.T) {
	t.Parallel()

	news := &fakeNews{items: testItems()}
	sink := &fakeSink{}
	d, quiet, _ := newTestDispatcher(news, &fakePrices{}, sink, nil)

	now := time.Now()
	quiet.Activate(now, time.Hour)
	res := d.SendDigest(context.Background(), now)
	if !res.Suppressed || news.fetches != 0 || len(sink.posted()) != 0 {
		t.Fatalf("morning digest should respect quiet: %+v", res)
	}
}

func TestSendDigestSingleMessage(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	prices := &fakePrices{quotes: []PriceQuote{{Label: "BTC", Value: "$1.00", OK: true}}}
	seen := &fakeSeen{}
	d, _, dedup := newTestDispatcher(&fakeNews{items: testItems()}, prices, sink, seen)

	res := d.SendDigest(context.Background(), time.Now())
	if !res.OK() || len(res.Posted) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	posts := sink.posted()
	if len(posts) != 1 {
		t.Fatalf("digest is one combined message, got %d", len(posts))
	}
	if !strings.Contains(posts[0], "Morning Digest") || !strings.Contains(posts[0], "BTC: $1.00") {
		t.Fatalf("digest malformed:\n%s", posts[0])
	}
	if prices.calls != 1 {
		t.Fatalf("prices fetched %d times", prices.calls)
	}
	if dedup.IsNew(ItemID("a")) || len(seen.ids) != 2 {
		t.Fatal("digest headlines should be marked and persisted")
	}
}

func TestSendDigestDegradedPrices(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	prices := &fakePrices{err: errors.New("cmc down")}
	d, _, _ := newTestDispatcher(&fakeNews{items: testItems()}, prices, sink, nil)

	res := d.SendDigest(context.Background(), time.Now())
	// A price failure degrades the digest, it does not block it.
	if len(res.Posted) != 2 || len(sink.posted()) != 1 {
		t.Fatalf("digest should post despite price errors: %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Stage != "prices" {
		t.Fatalf("price failure should be recorded: %+v", res.Errors)
	}
	if !strings.Contains(sink.posted()[0], "N/A") && !strings.Contains(sink.posted()[0], "Unavailable") {
		t.Fatalf("missing prices should degrade visibly:\n%s", sink.posted()[0])
	}
}
