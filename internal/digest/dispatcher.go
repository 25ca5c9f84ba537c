package digest

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"mtbot/internal/eventbus"
	kit "mtbot/internal/transport"
	logx "mtbot/pkg/logx"
)

// Settings tunes the dispatcher's retry and timeout behavior. Zero values
// get sane defaults from NewDispatcher.
type Settings struct {
	// RetryMax is how many times a failed post is retried (attempts = 1 + RetryMax).
	RetryMax int
	// RetryBase is the first retry delay; it doubles per attempt.
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// PostTimeout bounds each individual send attempt.
	PostTimeout time.Duration
}

func (s *Settings) normalize() {
	if s.RetryMax < 0 {
		s.RetryMax = 0
	}
	if s.RetryBase <= 0 {
		s.RetryBase = 500 * time.Millisecond
	}
	if s.RetryMaxDelay <= 0 {
		s.RetryMaxDelay = 10 * time.Second
	}
	if s.PostTimeout <= 0 {
		s.PostTimeout = 15 * time.Second
	}
}

// Dispatcher runs dispatch cycles: fetch headlines, drop duplicates,
// respect quiet mode, post what is left, and remember what was posted.
type Dispatcher struct {
	news   NewsSource
	prices PriceSource
	sink   Sink
	seen   SeenStore
	quiet  *Quiet
	dedup  *Dedup
	set    Settings
	log    logx.Logger
	bus    eventbus.Bus[Result]
}

func NewDispatcher(news NewsSource, prices PriceSource, sink Sink, seen SeenStore, quiet *Quiet, dedup *Dedup, set Settings, log logx.Logger, bus eventbus.Bus[Result]) *Dispatcher {
	set.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		news:   news,
		prices: prices,
		sink:   sink,
		seen:   seen,
		quiet:  quiet,
		dedup:  dedup,
		set:    set,
		log:    log,
		bus:    bus,
	}
}

// RunCycle performs one dispatch cycle:
//
//  1. Unless forced, an active quiet window ends the cycle before any
//     fetch happens; nothing is marked as seen, so the same headlines
//     surface once quiet expires.
//  2. Fetch headlines. A fetch failure is recorded, never propagated.
//  3. Drop headlines already in the dedup window. Forced runs (/bignews)
//     bypass quiet but still respect the window.
//  4. Post the survivors one by one, in arrival order, each with its own
//     retry budget. A headline enters the dedup window only after its
//     post succeeded; one failed headline does not block the rest.
func (d *Dispatcher) RunCycle(ctx context.Context, now time.Time, force bool) Result {
	res := Result{Started: now}
	defer d.announce("cycle", &res)

	if !force && d.quiet.Suppressed(now) {
		res.Suppressed = true
		d.log.Info("cycle suppressed (quiet mode)", logx.Time("until", d.quiet.Until()))
		return res
	}

	items, err := d.news.Fetch(ctx)
	if err != nil {
		res.Errors = append(res.Errors, CycleError{Stage: "fetch", Err: err})
		d.log.Error("fetch failed", logx.Err(err))
		return res
	}
	res.Fetched = len(items)

	fresh := items[:0:0]
	for _, it := range items {
		if d.dedup.IsNew(it.ID) {
			fresh = append(fresh, it)
		}
	}
	res.Fresh = len(fresh)
	if len(fresh) == 0 {
		d.log.Debug("cycle: nothing fresh", logx.Int("fetched", res.Fetched))
		return res
	}

	for _, it := range fresh {
		if err := d.postWithRetry(ctx, FormatItem(it)); err != nil {
			res.Errors = append(res.Errors, CycleError{
				Stage:     "post",
				ItemID:    it.ID,
				Title:     it.Title,
				Err:       err,
				Permanent: kit.IsPermanent(err),
			})
			d.logPostFailure(it.Title, err)
			continue
		}
		d.dedup.MarkPosted(it.ID)
		res.Posted = append(res.Posted, it)
	}

	d.persistPosted(ctx, res.Posted)
	d.log.Info("cycle done",
		logx.Int("fetched", res.Fetched),
		logx.Int("fresh", res.Fresh),
		logx.Int("posted", len(res.Posted)),
		logx.Int("failed", len(res.Errors)),
		logx.Bool("force", force))
	return res
}

// SendDigest posts the morning digest: market prices plus every news
// section, fresh headlines included and stale ones left out, as a single
// message. It honors quiet mode and shares the cycle retry policy.
func (d *Dispatcher) SendDigest(ctx context.Context, now time.Time) Result {
	res := Result{Started: now}
	defer d.announce("digest", &res)

	if d.quiet.Suppressed(now) {
		res.Suppressed = true
		d.log.Info("digest suppressed (quiet mode)", logx.Time("until", d.quiet.Until()))
		return res
	}

	items, err := d.news.Fetch(ctx)
	if err != nil {
		res.Errors = append(res.Errors, CycleError{Stage: "fetch", Err: err})
		d.log.Error("digest fetch failed", logx.Err(err))
	}
	res.Fetched = len(items)

	fresh := items[:0:0]
	for _, it := range items {
		if d.dedup.IsNew(it.ID) {
			fresh = append(fresh, it)
		}
	}
	res.Fresh = len(fresh)

	var quotes []PriceQuote
	if d.prices != nil {
		quotes, err = d.prices.Quotes(ctx)
		if err != nil {
			// A price failure degrades the digest, it does not block it.
			res.Errors = append(res.Errors, CycleError{Stage: "prices", Err: err})
			d.log.Warn("price lookup failed", logx.Err(err))
		}
	}

	if err := d.postWithRetry(ctx, BuildDigest(now, quotes, fresh)); err != nil {
		res.Errors = append(res.Errors, CycleError{
			Stage:     "post",
			Err:       err,
			Permanent: kit.IsPermanent(err),
		})
		d.logPostFailure("morning digest", err)
		return res
	}

	res.Posted = fresh
	d.persistPosted(ctx, fresh)
	d.log.Info("digest posted", logx.Int("headlines", len(fresh)))
	return res
}

func (d *Dispatcher) persistPosted(ctx context.Context, items []Item) {
	for _, it := range items {
		d.dedup.MarkPosted(it.ID)
	}
	if d.seen == nil || len(items) == 0 {
		return
	}
	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	if err := d.seen.MarkSeen(ctx, ids); err != nil {
		d.log.Warn("persist seen ids failed", logx.Err(err))
	}
}

// postWithRetry sends text, retrying transient failures with jittered
// exponential backoff. Permanent failures abort immediately.
func (d *Dispatcher) postWithRetry(ctx context.Context, text string) error {
	attempts := 1 + d.set.RetryMax
	var lastErr error
	for n := 1; n <= attempts; n++ {
		actx, cancel := context.WithTimeout(ctx, d.set.PostTimeout)
		err := d.sink.Post(actx, text)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if kit.IsPermanent(err) {
			return err
		}
		if n == attempts {
			break
		}
		delay := d.retryDelay(n)
		d.log.Warn("post failed, retrying",
			logx.Int("attempt", n),
			logx.Duration("in", delay),
			logx.Err(err))
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.set.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.set.RetryMaxDelay {
			delay = d.set.RetryMaxDelay
			break
		}
	}
	// 0.7x .. 1.3x jitter so synced instances drift apart.
	jitter := 0.7 + rand.Float64()*0.6
	return time.Duration(float64(delay) * jitter)
}

func (d *Dispatcher) logPostFailure(what string, err error) {
	var pe *kit.PostError
	if errors.As(err, &pe) && pe.Kind == kit.PostPermanent {
		// Permanent errors mean the target or credentials are wrong.
		d.log.Error("post failed permanently, check channel config",
			logx.String("what", what), logx.Err(err))
		return
	}
	d.log.Error("post failed after retries", logx.String("what", what), logx.Err(err))
}

func (d *Dispatcher) announce(kind string, res *Result) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event[Result]{
		Type: "digest." + kind,
		Data: *res,
	})
}
