// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mtbot/internal/config"
	"mtbot/internal/digest"
	"mtbot/internal/eventbus"
	"mtbot/internal/feed"
	"mtbot/internal/health"
	"mtbot/internal/market"
	"mtbot/internal/router"
	rtsup "mtbot/internal/runtime/supervisor"
	"mtbot/internal/scheduler"
	"mtbot/internal/storage"
	kit "mtbot/internal/transport"
	"mtbot/internal/transport/telegram"
	logx "mtbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logsvc *logx.Service

	store storage.Store
	adapt kit.Adapter
	sched *scheduler.Service
}

func New(cfgMgr *config.Manager, logsvc *logx.Service) *App {
	return &App{cfgMgr: cfgMgr, logsvc: logsvc}
}

// Run builds the pipeline from the active config and blocks until ctx is
// done. Structural config changes (sources, storage, channel) need a
// restart; only logging settings apply on hot reload.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgMgr.Get()
	if cfg == nil {
		return errors.New("app: no config loaded")
	}
	named := func(comp string) logx.Logger {
		return a.logsvc.Logger().With(logx.String("comp", comp))
	}
	log := named("app")
	bus := eventbus.New[digest.Result]()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	a.store = store
	defer store.Close()

	quiet := digest.NewQuiet()
	dedup := digest.NewDedup(cfg.Digest.DedupCapacity)
	if err := restoreState(ctx, store, quiet, dedup, log); err != nil {
		log.Warn("restore persisted state failed", logx.Err(err))
	}

	adapt, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOrDefault(cfg.Telegram.PollTimeout, 10*time.Second),
	}, named("telegram"))
	if err != nil {
		return fmt.Errorf("app: telegram: %w", err)
	}
	a.adapt = adapt

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	} else if l, err := time.LoadLocation("America/Los_Angeles"); err == nil {
		loc = l
	}

	news := feed.New(feedSources(cfg.Sources),
		config.DurationOrDefault(cfg.Digest.FetchTimeout, 15*time.Second),
		named("feed"))

	prices := market.New(cfg.Market.APIKey, cfg.Market.Symbols, yahooSymbols(cfg.Market.Yahoo),
		config.DurationOrDefault(cfg.Market.Timeout, 10*time.Second),
		named("market"))

	ratePerSec := cfg.Digest.RatePerSec
	if ratePerSec == 0 {
		ratePerSec = 3
	}
	sink := digest.NewChannelSink(adapt, chatTarget(cfg.Telegram.Channel), ratePerSec)

	disp := digest.NewDispatcher(news, prices, sink, store, quiet, dedup, digest.Settings{
		RetryMax:      retryMax(cfg.Digest.RetryMax),
		RetryBase:     config.DurationOrDefault(cfg.Digest.RetryBase, 500*time.Millisecond),
		RetryMaxDelay: config.DurationOrDefault(cfg.Digest.RetryMaxDelay, 10*time.Second),
		PostTimeout:   config.DurationOrDefault(cfg.Digest.PostTimeout, 15*time.Second),
	}, named("dispatch"), bus)

	dailyHour, dailyMinute := 9, 0
	if at := strings.TrimSpace(cfg.Digest.DailyAt); at != "" {
		if h, m, err := config.ParseHHMM(at); err == nil {
			dailyHour, dailyMinute = h, m
		}
	}
	startup := true
	if cfg.Digest.StartupDigest != nil {
		startup = *cfg.Digest.StartupDigest
	}
	sched, err := scheduler.New(scheduler.Config{
		Interval:      config.DurationOrDefault(cfg.Digest.Interval, time.Hour),
		DailyHour:     dailyHour,
		DailyMinute:   dailyMinute,
		Location:      loc,
		StartupDigest: startup,
	}, disp, named("scheduler"))
	if err != nil {
		return err
	}
	a.sched = sched

	botName := strings.TrimSpace(cfg.Telegram.BotName)
	if botName == "" {
		botName = adapt.Username()
	}
	rt := router.New(router.Config{
		BotName:  botName,
		QuietFor: config.DurationOrDefault(cfg.Digest.QuietFor, 6*time.Hour),
		Greeting: cfg.Digest.Greeting,
		Location: loc,
	}, adapt, sched, quiet, prices, store, named("router"))

	sup := rtsup.New(ctx, rtsup.WithLogger(log), rtsup.WithCancelOnError(true))

	updates := make(chan kit.Update, 64)
	if err := adapt.Start(sup.Context(), updates); err != nil {
		sup.Cancel()
		return fmt.Errorf("app: start telegram: %w", err)
	}
	sup.Go0("router.dispatch", func(c context.Context) {
		rt.DispatchLoop(c, updates)
	})

	if err := sched.Start(sup.Context()); err != nil {
		sup.Cancel()
		return err
	}

	if cfg.Health.Enabled {
		hs := health.New(cfg.Health.Addr, bus, named("health"))
		sup.GoRestart("health.serve", func(c context.Context) error {
			err := hs.Start(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	sup.GoRestart("config.watch", func(c context.Context) error {
		err := a.cfgMgr.Watch(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	sup.Go0("config.apply", func(c context.Context) {
		ch, unsub := a.cfgMgr.Subscribe()
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-ch:
				if !ok {
					return
				}
				a.applyReload(next, log)
			}
		}
	})

	<-sup.Context().Done()
	log.Info("shutting down")

	shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sched.Stop(shctx); err != nil {
		log.Warn("scheduler stop", logx.Err(err))
	}
	if err := adapt.Stop(shctx); err != nil {
		log.Warn("telegram stop", logx.Err(err))
	}
	sup.Cancel()
	_ = sup.Wait(shctx)
	return sup.Err()
}

// applyReload picks up the config changes that are safe to apply live.
func (a *App) applyReload(cfg *config.Config, log logx.Logger) {
	if cfg == nil {
		return
	}
	a.logsvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log.Info("config applied (logging only; other changes need a restart)")
}

func openStorage(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage == nil {
		return storage.Noop(), nil
	}
	return storage.Open(storage.Options{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		MaxSeen:     cfg.Storage.MaxSeen,
		BusyTimeout: config.DurationOrDefault(cfg.Storage.BusyTimeout, 0),
	})
}

func restoreState(ctx context.Context, store storage.Store, quiet *digest.Quiet, dedup *digest.Dedup, log logx.Logger) error {
	ids, err := store.SeenIDs(ctx)
	if err != nil {
		return err
	}
	dedup.Seed(ids)

	until, err := store.QuietUntil(ctx)
	if err != nil {
		return err
	}
	if !until.IsZero() && time.Now().Before(until) {
		quiet.Restore(until)
		log.Info("quiet mode restored", logx.Time("until", until))
	}
	if len(ids) > 0 {
		log.Info("dedup window restored", logx.Int("ids", len(ids)))
	}
	return nil
}

func feedSources(in []config.SourceConfig) []feed.Source {
	out := make([]feed.Source, 0, len(in))
	for _, s := range in {
		out = append(out, feed.Source{
			Name:     s.Name,
			URL:      s.URL,
			Category: digest.Category(s.Category),
			Emoji:    s.Emoji,
			Keywords: s.Keywords,
			Limit:    s.Limit,
		})
	}
	return out
}

func yahooSymbols(in []config.YahooSymbol) []market.YahooSymbol {
	out := make([]market.YahooSymbol, 0, len(in))
	for _, y := range in {
		out = append(out, market.YahooSymbol{Symbol: y.Symbol, Label: y.Label, Decimals: y.Decimals})
	}
	return out
}

// chatTarget parses the configured channel: a numeric chat id or an
// @channelname.
func chatTarget(channel string) kit.ChatTarget {
	c := strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(c, 10, 64); err == nil {
		return kit.ChatTarget{ChatID: id}
	}
	return kit.ChatTarget{Username: strings.TrimPrefix(c, "@")}
}

func retryMax(v int) int {
	if v == 0 {
		return 2
	}
	if v < 0 {
		return 0
	}
	return v
}
