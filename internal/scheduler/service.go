// Package scheduler drives the dispatch pipeline: the hourly cycle, the
// daily morning digest, and on-demand runs from commands.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"mtbot/internal/digest"
	logx "mtbot/pkg/logx"
)

// ErrBusy is returned when a run is requested while a cycle is already in
// flight. Cycles never overlap.
var ErrBusy = errors.New("a dispatch cycle is already running")

// Runner is the slice of the dispatcher the scheduler drives.
type Runner interface {
	RunCycle(ctx context.Context, now time.Time, force bool) digest.Result
	SendDigest(ctx context.Context, now time.Time) digest.Result
}

type Config struct {
	// Interval between regular cycles (default 1h).
	Interval time.Duration
	// DailyHour/DailyMinute set the morning digest slot (default 09:00).
	DailyHour   int
	DailyMinute int
	// Location is the timezone the daily slot is evaluated in.
	Location *time.Location
	// StartupDigest sends a digest right after boot, unless boot lands
	// within the pre-digest window of the daily slot.
	StartupDigest bool
}

type Service struct {
	cfg    Config
	runner Runner
	log    logx.Logger

	cron *cron.Cron

	// running is the single-flight guard shared by cron entries and
	// TriggerNow.
	running atomic.Bool
}

func New(cfg Config, runner Runner, log logx.Logger) (*Service, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DailyHour < 0 || cfg.DailyHour > 23 || cfg.DailyMinute < 0 || cfg.DailyMinute > 59 {
		return nil, fmt.Errorf("scheduler: invalid daily slot %02d:%02d", cfg.DailyHour, cfg.DailyMinute)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, runner: runner, log: log}, nil
}

// Start registers the cron entries and begins scheduling. Non-blocking.
func (s *Service) Start(ctx context.Context) error {
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(s.cfg.Location))

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		s.runGuarded(ctx, "interval", func(now time.Time) digest.Result {
			return s.runner.RunCycle(ctx, now, false)
		})
	}); err != nil {
		return fmt.Errorf("scheduler: interval entry: %w", err)
	}

	dailySpec := fmt.Sprintf("%d %d * * *", s.cfg.DailyMinute, s.cfg.DailyHour)
	if _, err := c.AddFunc(dailySpec, func() {
		s.runGuarded(ctx, "daily", func(now time.Time) digest.Result {
			return s.runner.SendDigest(ctx, now)
		})
	}); err != nil {
		return fmt.Errorf("scheduler: daily entry: %w", err)
	}

	s.cron = c
	c.Start()
	s.log.Info("scheduler started",
		logx.Duration("interval", s.cfg.Interval),
		logx.String("daily_at", fmt.Sprintf("%02d:%02d", s.cfg.DailyHour, s.cfg.DailyMinute)),
		logx.String("tz", s.cfg.Location.String()))

	if s.cfg.StartupDigest && !s.nearDailySlot(time.Now().In(s.cfg.Location)) {
		go s.runGuarded(ctx, "startup", func(now time.Time) digest.Result {
			return s.runner.SendDigest(ctx, now)
		})
	}
	return nil
}

// Stop halts scheduling and waits for any in-flight cycle started by cron.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	s.cron = nil
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerNow runs a forced cycle on the caller's goroutine. Returns ErrBusy
// if a cycle is already in flight.
func (s *Service) TriggerNow(ctx context.Context) (digest.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return digest.Result{}, ErrBusy
	}
	defer s.running.Store(false)
	return s.runner.RunCycle(ctx, time.Now().In(s.cfg.Location), true), nil
}

func (s *Service) runGuarded(ctx context.Context, kind string, fn func(now time.Time) digest.Result) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("cycle skipped, previous still running", logx.String("kind", kind))
		return
	}
	defer s.running.Store(false)

	now := time.Now().In(s.cfg.Location)
	start := time.Now()
	res := fn(now)
	s.log.Debug("cycle finished",
		logx.String("kind", kind),
		logx.Int("posted", len(res.Posted)),
		logx.Bool("ok", res.OK()),
		logx.Duration("took", time.Since(start)))
}

// nearDailySlot reports whether now falls shortly before the daily slot,
// in which case a startup digest would just duplicate the scheduled one.
func (s *Service) nearDailySlot(now time.Time) bool {
	slot := time.Date(now.Year(), now.Month(), now.Day(),
		s.cfg.DailyHour, s.cfg.DailyMinute, 0, 0, s.cfg.Location)
	diff := slot.Sub(now)
	return diff >= 0 && diff <= 5*time.Minute
}
