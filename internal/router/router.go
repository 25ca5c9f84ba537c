// Package router turns incoming Telegram messages into bot actions.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mtbot/internal/digest"
	"mtbot/internal/scheduler"
	kit "mtbot/internal/transport"
	logx "mtbot/pkg/logx"
)

// QuietStore persists the quiet expiry so it survives restarts.
type QuietStore interface {
	SetQuietUntil(ctx context.Context, t time.Time) error
}

type Config struct {
	// BotName strips "@botname" suffixes from commands in group chats.
	BotName string
	// QuietFor is how long /shutup mutes the channel (default 6h).
	QuietFor time.Duration
	// Greeting overrides the default /start welcome line.
	Greeting string
	// Location renders the quiet resume time in channel-local terms.
	Location *time.Location
}

type Router struct {
	cfg    Config
	adapt  kit.Adapter
	sched  *scheduler.Service
	quiet  *digest.Quiet
	prices digest.PriceSource
	store  QuietStore
	log    logx.Logger

	handlers map[string]func(ctx context.Context, msg *kit.Message, args string)
}

func New(cfg Config, adapt kit.Adapter, sched *scheduler.Service, quiet *digest.Quiet, prices digest.PriceSource, store QuietStore, log logx.Logger) *Router {
	if cfg.QuietFor <= 0 {
		cfg.QuietFor = 6 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cfg:    cfg,
		adapt:  adapt,
		sched:  sched,
		quiet:  quiet,
		prices: prices,
		store:  store,
		log:    log,
	}
	r.handlers = map[string]func(ctx context.Context, msg *kit.Message, args string){
		"/start":   r.handleStart,
		"/bignews": r.handleBigNews,
		"/shutup":  r.handleShutup,
		"/help":    r.handleHelp,
	}
	return r
}

// DispatchLoop consumes updates until ctx is done or the channel closes.
// Each update is handled inline; handlers are expected to be quick apart
// from /bignews, which is the point of the single-flight guard upstream.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message != nil {
				r.handle(ctx, up.Message)
			}
		}
	}
}

func (r *Router) handle(ctx context.Context, msg *kit.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cmd, args := splitCommand(text)
	cmd = stripBotName(cmd, r.cfg.BotName)
	if cmd == "" {
		// Addressed to a different bot.
		return
	}

	h, ok := r.handlers[cmd]
	if !ok {
		r.handleHelp(ctx, msg, args)
		return
	}
	r.log.Debug("command",
		logx.String("cmd", cmd),
		logx.Int64("from", msg.FromID),
		logx.String("user", msg.FromUsername))
	h(ctx, msg, args)
}

func (r *Router) handleStart(ctx context.Context, msg *kit.Message, _ string) {
	greeting := r.cfg.Greeting
	if greeting == "" {
		greeting = "👋 I watch the news feeds and post updates to the channel."
	}
	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\nCommands:\n")
	b.WriteString("/bignews — fetch and post a digest now\n")
	b.WriteString("/shutup — mute channel posts for a while\n")

	if r.prices != nil {
		qctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		quotes, err := r.prices.Quotes(qctx)
		cancel()
		if err == nil && len(quotes) > 0 {
			b.WriteString("\n")
			b.WriteString(digest.FormatPrices(quotes))
		}
	}
	r.reply(ctx, msg, b.String())
}

func (r *Router) handleBigNews(ctx context.Context, msg *kit.Message, _ string) {
	r.reply(ctx, msg, "🔍 Digging for big news...")

	res, err := r.sched.TriggerNow(ctx)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		r.reply(ctx, msg, "⏳ Already working on it, hold on.")
	case err != nil:
		r.reply(ctx, msg, "⚠️ Something went wrong, check the logs.")
	case !res.OK() && len(res.Posted) > 0:
		r.reply(ctx, msg, fmt.Sprintf("⚠️ Posted %d headline(s); %d failed, check the logs.",
			len(res.Posted), len(res.Errors)))
	case !res.OK():
		r.reply(ctx, msg, "⚠️ The run hit errors, check the logs.")
	case len(res.Posted) > 0:
		r.reply(ctx, msg, fmt.Sprintf("✅ Posted %d fresh headline(s) to the channel.", len(res.Posted)))
	default:
		r.reply(ctx, msg, "✅ Nothing new since last time.")
	}
}

func (r *Router) handleShutup(ctx context.Context, msg *kit.Message, _ string) {
	now := time.Now()
	until := r.quiet.Activate(now, r.cfg.QuietFor)
	if r.store != nil {
		if err := r.store.SetQuietUntil(ctx, until); err != nil {
			r.log.Warn("persist quiet_until failed", logx.Err(err))
		}
	}
	r.reply(ctx, msg, fmt.Sprintf("🤫 Fine. Going quiet until %s.",
		until.In(r.cfg.Location).Format("15:04 MST")))
}

func (r *Router) handleHelp(ctx context.Context, msg *kit.Message, _ string) {
	r.reply(ctx, msg, "Commands:\n"+
		"/start — intro and current market prices\n"+
		"/bignews — fetch and post a digest now\n"+
		"/shutup — mute channel posts for a while")
}

func (r *Router) reply(ctx context.Context, msg *kit.Message, text string) {
	sctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err := r.adapt.SendText(sctx, kit.ChatTarget{ChatID: msg.ChatID}, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}

func splitCommand(text string) (cmd, args string) {
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}

// stripBotName turns "/cmd@MyBot" into "/cmd" when addressed to us and
// returns "" for commands addressed to some other bot.
func stripBotName(cmd, botName string) string {
	i := strings.IndexByte(cmd, '@')
	if i < 0 {
		return strings.ToLower(cmd)
	}
	if botName != "" && !strings.EqualFold(cmd[i+1:], botName) {
		return ""
	}
	return strings.ToLower(cmd[:i])
}
