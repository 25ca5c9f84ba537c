package digest

import (
	"context"

	"golang.org/x/time/rate"

	kit "mtbot/internal/transport"
)

// ChannelSink posts to a fixed Telegram chat through the transport adapter,
// rate limited so a burst of sections never trips flood control.
type ChannelSink struct {
	adapter kit.Adapter
	target  kit.ChatTarget
	limiter *rate.Limiter
}

// NewChannelSink builds a sink for target. perSec caps outbound messages
// per second; <= 0 disables limiting.
func NewChannelSink(adapter kit.Adapter, target kit.ChatTarget, perSec int) *ChannelSink {
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	return &ChannelSink{adapter: adapter, target: target, limiter: lim}
}

func (s *ChannelSink) Post(ctx context.Context, text string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return kit.NewPostError(kit.PostTransient, err)
		}
	}
	return s.adapter.SendText(ctx, s.target, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
}
