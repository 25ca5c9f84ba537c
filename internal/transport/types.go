package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// ChatTarget addresses an outbound chat either by numeric id or by
// public @username; Username wins when both are set.
type ChatTarget struct {
	ChatID   int64
	Username string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the outbound messaging transport consumed by the core.
// Errors returned from SendText carry a PostError classification so the
// dispatcher can tell transient flakiness from configuration problems.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
