package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is one outbound message to a fixed destination.
type Notification struct {
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

// Sender delivers text to a chat. Implementations must be safe for
// sequential use from one goroutine; none of the callers here send concurrently.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
