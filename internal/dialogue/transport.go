// Package dialogue is Ephemera's view of Atrium: the chat service is
// consumed only through this small transport interface, never reimplemented,
// since Atrium itself is out of scope per spec.md §1.
package dialogue

import (
	"context"
	"time"
)

// Credentials authenticate the agent against Atrium.
type Credentials struct {
	Username string
	Password string
}

// SentMessage is the result of a successful send.
type SentMessage struct {
	ID        int64
	CreatedAt time.Time
}

// UnreadBatch is one page of unread messages plus how many remain.
type UnreadBatch struct {
	Messages        []Message
	RemainingUnread int
}

// Message is one chat message as seen by the agent.
type Message struct {
	ID        int64
	Author    string
	Text      string
	CreatedAt time.Time
}

// Transport is the consumed interface spec.md §6 describes: send, fetch
// unread with a since-id cursor, heartbeat. The core never mandates a wire
// format for this — only this semantic contract.
type Transport interface {
	SendMessage(ctx context.Context, creds Credentials, text string) (SentMessage, error)
	GetUnreadMessages(ctx context.Context, creds Credentials, limit int) (UnreadBatch, error)
	Heartbeat(ctx context.Context, creds Credentials) error
}
