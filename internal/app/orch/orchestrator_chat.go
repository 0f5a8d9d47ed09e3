package orch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const EventReceiveMessage = "ReceiveMessage"

// ChatMessage is the broadcast form of a persisted message.
type ChatMessage struct {
	domain.Message
	SenderName string `json:"senderName"`
}

// SendMessage persists content from the connection's user and broadcasts it to the
// whole room, sender included. A connection without a room gets a validation error
// and nothing is stored.
func (o *Orchestrator) SendMessage(ctx context.Context, id core.ConnectionID, content string) (*ChatMessage, error) {
	conn, ok := o.Registry.Lookup(id)
	if !ok {
		return nil, domain.Validation("join a room before sending messages")
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.Validation("message content is empty")
	}
	if utf8.RuneCountInString(content) > o.MaxMessageLen {
		return nil, domain.Validation("message exceeds %d characters", o.MaxMessageLen)
	}
	if !o.Limiter.Allow(conn.User) {
		return nil, domain.RateLimited("too many messages, slow down")
	}

	dctx, cancel := o.storageCtx(ctx)
	defer cancel()

	msg := domain.Message{
		ID:       domain.MessageID(o.NewID()),
		RoomID:   conn.Room,
		SenderID: conn.User,
		Content:  content,
		SentAt:   o.Now().UTC(),
	}
	if err := o.Messages.Insert(dctx, &msg); err != nil {
		return nil, domain.Transient("store message", err)
	}

	out := &ChatMessage{Message: msg, SenderName: string(conn.User)}
	if u, err := o.Users.FindUser(dctx, conn.User); err == nil {
		out.SenderName = u.DisplayName()
	} else {
		o.Log.Warn().Err(err).Str("user", string(conn.User)).Msg("sender profile unavailable")
	}

	res := o.Transport.Broadcast(conn.Room, core.Outbound{Type: EventReceiveMessage, Data: out})
	o.handleDropped(conn.Room, res)
	o.Metrics.Messages.Inc()

	if o.Publisher != nil {
		if err := o.Publisher.PublishMessage(dctx, msg, out.SenderName); err != nil {
			o.Log.Warn().Err(err).Str("message", string(msg.ID)).Msg("publish message failed")
		}
	}
	return out, nil
}
