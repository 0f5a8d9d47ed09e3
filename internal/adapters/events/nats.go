// Package events hands persisted chat to downstream consumers (summaries, mail)
// over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// MessagePersisted is the payload published for every stored chat message. It
// carries no content; consumers read the text back through the encrypted history.
type MessagePersisted struct {
	MessageID  domain.MessageID `json:"messageId"`
	RoomID     domain.RoomID    `json:"roomId"`
	SenderID   domain.UserID    `json:"senderId"`
	SenderName string           `json:"senderName"`
	Length     int              `json:"length"`
	SentAt     time.Time        `json:"sentAt"`
}

type Publisher struct {
	nc      *nats.Conn
	subject string
}

var _ core.MessagePublisher = (*Publisher)(nil)

func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("huddle-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "events").Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewPublisher(nc, subject), nil
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// Subject is <base>.<roomId> so consumers can subscribe per room or to <base>.>.
func (p *Publisher) Subject(room domain.RoomID) string {
	return p.subject + "." + string(room)
}

func (p *Publisher) PublishMessage(ctx context.Context, msg domain.Message, senderName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(MessagePersisted{
		MessageID:  msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Length:     utf8.RuneCountInString(msg.Content),
		SentAt:     msg.SentAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	subject := p.Subject(msg.RoomID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}
