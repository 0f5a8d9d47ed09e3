package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cipher seals content before it reaches the database. aad binds a blob to its row.
type Cipher interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(blob, aad []byte) ([]byte, error)
}

type Messages struct {
	db     *gorm.DB
	cipher Cipher
}

func NewMessages(db *gorm.DB, cipher Cipher) *Messages {
	return &Messages{db: db, cipher: cipher}
}

// Insert fills in a missing id or timestamp and stores the sealed content.
func (s *Messages) Insert(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = domain.MessageID(uuid.NewString())
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	sealed, err := s.cipher.Seal([]byte(msg.Content), []byte(msg.ID))
	if err != nil {
		return fmt.Errorf("seal message: %w", err)
	}
	m := MessageModel{
		ID:       string(msg.ID),
		RoomID:   string(msg.RoomID),
		SenderID: string(msg.SenderID),
		Content:  base64.StdEncoding.EncodeToString(sealed),
		SentAt:   msg.SentAt,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Transient("insert message", err)
	}
	return nil
}

// ListByRoom returns up to limit of the latest messages of room, oldest first.
func (s *Messages) ListByRoom(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []MessageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("sent_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domain.Transient("list messages", err)
	}
	slices.Reverse(rows)

	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		sealed, err := base64.StdEncoding.DecodeString(r.Content)
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", r.ID, err)
		}
		plain, err := s.cipher.Open(sealed, []byte(r.ID))
		if err != nil {
			return nil, fmt.Errorf("open message %s: %w", r.ID, err)
		}
		out = append(out, domain.Message{
			ID:       domain.MessageID(r.ID),
			RoomID:   domain.RoomID(r.RoomID),
			SenderID: domain.UserID(r.SenderID),
			Content:  string(plain),
			SentAt:   r.SentAt,
		})
	}
	return out, nil
}
