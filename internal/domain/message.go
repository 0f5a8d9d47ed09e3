package domain

import "time"

const MaxMessageLen = 4000

type MessageID string

// Message is a persisted chat record. Content is plaintext at this layer;
// storage encrypts it at rest.
type Message struct {
	ID       MessageID `json:"id"`
	RoomID   RoomID    `json:"roomId"`
	SenderID UserID    `json:"senderId"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}
