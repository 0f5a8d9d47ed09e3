package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// PresenceStore is the shared "active users per room" set. Implementations must be
// safe for concurrent add/remove from many processes; set semantics, not counters.
type PresenceStore interface {
	AddActive(ctx context.Context, room domain.RoomID, user domain.UserID) error
	RemoveActive(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Members(ctx context.Context, room domain.RoomID) ([]domain.UserID, error)
	Count(ctx context.Context, room domain.RoomID) (int64, error)
}

// SessionLedger records the durable audit trail of room activity.
type SessionLedger interface {
	// OpenOrGetSession never leaves two open sessions for the same room.
	OpenOrGetSession(ctx context.Context, room domain.RoomID) (*domain.RoomSession, error)
	// RecordJoin fails with a conflict when session has already been closed.
	RecordJoin(ctx context.Context, session domain.SessionID, user domain.UserID, origin string) (domain.ActivityID, error)
	// RecordLeave is a no-op for an activity that is already closed.
	RecordLeave(ctx context.Context, activity domain.ActivityID) error
	// CloseSession ends the open session of room when none of its activities is
	// still open, and reports whether it did.
	CloseSession(ctx context.Context, room domain.RoomID) (bool, error)
}

// MessageStore persists chat history.
type MessageStore interface {
	Insert(ctx context.Context, msg *domain.Message) error
	ListByRoom(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// UserDirectory resolves identities to display profiles.
type UserDirectory interface {
	FindUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// RoomDirectory answers room existence.
type RoomDirectory interface {
	FindRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
}

// MessagePublisher hands persisted chat to downstream consumers (summaries, mail).
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg domain.Message, senderName string) error
}
