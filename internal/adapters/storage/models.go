package storage

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type UserModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	FirstName string `gorm:"size:100;not null"`
	LastName  string `gorm:"size:100"`
	Email     string `gorm:"size:255;index"`
	CreatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) toDomain() *domain.User {
	return &domain.User{ID: domain.UserID(m.ID), FirstName: m.FirstName, LastName: m.LastName, Email: m.Email}
}

type RoomModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:200;not null"`
	CreatedAt time.Time
	ExpiresAt *time.Time
	IsActive  bool `gorm:"not null"`
}

func (RoomModel) TableName() string { return "rooms" }

func (m *RoomModel) toDomain() *domain.Room {
	return &domain.Room{ID: domain.RoomID(m.ID), Name: m.Name, CreatedAt: m.CreatedAt, ExpiresAt: m.ExpiresAt, IsActive: m.IsActive}
}

// RoomSessionModel carries a partial unique index so the database itself refuses a
// second open session for a room.
type RoomSessionModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	RoomID    string    `gorm:"size:64;not null;index:idx_open_session,unique,where:end_time IS NULL"`
	StartTime time.Time `gorm:"not null"`
	EndTime   *time.Time
}

func (RoomSessionModel) TableName() string { return "room_sessions" }

func (m *RoomSessionModel) toDomain() *domain.RoomSession {
	return &domain.RoomSession{ID: domain.SessionID(m.ID), RoomID: domain.RoomID(m.RoomID), StartTime: m.StartTime, EndTime: m.EndTime}
}

type ParticipantActivityModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	UserID        string    `gorm:"size:64;not null;index"`
	SessionID     string    `gorm:"size:36;not null;index"`
	OriginAddress string    `gorm:"size:64"`
	JoinTime      time.Time `gorm:"not null"`
	LeaveTime     *time.Time
}

func (ParticipantActivityModel) TableName() string { return "participant_activities" }

func (m *ParticipantActivityModel) toDomain() *domain.ParticipantActivity {
	return &domain.ParticipantActivity{
		ID:            domain.ActivityID(m.ID),
		UserID:        domain.UserID(m.UserID),
		SessionID:     domain.SessionID(m.SessionID),
		OriginAddress: m.OriginAddress,
		JoinTime:      m.JoinTime,
		LeaveTime:     m.LeaveTime,
	}
}

// MessageModel.Content holds the sealed, base64-encoded content.
type MessageModel struct {
	ID       string    `gorm:"primaryKey;size:36"`
	RoomID   string    `gorm:"size:64;not null;index:idx_room_sent,priority:1"`
	SenderID string    `gorm:"size:64;not null"`
	Content  string    `gorm:"type:text;not null"`
	SentAt   time.Time `gorm:"not null;index:idx_room_sent,priority:2"`
}

func (MessageModel) TableName() string { return "messages" }
