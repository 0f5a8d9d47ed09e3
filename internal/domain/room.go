package domain

import "time"

const MaxRoomIDLen = 64

type RoomID string

type Room struct {
	ID        RoomID     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	IsActive  bool       `json:"isActive"`
}

// Joinable reports whether participants may enter the room at now.
func (r *Room) Joinable(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}
