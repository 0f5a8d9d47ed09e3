package domain

import "time"

type (
	SessionID  string
	ActivityID string
)

// RoomSession is one continuous interval during which a room was active.
// EndTime is nil while the session is open.
type RoomSession struct {
	ID        SessionID  `json:"id"`
	RoomID    RoomID     `json:"roomId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

func (s *RoomSession) Open() bool { return s.EndTime == nil }

// ParticipantActivity is one user's join-to-leave interval within a session.
type ParticipantActivity struct {
	ID            ActivityID `json:"id"`
	UserID        UserID     `json:"userId"`
	SessionID     SessionID  `json:"sessionId"`
	OriginAddress string     `json:"originAddress"`
	JoinTime      time.Time  `json:"joinTime"`
	LeaveTime     *time.Time `json:"leaveTime,omitempty"`
}
