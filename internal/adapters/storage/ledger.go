package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errSessionClosed = errors.New("session closed")

var _ core.SessionLedger = (*Ledger)(nil)

// Ledger is the durable RoomSession / ParticipantActivity audit trail.
type Ledger struct {
	db    *gorm.DB
	group singleflight.Group
	now   func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// OpenOrGetSession returns the open session of room, creating one if needed.
// Concurrent callers in this process share one lookup; across processes the
// idx_open_session index rejects the loser, which then reads the winner's row.
func (l *Ledger) OpenOrGetSession(ctx context.Context, room domain.RoomID) (*domain.RoomSession, error) {
	v, err, _ := l.group.Do(string(room), func() (any, error) {
		return l.openOrGet(ctx, room)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RoomSessionModel).toDomain(), nil
}

func (l *Ledger) openOrGet(ctx context.Context, room domain.RoomID) (*RoomSessionModel, error) {
	db := l.db.WithContext(ctx)
	existing, err := findOpenSession(db, room)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Transient("find open session", err)
	}

	m := &RoomSessionModel{ID: uuid.NewString(), RoomID: string(room), StartTime: l.now()}
	if err := db.Create(m).Error; err != nil {
		if existing, rerr := findOpenSession(db, room); rerr == nil {
			log.Debug().Str("module", "storage").Str("room", string(room)).Msg("open session created concurrently")
			return existing, nil
		}
		return nil, domain.Transient("create session", err)
	}
	log.Info().Str("module", "storage").Str("room", string(room)).Str("session", m.ID).Msg("session opened")
	return m, nil
}

func findOpenSession(db *gorm.DB, room domain.RoomID) (*RoomSessionModel, error) {
	var m RoomSessionModel
	err := db.Where("room_id = ? AND end_time IS NULL", string(room)).
		Order("start_time DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordJoin adds an activity to session. The session row is locked for the insert,
// so a concurrent CloseSession either sees the activity or ends the session first, in
// which case the join fails with a conflict.
func (l *Ledger) RecordJoin(ctx context.Context, session domain.SessionID, user domain.UserID, origin string) (domain.ActivityID, error) {
	m := ParticipantActivityModel{
		ID:            uuid.NewString(),
		UserID:        string(user),
		SessionID:     string(session),
		OriginAddress: origin,
		JoinTime:      l.now(),
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s RoomSessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", string(session)).Error; err != nil {
			return err
		}
		if s.EndTime != nil {
			return errSessionClosed
		}
		return tx.Create(&m).Error
	})
	switch {
	case errors.Is(err, errSessionClosed):
		return "", domain.Conflict("session %s is closed", session)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", domain.NotFound("session %s not found", session)
	case err != nil:
		return "", domain.Transient("record join", err)
	}
	return domain.ActivityID(m.ID), nil
}

// RecordLeave sets the leave time once. Repeated calls keep the first value.
func (l *Ledger) RecordLeave(ctx context.Context, activity domain.ActivityID) error {
	db := l.db.WithContext(ctx)
	res := db.Model(&ParticipantActivityModel{}).
		Where("id = ? AND leave_time IS NULL", string(activity)).
		Update("leave_time", l.now())
	if res.Error != nil {
		return domain.Transient("record leave", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.Model(&ParticipantActivityModel{}).Where("id = ?", string(activity)).Count(&n).Error; err != nil {
		return domain.Transient("record leave", err)
	}
	if n == 0 {
		return domain.NotFound("activity %s not found", activity)
	}
	return nil
}

// CloseSession ends the open session of room unless one of its activities is still
// open, and reports whether it did.
func (l *Ledger) CloseSession(ctx context.Context, room domain.RoomID) (bool, error) {
	closed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s RoomSessionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_id = ? AND end_time IS NULL", string(room)).
			First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var live int64
		if err := tx.Model(&ParticipantActivityModel{}).
			Where("session_id = ? AND leave_time IS NULL", s.ID).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			return nil
		}
		if err := tx.Model(&RoomSessionModel{}).Where("id = ?", s.ID).Update("end_time", l.now()).Error; err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, domain.Transient("close session", err)
	}
	return closed, nil
}

// Activity loads one activity row.
func (l *Ledger) Activity(ctx context.Context, id domain.ActivityID) (*domain.ParticipantActivity, error) {
	var m ParticipantActivityModel
	if err := l.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("activity %s not found", id)
		}
		return nil, domain.Transient("find activity", err)
	}
	return m.toDomain(), nil
}

// Participated reports whether user has an activity in any session of room.
func (l *Ledger) Participated(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&ParticipantActivityModel{}).
		Joins("JOIN room_sessions ON room_sessions.id = participant_activities.session_id").
		Where("room_sessions.room_id = ? AND participant_activities.user_id = ?", string(room), string(user)).
		Count(&n).Error
	if err != nil {
		return false, domain.Transient("find participation", err)
	}
	return n > 0, nil
}

// OpenSessions counts open sessions of room.
func (l *Ledger) OpenSessions(ctx context.Context, room domain.RoomID) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&RoomSessionModel{}).
		Where("room_id = ? AND end_time IS NULL", string(room)).
		Count(&n).Error
	return n, err
}
