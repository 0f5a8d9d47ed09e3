package orch

import (
	"context"
	"errors"
	"slices"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const (
	EventExistingParticipants = "ExistingParticipants"
	EventUserJoined           = "UserJoined"
	EventUserLeft             = "UserLeft"
	EventLeftRoom             = "LeftRoom"
	EventSuperseded           = "Superseded"
)

const maxJoinAttempts = 3

type userLeft struct {
	UserID domain.UserID `json:"userId"`
}

type roomRef struct {
	RoomID domain.RoomID `json:"roomId"`
}

// JoinRoom moves an Unjoined connection into room. The caller receives the other
// participants before anyone else learns about the join.
func (o *Orchestrator) JoinRoom(ctx context.Context, id core.ConnectionID, roomID domain.RoomID) ([]domain.Participant, error) {
	if roomID == "" || len(roomID) > domain.MaxRoomIDLen {
		return nil, domain.Validation("invalid room id")
	}
	p := o.peer(id)
	if p == nil {
		return nil, domain.Validation("unknown connection")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, domain.Validation("connection closed")
	}
	if p.room != "" {
		return nil, domain.Validation("already joined room %s", p.room)
	}

	participants, err := o.join(ctx, p, roomID)
	if err != nil {
		o.Metrics.JoinFailures.WithLabelValues(string(domain.CodeOf(err))).Inc()
		o.Log.Warn().Err(err).Str("conn", string(id)).Str("room", string(roomID)).Msg("join failed")
		return nil, err
	}
	o.Metrics.Joins.Inc()
	return participants, nil
}

func (o *Orchestrator) join(ctx context.Context, p *peer, roomID domain.RoomID) ([]domain.Participant, error) {
	dctx, cancel := o.storageCtx(ctx)
	defer cancel()

	room, err := o.Rooms.FindRoom(dctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Joinable(o.Now()) {
		return nil, domain.NotFound("room %s not found", roomID)
	}
	user, err := o.Users.FindUser(dctx, p.user)
	if err != nil {
		return nil, err
	}

	if err := o.resolveDuplicate(ctx, p, roomID); err != nil {
		return nil, err
	}

	presenceAdded := true
	if err := o.Presence.AddActive(dctx, roomID, p.user); err != nil {
		presenceAdded = false
		o.Log.Warn().Err(err).Str("room", string(roomID)).Str("user", string(p.user)).Msg("presence add failed")
	}
	revert := func() {
		if !presenceAdded {
			return
		}
		if err := o.Presence.RemoveActive(dctx, roomID, p.user); err != nil {
			o.Log.Warn().Err(err).Str("room", string(roomID)).Msg("presence revert failed")
		}
	}

	session, activity, err := o.recordJoin(dctx, roomID, p)
	if err != nil {
		revert()
		return nil, err
	}

	participants := o.snapshot(dctx, roomID, p)
	o.sendTo(p.id, core.Outbound{Type: EventExistingParticipants, Data: participants})

	o.Registry.AddConnection(p.id, p.user, roomID)
	o.Transport.AddToGroup(roomID, p.id)
	p.room = roomID
	p.activity = activity

	res := o.Transport.Broadcast(roomID, core.Outbound{Type: EventUserJoined, Data: domain.NewParticipant(user)}, p.id)
	o.handleDropped(roomID, res)

	o.Log.Info().Str("conn", string(p.id)).Str("user", string(p.user)).Str("room", string(roomID)).
		Str("session", string(session.ID)).Int("existing", len(participants)).Msg("joined")
	return participants, nil
}

// recordJoin opens or reuses the room's session and records p's activity in it. A
// session closed between the two steps by the last leaver is replaced by a new one.
func (o *Orchestrator) recordJoin(ctx context.Context, roomID domain.RoomID, p *peer) (*domain.RoomSession, domain.ActivityID, error) {
	for attempt := 1; ; attempt++ {
		session, err := o.Ledger.OpenOrGetSession(ctx, roomID)
		if err != nil {
			return nil, "", domain.Transient("open session", err)
		}
		activity, err := o.Ledger.RecordJoin(ctx, session.ID, p.user, p.origin)
		if err == nil {
			return session, activity, nil
		}
		if errors.Is(err, domain.ErrConflict) && attempt < maxJoinAttempts {
			o.Log.Debug().Str("room", string(roomID)).Str("session", string(session.ID)).Msg("session closed during join, retrying")
			continue
		}
		return nil, "", domain.Transient("record join", err)
	}
}

// snapshot lists the other users in the room. Profiles that cannot be loaded are
// reported by id only.
func (o *Orchestrator) snapshot(ctx context.Context, roomID domain.RoomID, p *peer) []domain.Participant {
	ids := o.Registry.GetUsersInRoom(roomID, p.id)
	out := make([]domain.Participant, 0, len(ids))
	for _, uid := range ids {
		if uid == p.user {
			continue
		}
		u, err := o.Users.FindUser(ctx, uid)
		if err != nil {
			o.Log.Warn().Err(err).Str("user", string(uid)).Msg("participant profile unavailable")
			out = append(out, domain.Participant{ID: uid})
			continue
		}
		out = append(out, domain.NewParticipant(u))
	}
	return out
}

// resolveDuplicate applies DuplicatePolicy when the user already holds a joined
// connection on this instance.
//
// Lock order: a joining peer may lock a registered peer, never the reverse. A
// registered peer is already joined and a second join on it fails before reaching here.
func (o *Orchestrator) resolveDuplicate(ctx context.Context, p *peer, roomID domain.RoomID) error {
	existing, ok := o.Registry.GetConnectionIdForUser(p.user)
	if !ok || existing == p.id {
		return nil
	}
	if o.DuplicatePolicy == DuplicateReject {
		return domain.Conflict("user already joined from another connection")
	}
	old := o.peer(existing)
	if old == nil {
		return nil
	}
	old.mu.Lock()
	defer old.mu.Unlock()
	if old.room == "" {
		return nil
	}
	prev := old.room
	o.sendTo(old.id, core.Outbound{Type: EventSuperseded, Data: roomRef{RoomID: prev}})
	o.leaveLocked(ctx, old, prev != roomID)
	o.Log.Info().Str("conn", string(old.id)).Str("by", string(p.id)).Str("room", string(prev)).Msg("superseded")
	return nil
}

// LeaveRoom returns a joined connection to Unjoined. The transport stays open.
func (o *Orchestrator) LeaveRoom(ctx context.Context, id core.ConnectionID) (domain.RoomID, error) {
	p := o.peer(id)
	if p == nil {
		return "", domain.Validation("unknown connection")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.room == "" {
		return "", domain.Validation("not in a room")
	}
	room := p.room
	o.leaveLocked(ctx, p, true)
	o.sendTo(id, core.Outbound{Type: EventLeftRoom, Data: roomRef{RoomID: room}})
	return room, nil
}

// leaveLocked runs the leave cleanup for p. p.mu must be held. With closeIfEmpty the
// room's open session is ended once nobody is present.
func (o *Orchestrator) leaveLocked(ctx context.Context, p *peer, closeIfEmpty bool) {
	user, room, ok := o.Registry.RemoveConnection(p.id)
	if !ok {
		if p.room == "" {
			return
		}
		// registered state was already gone; fall back to the peer's own view
		user, room = p.user, p.room
	}
	o.Transport.RemoveFromGroup(room, p.id)

	dctx, cancel := o.storageCtx(ctx)
	defer cancel()

	if !o.userStillIn(room, user) {
		if err := o.Presence.RemoveActive(dctx, room, user); err != nil {
			o.Metrics.CleanupErrors.WithLabelValues("presence").Inc()
			o.Log.Warn().Err(err).Str("room", string(room)).Str("user", string(user)).Msg("presence remove failed")
		}
	}
	if p.activity != "" {
		if err := o.Ledger.RecordLeave(dctx, p.activity); err != nil {
			o.Metrics.CleanupErrors.WithLabelValues("ledger").Inc()
			o.Log.Warn().Err(err).Str("activity", string(p.activity)).Msg("record leave failed")
		}
	}

	res := o.Transport.Broadcast(room, core.Outbound{Type: EventUserLeft, Data: userLeft{UserID: user}}, p.id)
	o.handleDropped(room, res)

	if _, still := o.Registry.GetConnectionIdForUser(user); !still {
		o.Limiter.Forget(user)
	}
	if closeIfEmpty && o.roomEmpty(dctx, room) {
		closed, err := o.Ledger.CloseSession(dctx, room)
		switch {
		case err != nil:
			o.Metrics.CleanupErrors.WithLabelValues("session").Inc()
			o.Log.Warn().Err(err).Str("room", string(room)).Msg("close session failed")
		case closed:
			o.Log.Info().Str("room", string(room)).Msg("session closed")
		default:
			o.Log.Debug().Str("room", string(room)).Msg("session kept open, activities still live")
		}
	}

	p.room = ""
	p.activity = ""
	o.Metrics.Leaves.Inc()
	o.Log.Info().Str("conn", string(p.id)).Str("user", string(user)).Str("room", string(room)).Msg("left")
}

func (o *Orchestrator) userStillIn(room domain.RoomID, user domain.UserID) bool {
	return slices.Contains(o.Registry.GetUsersInRoom(room, ""), user)
}

// roomEmpty consults the shared presence set and falls back to the local registry
// when presence is unavailable.
func (o *Orchestrator) roomEmpty(ctx context.Context, room domain.RoomID) bool {
	n, err := o.Presence.Count(ctx, room)
	if err != nil {
		o.Log.Warn().Err(err).Str("room", string(room)).Msg("presence count failed")
		return o.Registry.Count(room) == 0
	}
	return n == 0
}
