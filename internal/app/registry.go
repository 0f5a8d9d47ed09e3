package app

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connection is a snapshot of one registered transport session.
type Connection struct {
	ID        core.ConnectionID
	User      domain.UserID
	Room      domain.RoomID
	CreatedAt time.Time
}

// Registry maps live connections to users and rooms. It is per-process and
// authoritative only for unicast routing on this instance.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnectionID]*Connection
	byUser map[domain.UserID]core.ConnectionID
	byRoom map[domain.RoomID]map[core.ConnectionID]struct{}
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnectionID]*Connection),
		byUser: make(map[domain.UserID]core.ConnectionID),
		byRoom: make(map[domain.RoomID]map[core.ConnectionID]struct{}),
		now:    time.Now,
	}
}

// AddConnection records the triple. A prior mapping for the same connection is
// replaced and the user's unicast address now points at this connection.
func (r *Registry) AddConnection(id core.ConnectionID, user domain.UserID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.conns[id]; ok {
		r.unindexLocked(prev)
	}
	c := &Connection{ID: id, User: user, Room: room, CreatedAt: r.now()}
	r.conns[id] = c
	r.byUser[user] = id
	members, ok := r.byRoom[room]
	if !ok {
		members = make(map[core.ConnectionID]struct{})
		r.byRoom[room] = members
	}
	members[id] = struct{}{}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user)).Str("room", string(room)).Msg("connection added")
}

// RemoveConnection drops the connection and returns what it was mapped to.
// ok is false when the connection was unknown; a second call is always a miss.
func (r *Registry) RemoveConnection(id core.ConnectionID) (domain.UserID, domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return "", "", false
	}
	r.unindexLocked(c)
	delete(r.conns, id)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(c.User)).Str("room", string(c.Room)).Msg("connection removed")
	return c.User, c.Room, true
}

// unindexLocked removes c from the secondary indexes. The user index is only
// cleared when it still names c; a newer connection of the same user keeps it.
func (r *Registry) unindexLocked(c *Connection) {
	if r.byUser[c.User] == c.ID {
		delete(r.byUser, c.User)
	}
	if members, ok := r.byRoom[c.Room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(r.byRoom, c.Room)
		}
	}
}

func (r *Registry) GetConnectionIdForUser(user domain.UserID) (core.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[user]
	return id, ok
}

// GetUsersInRoom returns the distinct users mapped to room, optionally leaving out
// one connection.
func (r *Registry) GetUsersInRoom(room domain.RoomID, exclude core.ConnectionID) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.byRoom[room]
	seen := make(map[domain.UserID]struct{}, len(members))
	out := make([]domain.UserID, 0, len(members))
	for id := range members {
		if id == exclude {
			continue
		}
		c := r.conns[id]
		if _, dup := seen[c.User]; dup {
			continue
		}
		seen[c.User] = struct{}{}
		out = append(out, c.User)
	}
	return out
}

func (r *Registry) GetRoomForConnection(id core.ConnectionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return c.Room, true
	}
	return "", false
}

func (r *Registry) GetUserForConnection(id core.ConnectionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return c.User, true
	}
	return "", false
}

// Lookup returns a copy of the registered connection.
func (r *Registry) Lookup(id core.ConnectionID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return *c, true
	}
	return Connection{}, false
}

// Count is the number of connections mapped to room.
func (r *Registry) Count(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[room])
}

func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.byRoom))
	for room, members := range r.byRoom {
		out = append(out, core.RoomInfo{ID: room, MemberCount: len(members)})
	}
	return out
}
