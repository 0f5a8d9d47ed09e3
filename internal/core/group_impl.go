package core

import (
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Group is a threadsafe fan-out set of connections for one room.
// It never closes adapter-owned resources.
type Group struct {
	room    domain.RoomID
	mu      sync.RWMutex
	members map[ConnectionID]SignalConnection
}

func NewGroup(room domain.RoomID) *Group {
	return &Group{
		room:    room,
		members: make(map[ConnectionID]SignalConnection),
	}
}

func (g *Group) Room() domain.RoomID { return g.room }

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

func (g *Group) Add(id ConnectionID, conn SignalConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[id] = conn
	log.Debug().Str("module", "core.group").Str("room", string(g.room)).Str("conn", string(id)).Msg("member added")
}

// Remove reports whether the group became empty.
func (g *Group) Remove(id ConnectionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
	log.Debug().Str("module", "core.group").Str("room", string(g.room)).Str("conn", string(id)).Msg("member removed")
	return len(g.members) == 0
}

// Broadcast sends data to every member except the listed connections.
func (g *Group) Broadcast(data Frame, except ...ConnectionID) PublishResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := PublishResult{}
	for id, m := range g.members {
		if slices.Contains(except, id) {
			continue
		}
		if err := m.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.group").Str("room", string(g.room)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
