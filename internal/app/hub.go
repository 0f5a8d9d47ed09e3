package app

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type hubConn struct {
	conn  core.SignalConnection
	rooms map[domain.RoomID]struct{}
}

// Hub is the in-process Transport: it owns the connection table and one fan-out
// group per room.
type Hub struct {
	mu     sync.RWMutex
	conns  map[core.ConnectionID]*hubConn
	groups map[domain.RoomID]*core.Group
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[core.ConnectionID]*hubConn),
		groups: make(map[domain.RoomID]*core.Group),
	}
}

var _ core.Transport = (*Hub)(nil)

func (h *Hub) Attach(id core.ConnectionID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = &hubConn{conn: conn, rooms: make(map[domain.RoomID]struct{})}
}

// Detach forgets the connection and removes it from every group it was in.
func (h *Hub) Detach(id core.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hc, ok := h.conns[id]
	if !ok {
		return
	}
	for room := range hc.rooms {
		h.removeLocked(room, id)
	}
	delete(h.conns, id)
}

// Close shuts the underlying transport; the adapter's read loop then reports the disconnect.
func (h *Hub) Close(id core.ConnectionID) {
	h.mu.RLock()
	hc, ok := h.conns[id]
	h.mu.RUnlock()
	if ok {
		hc.conn.Close()
	}
}

func (h *Hub) AddToGroup(room domain.RoomID, id core.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hc, ok := h.conns[id]
	if !ok {
		return
	}
	g, ok := h.groups[room]
	if !ok {
		g = core.NewGroup(room)
		h.groups[room] = g
	}
	g.Add(id, hc.conn)
	hc.rooms[room] = struct{}{}
}

func (h *Hub) RemoveFromGroup(room domain.RoomID, id core.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hc, ok := h.conns[id]; ok {
		delete(hc.rooms, room)
	}
	h.removeLocked(room, id)
}

func (h *Hub) removeLocked(room domain.RoomID, id core.ConnectionID) {
	g, ok := h.groups[room]
	if !ok {
		return
	}
	if g.Remove(id) {
		delete(h.groups, room)
	}
}

func (h *Hub) Send(id core.ConnectionID, msg core.Outbound) error {
	h.mu.RLock()
	hc, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return core.ErrConnectionClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return hc.conn.TrySend(data)
}

func (h *Hub) Broadcast(room domain.RoomID, msg core.Outbound, except ...core.ConnectionID) core.PublishResult {
	h.mu.RLock()
	g, ok := h.groups[room]
	h.mu.RUnlock()
	if !ok {
		return core.PublishResult{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("type", msg.Type).Msg("broadcast marshal")
		return core.PublishResult{}
	}
	return g.Broadcast(data, except...)
}

// GroupSize is the number of connections in the room's group on this instance.
func (h *Hub) GroupSize(room domain.RoomID) int {
	h.mu.RLock()
	g, ok := h.groups[room]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return g.Len()
}
