package app

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
)

// MemoryPresence is a single-instance PresenceStore.
type MemoryPresence struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.UserID]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[domain.RoomID]map[domain.UserID]struct{})}
}

func (p *MemoryPresence) AddActive(_ context.Context, room domain.RoomID, user domain.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.rooms[room]
	if !ok {
		set = make(map[domain.UserID]struct{})
		p.rooms[room] = set
	}
	set[user] = struct{}{}
	return nil
}

func (p *MemoryPresence) RemoveActive(_ context.Context, room domain.RoomID, user domain.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.rooms[room]; ok {
		delete(set, user)
		if len(set) == 0 {
			delete(p.rooms, room)
		}
	}
	return nil
}

func (p *MemoryPresence) Members(_ context.Context, room domain.RoomID) ([]domain.UserID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.rooms[room]
	out := make([]domain.UserID, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	return out, nil
}

func (p *MemoryPresence) Count(_ context.Context, room domain.RoomID) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int64(len(p.rooms[room])), nil
}
