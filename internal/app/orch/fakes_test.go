package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	full     bool
	closed   bool
	onClosed func()
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	fn := c.onClosed
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *fakeConn) events(t *testing.T) []event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event, 0, len(c.frames))
	for _, f := range c.frames {
		var e event
		require.NoError(t, json.Unmarshal(f, &e))
		out = append(out, e)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ string) []event {
	t.Helper()
	var out []event
	for _, e := range c.events(t) {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type fakeLedger struct {
	mu         sync.Mutex
	seq        int
	open       map[domain.RoomID]*domain.RoomSession
	closed     []domain.SessionID
	sessions   map[domain.SessionID]*domain.RoomSession
	activities map[domain.ActivityID]*domain.ParticipantActivity
	failOpen   error
	failJoin   error
	failLeave  error
	// closeAfterOpen ends this many sessions right after handing them out.
	closeAfterOpen int

	joinStarted chan struct{}
	joinGate    chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		open:       make(map[domain.RoomID]*domain.RoomSession),
		sessions:   make(map[domain.SessionID]*domain.RoomSession),
		activities: make(map[domain.ActivityID]*domain.ParticipantActivity),
	}
}

func (l *fakeLedger) OpenOrGetSession(_ context.Context, room domain.RoomID) (*domain.RoomSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOpen != nil {
		return nil, l.failOpen
	}
	if s, ok := l.open[room]; ok {
		return s, nil
	}
	l.seq++
	s := &domain.RoomSession{ID: domain.SessionID(fmt.Sprintf("s%d", l.seq)), RoomID: room, StartTime: time.Now()}
	l.open[room] = s
	l.sessions[s.ID] = s
	if l.closeAfterOpen > 0 {
		l.closeAfterOpen--
		now := time.Now()
		s.EndTime = &now
		l.closed = append(l.closed, s.ID)
		delete(l.open, room)
	}
	return s, nil
}

func (l *fakeLedger) RecordJoin(_ context.Context, session domain.SessionID, user domain.UserID, origin string) (domain.ActivityID, error) {
	if l.joinStarted != nil {
		close(l.joinStarted)
		<-l.joinGate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failJoin != nil {
		return "", l.failJoin
	}
	if s, ok := l.sessions[session]; !ok || s.EndTime != nil {
		return "", domain.Conflict("session %s is closed", session)
	}
	l.seq++
	id := domain.ActivityID(fmt.Sprintf("a%d", l.seq))
	l.activities[id] = &domain.ParticipantActivity{ID: id, UserID: user, SessionID: session, OriginAddress: origin, JoinTime: time.Now()}
	return id, nil
}

func (l *fakeLedger) RecordLeave(_ context.Context, id domain.ActivityID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failLeave != nil {
		return l.failLeave
	}
	a, ok := l.activities[id]
	if !ok {
		return domain.NotFound("activity %s", id)
	}
	if a.LeaveTime == nil {
		now := time.Now()
		a.LeaveTime = &now
	}
	return nil
}

func (l *fakeLedger) CloseSession(_ context.Context, room domain.RoomID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.open[room]
	if !ok {
		return false, nil
	}
	for _, a := range l.activities {
		if a.SessionID == s.ID && a.LeaveTime == nil {
			return false, nil
		}
	}
	now := time.Now()
	s.EndTime = &now
	l.closed = append(l.closed, s.ID)
	delete(l.open, room)
	return true, nil
}

func (l *fakeLedger) openActivities(user domain.UserID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.activities {
		if a.UserID == user && a.LeaveTime == nil {
			n++
		}
	}
	return n
}

func (l *fakeLedger) activityCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.activities)
}

func (l *fakeLedger) closedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.closed)
}

// downPresence fails every call, like an unreachable Redis.
type downPresence struct{}

var errPresenceDown = domain.Transient("presence", errors.New("connection refused"))

func (downPresence) AddActive(context.Context, domain.RoomID, domain.UserID) error {
	return errPresenceDown
}
func (downPresence) RemoveActive(context.Context, domain.RoomID, domain.UserID) error {
	return errPresenceDown
}
func (downPresence) Members(context.Context, domain.RoomID) ([]domain.UserID, error) {
	return nil, errPresenceDown
}
func (downPresence) Count(context.Context, domain.RoomID) (int64, error) {
	return 0, errPresenceDown
}

type fakeMessages struct {
	mu   sync.Mutex
	rows []domain.Message
	fail error
}

func (m *fakeMessages) Insert(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rows = append(m.rows, *msg)
	return nil
}

func (m *fakeMessages) ListByRoom(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, r := range m.rows {
		if r.RoomID == room {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *fakeMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fakeDirectory struct {
	users map[domain.UserID]*domain.User
	rooms map[domain.RoomID]*domain.Room
}

func (d *fakeDirectory) FindUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, domain.NotFound("user %s not found", id)
}

func (d *fakeDirectory) FindRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	if r, ok := d.rooms[id]; ok {
		return r, nil
	}
	return nil, domain.NotFound("room %s not found", id)
}

type fakePublisher struct {
	mu    sync.Mutex
	names []string
}

func (p *fakePublisher) PublishMessage(_ context.Context, _ domain.Message, senderName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, senderName)
	return nil
}

type acceptAll struct{}

func (acceptAll) ValidateOffer(json.RawMessage) error  { return nil }
func (acceptAll) ValidateAnswer(json.RawMessage) error { return nil }
func (acceptAll) ValidateCandidate(raw string) error {
	if !json.Valid([]byte(raw)) {
		return domain.Validation("candidate must be valid JSON")
	}
	return nil
}

type fixture struct {
	o         *Orchestrator
	hub       *app.Hub
	registry  *app.Registry
	presence  *app.MemoryPresence
	ledger    *fakeLedger
	messages  *fakeMessages
	dir       *fakeDirectory
	publisher *fakePublisher
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		hub:       app.NewHub(),
		registry:  app.NewRegistry(),
		presence:  app.NewMemoryPresence(),
		ledger:    newFakeLedger(),
		messages:  &fakeMessages{},
		publisher: &fakePublisher{},
		dir: &fakeDirectory{
			users: map[domain.UserID]*domain.User{
				"alice": {ID: "alice", FirstName: "Alice", LastName: "Liddell"},
				"bob":   {ID: "bob", FirstName: "Bob"},
				"carol": {ID: "carol", FirstName: "Carol"},
			},
			rooms: map[domain.RoomID]*domain.Room{
				"r1":     {ID: "r1", Name: "Standup", IsActive: true},
				"r2":     {ID: "r2", Name: "Retro", IsActive: true},
				"closed": {ID: "closed", Name: "Old", IsActive: false},
			},
		},
	}
	d := Deps{
		Registry:  f.registry,
		Transport: f.hub,
		Presence:  f.presence,
		Ledger:    f.ledger,
		Messages:  f.messages,
		Users:     f.dir,
		Rooms:     f.dir,
		Publisher: f.publisher,
		Validator: acceptAll{},
		Limiter:   app.NewRateLimiter(100, time.Minute),
	}
	for _, m := range mutate {
		m(&d)
	}
	f.o = New(d)
	return f
}

func (f *fixture) connect(t *testing.T, id core.ConnectionID, user domain.UserID) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	require.NoError(t, f.o.Connect(id, user, "10.0.0.1", c))
	return c
}

func (f *fixture) join(t *testing.T, id core.ConnectionID, room domain.RoomID) []domain.Participant {
	t.Helper()
	ps, err := f.o.JoinRoom(context.Background(), id, room)
	require.NoError(t, err)
	return ps
}
