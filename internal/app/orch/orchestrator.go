// Package orch is the relay engine: the per-connection state machine that ties the
// registry, presence, ledger and transport together.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// SignalValidator checks negotiation payloads before they reach the transport.
type SignalValidator interface {
	ValidateOffer(raw json.RawMessage) error
	ValidateAnswer(raw json.RawMessage) error
	ValidateCandidate(raw string) error
}

type DuplicatePolicy string

const (
	// DuplicateReplace detaches the user's older connection from its room.
	DuplicateReplace DuplicatePolicy = "replace"
	// DuplicateReject refuses the second join with a conflict.
	DuplicateReject DuplicatePolicy = "reject"
)

// RouteResult tells a unicast caller whether the target was reachable.
type RouteResult int

const (
	Routed RouteResult = iota
	RoutingMiss
)

func (r RouteResult) String() string {
	if r == Routed {
		return "routed"
	}
	return "routing_miss"
}

// Deps are the collaborators of the engine. Publisher, Policy, Limiter and Metrics are optional.
type Deps struct {
	Registry  *app.Registry
	Transport core.Transport
	Presence  core.PresenceStore
	Ledger    core.SessionLedger
	Messages  core.MessageStore
	Users     core.UserDirectory
	Rooms     core.RoomDirectory
	Publisher core.MessagePublisher
	Validator SignalValidator
	Policy    app.Policy
	Limiter   *app.RateLimiter
	Metrics   *app.Metrics
	Log       zerolog.Logger

	DuplicatePolicy DuplicatePolicy
	StorageTimeout  time.Duration
	MaxMessageLen   int
	Now             func() time.Time
	NewID           func() string
}

type Orchestrator struct {
	Deps

	mu    sync.Mutex
	peers map[core.ConnectionID]*peer
}

// peer is the engine's view of one connection. mu serializes join, leave and
// disconnect so a disconnect that races an in-flight join runs after it.
type peer struct {
	mu       sync.Mutex
	id       core.ConnectionID
	user     domain.UserID
	origin   string
	room     domain.RoomID
	activity domain.ActivityID
	closed   bool
}

func New(d Deps) *Orchestrator {
	if d.Metrics == nil {
		d.Metrics = app.NewMetrics(prometheus.NewRegistry())
	}
	if d.Policy == nil {
		d.Policy = app.SimplePolicy{}
	}
	if d.DuplicatePolicy == "" {
		d.DuplicatePolicy = DuplicateReplace
	}
	if d.StorageTimeout <= 0 {
		d.StorageTimeout = 5 * time.Second
	}
	if d.MaxMessageLen <= 0 {
		d.MaxMessageLen = domain.MaxMessageLen
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	d.Log = d.Log.With().Str("module", "orch").Logger()
	return &Orchestrator{
		Deps:  d,
		peers: make(map[core.ConnectionID]*peer),
	}
}

// Connect attaches an authenticated connection in the Unjoined state.
func (o *Orchestrator) Connect(id core.ConnectionID, user domain.UserID, origin string, conn core.SignalConnection) error {
	if id == "" {
		return domain.Validation("empty connection id")
	}
	if !domain.ValidUserID(user) {
		return domain.Validation("invalid user id")
	}
	o.mu.Lock()
	if _, exists := o.peers[id]; exists {
		o.mu.Unlock()
		return domain.Conflict("connection %s already attached", id)
	}
	o.peers[id] = &peer{id: id, user: user, origin: origin}
	o.mu.Unlock()

	o.Transport.Attach(id, conn)
	o.Metrics.Connections.Inc()
	o.Log.Info().Str("conn", string(id)).Str("user", string(user)).Str("origin", origin).Msg("connected")
	return nil
}

// OnDisconnect tears down everything the connection owned. Every cleanup step is
// independent; failures are logged and never returned. Calling it twice is a no-op.
func (o *Orchestrator) OnDisconnect(ctx context.Context, id core.ConnectionID) {
	o.mu.Lock()
	p, ok := o.peers[id]
	delete(o.peers, id)
	o.mu.Unlock()
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	o.leaveLocked(ctx, p, true)
	o.Transport.Detach(id)
	o.Metrics.Connections.Dec()
	o.Log.Info().Str("conn", string(id)).Str("user", string(p.user)).Msg("disconnected")
}

// WhoAmI reports the identity and current room of a connection.
func (o *Orchestrator) WhoAmI(ctx context.Context, id core.ConnectionID) (Identity, error) {
	p := o.peer(id)
	if p == nil {
		return Identity{}, domain.Validation("unknown connection")
	}
	out := Identity{UserID: p.user}
	if room, ok := o.Registry.GetRoomForConnection(id); ok {
		out.RoomID = room
	}
	dctx, cancel := o.storageCtx(ctx)
	defer cancel()
	if u, err := o.Users.FindUser(dctx, p.user); err == nil {
		out.FirstName = u.FirstName
	}
	return out, nil
}

type Identity struct {
	UserID    domain.UserID `json:"userId"`
	FirstName string        `json:"firstName,omitempty"`
	RoomID    domain.RoomID `json:"roomId,omitempty"`
}

func (o *Orchestrator) peer(id core.ConnectionID) *peer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peers[id]
}

// storageCtx ignores the caller's cancellation and is bounded by StorageTimeout.
func (o *Orchestrator) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.StorageTimeout)
}

// handleDropped applies the backpressure policy to connections whose buffers were full.
func (o *Orchestrator) handleDropped(room domain.RoomID, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	o.Metrics.Dropped.Add(float64(len(res.Dropped)))
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.Log.Warn().Str("conn", string(slow)).Str("room", string(room)).Msg("kicking slow connection")
			o.Transport.Close(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) sendTo(id core.ConnectionID, msg core.Outbound) {
	err := o.Transport.Send(id, msg)
	if err == nil {
		return
	}
	o.Log.Warn().Err(err).Str("conn", string(id)).Str("type", msg.Type).Msg("send failed")
	if errors.Is(err, core.ErrBackpressure) {
		room, _ := o.Registry.GetRoomForConnection(id)
		o.handleDropped(room, core.PublishResult{Dropped: []core.ConnectionID{id}})
	}
}
