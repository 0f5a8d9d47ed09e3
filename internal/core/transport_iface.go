package core

import "github.com/dkeye/Huddle/internal/domain"

// Outbound is an event pushed to clients. It is serialized as {"type": ..., "data": ...}.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnectionID
}

// Transport is the group messaging primitive: unicast per connection, multicast per room.
// Sends never block; delivery is the adapter's concern.
type Transport interface {
	Attach(id ConnectionID, conn SignalConnection)
	Detach(id ConnectionID)
	Close(id ConnectionID)

	AddToGroup(room domain.RoomID, id ConnectionID)
	RemoveFromGroup(room domain.RoomID, id ConnectionID)

	Send(id ConnectionID, msg Outbound) error
	Broadcast(room domain.RoomID, msg Outbound, except ...ConnectionID) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"connectionCount"`
}
