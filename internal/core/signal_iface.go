package core

import "errors"

// Frame is a raw serialized payload.
type Frame []byte

// ConnectionID identifies one live transport session.
type ConnectionID string

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
