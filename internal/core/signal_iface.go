package core

import "errors"

// ConnID identifies one connection to the authority.
type ConnID string

// Frame is a raw binary payload.
type Frame []byte

var ErrBackpressure = errors.New("backpressure")
var ErrClosed = errors.New("connection closed")

// SignalConnection abstracts a connection to one client of the authority.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
