package core

import "github.com/huddlekit/huddle/internal/domain"

// Frame is a raw wire payload.
type Frame []byte

// SignalSender relays a negotiation blob to one peer through the room
// channel. Implementations must be safe for concurrent use.
type SignalSender interface {
	SendSignal(to domain.PeerID, data []byte) error
}

// SignalChannel is the room socket as the mesh sees it.
// Owned by the caller of Dial; the caller must Close() it.
type SignalChannel interface {
	SignalSender

	// Self is our transport-assigned identity. It changes on reconnect;
	// the channel reports the change with a Reconnected event.
	Self() domain.PeerID

	// Events yields room events in arrival order. The channel closes it
	// after a Disconnected event or after Close.
	Events() <-chan RoomEvent

	// Close tears the socket down intentionally. No events are delivered
	// after it returns. Safe to call more than once.
	Close() error
}
