package core

import "github.com/huddlekit/huddle/internal/domain"

// RoomEvent is one validated message from the room channel. The concrete
// types below form a closed set; consumers switch on them.
type RoomEvent interface{ roomEvent() }

// Introduction carries the roster already present when we joined.
// We initiate a link toward each listed peer.
type Introduction struct {
	Peers []domain.PeerID
}

// PeerJoined announces a newcomer. The newcomer initiates toward us,
// so we only prepare to answer.
type PeerJoined struct {
	Peer domain.PeerID
}

// PeerLeft announces a departure observed by the relay.
type PeerLeft struct {
	Peer domain.PeerID
}

// SignalIn is a relayed negotiation blob addressed to us. Data is opaque
// to the channel; only the link layer interprets it.
type SignalIn struct {
	From domain.PeerID
	To   domain.PeerID
	Data []byte
}

// RoomError is a non-fatal error pushed by the relay.
type RoomError struct {
	Message string
}

// Reconnected reports that the channel re-established after a drop and we
// hold a fresh identity. All previous peer identities are void.
type Reconnected struct {
	Self domain.PeerID
}

// Disconnected is terminal: the channel is gone and no further events
// follow. Intentional marks a local Close rather than a network failure.
type Disconnected struct {
	Cause       error
	Intentional bool
}

func (Introduction) roomEvent() {}
func (PeerJoined) roomEvent()   {}
func (PeerLeft) roomEvent()     {}
func (SignalIn) roomEvent()     {}
func (RoomError) roomEvent()    {}
func (Reconnected) roomEvent()  {}
func (Disconnected) roomEvent() {}
