package core

import (
	"context"

	"github.com/huddlekit/huddle/internal/domain"
)

type LinkState int32

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TrackInfo describes one remote media track that started flowing.
type TrackInfo struct {
	Peer     domain.PeerID
	Kind     string // "audio" or "video"
	TrackID  string
	StreamID string
}

// LinkEvents are callbacks a link fires from its own goroutines.
// Handlers must not block; hand off to a queue instead.
type LinkEvents struct {
	// OnSignal emits an outbound negotiation blob for the remote peer.
	OnSignal func(data []byte)
	// OnTrack fires once per remote track when media starts flowing.
	OnTrack func(info TrackInfo)
	// OnStateChange reports transport state transitions.
	OnStateChange func(state LinkState)
}

// PeerLink is one peer-to-peer media connection.
type PeerLink interface {
	Peer() domain.PeerID

	// Start begins the link's lifecycle. When we are the initiator it
	// kicks off negotiation; otherwise it waits for the remote offer.
	Start(ctx context.Context) error

	// HandleSignal applies one relayed blob: offer, answer or candidate.
	// Candidates arriving before the remote description are buffered.
	HandleSignal(data []byte) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// LinkFactory mints links bound to shared local media and ICE config.
// The initiator flag follows the room convention: whoever learns about an
// existing peer from the roster initiates; the existing peer answers.
type LinkFactory interface {
	NewLink(peer domain.PeerID, initiator bool, ev LinkEvents) (PeerLink, error)
}
