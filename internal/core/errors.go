// Package core defines the contracts between the meeting client's layers:
// the room channel, peer links, provisioning and the error taxonomy shared
// by all of them.
package core

import "errors"

// Failure categories surfaced to callers. Adapters wrap transport-specific
// causes with %w around one of these so callers can branch with errors.Is.
var (
	// ErrAuth means credentials or a room token were rejected. Retrying the
	// same operation without re-provisioning will fail again.
	ErrAuth = errors.New("authentication rejected")

	// ErrConnection covers transport establishment and loss.
	ErrConnection = errors.New("connection failed")

	// ErrMediaAccess means local capture devices were denied or absent.
	// The session may proceed receive-only.
	ErrMediaAccess = errors.New("media access denied")

	// ErrPeerNegotiation covers offer/answer/candidate failures on one link.
	// It is scoped to that peer and never fatal to the session.
	ErrPeerNegotiation = errors.New("peer negotiation failed")

	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("closed")
)
