package domain

import "time"

type (
	// PeerID is the transport-assigned identity of one participant inside a
	// voice room. It is scoped to a single socket connection: the same person
	// rejoining gets a fresh one.
	PeerID string

	// VoiceRoomID names the signaling room a meeting's session lives in.
	VoiceRoomID string
)

// ICEServer is one STUN/TURN entry handed out by the backend.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// VoiceConfig is the static voice infrastructure description served by the
// backend before any session exists.
type VoiceConfig struct {
	SignalURL     string
	ICEServers    []ICEServer
	RequiresToken bool
}

// RoomSession is a short-lived grant to join one voice room.
type RoomSession struct {
	MeetingID MeetingID
	RoomID    VoiceRoomID
	Token     string
	ExpiresAt time.Time
}

func (s RoomSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RenewAt is the instant a holder should fetch a replacement so the grant
// never lapses mid-call.
func (s RoomSession) RenewAt(buffer time.Duration) time.Time {
	return s.ExpiresAt.Add(-buffer)
}
