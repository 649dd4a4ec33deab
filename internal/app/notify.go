package app

import (
	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

type NoteKind int

const (
	NotePeerPending NoteKind = iota
	NotePeerConnected
	NotePeerTrack
	NotePeerLeft
	NotePeerFailed
	NoteRoomFull
	NoteRoomError
	NoteReconnected
	NoteDisconnected
)

func (k NoteKind) String() string {
	switch k {
	case NotePeerPending:
		return "peer_pending"
	case NotePeerConnected:
		return "peer_connected"
	case NotePeerTrack:
		return "peer_track"
	case NotePeerLeft:
		return "peer_left"
	case NotePeerFailed:
		return "peer_failed"
	case NoteRoomFull:
		return "room_full"
	case NoteRoomError:
		return "room_error"
	case NoteReconnected:
		return "reconnected"
	case NoteDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Notification is one user-visible mesh happening. The mesh never blocks on
// a slow consumer; stale notifications are dropped with a warning instead.
type Notification struct {
	Kind  NoteKind
	Peer  domain.PeerID
	Track core.TrackInfo
	Err   error
}
