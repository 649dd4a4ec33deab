package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

// PeerState tracks one peer record through its life.
type PeerState int

const (
	// PeerPending: link created, negotiation in flight.
	PeerPending PeerState = iota
	// PeerConnected: transport up or remote media flowing.
	PeerConnected
	// PeerTornDown is terminal. A participant who rejoins shows up under a
	// fresh transport identity, never by reviving an old record.
	PeerTornDown
)

func (s PeerState) String() string {
	switch s {
	case PeerPending:
		return "pending"
	case PeerConnected:
		return "connected"
	case PeerTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

type peerRecord struct {
	id        domain.PeerID
	link      core.PeerLink
	state     PeerState
	initiator bool
	tracks    []core.TrackInfo
	since     time.Time
}

// linkEvent is a link callback re-queued onto the mesh loop.
type linkEvent struct {
	peer  domain.PeerID
	kind  linkEventKind
	data  []byte
	state core.LinkState
	track core.TrackInfo
}

type linkEventKind int

const (
	linkSignalOut linkEventKind = iota
	linkTrackStarted
	linkStateChanged
)

// roster is the mesh membership state machine: who we hold a link with,
// in which state, and who is gone for good. Every method runs on the mesh
// loop goroutine; nothing here locks.
type roster struct {
	self    domain.PeerID
	factory core.LinkFactory
	sender  core.SignalSender
	log     zerolog.Logger

	maxPeers  int
	softLimit int

	ctx     context.Context
	enqueue func(linkEvent)
	notify  func(Notification)
	now     func() time.Time

	peers    map[domain.PeerID]*peerRecord
	gone     map[domain.PeerID]struct{}
	tornDown int
}

// ensurePeer returns the record for id, creating a link when absent.
// Tombstoned, over-capacity and bogus ids yield nil.
func (r *roster) ensurePeer(id domain.PeerID, initiator bool) *peerRecord {
	if id == "" || id == r.self {
		return nil
	}
	if _, dead := r.gone[id]; dead {
		r.log.Debug().Str("peer", string(id)).Msg("event for torn-down peer ignored")
		return nil
	}
	if rec, ok := r.peers[id]; ok {
		return rec
	}
	if len(r.peers) >= r.maxPeers {
		r.log.Warn().Str("peer", string(id)).Int("max_peers", r.maxPeers).Msg("room over capacity, peer ignored")
		r.notify(Notification{Kind: NoteRoomFull, Peer: id})
		return nil
	}
	if r.softLimit > 0 && len(r.peers)+1 > r.softLimit {
		r.log.Warn().Int("peers", len(r.peers)+1).Int("soft_limit", r.softLimit).
			Msg("mesh above comfortable size, expect degraded quality")
	}

	ev := core.LinkEvents{
		OnSignal:      func(data []byte) { r.enqueue(linkEvent{peer: id, kind: linkSignalOut, data: data}) },
		OnTrack:       func(t core.TrackInfo) { r.enqueue(linkEvent{peer: id, kind: linkTrackStarted, track: t}) },
		OnStateChange: func(s core.LinkState) { r.enqueue(linkEvent{peer: id, kind: linkStateChanged, state: s}) },
	}
	link, err := r.factory.NewLink(id, initiator, ev)
	if err != nil {
		r.log.Error().Err(err).Str("peer", string(id)).Msg("link create failed")
		r.notify(Notification{Kind: NotePeerFailed, Peer: id, Err: fmt.Errorf("%w: %v", core.ErrPeerNegotiation, err)})
		return nil
	}

	rec := &peerRecord{id: id, link: link, state: PeerPending, initiator: initiator, since: r.now()}
	r.peers[id] = rec
	r.log.Info().Str("peer", string(id)).Bool("initiator", initiator).Msg("peer pending")
	r.notify(Notification{Kind: NotePeerPending, Peer: id})

	if err := link.Start(r.ctx); err != nil {
		r.log.Error().Err(err).Str("peer", string(id)).Msg("link start failed")
		r.notify(Notification{Kind: NotePeerFailed, Peer: id, Err: fmt.Errorf("%w: %v", core.ErrPeerNegotiation, err)})
		r.teardownPeer(id, "start failure")
		return nil
	}
	return rec
}

// handleSignal routes one relayed blob. A blob from an unknown peer creates
// the answering link: a fast starter's offer can outrun the join broadcast.
func (r *roster) handleSignal(from, to domain.PeerID, data []byte) {
	if to != "" && to != r.self {
		r.log.Debug().Str("to", string(to)).Str("from", string(from)).Msg("misrouted signal dropped")
		return
	}
	if from == "" || from == r.self {
		return
	}
	if _, dead := r.gone[from]; dead {
		r.log.Debug().Str("peer", string(from)).Msg("signal for torn-down peer dropped")
		return
	}
	rec, ok := r.peers[from]
	if !ok {
		rec = r.ensurePeer(from, false)
		if rec == nil {
			return
		}
	}
	if err := rec.link.HandleSignal(data); err != nil {
		r.log.Error().Err(err).Str("peer", string(from)).Msg("signal handling failed")
		r.notify(Notification{Kind: NotePeerFailed, Peer: from, Err: fmt.Errorf("%w: %v", core.ErrPeerNegotiation, err)})
		r.teardownPeer(from, "negotiation failure")
	}
}

func (r *roster) handleLinkEvent(ev linkEvent) {
	rec, ok := r.peers[ev.peer]
	if !ok {
		// torn down while the event sat in the mailbox
		return
	}
	switch ev.kind {
	case linkSignalOut:
		if err := r.sender.SendSignal(ev.peer, ev.data); err != nil {
			// channel loss surfaces as Disconnected shortly, nothing to do here
			r.log.Warn().Err(err).Str("peer", string(ev.peer)).Msg("signal send failed")
		}
	case linkTrackStarted:
		rec.tracks = append(rec.tracks, ev.track)
		r.markConnected(rec)
		r.notify(Notification{Kind: NotePeerTrack, Peer: ev.peer, Track: ev.track})
	case linkStateChanged:
		switch ev.state {
		case core.LinkConnected:
			r.markConnected(rec)
		case core.LinkFailed:
			r.notify(Notification{Kind: NotePeerFailed, Peer: ev.peer, Err: fmt.Errorf("%w: transport failed", core.ErrPeerNegotiation)})
			r.teardownPeer(ev.peer, "transport failed")
		case core.LinkClosed:
			r.teardownPeer(ev.peer, "transport closed")
		}
	}
}

func (r *roster) markConnected(rec *peerRecord) {
	if rec.state == PeerConnected {
		return
	}
	rec.state = PeerConnected
	r.log.Info().Str("peer", string(rec.id)).Msg("peer connected")
	r.notify(Notification{Kind: NotePeerConnected, Peer: rec.id})
}

// teardownPeer destroys the record exactly once. The id is tombstoned so
// stale events and late signals cannot resurrect it.
func (r *roster) teardownPeer(id domain.PeerID, cause string) {
	rec, ok := r.peers[id]
	if !ok {
		return
	}
	delete(r.peers, id)
	r.gone[id] = struct{}{}
	r.tornDown++
	rec.state = PeerTornDown
	if err := rec.link.Close(); err != nil {
		r.log.Debug().Err(err).Str("peer", string(id)).Msg("link close")
	}
	r.log.Info().Str("peer", string(id)).Str("cause", cause).Msg("peer torn down")
	r.notify(Notification{Kind: NotePeerLeft, Peer: id})
}

func (r *roster) teardownAll(cause string) {
	for id := range r.peers {
		r.teardownPeer(id, cause)
	}
}

// clearTombstones reopens the roster to identifiers torn down earlier.
func (r *roster) clearTombstones() {
	r.gone = make(map[domain.PeerID]struct{})
}

// reset clears everything for a fresh channel identity. Old tombstones go
// too: the previous identity space died with the old connection.
func (r *roster) reset(self domain.PeerID) {
	r.teardownAll("channel reconnected")
	r.clearTombstones()
	r.self = self
}

func (r *roster) snapshot() Stats {
	s := Stats{Self: r.self, TornDown: r.tornDown}
	for _, rec := range r.peers {
		switch rec.state {
		case PeerPending:
			s.Pending++
		case PeerConnected:
			s.Connected++
		}
		s.Peers = append(s.Peers, PeerStat{
			ID:     rec.id,
			State:  rec.state,
			Tracks: len(rec.tracks),
			Since:  rec.since,
		})
	}
	return s
}

// Stats is a point-in-time view of the mesh for status output.
type Stats struct {
	Self      domain.PeerID
	Pending   int
	Connected int
	TornDown  int // lifetime count
	Peers     []PeerStat
}

type PeerStat struct {
	ID     domain.PeerID
	State  PeerState
	Tracks int
	Since  time.Time
}
