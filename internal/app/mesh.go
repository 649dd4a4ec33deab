// Package app holds the call orchestration: the mesh of peer links driven
// by room events, and the session provisioner that keeps the grant fresh.
package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

const (
	defaultMaxPeers      = 16
	defaultSoftPeerLimit = 10
	defaultMailboxSize   = 256
	defaultNotifySize    = 64
)

// MeshConfig wires a Mesh. Channel and Factory are required.
type MeshConfig struct {
	Channel core.SignalChannel
	Factory core.LinkFactory

	// LocalMedia is the shared capture bundle, closed during Close after
	// the links are gone. May be nil for a receive-only session.
	LocalMedia io.Closer

	MaxPeers      int
	SoftPeerLimit int
	MailboxSize   int
	NotifySize    int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Mesh keeps one media link per room participant. A single goroutine owns
// all membership state: room events, re-queued link callbacks and external
// commands are serialized through it, so ordering within one peer is exactly
// arrival order and no handler ever races another.
type Mesh struct {
	channel core.SignalChannel
	media   io.Closer
	log     zerolog.Logger

	mailbox chan linkEvent
	cmds    chan func()
	notes   chan Notification

	r *roster

	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	err       error // terminal cause, written by the loop before done closes
}

// NewMesh starts the event loop immediately; the channel should already be
// dialed. Callers end the session with Close.
func NewMesh(cfg MeshConfig) (*Mesh, error) {
	if cfg.Channel == nil || cfg.Factory == nil {
		return nil, errors.New("mesh: channel and factory are required")
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = defaultMaxPeers
	}
	if cfg.SoftPeerLimit <= 0 {
		cfg.SoftPeerLimit = defaultSoftPeerLimit
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.NotifySize <= 0 {
		cfg.NotifySize = defaultNotifySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Mesh{
		channel: cfg.Channel,
		media:   cfg.LocalMedia,
		log:     cfg.Logger.With().Str("module", "mesh").Logger(),
		mailbox: make(chan linkEvent, cfg.MailboxSize),
		cmds:    make(chan func()),
		notes:   make(chan Notification, cfg.NotifySize),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.r = &roster{
		self:      cfg.Channel.Self(),
		factory:   cfg.Factory,
		sender:    cfg.Channel,
		log:       m.log,
		maxPeers:  cfg.MaxPeers,
		softLimit: cfg.SoftPeerLimit,
		ctx:       ctx,
		enqueue:   m.enqueue,
		notify:    m.publish,
		now:       cfg.Now,
		peers:     make(map[domain.PeerID]*peerRecord),
		gone:      make(map[domain.PeerID]struct{}),
	}
	go m.loop(ctx)
	return m, nil
}

// Notifications yields mesh happenings for UIs and logs. The stream is
// never closed; consumers should also watch Done.
func (m *Mesh) Notifications() <-chan Notification { return m.notes }

// Done closes when the loop has exited and every link is destroyed.
func (m *Mesh) Done() <-chan struct{} { return m.done }

// Err reports the terminal cause once Done is closed. A local Close and an
// intentional channel shutdown both leave it nil.
func (m *Mesh) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Stats snapshots the roster through the loop, so it is always consistent.
func (m *Mesh) Stats() Stats {
	var s Stats
	m.exec(func() { s = m.r.snapshot() })
	return s
}

// TeardownAll destroys every peer link immediately but keeps the session:
// the channel stays open, tombstones are lifted, and fresh introductions
// (returning peers included) create links again. Idempotent, callable from
// any goroutine.
func (m *Mesh) TeardownAll() {
	m.exec(func() {
		m.r.teardownAll("requested")
		m.r.clearTombstones()
	})
}

// Close ends the session: every link, then local media, then the channel,
// all finished before return. Safe to call repeatedly.
func (m *Mesh) Close() error {
	m.closeOnce.Do(func() {
		m.exec(func() { m.r.teardownAll("session closed") })
		m.cancel()
		<-m.done
		if m.media != nil {
			if err := m.media.Close(); err != nil {
				m.log.Warn().Err(err).Msg("local media close")
			}
		}
		if err := m.channel.Close(); err != nil {
			m.log.Warn().Err(err).Msg("channel close")
		}
	})
	<-m.done
	return nil
}

func (m *Mesh) loop(ctx context.Context) {
	defer close(m.done)
	defer m.r.teardownAll("loop exit")

	events := m.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.cmds:
			fn()
		case ev := <-m.mailbox:
			m.r.handleLinkEvent(ev)
		case ev, ok := <-events:
			if !ok {
				return
			}
			if d, isEnd := ev.(core.Disconnected); isEnd {
				m.r.teardownAll("channel disconnected")
				m.publish(Notification{Kind: NoteDisconnected, Err: d.Cause})
				if !d.Intentional {
					m.err = d.Cause
				}
				return
			}
			m.handleRoomEvent(ev)
		}
	}
}

func (m *Mesh) handleRoomEvent(ev core.RoomEvent) {
	switch ev := ev.(type) {
	case core.Introduction:
		for _, id := range ev.Peers {
			id := id
			m.guard(func() { m.r.ensurePeer(id, true) })
		}
	case core.PeerJoined:
		m.guard(func() { m.r.ensurePeer(ev.Peer, false) })
	case core.SignalIn:
		m.guard(func() { m.r.handleSignal(ev.From, ev.To, ev.Data) })
	case core.PeerLeft:
		m.guard(func() { m.r.teardownPeer(ev.Peer, "peer left") })
	case core.RoomError:
		m.log.Warn().Str("message", ev.Message).Msg("relay reported error")
		m.publish(Notification{Kind: NoteRoomError, Err: errors.New(ev.Message)})
	case core.Reconnected:
		m.guard(func() { m.r.reset(ev.Self) })
		m.publish(Notification{Kind: NoteReconnected})
	default:
		m.log.Debug().Msg("unhandled room event")
	}
}

// guard contains a panic to the one peer being handled; the loop moves on.
func (m *Mesh) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("room event handler panicked")
		}
	}()
	fn()
}

// enqueue feeds link callbacks into the loop without ever blocking the
// link's goroutine.
func (m *Mesh) enqueue(ev linkEvent) {
	select {
	case m.mailbox <- ev:
	default:
		m.log.Warn().Str("peer", string(ev.peer)).Msg("mailbox full, link event dropped")
	}
}

func (m *Mesh) publish(n Notification) {
	select {
	case m.notes <- n:
	default:
		m.log.Warn().Str("kind", n.Kind.String()).Msg("notification dropped, consumer too slow")
	}
}

// exec runs fn on the loop goroutine and waits for it. Once the loop has
// exited the records are frozen, so running inline is equivalent.
func (m *Mesh) exec(fn func()) {
	ack := make(chan struct{})
	wrapped := func() { fn(); close(ack) }
	select {
	case m.cmds <- wrapped:
		select {
		case <-ack:
		case <-m.done:
			select {
			case <-ack:
			default:
				// loop exited with the command still queued
				fn()
			}
		}
	case <-m.done:
		fn()
	}
}
