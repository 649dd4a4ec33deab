package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

// Link is one peer connection plus its negotiation bookkeeping.
type Link struct {
	peer      domain.PeerID
	pc        *webrtc.PeerConnection
	initiator bool
	ev        core.LinkEvents
	media     MediaSource
	log       zerolog.Logger

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit
	remoteSet bool

	cancel context.CancelFunc
	closed atomic.Bool

	rxPackets atomic.Uint64
	rxBytes   atomic.Uint64
}

func (l *Link) Peer() domain.PeerID { return l.peer }

// Start wires the pion callbacks. The initiator side also sends its offer;
// candidates trickle out as gathering finds them.
func (l *Link) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // gathering finished
		}
		blob, err := encodeCandidate(cand)
		if err != nil {
			l.log.Error().Err(err).Msg("candidate encode")
			return
		}
		l.emitSignal(blob)
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if l.ev.OnTrack != nil {
			l.ev.OnTrack(core.TrackInfo{
				Peer:     l.peer,
				Kind:     track.Kind().String(),
				TrackID:  track.ID(),
				StreamID: track.StreamID(),
			})
		}
		go l.drainTrack(ctx, track)
	})

	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.log.Info().Str("state", s.String()).Msg("peer connection state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			l.emitState(core.LinkConnected)
		case webrtc.PeerConnectionStateFailed:
			cancel()
			l.emitState(core.LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			cancel()
			l.emitState(core.LinkClosed)
		}
	})

	if l.initiator {
		return l.sendOffer()
	}
	return nil
}

func (l *Link) sendOffer() error {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", core.ErrPeerNegotiation, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", core.ErrPeerNegotiation, err)
	}
	blob, err := encodeDescription(l.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("%w: encode offer: %v", core.ErrPeerNegotiation, err)
	}
	l.emitSignal(blob)
	return nil
}

// HandleSignal applies one relayed blob. Bad SDP kills the negotiation and
// reports it; a bad single candidate is only logged, ICE survives those.
func (l *Link) HandleSignal(data []byte) error {
	if l.closed.Load() {
		return core.ErrClosed
	}
	blob, err := parseBlob(data)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPeerNegotiation, err)
	}
	switch blob.Type {
	case blobOffer:
		return l.acceptOffer(blob)
	case blobAnswer:
		return l.acceptAnswer(blob)
	default:
		return l.acceptCandidate(*blob.Candidate)
	}
}

func (l *Link) acceptOffer(blob *signalBlob) error {
	if l.initiator {
		// the role convention broke somewhere; our offer stands
		l.log.Warn().Msg("offer received while initiating, dropped")
		return nil
	}
	if err := l.pc.SetRemoteDescription(blob.description()); err != nil {
		return fmt.Errorf("%w: set remote offer: %v", core.ErrPeerNegotiation, err)
	}
	l.flushCandidates()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", core.ErrPeerNegotiation, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: set local answer: %v", core.ErrPeerNegotiation, err)
	}
	blobOut, err := encodeDescription(l.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("%w: encode answer: %v", core.ErrPeerNegotiation, err)
	}
	l.emitSignal(blobOut)
	return nil
}

func (l *Link) acceptAnswer(blob *signalBlob) error {
	if !l.initiator {
		l.log.Warn().Msg("answer received while answering, dropped")
		return nil
	}
	if err := l.pc.SetRemoteDescription(blob.description()); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", core.ErrPeerNegotiation, err)
	}
	l.flushCandidates()
	return nil
}

// acceptCandidate buffers until the remote description lands; order on the
// wire does not guarantee the description arrives first.
func (l *Link) acceptCandidate(init webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, init)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(init); err != nil {
		l.log.Warn().Err(err).Msg("candidate rejected")
	}
	return nil
}

func (l *Link) flushCandidates() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.remoteSet = true
	l.mu.Unlock()

	for _, init := range pending {
		if err := l.pc.AddICECandidate(init); err != nil {
			l.log.Warn().Err(err).Msg("buffered candidate rejected")
		}
	}
}

// drainTrack keeps the receiver flowing. Nothing is rendered here, so
// packets are counted and dropped.
func (l *Link) drainTrack(ctx context.Context, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Debug().Err(err).Str("track_id", track.ID()).Msg("track read ended")
			}
			return
		}
		l.rxPackets.Add(1)
		l.rxBytes.Add(uint64(len(pkt.Payload)))
	}
}

// Close releases the connection exactly once.
func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.media != nil {
		l.media.Detach(l.pc)
	}
	err := l.pc.Close()
	l.log.Info().
		Uint64("rx_packets", l.rxPackets.Load()).
		Uint64("rx_bytes", l.rxBytes.Load()).
		Msg("link closed")
	if err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

func (l *Link) emitSignal(data []byte) {
	if l.ev.OnSignal != nil {
		l.ev.OnSignal(data)
	}
}

func (l *Link) emitState(s core.LinkState) {
	if l.ev.OnStateChange != nil {
		l.ev.OnStateChange(s)
	}
}
