// Package media owns the local capture side of a call: microphone and
// camera tracks shared by every peer link, with call-wide mute switches.
package media

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type boundSender struct {
	sender *webrtc.RTPSender
	kind   webrtc.RTPCodecType
}

// Local is the shared bundle of local tracks. One Local feeds every link in
// the call: Attach wires the same track instances into each new peer
// connection, so a single mute toggle flips all of them at once.
type Local struct {
	log zerolog.Logger

	audio webrtc.TrackLocal
	video webrtc.TrackLocal

	// selector is set on captured bundles; its codecs must land in every
	// media engine the tracks bind to.
	selector *mediadevices.CodecSelector

	audioOn atomic.Bool
	videoOn atomic.Bool

	mu      sync.Mutex
	senders map[*webrtc.PeerConnection][]boundSender
	stops   []func() error

	closeOnce sync.Once
}

func newLocal(log zerolog.Logger) *Local {
	return &Local{
		log:     log.With().Str("module", "media").Logger(),
		senders: make(map[*webrtc.PeerConnection][]boundSender),
	}
}

// RegisterCodecs prepares a media engine for these tracks.
func (l *Local) RegisterCodecs(engine *webrtc.MediaEngine) error {
	if err := engine.RegisterDefaultCodecs(); err != nil {
		return err
	}
	if l.selector != nil {
		l.selector.Populate(engine)
	}
	return nil
}

// Attach adds the shared tracks to one peer connection. Muted kinds attach
// paused so a late joiner cannot hear a muted microphone.
func (l *Local) Attach(pc *webrtc.PeerConnection) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range []struct {
		track webrtc.TrackLocal
		kind  webrtc.RTPCodecType
		on    bool
	}{
		{l.audio, webrtc.RTPCodecTypeAudio, l.audioOn.Load()},
		{l.video, webrtc.RTPCodecTypeVideo, l.videoOn.Load()},
	} {
		if t.track == nil {
			continue
		}
		sender, err := pc.AddTrack(t.track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.kind, err)
		}
		if !t.on {
			if err := sender.ReplaceTrack(nil); err != nil {
				l.log.Warn().Err(err).Str("kind", t.kind.String()).Msg("attach paused failed")
			}
		}
		l.senders[pc] = append(l.senders[pc], boundSender{sender: sender, kind: t.kind})
		go drainRTCP(sender)
	}
	return nil
}

// Detach forgets a connection's senders. The link closes the peer
// connection itself; the senders die with it.
func (l *Local) Detach(pc *webrtc.PeerConnection) {
	l.mu.Lock()
	delete(l.senders, pc)
	l.mu.Unlock()
}

// drainRTCP keeps the sender feedback path flowing; pion requires reads.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (l *Local) AudioEnabled() bool { return l.audioOn.Load() }
func (l *Local) VideoEnabled() bool { return l.videoOn.Load() }
func (l *Local) HasAudio() bool     { return l.audio != nil }
func (l *Local) HasVideo() bool     { return l.video != nil }

// SetAudioEnabled pauses or resumes the microphone on every connection.
func (l *Local) SetAudioEnabled(on bool) {
	if l.audio == nil {
		return
	}
	if l.audioOn.Swap(on) == on {
		return
	}
	l.toggle(webrtc.RTPCodecTypeAudio, on, l.audio)
	l.log.Info().Bool("enabled", on).Msg("microphone toggled")
}

// SetVideoEnabled pauses or resumes the camera on every connection.
func (l *Local) SetVideoEnabled(on bool) {
	if l.video == nil {
		return
	}
	if l.videoOn.Swap(on) == on {
		return
	}
	l.toggle(webrtc.RTPCodecTypeVideo, on, l.video)
	l.log.Info().Bool("enabled", on).Msg("camera toggled")
}

func (l *Local) toggle(kind webrtc.RTPCodecType, on bool, track webrtc.TrackLocal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, list := range l.senders {
		for _, b := range list {
			if b.kind != kind {
				continue
			}
			next := webrtc.TrackLocal(nil)
			if on {
				next = track
			}
			if err := b.sender.ReplaceTrack(next); err != nil {
				l.log.Warn().Err(err).Str("kind", kind.String()).Msg("toggle failed on one link")
			}
		}
	}
}

// Close stops capture. Links detach themselves; any that remain lose their
// source, which pion tolerates.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.senders = make(map[*webrtc.PeerConnection][]boundSender)
		stops := l.stops
		l.stops = nil
		l.mu.Unlock()

		for _, stop := range stops {
			if err := stop(); err != nil {
				l.log.Warn().Err(err).Msg("capture stop")
			}
		}
		l.log.Info().Msg("local media closed")
	})
	return nil
}
