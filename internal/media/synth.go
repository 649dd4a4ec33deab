package media

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

// opusSilence is a minimal DTX frame; decoders render it as silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// NewSilentAudio builds a bundle with one opus track carrying silence.
// Headless runs use it to hold a full send path without any devices.
func NewSilentAudio(log zerolog.Logger) (*Local, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "huddle-local",
	)
	if err != nil {
		return nil, fmt.Errorf("silent audio track: %w", err)
	}

	l := newLocal(log)
	l.audio = track
	l.audioOn.Store(true)

	stop := make(chan struct{})
	l.stops = append(l.stops, func() error { close(stop); return nil })
	go l.pumpSilence(track, stop)

	l.log.Info().Msg("synthetic audio source started")
	return l, nil
}

// pumpSilence writes one frame per opus tick. While muted it writes
// nothing at all, so even the bits stop.
func (l *Local) pumpSilence(track *webrtc.TrackLocalStaticSample, stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !l.audioOn.Load() {
				continue
			}
			sample := media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond}
			if err := track.WriteSample(sample); err != nil {
				l.log.Debug().Err(err).Msg("silence write ended")
				return
			}
		}
	}
}
