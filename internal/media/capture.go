package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog"

	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the OS camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the OS microphone driver

	"github.com/huddlekit/huddle/internal/core"
)

const (
	defaultWidth     = 640
	defaultHeight    = 480
	defaultFrameRate = 30

	audioBitrate = 32_000
	videoBitrate = 300_000
)

type CaptureOptions struct {
	Audio bool
	Video bool

	Width     int
	Height    int
	FrameRate float64

	Logger zerolog.Logger
}

// Capture opens the microphone and camera through the OS drivers and
// returns the shared bundle. Failures map to ErrMediaAccess; callers may
// proceed receive-only.
func Capture(opts CaptureOptions) (*Local, error) {
	if !opts.Audio && !opts.Video {
		return nil, errors.New("capture: nothing requested")
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = videoBitrate
	vpxParams.KeyFrameInterval = 15

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = audioBitrate
	opusParams.Latency = opus.Latency20ms

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	if opts.Video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(opts.Width)
			c.Height = prop.Int(opts.Height)
			c.FrameRate = prop.Float(opts.FrameRate)
		}
	}
	if opts.Audio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
			c.Latency = prop.Duration(20 * time.Millisecond)
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMediaAccess, err)
	}

	l := newLocal(opts.Logger)
	l.selector = selector

	for _, track := range stream.GetAudioTracks() {
		track := track
		if l.audio != nil {
			_ = track.Close()
			continue
		}
		track.OnEnded(func(err error) {
			l.log.Warn().Err(err).Msg("microphone track ended")
		})
		l.audio = track
		l.stops = append(l.stops, track.Close)
	}
	for _, track := range stream.GetVideoTracks() {
		track := track
		if l.video != nil {
			_ = track.Close()
			continue
		}
		track.OnEnded(func(err error) {
			l.log.Warn().Err(err).Msg("camera track ended")
		})
		l.video = track
		l.stops = append(l.stops, track.Close)
	}

	if l.audio == nil && l.video == nil {
		return nil, fmt.Errorf("%w: no capture tracks delivered", core.ErrMediaAccess)
	}
	l.audioOn.Store(l.audio != nil)
	l.videoOn.Store(l.video != nil)

	l.log.Info().Bool("audio", l.audio != nil).Bool("video", l.video != nil).Msg("capture started")
	return l, nil
}
