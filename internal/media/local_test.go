package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

func newSilent(t *testing.T) *Local {
	t.Helper()
	l, err := NewSilentAudio(zerolog.Nop())
	if err != nil {
		t.Fatalf("silent audio: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newPC(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("peer connection: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func onlySender(t *testing.T, pc *webrtc.PeerConnection) *webrtc.RTPSender {
	t.Helper()
	senders := pc.GetSenders()
	if len(senders) != 1 {
		t.Fatalf("senders = %d, want 1", len(senders))
	}
	return senders[0]
}

func TestNewSilentAudio_Shape(t *testing.T) {
	t.Parallel()
	l := newSilent(t)

	if !l.HasAudio() || l.HasVideo() {
		t.Fatalf("HasAudio=%v HasVideo=%v, want audio only", l.HasAudio(), l.HasVideo())
	}
	if !l.AudioEnabled() {
		t.Fatal("synthetic audio starts muted, want live")
	}
	if l.VideoEnabled() {
		t.Fatal("VideoEnabled without a video track")
	}
}

func TestLocal_AttachLive(t *testing.T) {
	t.Parallel()
	l := newSilent(t)
	pc := newPC(t)

	if err := l.Attach(pc); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if onlySender(t, pc).Track() == nil {
		t.Fatal("live audio attached without a track")
	}
}

func TestLocal_AttachWhileMutedIsPaused(t *testing.T) {
	t.Parallel()
	l := newSilent(t)
	l.SetAudioEnabled(false)

	pc := newPC(t)
	if err := l.Attach(pc); err != nil {
		t.Fatalf("attach: %v", err)
	}
	// a late joiner must not receive a muted microphone
	if onlySender(t, pc).Track() != nil {
		t.Fatal("muted audio attached with a live track")
	}
}

func TestLocal_ToggleFlipsEveryLink(t *testing.T) {
	t.Parallel()
	l := newSilent(t)
	pc1 := newPC(t)
	pc2 := newPC(t)
	if err := l.Attach(pc1); err != nil {
		t.Fatalf("attach pc1: %v", err)
	}
	if err := l.Attach(pc2); err != nil {
		t.Fatalf("attach pc2: %v", err)
	}

	l.SetAudioEnabled(false)
	if onlySender(t, pc1).Track() != nil || onlySender(t, pc2).Track() != nil {
		t.Fatal("mute left a live track behind")
	}
	if l.AudioEnabled() {
		t.Fatal("AudioEnabled still true after mute")
	}

	l.SetAudioEnabled(true)
	if onlySender(t, pc1).Track() == nil || onlySender(t, pc2).Track() == nil {
		t.Fatal("unmute left a sender empty")
	}

	// toggling a kind we never captured is a no-op
	l.SetVideoEnabled(false)
	if !l.AudioEnabled() {
		t.Fatal("video toggle touched the audio switch")
	}
}

func TestLocal_DetachForgetsTheLink(t *testing.T) {
	t.Parallel()
	l := newSilent(t)
	pc := newPC(t)
	if err := l.Attach(pc); err != nil {
		t.Fatalf("attach: %v", err)
	}

	l.Detach(pc)
	l.SetAudioEnabled(false)
	// the detached connection keeps whatever it had
	if onlySender(t, pc).Track() == nil {
		t.Fatal("toggle reached a detached connection")
	}
}

func TestLocal_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	l, err := NewSilentAudio(zerolog.Nop())
	if err != nil {
		t.Fatalf("silent audio: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestLocal_RegisterCodecs(t *testing.T) {
	t.Parallel()
	l := newSilent(t)

	if err := l.RegisterCodecs(&webrtc.MediaEngine{}); err != nil {
		t.Fatalf("register codecs: %v", err)
	}
}

func TestCapture_RequiresSomething(t *testing.T) {
	t.Parallel()
	if _, err := Capture(CaptureOptions{Logger: zerolog.Nop()}); err == nil {
		t.Fatal("capture with nothing requested accepted")
	}
}
