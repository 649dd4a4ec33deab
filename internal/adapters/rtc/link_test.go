package rtc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(FactoryConfig{
		ICEServers: []domain.ICEServer{{URLs: []string{"stun:192.0.2.1:3478"}}},
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	return f
}

func captureSignals() (core.LinkEvents, <-chan []byte) {
	ch := make(chan []byte, 64)
	return core.LinkEvents{
		OnSignal: func(data []byte) {
			select {
			case ch <- data:
			default:
			}
		},
	}, ch
}

// nextBlob pulls outbound blobs until one of the wanted type shows up,
// skipping trickled candidates along the way.
func nextBlob(t *testing.T, ch <-chan []byte, typ string) ([]byte, *signalBlob) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case data := <-ch:
			blob, err := parseBlob(data)
			if err != nil {
				t.Fatalf("malformed outbound blob: %v", err)
			}
			if blob.Type == typ {
				return data, blob
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s blob", typ)
		}
	}
}

func wantNoBlob(t *testing.T, ch <-chan []byte, typ string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case data := <-ch:
			blob, err := parseBlob(data)
			if err != nil {
				t.Fatalf("malformed outbound blob: %v", err)
			}
			if blob.Type == typ {
				t.Fatalf("unexpected %s blob", typ)
			}
		case <-deadline:
			return
		}
	}
}

func TestNewFactory_RequiresUsableICEServers(t *testing.T) {
	t.Parallel()

	_, err := NewFactory(FactoryConfig{Logger: zerolog.Nop()})
	if !errors.Is(err, core.ErrConnection) {
		t.Fatalf("factory without servers: %v, want ErrConnection", err)
	}

	// turn without credentials is skipped, leaving nothing usable
	_, err = NewFactory(FactoryConfig{
		ICEServers: []domain.ICEServer{{URLs: []string{"turn:turn.example.com:3478"}}},
		Logger:     zerolog.Nop(),
	})
	if !errors.Is(err, core.ErrConnection) {
		t.Fatalf("factory with only unusable servers: %v, want ErrConnection", err)
	}

	// a bad entry next to a good one is dropped, not fatal
	f, err := NewFactory(FactoryConfig{
		ICEServers: []domain.ICEServer{
			{URLs: []string{"turn:turn.example.com:3478"}},
			{URLs: []string{"stun:192.0.2.1:3478"}},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("factory with a usable server: %v", err)
	}
	if f == nil {
		t.Fatal("factory is nil")
	}
}

func TestLink_OfferAnswerExchange(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	ctx := context.Background()

	evA, sigA := captureSignals()
	a, err := f.NewLink("peer-b", true, evA)
	if err != nil {
		t.Fatalf("new initiator link: %v", err)
	}
	defer a.Close()

	evB, sigB := captureSignals()
	b, err := f.NewLink("peer-a", false, evB)
	if err != nil {
		t.Fatalf("new responder link: %v", err)
	}
	defer b.Close()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("responder start: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("initiator start: %v", err)
	}

	rawOffer, offer := nextBlob(t, sigA, blobOffer)
	if !strings.Contains(offer.SDP, "m=audio") || !strings.Contains(offer.SDP, "m=video") {
		t.Fatalf("offer sdp lacks audio/video sections:\n%s", offer.SDP)
	}

	if err := b.HandleSignal(rawOffer); err != nil {
		t.Fatalf("responder handle offer: %v", err)
	}
	rawAnswer, _ := nextBlob(t, sigB, blobAnswer)

	if err := a.HandleSignal(rawAnswer); err != nil {
		t.Fatalf("initiator handle answer: %v", err)
	}
}

func TestLink_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	ctx := context.Background()

	evA, sigA := captureSignals()
	a, err := f.NewLink("peer-b", true, evA)
	if err != nil {
		t.Fatalf("new initiator link: %v", err)
	}
	defer a.Close()

	evB, sigB := captureSignals()
	b, err := f.NewLink("peer-a", false, evB)
	if err != nil {
		t.Fatalf("new responder link: %v", err)
	}
	defer b.Close()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("responder start: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("initiator start: %v", err)
	}

	// a candidate racing ahead of the offer must be held, not rejected
	early := []byte(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 2122252543 192.0.2.7 50000 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	if err := b.HandleSignal(early); err != nil {
		t.Fatalf("early candidate: %v", err)
	}

	rawOffer, _ := nextBlob(t, sigA, blobOffer)
	if err := b.HandleSignal(rawOffer); err != nil {
		t.Fatalf("handle offer after buffered candidate: %v", err)
	}
	nextBlob(t, sigB, blobAnswer)

	// once the description is set, candidates apply straight away
	if err := b.HandleSignal(early); err != nil {
		t.Fatalf("late candidate: %v", err)
	}
}

func TestLink_DropsBlobsBreakingRoleConvention(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	ctx := context.Background()

	evA, sigA := captureSignals()
	a, err := f.NewLink("peer-b", true, evA)
	if err != nil {
		t.Fatalf("new initiator link: %v", err)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("initiator start: %v", err)
	}
	nextBlob(t, sigA, blobOffer)

	// glare: the initiator keeps its own offer and never answers
	if err := a.HandleSignal([]byte(`{"type":"offer","sdp":"not even sdp"}`)); err != nil {
		t.Fatalf("conflicting offer: %v, want silent drop", err)
	}
	wantNoBlob(t, sigA, blobAnswer, 150*time.Millisecond)

	evB, _ := captureSignals()
	b, err := f.NewLink("peer-a", false, evB)
	if err != nil {
		t.Fatalf("new responder link: %v", err)
	}
	defer b.Close()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("responder start: %v", err)
	}
	if err := b.HandleSignal([]byte(`{"type":"answer","sdp":"not even sdp"}`)); err != nil {
		t.Fatalf("stray answer: %v, want silent drop", err)
	}
}

func TestLink_HandleSignalErrors(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	ctx := context.Background()

	b, err := f.NewLink("peer-a", false, core.LinkEvents{})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	defer b.Close()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := b.HandleSignal([]byte(`{"type":"offer"}`)); !errors.Is(err, core.ErrPeerNegotiation) {
		t.Fatalf("blob without sdp: %v, want ErrPeerNegotiation", err)
	}
	if err := b.HandleSignal([]byte(`not json`)); !errors.Is(err, core.ErrPeerNegotiation) {
		t.Fatalf("malformed blob: %v, want ErrPeerNegotiation", err)
	}
	if err := b.HandleSignal([]byte(`{"type":"offer","sdp":"garbage"}`)); !errors.Is(err, core.ErrPeerNegotiation) {
		t.Fatalf("unparseable sdp: %v, want ErrPeerNegotiation", err)
	}
}

func TestLink_CloseIsTerminal(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)

	l, err := f.NewLink("peer-a", false, core.LinkEvents{})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := l.HandleSignal([]byte(`{"type":"offer","sdp":"v=0"}`)); !errors.Is(err, core.ErrClosed) {
		t.Fatalf("signal after close: %v, want ErrClosed", err)
	}
}
