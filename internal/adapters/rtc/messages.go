package rtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Negotiation blobs ride the relay opaquely. The shape mirrors the browser
// RTCSessionDescription / RTCIceCandidate JSON, so either end of a link can
// be any client speaking that dialect.
const (
	blobOffer     = "offer"
	blobAnswer    = "answer"
	blobCandidate = "candidate"
)

type signalBlob struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func (b *signalBlob) validate() error {
	switch b.Type {
	case blobOffer, blobAnswer:
		if b.SDP == "" {
			return fmt.Errorf("%s: sdp missing", b.Type)
		}
	case blobCandidate:
		if b.Candidate == nil || b.Candidate.Candidate == "" {
			return errors.New("candidate: body missing")
		}
	default:
		return fmt.Errorf("unknown signal type %q", b.Type)
	}
	return nil
}

func parseBlob(data []byte) (*signalBlob, error) {
	var b signalBlob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("signal blob: %w", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *signalBlob) description() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(b.Type), SDP: b.SDP}
}

func encodeDescription(desc *webrtc.SessionDescription) ([]byte, error) {
	if desc == nil {
		return nil, errors.New("no local description")
	}
	return json.Marshal(signalBlob{Type: desc.Type.String(), SDP: desc.SDP})
}

func encodeCandidate(cand *webrtc.ICECandidate) ([]byte, error) {
	init := cand.ToJSON()
	return json.Marshal(signalBlob{Type: blobCandidate, Candidate: &init})
}
