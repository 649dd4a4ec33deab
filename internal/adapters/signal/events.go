package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

// Wire event names, both directions.
const (
	evtWelcome          = "welcome"
	evtIntroduction     = "introduction"
	evtUserConnected    = "newUserConnected"
	evtUserDisconnected = "userDisconnected"
	evtSignal           = "signal"
	evtError            = "error"
)

var errUnknownEvent = errors.New("unknown event")

// Envelope is the frame shape shared by every relay conversation.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return env, nil
}

type welcomePayload struct {
	PeerID string `json:"peerId"`
}

type introductionPayload struct {
	Peers []string `json:"peers"`
}

type peerPayload struct {
	PeerID string `json:"peerId"`
}

type signalPayload struct {
	To   string          `json:"to"`
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func parsePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: payload missing", env.Event)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%s: %w", env.Event, err)
	}
	return nil
}

// parseWelcome extracts our transport identity from the handshake frame.
func parseWelcome(env Envelope) (domain.PeerID, error) {
	var p welcomePayload
	if err := parsePayload(env, &p); err != nil {
		return "", err
	}
	if p.PeerID == "" {
		return "", errors.New("welcome: peerId missing")
	}
	return domain.PeerID(p.PeerID), nil
}

// decodeEvent validates one relay frame and maps it onto a room event.
// Unknown event names come back as errUnknownEvent so callers can skip them
// without dropping the connection.
func decodeEvent(env Envelope) (core.RoomEvent, error) {
	switch env.Event {
	case evtIntroduction:
		var p introductionPayload
		if err := parsePayload(env, &p); err != nil {
			return nil, err
		}
		ev := core.Introduction{}
		for _, id := range p.Peers {
			if id == "" {
				continue
			}
			ev.Peers = append(ev.Peers, domain.PeerID(id))
		}
		return ev, nil

	case evtUserConnected:
		var p peerPayload
		if err := parsePayload(env, &p); err != nil {
			return nil, err
		}
		if p.PeerID == "" {
			return nil, fmt.Errorf("%s: peerId missing", env.Event)
		}
		return core.PeerJoined{Peer: domain.PeerID(p.PeerID)}, nil

	case evtUserDisconnected:
		var p peerPayload
		if err := parsePayload(env, &p); err != nil {
			return nil, err
		}
		if p.PeerID == "" {
			return nil, fmt.Errorf("%s: peerId missing", env.Event)
		}
		return core.PeerLeft{Peer: domain.PeerID(p.PeerID)}, nil

	case evtSignal:
		var p signalPayload
		if err := parsePayload(env, &p); err != nil {
			return nil, err
		}
		if p.From == "" {
			return nil, errors.New("signal: from missing")
		}
		if len(p.Data) == 0 {
			return nil, errors.New("signal: data missing")
		}
		return core.SignalIn{
			From: domain.PeerID(p.From),
			To:   domain.PeerID(p.To),
			Data: p.Data,
		}, nil

	case evtError:
		var p errorPayload
		if err := parsePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Message == "" {
			p.Message = "relay error without message"
		}
		return core.RoomError{Message: p.Message}, nil

	case evtWelcome:
		// welcome only belongs to the handshake
		return nil, fmt.Errorf("%w: %s outside handshake", errUnknownEvent, env.Event)

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEvent, env.Event)
	}
}
