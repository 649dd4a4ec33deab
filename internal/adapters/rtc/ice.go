package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/domain"
)

// iceServer validates one backend entry and converts it. TURN entries must
// carry credentials; a TURN server without them silently never relays, which
// is much harder to debug than failing here.
func iceServer(s domain.ICEServer) (webrtc.ICEServer, error) {
	if len(s.URLs) == 0 {
		return webrtc.ICEServer{}, errors.New("ice server: no urls")
	}
	for _, u := range s.URLs {
		scheme, rest, ok := strings.Cut(u, ":")
		if !ok || rest == "" {
			return webrtc.ICEServer{}, fmt.Errorf("ice url %q: missing host", u)
		}
		switch strings.ToLower(scheme) {
		case "stun", "stuns":
		case "turn", "turns":
			if s.Username == "" || s.Credential == "" {
				return webrtc.ICEServer{}, fmt.Errorf("ice url %q: turn requires username and credential", u)
			}
		default:
			return webrtc.ICEServer{}, fmt.Errorf("ice url %q: unsupported scheme %q", u, scheme)
		}
	}
	out := webrtc.ICEServer{URLs: s.URLs}
	if s.Username != "" {
		out.Username = s.Username
		out.Credential = s.Credential
	}
	return out, nil
}
