package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/huddlekit/huddle/internal/domain"
)

// defaultSessionTTL applies when the backend gives neither an expiry nor a
// token with an exp claim.
const defaultSessionTTL = 5 * time.Minute

// urlList accepts both "urls": "stun:..." and "urls": ["stun:...", ...],
// the two shapes backends serve ICE entries in.
type urlList []string

func (u *urlList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = urlList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return err
	}
	*u = urlList(ss)
	return nil
}

type iceServerJSON struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username"`
	Credential string  `json:"credential"`
}

func (s iceServerJSON) domain() domain.ICEServer {
	return domain.ICEServer{URLs: []string(s.URLs), Username: s.Username, Credential: s.Credential}
}

// VoiceConfig fetches the static voice infrastructure description.
func (c *Client) VoiceConfig(ctx context.Context) (domain.VoiceConfig, error) {
	var resp struct {
		VoiceServerURL string          `json:"voiceServerUrl"`
		SignalURL      string          `json:"signalUrl"`
		ICEServers     []iceServerJSON `json:"iceServers"`
		RequiresToken  bool            `json:"requiresToken"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/voice/config", nil, &resp, true); err != nil {
		return domain.VoiceConfig{}, fmt.Errorf("voice config: %w", err)
	}

	signalURL := resp.SignalURL
	if signalURL == "" {
		signalURL = resp.VoiceServerURL
	}
	cfg := domain.VoiceConfig{
		SignalURL:     signalURL,
		RequiresToken: resp.RequiresToken,
	}
	for _, s := range resp.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		cfg.ICEServers = append(cfg.ICEServers, s.domain())
	}
	return cfg, nil
}

// CreateVoiceSession asks for a short-lived grant to the meeting's voice
// room. Missing expiry is recovered from the token's exp claim when present,
// else a conservative default applies.
func (c *Client) CreateVoiceSession(ctx context.Context, meeting domain.MeetingID) (domain.RoomSession, error) {
	var resp struct {
		MeetingID   domain.MeetingID   `json:"meetingId"`
		VoiceRoomID domain.VoiceRoomID `json:"voiceRoomId"`
		Token       string             `json:"token"`
		ExpiresAt   time.Time          `json:"expiresAt"`
	}
	path := "/api/meetings/" + url.PathEscape(string(meeting)) + "/voice-session"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp, true); err != nil {
		return domain.RoomSession{}, fmt.Errorf("create voice session: %w", err)
	}
	if resp.VoiceRoomID == "" {
		return domain.RoomSession{}, fmt.Errorf("create voice session: backend returned no room id")
	}
	if resp.MeetingID == "" {
		resp.MeetingID = meeting
	}
	return domain.RoomSession{
		MeetingID: resp.MeetingID,
		RoomID:    resp.VoiceRoomID,
		Token:     resp.Token,
		ExpiresAt: sessionExpiry(resp.Token, resp.ExpiresAt, c.now()),
	}, nil
}

func sessionExpiry(token string, expires, now time.Time) time.Time {
	if !expires.IsZero() {
		return expires
	}
	if token != "" {
		// The token is the backend's own grant; reading exp here is
		// bookkeeping, not verification. The relay still verifies.
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	return now.Add(defaultSessionTTL)
}
