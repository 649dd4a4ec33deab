package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mustToken builds a syntactically valid JWT carrying exp; the signature is
// junk because only the claim is read, never verified.
func mustToken(t *testing.T, exp time.Time) string {
	t.Helper()

	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"exp": exp.Unix()})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + enc.EncodeToString(claims) + "." + enc.EncodeToString([]byte("sig"))
}

func TestClient_VoiceConfig(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voice/config" {
			t.Errorf("path=%s", r.URL.Path)
		}
		w.Write([]byte(`{
			"voiceServerUrl": "wss://voice.example.com",
			"iceServers": [
				{"urls": "stun:stun.example.com:3478"},
				{"urls": ["turn:turn.example.com:3478"], "username": "u", "credential": "c"},
				{"urls": []}
			],
			"requiresToken": true
		}`))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	cfg, err := client.VoiceConfig(context.Background())
	if err != nil {
		t.Fatalf("VoiceConfig: %v", err)
	}
	if cfg.SignalURL != "wss://voice.example.com" {
		t.Fatalf("SignalURL=%q, want voiceServerUrl fallback", cfg.SignalURL)
	}
	if !cfg.RequiresToken {
		t.Fatal("RequiresToken lost")
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers=%#v, want empty entry skipped", cfg.ICEServers)
	}
	if cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("single-string urls not accepted: %#v", cfg.ICEServers[0])
	}
	if cfg.ICEServers[1].Username != "u" || cfg.ICEServers[1].Credential != "c" {
		t.Fatalf("turn creds lost: %#v", cfg.ICEServers[1])
	}
}

func TestClient_VoiceConfig_PrefersSignalURL(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"voiceServerUrl":"wss://old.example.com","signalUrl":"wss://relay.example.com"}`))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	cfg, err := client.VoiceConfig(context.Background())
	if err != nil {
		t.Fatalf("VoiceConfig: %v", err)
	}
	if cfg.SignalURL != "wss://relay.example.com" {
		t.Fatalf("SignalURL=%q, want signalUrl to win", cfg.SignalURL)
	}
}

func TestClient_CreateVoiceSession(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/meetings/m1/voice-session" || r.Method != http.MethodPost {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprintf(w, `{"voiceRoomId":"room-9","token":"tok","expiresAt":%q}`, exp.Format(time.RFC3339))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	session, err := client.CreateVoiceSession(context.Background(), "m1")
	if err != nil {
		t.Fatalf("CreateVoiceSession: %v", err)
	}
	if session.RoomID != "room-9" || session.Token != "tok" {
		t.Fatalf("session=%#v", session)
	}
	if session.MeetingID != "m1" {
		t.Fatalf("MeetingID=%q, want defaulted to request id", session.MeetingID)
	}
	if !session.ExpiresAt.Equal(exp) {
		t.Fatalf("ExpiresAt=%v, want %v", session.ExpiresAt, exp)
	}
}

func TestClient_CreateVoiceSession_RequiresRoomID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok"}`))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	if _, err := client.CreateVoiceSession(context.Background(), "m1"); err == nil {
		t.Fatal("expected error for missing room id")
	}
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_000_000, 0)

	t.Run("explicit expiry wins", func(t *testing.T) {
		explicit := now.Add(time.Hour)
		got := sessionExpiry(mustToken(t, now.Add(time.Minute)), explicit, now)
		if !got.Equal(explicit) {
			t.Fatalf("got %v, want explicit %v", got, explicit)
		}
	})

	t.Run("token exp claim", func(t *testing.T) {
		claimExp := now.Add(7 * time.Minute)
		got := sessionExpiry(mustToken(t, claimExp), time.Time{}, now)
		if !got.Equal(claimExp) {
			t.Fatalf("got %v, want claim %v", got, claimExp)
		}
	})

	t.Run("default ttl", func(t *testing.T) {
		got := sessionExpiry("", time.Time{}, now)
		if want := now.Add(defaultSessionTTL); !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("malformed token falls back", func(t *testing.T) {
		got := sessionExpiry("not-a-jwt", time.Time{}, now)
		if want := now.Add(defaultSessionTTL); !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestClient_CreateVoiceSession_ExpiryFromToken(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_000_000, 0)
	claimExp := now.Add(4 * time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"voiceRoomId":"room-9","token":%q}`, mustToken(t, claimExp))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{
		BaseURL: srv.URL,
		Logger:  zerolog.Nop(),
		now:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client.SetCredentials(Credentials{AccessToken: "a1"})

	session, err := client.CreateVoiceSession(context.Background(), "m1")
	if err != nil {
		t.Fatalf("CreateVoiceSession: %v", err)
	}
	if !session.ExpiresAt.Equal(claimExp) {
		t.Fatalf("ExpiresAt=%v, want token claim %v", session.ExpiresAt, claimExp)
	}
}
