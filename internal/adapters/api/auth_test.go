package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

func TestClient_Login(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want POST", r.Method)
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if in["email"] != "alice@example.com" || in["password"] != "hunter2" {
			t.Errorf("body=%v", in)
		}
		w.Write([]byte(`{"accessToken":"a1","refreshToken":"r1","user":{"id":"u1","username":"alice"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var saved []Credentials
	client, err := New(Options{
		BaseURL:       srv.URL,
		Logger:        zerolog.Nop(),
		OnCredentials: func(c Credentials) { saved = append(saved, c) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	creds, err := client.Login(context.Background(), "alice@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if creds.AccessToken != "a1" || creds.UserID != "u1" || creds.Username != "alice" {
		t.Fatalf("creds=%#v", creds)
	}
	if got := client.Credentials(); got != creds {
		t.Fatalf("stored creds=%#v, want %#v", got, creds)
	}
	if len(saved) != 1 || saved[0] != creds {
		t.Fatalf("persistence hook saw %#v", saved)
	}
}

func TestClient_Login_Rejected(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad credentials"}`))
	}))

	_, err := client.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, core.ErrAuth) {
		t.Fatalf("err=%v, want ErrAuth", err)
	}
}

func TestClient_Login_ValidatesBeforeSending(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite invalid input")
	}))

	if _, err := client.Login(context.Background(), "not-an-email", "x"); !errors.Is(err, domain.ErrEmailInvalid) {
		t.Fatalf("err=%v, want ErrEmailInvalid", err)
	}
	if _, err := client.Login(context.Background(), "a@b.c", ""); !errors.Is(err, domain.ErrPasswordEmpty) {
		t.Fatalf("err=%v, want ErrPasswordEmpty", err)
	}
}

func TestClient_Register_ValidatesBeforeSending(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite invalid input")
	}))

	if _, err := client.Register(context.Background(), "a@b.c", "", "pw"); !errors.Is(err, domain.ErrUsernameEmpty) {
		t.Fatalf("err=%v, want ErrUsernameEmpty", err)
	}
}

func TestClient_Logout_AlwaysClearsLocalState(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	var saved []Credentials
	client, err := New(Options{
		BaseURL:       srv.URL,
		Logger:        zerolog.Nop(),
		OnCredentials: func(c Credentials) { saved = append(saved, c) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client.SetCredentials(Credentials{AccessToken: "a1", RefreshToken: "r1"})

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if client.Credentials().LoggedIn() {
		t.Fatal("credentials survived logout")
	}
	if len(saved) != 1 || saved[0].LoggedIn() {
		t.Fatalf("persistence hook saw %#v, want one empty snapshot", saved)
	}
}

func TestClient_Refresh_RequiresRefreshToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent without a refresh token")
	}))

	if _, err := client.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
