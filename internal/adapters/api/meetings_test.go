package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

func TestClient_Meetings(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/meetings" || r.Method != http.MethodGet {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer a1" {
			t.Errorf("Authorization=%q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"meetings":[{"id":"m1","title":"standup"},{"id":"m2","title":"retro"}]}`))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	meetings, err := client.Meetings(context.Background())
	if err != nil {
		t.Fatalf("Meetings: %v", err)
	}
	if len(meetings) != 2 || meetings[1].ID != "m2" {
		t.Fatalf("meetings=%#v", meetings)
	}
}

func TestClient_CreateMeeting(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want POST", r.Method)
		}
		var draft MeetingDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			t.Errorf("decode draft: %v", err)
		}
		resp, _ := json.Marshal(domain.Meeting{ID: "m9", Title: draft.Title})
		w.WriteHeader(http.StatusCreated)
		w.Write(resp)
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	meeting, err := client.CreateMeeting(context.Background(), MeetingDraft{Title: "planning"})
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	if meeting.ID != "m9" || meeting.Title != "planning" {
		t.Fatalf("meeting=%#v", meeting)
	}
}

func TestClient_CreateMeeting_ValidatesBeforeSending(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite invalid draft")
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	_, err := client.CreateMeeting(context.Background(), MeetingDraft{})
	if !errors.Is(err, domain.ErrMeetingTitleEmpty) {
		t.Fatalf("err=%v, want ErrMeetingTitleEmpty", err)
	}
}

func TestClient_DeleteMeeting(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/meetings/m1" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	if err := client.DeleteMeeting(context.Background(), "m1"); err != nil {
		t.Fatalf("DeleteMeeting: %v", err)
	}
}

func TestClient_ChatHistory(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/meetings/m1/messages" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "25" {
			t.Errorf("limit=%q, want 25", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"messages":[{"id":"c1","authorName":"bob","body":"hi"}]}`))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	msgs, err := client.ChatHistory(context.Background(), "m1", 25)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hi" {
		t.Fatalf("msgs=%#v", msgs)
	}
}

func TestClient_Meeting_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such meeting"}`))
	}))
	client.SetCredentials(Credentials{AccessToken: "a1"})

	_, err := client.Meeting(context.Background(), "ghost")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}
