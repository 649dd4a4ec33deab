package chat

import (
	"testing"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
)

func TestMessageJSON_Validate(t *testing.T) {
	t.Parallel()

	ok := messageJSON{ID: "m1", Body: "hello"}
	if err := ok.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	noBody := messageJSON{ID: "m1"}
	if err := noBody.validate(); err == nil {
		t.Fatal("message without body accepted")
	}

	noID := messageJSON{Body: "hello"}
	if err := noID.validate(); err == nil {
		t.Fatal("message without id accepted")
	}
}

func TestMessageJSON_Domain(t *testing.T) {
	t.Parallel()

	sent := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	m := messageJSON{
		ID:         "m1",
		MeetingID:  "mtg-1",
		AuthorID:   "u1",
		AuthorName: "Ada",
		Body:       "hello",
		SentAt:     sent,
	}
	got := m.domain()
	want := domain.ChatMessage{
		ID:         "m1",
		MeetingID:  "mtg-1",
		AuthorID:   "u1",
		AuthorName: "Ada",
		Body:       "hello",
		SentAt:     sent,
	}
	if got != want {
		t.Fatalf("domain() = %+v, want %+v", got, want)
	}
}
