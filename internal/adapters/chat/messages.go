package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
)

// Wire event names on the chat socket.
const (
	evtJoin     = "join"
	evtMessage  = "message"
	evtPresence = "presence"
	evtHistory  = "history"
	evtError    = "error"
)

type joinPayload struct {
	MeetingID   string `json:"meetingId"`
	DisplayName string `json:"displayName,omitempty"`
}

type messageJSON struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meetingId,omitempty"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

func (m *messageJSON) validate() error {
	if m.Body == "" {
		return errors.New("message: body missing")
	}
	if m.ID == "" {
		return errors.New("message: id missing")
	}
	return nil
}

func (m *messageJSON) domain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:         m.ID,
		MeetingID:  domain.MeetingID(m.MeetingID),
		AuthorID:   domain.UserID(m.AuthorID),
		AuthorName: m.AuthorName,
		Body:       m.Body,
		SentAt:     m.SentAt,
	}
}

type presencePayload struct {
	DisplayName string `json:"displayName"`
	Joined      bool   `json:"joined"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Event is one happening on the chat stream.
type Event interface{ chatEvent() }

// MessageEvent is a message from another participant (own echoes are
// filtered out).
type MessageEvent struct {
	Message domain.ChatMessage
}

// PresenceEvent reports someone joining or leaving the text channel.
type PresenceEvent struct {
	DisplayName string
	Joined      bool
}

// ErrorEvent is a non-fatal relay complaint.
type ErrorEvent struct {
	Message string
}

// DisconnectedEvent is terminal; no further events follow.
type DisconnectedEvent struct {
	Cause error
}

func (MessageEvent) chatEvent()      {}
func (PresenceEvent) chatEvent()     {}
func (ErrorEvent) chatEvent()        {}
func (DisconnectedEvent) chatEvent() {}

func errBadPayload(event string, err error) error {
	return fmt.Errorf("%s: %w", event, err)
}
