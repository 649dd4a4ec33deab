package domain

import (
	"errors"
	"time"
)

const MaxChatBodyLen = 2000

var (
	ErrChatBodyEmpty   = errors.New("chat body empty")
	ErrChatBodyTooLong = errors.New("chat body too long")
)

type ChatMessage struct {
	ID         string    `json:"id"`
	MeetingID  MeetingID `json:"meetingId"`
	AuthorID   UserID    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

func ValidateChatBody(body string) error {
	if len(body) == 0 {
		return ErrChatBodyEmpty
	}
	if len(body) > MaxChatBodyLen {
		return ErrChatBodyTooLong
	}
	return nil
}
