package domain

import (
	"errors"
	"time"
)

const (
	MaxMeetingTitleLen       = 140
	MaxMeetingDescriptionLen = 2000
)

var (
	ErrMeetingTitleEmpty   = errors.New("meeting title empty")
	ErrMeetingTitleTooLong = errors.New("meeting title too long")
	ErrMeetingDescTooLong  = errors.New("meeting description too long")
)

type MeetingID string

type Meeting struct {
	ID          MeetingID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OwnerID     UserID    `json:"ownerId"`
	StartsAt    time.Time `json:"startsAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidateMeeting checks the fields a client fills in before create/update.
func ValidateMeeting(title, description string) error {
	if len(title) == 0 {
		return ErrMeetingTitleEmpty
	}
	if len(title) > MaxMeetingTitleLen {
		return ErrMeetingTitleTooLong
	}
	if len(description) > MaxMeetingDescriptionLen {
		return ErrMeetingDescTooLong
	}
	return nil
}
