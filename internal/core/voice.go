package core

import (
	"context"

	"github.com/huddlekit/huddle/internal/domain"
)

// VoiceAPI is the backend surface needed to provision a room session.
type VoiceAPI interface {
	VoiceConfig(ctx context.Context) (domain.VoiceConfig, error)
	CreateVoiceSession(ctx context.Context, meeting domain.MeetingID) (domain.RoomSession, error)
}

// TokenSource yields the room token to present on (re)dial. Implementations
// may renew behind the scenes; callers never cache the result.
type TokenSource interface {
	RoomToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for fixed grants and tokenless backends.
type StaticToken string

func (t StaticToken) RoomToken(context.Context) (string, error) { return string(t), nil }

// TokenFunc adapts a closure into a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) RoomToken(ctx context.Context) (string, error) { return f(ctx) }
