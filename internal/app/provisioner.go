package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

const (
	defaultRenewBuffer = time.Minute
	defaultRetryDelay  = 10 * time.Second
)

var ErrNotProvisioned = errors.New("no voice session provisioned")

// ProvisionerConfig wires a Provisioner. API and Meeting are required.
type ProvisionerConfig struct {
	API     core.VoiceAPI
	Meeting domain.MeetingID

	// RenewBuffer is how far ahead of expiry a replacement is fetched.
	RenewBuffer time.Duration
	// RetryDelay spaces retries after a failed renewal.
	RetryDelay time.Duration

	// Defaults covers holes in the backend answer: SignalURL when the
	// config endpoint fails and ICEServers when the list comes back empty.
	Defaults domain.VoiceConfig

	Logger zerolog.Logger

	// OnRenewed observes every replacement grant. May be nil. Live links
	// are never touched on renewal; only future dials see the new token.
	OnRenewed func(domain.RoomSession)
	// OnError observes renewal failures. May be nil.
	OnError func(error)

	Now      func() time.Time
	NewTimer func(time.Duration) <-chan time.Time
}

// Provisioner obtains the voice room grant for one meeting and keeps it
// fresh. It implements core.TokenSource for the room channel.
type Provisioner struct {
	api      core.VoiceAPI
	meeting  domain.MeetingID
	buffer   time.Duration
	retry    time.Duration
	defaults domain.VoiceConfig
	log      zerolog.Logger

	onRenewed func(domain.RoomSession)
	onError   func(error)

	now      func() time.Time
	newTimer func(time.Duration) <-chan time.Time

	mu      sync.RWMutex
	voice   domain.VoiceConfig
	session domain.RoomSession
}

func NewProvisioner(cfg ProvisionerConfig) (*Provisioner, error) {
	if cfg.API == nil {
		return nil, errors.New("provisioner: API is required")
	}
	if cfg.Meeting == "" {
		return nil, errors.New("provisioner: meeting id is required")
	}
	if cfg.RenewBuffer <= 0 {
		cfg.RenewBuffer = defaultRenewBuffer
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = func(d time.Duration) <-chan time.Time { return time.After(d) }
	}
	return &Provisioner{
		api:       cfg.API,
		meeting:   cfg.Meeting,
		buffer:    cfg.RenewBuffer,
		retry:     cfg.RetryDelay,
		defaults:  cfg.Defaults,
		log:       cfg.Logger.With().Str("module", "provision").Str("meeting", string(cfg.Meeting)).Logger(),
		onRenewed: cfg.OnRenewed,
		onError:   cfg.OnError,
		now:       cfg.Now,
		newTimer:  cfg.NewTimer,
	}, nil
}

// Provision fetches the voice config and the first session grant. It must
// succeed before the room can be dialed.
func (p *Provisioner) Provision(ctx context.Context) (domain.VoiceConfig, domain.RoomSession, error) {
	voice, err := p.api.VoiceConfig(ctx)
	if err != nil {
		if p.defaults.SignalURL == "" {
			return domain.VoiceConfig{}, domain.RoomSession{}, fmt.Errorf("provision: %w", err)
		}
		p.log.Warn().Err(err).Str("signal_url", p.defaults.SignalURL).
			Msg("voice config unavailable, using configured defaults")
		voice = p.defaults
	}
	if voice.SignalURL == "" {
		voice.SignalURL = p.defaults.SignalURL
	}
	if voice.SignalURL == "" {
		return domain.VoiceConfig{}, domain.RoomSession{}, fmt.Errorf("provision: %w: no signal url", core.ErrConnection)
	}
	if len(voice.ICEServers) == 0 {
		voice.ICEServers = p.defaults.ICEServers
		p.log.Warn().Msg("backend served no ICE servers, using fallback")
	}

	session, err := p.api.CreateVoiceSession(ctx, p.meeting)
	if err != nil {
		return domain.VoiceConfig{}, domain.RoomSession{}, fmt.Errorf("provision: %w", err)
	}

	p.mu.Lock()
	p.voice = voice
	p.session = session
	p.mu.Unlock()

	p.log.Info().Str("room", string(session.RoomID)).Time("expires_at", session.ExpiresAt).Msg("voice session provisioned")
	return voice, session, nil
}

func (p *Provisioner) Voice() domain.VoiceConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voice
}

func (p *Provisioner) Session() domain.RoomSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// RoomToken implements core.TokenSource. A redial can race the renewal
// timer, so a stale grant is renewed inline here.
func (p *Provisioner) RoomToken(ctx context.Context) (string, error) {
	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()

	if session.RoomID == "" {
		return "", ErrNotProvisioned
	}
	if p.now().Before(session.RenewAt(p.buffer)) {
		return session.Token, nil
	}
	renewed, err := p.renew(ctx)
	if err != nil {
		return "", err
	}
	return renewed.Token, nil
}

func (p *Provisioner) renew(ctx context.Context) (domain.RoomSession, error) {
	session, err := p.api.CreateVoiceSession(ctx, p.meeting)
	if err != nil {
		return domain.RoomSession{}, fmt.Errorf("renew session: %w", err)
	}
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	p.log.Info().Str("room", string(session.RoomID)).Time("expires_at", session.ExpiresAt).Msg("voice session renewed")
	if p.onRenewed != nil {
		p.onRenewed(session)
	}
	return session, nil
}

// Run renews the grant ahead of expiry until ctx ends. A failed renewal is
// reported and retried; the call itself is never torn down from here.
func (p *Provisioner) Run(ctx context.Context) error {
	for {
		p.mu.RLock()
		session := p.session
		p.mu.RUnlock()
		if session.RoomID == "" {
			return ErrNotProvisioned
		}

		delay := session.RenewAt(p.buffer).Sub(p.now())
		if delay < 0 {
			delay = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.newTimer(delay):
		}

		if _, err := p.renew(ctx); err != nil {
			p.log.Warn().Err(err).Dur("retry_in", p.retry).Msg("session renewal failed")
			if p.onError != nil {
				p.onError(err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.newTimer(p.retry):
			}
		}
	}
}
