// Package chat is the text channel client: a socket sibling of the voice
// room channel carrying messages and presence for one meeting.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/adapters/signal"
	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

const (
	defaultSendLimit   = 10
	defaultSendWindow  = 10 * time.Second
	defaultEventBuffer = 64
	defaultAttempts    = 5
	defaultBaseDelay   = 500 * time.Millisecond
	redialTimeout      = 15 * time.Second
	rememberedSends    = 128
)

// Options configures Dial. ChatURL and Meeting are required.
type Options struct {
	// ChatURL is the chat socket endpoint, ws(s):// or http(s)://.
	ChatURL string
	Meeting domain.MeetingID

	// Author stamps outgoing messages.
	Author      domain.User
	DisplayName string

	// Token supplies the access token on every dial.
	Token core.TokenSource

	SendLimit  int
	SendWindow time.Duration

	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	EventBuffer        int

	Dialer *websocket.Dialer
	Logger zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

// Client is a live chat connection. Incoming traffic arrives on Events;
// Send is safe from any goroutine.
type Client struct {
	opts Options
	log  zerolog.Logger

	events  chan Event
	limiter *rateLimiter

	mu   sync.RWMutex
	sock *signal.Socket

	sentMu  sync.Mutex
	sentIDs map[string]struct{}
	sentSeq []string

	intentional atomic.Bool
	closed      chan struct{}
	closeOnce   sync.Once
	loopDone    chan struct{}
}

// Dial connects and announces us to the meeting's text channel.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.ChatURL == "" {
		return nil, fmt.Errorf("%w: chat url required", core.ErrConnection)
	}
	if opts.Meeting == "" {
		return nil, fmt.Errorf("%w: meeting id required", core.ErrConnection)
	}
	if opts.Token == nil {
		opts.Token = core.StaticToken("")
	}
	if opts.SendLimit <= 0 {
		opts.SendLimit = defaultSendLimit
	}
	if opts.SendWindow <= 0 {
		opts.SendWindow = defaultSendWindow
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultAttempts
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = defaultBaseDelay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	c := &Client{
		opts:     opts,
		log:      opts.Logger.With().Str("module", "chat").Str("meeting", string(opts.Meeting)).Logger(),
		events:   make(chan Event, opts.EventBuffer),
		limiter:  newRateLimiter(opts.SendLimit, opts.SendWindow, opts.Now),
		sentIDs:  make(map[string]struct{}),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	sock, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.sock = sock
	c.log.Info().Msg("chat channel up")

	go c.run()
	return c, nil
}

func (c *Client) Events() <-chan Event { return c.events }

// Send validates, rate-limits and ships one message. The stamped message is
// returned so callers can render it immediately; the relay's echo of it is
// filtered out of Events.
func (c *Client) Send(body string) (domain.ChatMessage, error) {
	if err := domain.ValidateChatBody(body); err != nil {
		return domain.ChatMessage{}, err
	}
	if !c.limiter.Allow() {
		return domain.ChatMessage{}, fmt.Errorf("%w: chat send limit reached", core.ErrBackpressure)
	}

	msg := domain.ChatMessage{
		ID:         c.opts.NewID(),
		MeetingID:  c.opts.Meeting,
		AuthorID:   c.opts.Author.ID,
		AuthorName: c.displayName(),
		Body:       body,
		SentAt:     c.opts.Now(),
	}
	payload := messageJSON{
		ID:         msg.ID,
		MeetingID:  string(msg.MeetingID),
		AuthorID:   string(msg.AuthorID),
		AuthorName: msg.AuthorName,
		Body:       msg.Body,
		SentAt:     msg.SentAt,
	}
	if err := c.socket().TrySend(evtMessage, payload); err != nil {
		return domain.ChatMessage{}, err
	}
	c.remember(msg.ID)
	return msg, nil
}

// Close hangs up on purpose; no events after it returns.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.intentional.Store(true)
		close(c.closed)
		c.socket().Close()
		<-c.loopDone
		c.log.Info().Msg("chat channel closed")
	})
	<-c.loopDone
	return nil
}

func (c *Client) displayName() string {
	if c.opts.DisplayName != "" {
		return c.opts.DisplayName
	}
	return c.opts.Author.Username
}

func (c *Client) socket() *signal.Socket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sock
}

func (c *Client) chatURL(ctx context.Context) (string, error) {
	u, err := url.Parse(c.opts.ChatURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad chat url: %v", core.ErrConnection, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported chat scheme %q", core.ErrConnection, u.Scheme)
	}
	q := u.Query()
	q.Set("meetingId", string(c.opts.Meeting))
	token, err := c.opts.Token.RoomToken(ctx)
	if err != nil {
		return "", fmt.Errorf("chat token: %w", err)
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials and announces the join; the relay replies with presence
// and, on some backends, a history batch.
func (c *Client) connect(ctx context.Context) (*signal.Socket, error) {
	target, err := c.chatURL(ctx)
	if err != nil {
		return nil, err
	}
	sock, status, err := signal.DialSocket(ctx, c.opts.Dialer, target, nil, c.log)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, fmt.Errorf("%w: chat rejected token (status %d)", core.ErrAuth, status)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", core.ErrConnection, c.opts.ChatURL, err)
	}
	join := joinPayload{MeetingID: string(c.opts.Meeting), DisplayName: c.displayName()}
	if err := sock.TrySend(evtJoin, join); err != nil {
		sock.Close()
		return nil, fmt.Errorf("%w: join: %v", core.ErrConnection, err)
	}
	return sock, nil
}

func (c *Client) run() {
	defer close(c.loopDone)
	defer close(c.events)

	for {
		c.forward(c.socket())
		if c.intentional.Load() {
			return
		}

		cause := c.socket().Err()
		c.log.Warn().Err(cause).Msg("chat channel lost, reconnecting")

		sock, err := c.redial()
		if err != nil {
			if errors.Is(err, core.ErrClosed) {
				return
			}
			c.emit(DisconnectedEvent{Cause: err})
			return
		}
		c.mu.Lock()
		c.sock = sock
		c.mu.Unlock()
	}
}

func (c *Client) forward(sock *signal.Socket) {
	for env := range sock.Frames() {
		switch env.Event {
		case evtMessage:
			var m messageJSON
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				c.log.Warn().Err(err).Msg("bad chat message skipped")
				continue
			}
			if err := m.validate(); err != nil {
				c.log.Warn().Err(err).Msg("bad chat message skipped")
				continue
			}
			if c.isOwnEcho(m.ID) {
				continue
			}
			if !c.emit(MessageEvent{Message: m.domain()}) {
				return
			}
		case evtHistory:
			var batch []messageJSON
			if err := json.Unmarshal(env.Payload, &batch); err != nil {
				c.log.Warn().Err(err).Msg("bad history batch skipped")
				continue
			}
			for _, m := range batch {
				if m.validate() != nil {
					continue
				}
				if !c.emit(MessageEvent{Message: m.domain()}) {
					return
				}
			}
		case evtPresence:
			var p presencePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				c.log.Warn().Err(errBadPayload(env.Event, err)).Msg("bad presence skipped")
				continue
			}
			if !c.emit(PresenceEvent{DisplayName: p.DisplayName, Joined: p.Joined}) {
				return
			}
		case evtError:
			var p errorPayload
			_ = json.Unmarshal(env.Payload, &p)
			if p.Message == "" {
				p.Message = "chat relay error"
			}
			if !c.emit(ErrorEvent{Message: p.Message}) {
				return
			}
		default:
			c.log.Debug().Str("event", env.Event).Msg("unknown chat event skipped")
		}
	}
}

func (c *Client) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closed:
		return false
	}
}

func (c *Client) redial() (*signal.Socket, error) {
	delay := c.opts.ReconnectBaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-c.closed:
			return nil, core.ErrClosed
		}

		ctx, cancel := context.WithTimeout(context.Background(), redialTimeout)
		sock, err := c.connect(ctx)
		cancel()
		if err == nil {
			c.log.Info().Int("attempt", attempt).Msg("chat channel reconnected")
			return sock, nil
		}
		lastErr = err
		if errors.Is(err, core.ErrAuth) {
			return nil, err
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("chat reconnect failed")
		delay *= 2
	}
	return nil, fmt.Errorf("chat reconnect gave up after %d attempts: %w", c.opts.ReconnectAttempts, lastErr)
}

// remember records an outgoing id for echo suppression, keeping the window
// bounded.
func (c *Client) remember(id string) {
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	c.sentIDs[id] = struct{}{}
	c.sentSeq = append(c.sentSeq, id)
	if len(c.sentSeq) > rememberedSends {
		oldest := c.sentSeq[0]
		c.sentSeq = c.sentSeq[1:]
		delete(c.sentIDs, oldest)
	}
}

func (c *Client) isOwnEcho(id string) bool {
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	if _, ok := c.sentIDs[id]; !ok {
		return false
	}
	delete(c.sentIDs, id)
	return true
}
