package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

const (
	handshakeTimeout = 10 * time.Second
	redialTimeout    = 15 * time.Second

	defaultReconnectAttempts = 5
	defaultReconnectBase     = 500 * time.Millisecond
	defaultEventBuffer       = 64
)

// Options configures Dial. SignalURL and Room are required.
type Options struct {
	// SignalURL is the relay base, ws(s):// or http(s)://; the room path
	// is appended.
	SignalURL   string
	Room        domain.VoiceRoomID
	Meeting     domain.MeetingID
	DisplayName string

	// Token is consulted on every dial and redial, so renewed grants are
	// picked up without disturbing anything already connected. Nil means
	// the relay wants no token.
	Token core.TokenSource

	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	EventBuffer        int

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

// Channel is the dialed room socket. It owns reconnection and presents the
// relay protocol as typed room events; implements core.SignalChannel.
type Channel struct {
	opts Options
	log  zerolog.Logger

	events chan core.RoomEvent

	mu   sync.RWMutex
	self domain.PeerID
	sock *Socket

	intentional atomic.Bool
	closed      chan struct{}
	closeOnce   sync.Once
	loopDone    chan struct{}
}

// Dial connects, completes the welcome handshake and starts the event loop.
// The returned channel already knows its own peer identity.
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	if opts.SignalURL == "" {
		return nil, fmt.Errorf("%w: signal url required", core.ErrConnection)
	}
	if opts.Room == "" {
		return nil, fmt.Errorf("%w: room id required", core.ErrConnection)
	}
	if opts.Token == nil {
		opts.Token = core.StaticToken("")
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultReconnectAttempts
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = defaultReconnectBase
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	ch := &Channel{
		opts:     opts,
		log:      opts.Logger.With().Str("module", "signal").Str("room", string(opts.Room)).Logger(),
		events:   make(chan core.RoomEvent, opts.EventBuffer),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	sock, self, err := ch.connect(ctx)
	if err != nil {
		return nil, err
	}
	ch.sock = sock
	ch.self = self
	ch.log.Info().Str("self", string(self)).Msg("room channel up")

	go ch.run()
	return ch, nil
}

func (ch *Channel) Self() domain.PeerID {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.self
}

func (ch *Channel) Events() <-chan core.RoomEvent { return ch.events }

// SendSignal relays one negotiation blob. The payload stays opaque here.
func (ch *Channel) SendSignal(to domain.PeerID, data []byte) error {
	if to == "" {
		return errors.New("signal: recipient required")
	}
	payload := signalPayload{To: string(to), From: string(ch.Self()), Data: data}
	return ch.socket().TrySend(evtSignal, payload)
}

// Close hangs up on purpose: no reconnect, no Disconnected event, and no
// events of any kind after it returns.
func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() {
		ch.intentional.Store(true)
		close(ch.closed)
		ch.socket().Close()
		<-ch.loopDone
		ch.log.Info().Msg("room channel closed")
	})
	<-ch.loopDone
	return nil
}

func (ch *Channel) socket() *Socket {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.sock
}

// roomURL assembles the dial target with a fresh token each time.
func (ch *Channel) roomURL(ctx context.Context) (string, error) {
	u, err := url.Parse(ch.opts.SignalURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad signal url: %v", core.ErrConnection, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported signal scheme %q", core.ErrConnection, u.Scheme)
	}
	u.Path = path.Join(u.Path, "rooms", string(ch.opts.Room))

	q := u.Query()
	if ch.opts.Meeting != "" {
		q.Set("meetingId", string(ch.opts.Meeting))
	}
	if ch.opts.DisplayName != "" {
		q.Set("displayName", ch.opts.DisplayName)
	}
	token, err := ch.opts.Token.RoomToken(ctx)
	if err != nil {
		return "", fmt.Errorf("room token: %w", err)
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials and waits for the welcome frame carrying our identity.
func (ch *Channel) connect(ctx context.Context) (*Socket, domain.PeerID, error) {
	target, err := ch.roomURL(ctx)
	if err != nil {
		return nil, "", err
	}

	sock, status, err := DialSocket(ctx, ch.opts.Dialer, target, nil, ch.log)
	if err != nil {
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, "", fmt.Errorf("%w: relay rejected token (status %d)", core.ErrAuth, status)
		case status == http.StatusNotFound:
			return nil, "", fmt.Errorf("%w: room %s not known to relay", core.ErrConnection, ch.opts.Room)
		default:
			// keep the token out of the error text
			return nil, "", fmt.Errorf("%w: dial %s: %v", core.ErrConnection, ch.opts.SignalURL, err)
		}
	}

	select {
	case env, ok := <-sock.Frames():
		if !ok {
			cause := sock.Err()
			return nil, "", fmt.Errorf("%w: closed during handshake: %v", core.ErrConnection, cause)
		}
		if env.Event == evtError {
			sock.Close()
			var p errorPayload
			_ = parsePayload(env, &p)
			if p.Code == "unauthorized" {
				return nil, "", fmt.Errorf("%w: %s", core.ErrAuth, p.Message)
			}
			return nil, "", fmt.Errorf("%w: relay refused: %s", core.ErrConnection, p.Message)
		}
		self, err := parseWelcome(env)
		if err != nil {
			sock.Close()
			return nil, "", fmt.Errorf("%w: %v", core.ErrConnection, err)
		}
		return sock, self, nil
	case <-time.After(handshakeTimeout):
		sock.Close()
		return nil, "", fmt.Errorf("%w: no welcome from relay", core.ErrConnection)
	case <-ctx.Done():
		sock.Close()
		return nil, "", ctx.Err()
	}
}

// run forwards frames as events and redials on network loss until the
// attempts run out or Close is called.
func (ch *Channel) run() {
	defer close(ch.loopDone)
	defer close(ch.events)

	for {
		ch.forward(ch.socket())
		if ch.intentional.Load() {
			return
		}

		cause := ch.socket().Err()
		ch.log.Warn().Err(cause).Msg("room channel lost, reconnecting")

		sock, self, err := ch.redial()
		if err != nil {
			if errors.Is(err, core.ErrClosed) {
				return
			}
			ch.emit(core.Disconnected{Cause: err})
			return
		}
		ch.mu.Lock()
		ch.sock = sock
		ch.self = self
		ch.mu.Unlock()
		ch.emit(core.Reconnected{Self: self})
	}
}

func (ch *Channel) forward(sock *Socket) {
	for env := range sock.Frames() {
		if env.Event == evtWelcome {
			// only the handshake owns welcome; a repeat is relay noise
			ch.log.Debug().Msg("stray welcome ignored")
			continue
		}
		ev, err := decodeEvent(env)
		if err != nil {
			ch.log.Warn().Err(err).Str("event", env.Event).Msg("bad room event skipped")
			continue
		}
		if !ch.emit(ev) {
			return
		}
	}
}

// emit delivers in order and never drops; it aborts only when the channel
// is being closed.
func (ch *Channel) emit(ev core.RoomEvent) bool {
	select {
	case ch.events <- ev:
		return true
	case <-ch.closed:
		return false
	}
}

func (ch *Channel) redial() (*Socket, domain.PeerID, error) {
	delay := ch.opts.ReconnectBaseDelay
	var lastErr error

	for attempt := 1; attempt <= ch.opts.ReconnectAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-ch.closed:
			return nil, "", core.ErrClosed
		}

		ctx, cancel := context.WithTimeout(context.Background(), redialTimeout)
		sock, self, err := ch.connect(ctx)
		cancel()
		if err == nil {
			ch.log.Info().Int("attempt", attempt).Str("self", string(self)).Msg("room channel reconnected")
			return sock, self, nil
		}
		lastErr = err
		if errors.Is(err, core.ErrAuth) {
			// the token source already renewed; a rejected grant will not
			// fix itself by dialing harder
			return nil, "", err
		}
		ch.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("reconnect attempt failed")
		delay *= 2
	}
	return nil, "", fmt.Errorf("reconnect gave up after %d attempts: %w", ch.opts.ReconnectAttempts, lastErr)
}
