// Package signal speaks the relay's WebSocket protocol: the raw socket with
// its pumps, the envelope schema, and the room channel on top.
package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	sendQueueSize  = 32
)

// Socket is one live WebSocket connection with read/write pumps. It is
// single-use: when the connection drops the Socket is dead and Frames
// closes. Redial policy lives a level up (Channel, chat.Client).
type Socket struct {
	conn *websocket.Conn
	log  zerolog.Logger

	incoming chan Envelope
	send     chan core.Frame
	done     chan struct{}

	mu      sync.RWMutex
	closed  bool
	readErr error // set by readPump before incoming closes
}

// DialSocket opens the connection and starts the pumps. On handshake
// failure the HTTP status is returned when known (0 otherwise) so callers
// can tell a rejected token from an unreachable relay.
func DialSocket(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header, log zerolog.Logger) (*Socket, int, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, status, err
	}

	s := &Socket{
		conn:     conn,
		log:      log,
		incoming: make(chan Envelope, sendQueueSize),
		send:     make(chan core.Frame, sendQueueSize),
		done:     make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump()
	go s.writePump()
	return s, resp.StatusCode, nil
}

// Frames yields incoming envelopes until the connection dies; Err holds the
// cause afterwards.
func (s *Socket) Frames() <-chan Envelope { return s.incoming }

// Err is valid once Frames has closed.
func (s *Socket) Err() error { return s.readErr }

// TrySend queues one envelope without blocking. A full queue returns
// ErrBackpressure, a dead socket ErrClosed.
func (s *Socket) TrySend(event string, payload any) error {
	env, err := newEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.ErrClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Close is idempotent and safe from any goroutine.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	_ = s.conn.Close()
}

func (s *Socket) readPump() {
	defer func() {
		s.Close()
		close(s.incoming)
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr = err
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn().Err(err).Msg("bad frame json, skipped")
			continue
		}
		select {
		case s.incoming <- env:
		case <-s.done:
			return
		}
	}
}

func (s *Socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn().Err(err).Msg("socket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
