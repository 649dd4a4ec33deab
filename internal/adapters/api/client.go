// Package api is the HTTP client for the meeting backend: auth, meeting
// CRUD, chat history and voice session provisioning.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
)

const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx backend reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Code)
}

// Unwrap maps the status onto the shared failure categories so callers can
// branch with errors.Is without knowing HTTP.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return core.ErrAuth
	case e.Code == http.StatusNotFound:
		return core.ErrNotFound
	case e.Code >= http.StatusInternalServerError:
		return core.ErrConnection
	default:
		return nil
	}
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger

	// OnCredentials observes every credential change (login, refresh,
	// logout) so callers can persist them. May be nil.
	OnCredentials func(Credentials)

	now func() time.Time // test hook
}

type Client struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger
	now  func() time.Time

	onCredentials func(Credentials)

	mu    sync.RWMutex
	creds Credentials
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	return &Client{
		base:          base,
		http:          hc,
		log:           opts.Logger.With().Str("module", "api").Logger(),
		now:           now,
		onCredentials: opts.OnCredentials,
	}, nil
}

// SetCredentials seeds the client from a cache; it does not call the hook.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

func (c *Client) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

func (c *Client) setCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	if c.onCredentials != nil {
		c.onCredentials(creds)
	}
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// do sends one JSON request. Authenticated calls that bounce with 401 get a
// single token refresh and retry; a second 401 surfaces as ErrAuth.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	err := c.send(ctx, method, path, in, out, authed)
	if err == nil || !authed {
		return err
	}
	se, ok := err.(*StatusError) //nolint:errorlint // direct reply, never wrapped here
	if !ok || se.Code != http.StatusUnauthorized {
		return err
	}
	if c.Credentials().RefreshToken == "" {
		return err
	}
	c.log.Debug().Str("path", path).Msg("access token rejected, refreshing")
	if _, rerr := c.Refresh(ctx); rerr != nil {
		return fmt.Errorf("refresh after 401: %w", rerr)
	}
	return c.send(ctx, method, path, in, out, authed)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		if tok := c.Credentials().AccessToken; tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrConnection, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// readErrorMessage pulls {"error": "..."} or {"message": "..."} out of an
// error body, falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil || len(raw) == 0 {
		return "no error body"
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
