package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
)

// Credentials is the full auth state for one account on one backend.
type Credentials struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    time.Time     `json:"expiresAt,omitempty"`
	UserID       domain.UserID `json:"userId"`
	Username     string        `json:"username"`
}

func (c Credentials) LoggedIn() bool { return c.AccessToken != "" }

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         domain.User `json:"user"`
}

func (c *Client) adoptAuth(resp authResponse) Credentials {
	creds := Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		UserID:       resp.User.ID,
		Username:     resp.User.Username,
	}
	c.setCredentials(creds)
	return creds
}

func (c *Client) Register(ctx context.Context, email, username, password string) (Credentials, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return Credentials{}, err
	}
	if err := domain.ValidateUsername(username); err != nil {
		return Credentials{}, err
	}
	if password == "" {
		return Credentials{}, domain.ErrPasswordEmpty
	}
	in := map[string]string{"email": email, "username": username, "password": password}
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &resp, false); err != nil {
		return Credentials{}, fmt.Errorf("register: %w", err)
	}
	return c.adoptAuth(resp), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return Credentials{}, err
	}
	if password == "" {
		return Credentials{}, domain.ErrPasswordEmpty
	}
	in := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &resp, false); err != nil {
		return Credentials{}, fmt.Errorf("login: %w", err)
	}
	c.log.Info().Str("user", resp.User.Username).Msg("logged in")
	return c.adoptAuth(resp), nil
}

// Refresh trades the refresh token for a new access token. On success the
// stored credentials are replaced and the change hook fires.
func (c *Client) Refresh(ctx context.Context) (Credentials, error) {
	cur := c.Credentials()
	if cur.RefreshToken == "" {
		return Credentials{}, fmt.Errorf("refresh: no refresh token held")
	}
	in := map[string]string{"refreshToken": cur.RefreshToken}
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", in, &resp, false); err != nil {
		return Credentials{}, fmt.Errorf("refresh: %w", err)
	}
	if resp.User.ID == "" {
		// some backends omit the user on refresh, keep what we know
		resp.User = domain.User{ID: cur.UserID, Username: cur.Username}
	}
	return c.adoptAuth(resp), nil
}

// Logout revokes the session server-side when possible and always drops the
// local credentials.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, true)
	c.setCredentials(Credentials{})
	if err != nil {
		c.log.Warn().Err(err).Msg("server-side logout failed, local state cleared")
	}
	return nil
}
