package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/huddlekit/huddle/internal/domain"
)

type MeetingDraft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartsAt    string `json:"startsAt,omitempty"` // RFC 3339, backend default when empty
}

func (c *Client) Meetings(ctx context.Context) ([]domain.Meeting, error) {
	var resp struct {
		Meetings []domain.Meeting `json:"meetings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/meetings", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return resp.Meetings, nil
}

func (c *Client) Meeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error) {
	var m domain.Meeting
	if err := c.do(ctx, http.MethodGet, "/api/meetings/"+url.PathEscape(string(id)), nil, &m, true); err != nil {
		return domain.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	return m, nil
}

func (c *Client) CreateMeeting(ctx context.Context, draft MeetingDraft) (domain.Meeting, error) {
	if err := domain.ValidateMeeting(draft.Title, draft.Description); err != nil {
		return domain.Meeting{}, err
	}
	var m domain.Meeting
	if err := c.do(ctx, http.MethodPost, "/api/meetings", draft, &m, true); err != nil {
		return domain.Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	c.log.Info().Str("meeting", string(m.ID)).Msg("meeting created")
	return m, nil
}

func (c *Client) UpdateMeeting(ctx context.Context, id domain.MeetingID, draft MeetingDraft) (domain.Meeting, error) {
	if err := domain.ValidateMeeting(draft.Title, draft.Description); err != nil {
		return domain.Meeting{}, err
	}
	var m domain.Meeting
	if err := c.do(ctx, http.MethodPut, "/api/meetings/"+url.PathEscape(string(id)), draft, &m, true); err != nil {
		return domain.Meeting{}, fmt.Errorf("update meeting %s: %w", id, err)
	}
	return m, nil
}

func (c *Client) DeleteMeeting(ctx context.Context, id domain.MeetingID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/meetings/"+url.PathEscape(string(id)), nil, nil, true); err != nil {
		return fmt.Errorf("delete meeting %s: %w", id, err)
	}
	return nil
}

// ChatHistory returns the most recent messages for a meeting, oldest first.
func (c *Client) ChatHistory(ctx context.Context, id domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	path := "/api/meetings/" + url.PathEscape(string(id)) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("chat history %s: %w", id, err)
	}
	return resp.Messages, nil
}
