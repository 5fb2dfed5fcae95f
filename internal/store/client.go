package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jericodaag/Horizon-sub000/internal/models"
	apperrors "github.com/jericodaag/Horizon-sub000/pkg/errors"
)

// Client talks to the durable message store: the Horizon backend's
// request/response API. It is the authoritative source for message history,
// conversation lists and read flags; everything here is a plain query or an
// idempotent update, so retries are the caller's choice.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateMessage persists a new outbound message and returns the durable row,
// including the store-assigned ID and timestamp.
func (c *Client) CreateMessage(ctx context.Context, receiverID, content, attachmentURL string) (*models.Message, error) {
	body := map[string]string{
		"receiverId": receiverID,
		"content":    content,
	}
	if attachmentURL != "" {
		body["attachmentUrl"] = attachmentURL
	}

	var resp struct {
		Message models.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/messages", body, &resp); err != nil {
		return nil, err
	}

	resp.Message.Status = models.StatusConfirmed
	return &resp.Message, nil
}

// ListConversation returns the ordered message history with one partner,
// oldest first.
func (c *Client) ListConversation(ctx context.Context, partnerID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/api/messages?userId=" + url.QueryEscape(partnerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	for i := range resp.Messages {
		resp.Messages[i].Status = models.StatusConfirmed
	}
	return resp.Messages, nil
}

// ListConversations returns the user's conversation list with denormalized
// last messages and unread counts, newest activity first.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}

	for i := range resp.Conversations {
		conv := &resp.Conversations[i]
		conv.LastMessage.Status = models.StatusConfirmed
		if conv.LastActivity.IsZero() {
			conv.LastActivity = conv.LastMessage.CreatedAt
		}
	}
	return resp.Conversations, nil
}

// MarkRead flags all unread messages from the partner as read. The backend
// treats this as a batch update keyed on (sender, receiver, unread), so
// calling it repeatedly is safe.
func (c *Client) MarkRead(ctx context.Context, partnerID string) (int64, error) {
	var resp struct {
		MarkedRead int64 `json:"markedRead"`
	}
	path := "/api/messages/read/" + url.PathEscape(partnerID)
	if err := c.do(ctx, http.MethodPut, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.MarkedRead, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.ErrStoreTimeout
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return apperrors.ErrStoreTimeout
		}
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("%w: %s %s returned %d", apperrors.ErrStoreUnavailable, method, path, res.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
