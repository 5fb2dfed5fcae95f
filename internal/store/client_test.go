package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jericodaag/Horizon-sub000/internal/models"
	apperrors "github.com/jericodaag/Horizon-sub000/pkg/errors"
)

func testBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				ReceiverID string `json:"receiverId"`
				Content    string `json:"content"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": models.Message{
					ID:         "m1",
					SenderID:   "alice",
					ReceiverID: req.ReceiverID,
					Content:    req.Content,
					CreatedAt:  time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
				},
			})
		case http.MethodGet:
			assert.Equal(t, "bob", r.URL.Query().Get("userId"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"messages": []models.Message{
					{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi", CreatedAt: time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)},
					{ID: "m2", SenderID: "alice", ReceiverID: "bob", Content: "hey", CreatedAt: time.Date(2024, 5, 10, 11, 1, 0, 0, time.UTC)},
				},
			})
		}
	})

	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"conversations": []models.Conversation{{
				Partner:     models.UserSummary{ID: "bob", Username: "bob"},
				LastMessage: models.Message{ID: "m2", SenderID: "bob", Content: "hi", CreatedAt: time.Date(2024, 5, 10, 11, 1, 0, 0, time.UTC)},
				UnreadCount: 2,
			}},
		})
	})

	mux.HandleFunc("/api/messages/read/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/messages/read/bob", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int64{"markedRead": 3})
	})

	return httptest.NewServer(mux)
}

func TestCreateMessage(t *testing.T) {
	srv := testBackend(t)
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	msg, err := c.CreateMessage(context.Background(), "bob", "yo", "")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "bob", msg.ReceiverID)
	assert.Equal(t, "yo", msg.Content)
	assert.Equal(t, models.StatusConfirmed, msg.Status)
}

func TestListConversation(t *testing.T) {
	srv := testBackend(t)
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	msgs, err := c.ListConversation(context.Background(), "bob")
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, models.StatusConfirmed, msgs[0].Status)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
}

func TestListConversations(t *testing.T) {
	srv := testBackend(t)
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)

	require.Len(t, convs, 1)
	assert.Equal(t, "bob", convs[0].Partner.ID)
	assert.Equal(t, 2, convs[0].UnreadCount)
	// LastActivity backfills from the last message when the backend does
	// not send it.
	assert.Equal(t, convs[0].LastMessage.CreatedAt, convs[0].LastActivity)
}

func TestMarkRead(t *testing.T) {
	srv := testBackend(t)
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	n, err := c.MarkRead(context.Background(), "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestRejectedAuthSurfacesAsUnavailable(t *testing.T) {
	srv := testBackend(t)
	defer srv.Close()

	c := New(srv.URL, "wrong", time.Second)
	_, err := c.CreateMessage(context.Background(), "bob", "yo", "")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestTimeoutSurfacesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", 30*time.Millisecond)
	_, err := c.ListConversation(context.Background(), "bob")
	assert.ErrorIs(t, err, apperrors.ErrStoreTimeout)
}

func TestServerErrorSurfacesAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	_, err := c.ListConversations(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
