package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jericodaag/Horizon-sub000/internal/models"
	"github.com/jericodaag/Horizon-sub000/internal/transport"
	apperrors "github.com/jericodaag/Horizon-sub000/pkg/errors"
)

type fakeStore struct {
	mu         sync.Mutex
	userID     string
	history    map[string][]models.Message
	convs      []models.Conversation
	failCreate bool
	failQuery  bool
	createSeq  int
	created    []models.Message
	markRead   []string
}

func newFakeStore(userID string) *fakeStore {
	return &fakeStore{userID: userID, history: make(map[string][]models.Message)}
}

func (f *fakeStore) CreateMessage(_ context.Context, receiverID, content, attachmentURL string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return nil, apperrors.ErrStoreUnavailable
	}

	f.createSeq++
	m := models.Message{
		ID:            fmt.Sprintf("srv-%d", f.createSeq),
		SenderID:      f.userID,
		ReceiverID:    receiverID,
		Content:       content,
		AttachmentURL: attachmentURL,
		CreatedAt:     time.Now(),
		Status:        models.StatusConfirmed,
	}
	f.created = append(f.created, m)
	f.history[receiverID] = append(f.history[receiverID], m)
	return &m, nil
}

func (f *fakeStore) ListConversation(_ context.Context, partnerID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failQuery {
		return nil, apperrors.ErrStoreUnavailable
	}
	return append([]models.Message(nil), f.history[partnerID]...), nil
}

func (f *fakeStore) ListConversations(_ context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failQuery {
		return nil, apperrors.ErrStoreUnavailable
	}
	return append([]models.Conversation(nil), f.convs...), nil
}

func (f *fakeStore) MarkRead(_ context.Context, partnerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markRead = append(f.markRead, partnerID)
	return 1, nil
}

func (f *fakeStore) setFailCreate(v bool) {
	f.mu.Lock()
	f.failCreate = v
	f.mu.Unlock()
}

func (f *fakeStore) markReadCount(partnerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, p := range f.markRead {
		if p == partnerID {
			n++
		}
	}
	return n
}

func (f *fakeStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type emittedEvent struct {
	kind    transport.EventType
	payload interface{}
}

type fakeTransport struct {
	mu      sync.Mutex
	events  chan transport.Event
	emitted []emittedEvent
	status  transport.Status
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan transport.Event, 64),
		status: transport.StatusInactive,
	}
}

func (f *fakeTransport) Activate(string) {
	f.mu.Lock()
	f.status = transport.StatusConnected
	f.mu.Unlock()
}

func (f *fakeTransport) Deactivate() {
	f.mu.Lock()
	f.status = transport.StatusInactive
	f.mu.Unlock()
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeTransport) Emit(t transport.EventType, payload interface{}) {
	f.mu.Lock()
	f.emitted = append(f.emitted, emittedEvent{kind: t, payload: payload})
	f.mu.Unlock()
}

func (f *fakeTransport) Status() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) push(ev transport.Event) {
	f.events <- ev
}

func (f *fakeTransport) count(kind transport.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, e := range f.emitted {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeTransport) typingEmits() []transport.TypingPayload {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []transport.TypingPayload
	for _, e := range f.emitted {
		if e.kind == transport.EventTyping {
			out = append(out, e.payload.(transport.TypingPayload))
		}
	}
	return out
}

type fakeCache struct {
	mu    sync.Mutex
	msgs  map[string][]models.Message
	convs []models.Conversation
}

func (f *fakeCache) SaveMessages(partnerID string, msgs []models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = make(map[string][]models.Message)
	}
	f.msgs[partnerID] = append([]models.Message(nil), msgs...)
	return nil
}

func (f *fakeCache) Messages(partnerID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.msgs[partnerID]...), nil
}

func (f *fakeCache) SaveConversations(convs []models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs = append([]models.Conversation(nil), convs...)
	return nil
}

func (f *fakeCache) Conversations() ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Conversation(nil), f.convs...), nil
}

func testOptions() Options {
	return Options{
		StoreTimeout:  time.Second,
		TypingQuiet:   60 * time.Millisecond,
		MarkReadDelay: 20 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, cache Snapshots) (*Session, *fakeStore, *fakeTransport) {
	t.Helper()

	st := newFakeStore("alice")
	tr := newFakeTransport()
	s := NewSession("alice", st, cache, tr, testOptions())
	s.Start()
	t.Cleanup(s.Stop)
	return s, st, tr
}

func openConversation(t *testing.T, s *Session, partnerID string) {
	t.Helper()

	s.OpenConversation(partnerID)
	require.Eventually(t, func() bool {
		return s.ActivePartner() == partnerID
	}, time.Second, 5*time.Millisecond)
}

func TestInboundMessageScenario(t *testing.T) {
	s, st, tr := newTestSession(t, nil)
	openConversation(t, s, "bob")

	tr.push(transport.Event{Type: transport.EventReceiveMessage, Message: &transport.MessagePayload{
		ID:         "wire-1",
		SenderID:   "bob",
		ReceiverID: "alice",
		Content:    "Hi",
		CreatedAt:  time.Now(),
	}})

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Content == "Hi" && msgs[0].SenderID == "bob"
	}, time.Second, 5*time.Millisecond)

	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "bob", convs[0].Partner.ID)

	// The conversation is on screen, so the unread state drains after the
	// mark-read grace period and the sender gets a per-message receipt.
	require.Eventually(t, func() bool {
		convs := s.Conversations()
		return len(convs) == 1 && convs[0].UnreadCount == 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return s.IsRead("wire-1")
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return tr.count(transport.EventMessageRead) >= 1
	}, time.Second, 5*time.Millisecond)

	assert.Greater(t, st.markReadCount("bob"), 0)
}

func TestInboundWhileConversationClosedKeepsUnread(t *testing.T) {
	s, st, tr := newTestSession(t, nil)

	tr.push(transport.Event{Type: transport.EventReceiveMessage, Message: &transport.MessagePayload{
		ID:         "wire-1",
		SenderID:   "bob",
		ReceiverID: "alice",
		Content:    "Hi",
		CreatedAt:  time.Now(),
	}})

	require.Eventually(t, func() bool {
		convs := s.Conversations()
		return len(convs) == 1 && convs[0].UnreadCount == 1 && convs[0].NewCount == 1
	}, time.Second, 5*time.Millisecond)

	// No open view, no mark-read: the counter holds.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, s.Conversations()[0].UnreadCount)
	assert.Equal(t, 0, st.markReadCount("bob"))
	assert.Empty(t, s.Messages())
}

func TestDuplicateDeliveryAcrossSourcesRendersOnce(t *testing.T) {
	s, st, tr := newTestSession(t, nil)

	created := time.Now()
	st.mu.Lock()
	st.history["bob"] = []models.Message{{
		ID:        "m1",
		SenderID:  "bob",
		Content:   "Hi",
		CreatedAt: created,
		IsRead:    true,
	}}
	st.mu.Unlock()

	// Wire copy lands first, then the durable query for the same message
	// resolves.
	openConversation(t, s, "bob")
	tr.push(transport.Event{Type: transport.EventReceiveMessage, Message: &transport.MessagePayload{
		SenderID:   "bob",
		ReceiverID: "alice",
		Content:    "Hi",
		CreatedAt:  created.Add(2 * time.Second),
	}})

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].ID == "m1"
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.Messages(), 1)
}

func TestOptimisticSendConfirms(t *testing.T) {
	s, st, tr := newTestSession(t, nil)
	openConversation(t, s, "bob")

	localID, err := s.SendMessage("yo", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(localID, "local-"))

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Status == models.StatusConfirmed && msgs[0].ID == "srv-1"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, st.createdCount())
	assert.Equal(t, 1, tr.count(transport.EventSendMessage))

	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "bob", convs[0].Partner.ID)
	assert.Equal(t, 0, convs[0].UnreadCount)
}

func TestSendWithoutOpenConversation(t *testing.T) {
	s, _, _ := newTestSession(t, nil)

	_, err := s.SendMessage("yo", "")
	assert.ErrorIs(t, err, apperrors.ErrNoConversation)
}

func TestFailedSendThenManualResend(t *testing.T) {
	s, st, _ := newTestSession(t, nil)
	openConversation(t, s, "bob")

	st.setFailCreate(true)
	localID, err := s.SendMessage("yo", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Status == models.StatusFailed
	}, time.Second, 5*time.Millisecond)

	st.setFailCreate(false)
	require.NoError(t, s.Resend(localID))

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Status == models.StatusConfirmed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, st.createdCount())
}

func TestResendRejectsDurableIDs(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	openConversation(t, s, "bob")

	assert.Error(t, s.Resend("srv-1"))
}

func TestTypingBroadcastAndAutoExpiry(t *testing.T) {
	s, _, tr := newTestSession(t, nil)
	openConversation(t, s, "bob")

	require.NoError(t, s.SetTyping(true))

	require.Eventually(t, func() bool {
		emits := tr.typingEmits()
		return len(emits) >= 1 && emits[0].IsTyping
	}, time.Second, 5*time.Millisecond)

	// No further keystrokes: the quiet period elapses and the idle
	// transition broadcasts on its own.
	require.Eventually(t, func() bool {
		emits := tr.typingEmits()
		return len(emits) >= 2 && !emits[len(emits)-1].IsTyping
	}, time.Second, 5*time.Millisecond)
}

func TestExplicitTypingStopBroadcasts(t *testing.T) {
	s, _, tr := newTestSession(t, nil)
	openConversation(t, s, "bob")

	require.NoError(t, s.SetTyping(true))
	require.NoError(t, s.SetTyping(false))

	require.Eventually(t, func() bool {
		emits := tr.typingEmits()
		return len(emits) == 2 && emits[0].IsTyping && !emits[1].IsTyping
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteTypingIndicator(t *testing.T) {
	s, _, tr := newTestSession(t, nil)

	tr.push(transport.Event{Type: transport.EventTypingUpdate, Typing: &transport.TypingPayload{
		SenderID:   "bob",
		ReceiverID: "alice",
		IsTyping:   true,
	}})

	require.Eventually(t, func() bool {
		return s.IsTyping("bob")
	}, time.Second, 5*time.Millisecond)

	// Expires on its own without an explicit stop event.
	require.Eventually(t, func() bool {
		return !s.IsTyping("bob")
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceSnapshotDeltaAndDisconnect(t *testing.T) {
	s, _, tr := newTestSession(t, nil)

	tr.push(transport.Event{Type: transport.EventOnlineUsers, Users: []string{"bob"}})
	require.Eventually(t, func() bool { return s.IsOnline("bob") }, time.Second, 5*time.Millisecond)

	tr.push(transport.Event{Type: transport.EventUserStatus, Status: &transport.UserStatusPayload{UserID: "carol", Online: true}})
	require.Eventually(t, func() bool { return s.IsOnline("carol") }, time.Second, 5*time.Millisecond)

	tr.push(transport.Event{Type: transport.EventDisconnected})
	require.Eventually(t, func() bool {
		return !s.IsOnline("bob") && !s.IsOnline("carol")
	}, time.Second, 5*time.Millisecond)
}

func TestInboundReadReceipt(t *testing.T) {
	s, _, tr := newTestSession(t, nil)

	tr.push(transport.Event{Type: transport.EventReadReceipt, Read: &transport.ReadPayload{
		MessageID:  "srv-7",
		SenderID:   "alice",
		ReceiverID: "bob",
	}})

	require.Eventually(t, func() bool { return s.IsRead("srv-7") }, time.Second, 5*time.Millisecond)
}

func TestQueryFailureFallsBackToCachedMessages(t *testing.T) {
	cached := &fakeCache{msgs: map[string][]models.Message{
		"bob": {{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "old", CreatedAt: at(0), IsRead: true, Status: models.StatusConfirmed}},
	}}

	st := newFakeStore("alice")
	st.failQuery = true
	tr := newFakeTransport()
	s := NewSession("alice", st, cached, tr, testOptions())
	s.Start()
	t.Cleanup(s.Stop)

	s.OpenConversation("bob")

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].ID == "m1"
	}, time.Second, 5*time.Millisecond)
}

func TestConversationListFallsBackToCache(t *testing.T) {
	cached := &fakeCache{convs: []models.Conversation{{
		Partner:      models.UserSummary{ID: "bob", Username: "bob"},
		LastMessage:  models.Message{ID: "m1", SenderID: "bob", Content: "old", CreatedAt: at(0)},
		UnreadCount:  2,
		LastActivity: at(0),
	}}}

	st := newFakeStore("alice")
	st.failQuery = true
	tr := newFakeTransport()
	s := NewSession("alice", st, cached, tr, testOptions())
	s.Start()
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		convs := s.Conversations()
		return len(convs) == 1 && convs[0].Partner.ID == "bob" && convs[0].UnreadCount == 2
	}, time.Second, 5*time.Millisecond)
}
