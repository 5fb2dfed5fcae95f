package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jericodaag/Horizon-sub000/internal/models"
	"github.com/jericodaag/Horizon-sub000/internal/transport"
	apperrors "github.com/jericodaag/Horizon-sub000/pkg/errors"
	"github.com/jericodaag/Horizon-sub000/pkg/logger"
	"github.com/jericodaag/Horizon-sub000/pkg/utils"
)

// Store is the durable message store as the session consumes it.
type Store interface {
	CreateMessage(ctx context.Context, receiverID, content, attachmentURL string) (*models.Message, error)
	ListConversation(ctx context.Context, partnerID string) ([]models.Message, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	MarkRead(ctx context.Context, partnerID string) (int64, error)
}

// Snapshots is the optional last-known-state cache backing the degraded
// path when the store is unreachable.
type Snapshots interface {
	SaveMessages(partnerID string, msgs []models.Message) error
	Messages(partnerID string) ([]models.Message, error)
	SaveConversations(convs []models.Conversation) error
	Conversations() ([]models.Conversation, error)
}

// Transport is the real-time event channel as the session consumes it.
type Transport interface {
	Activate(userID string)
	Deactivate()
	Events() <-chan transport.Event
	Emit(t transport.EventType, payload interface{})
	Status() transport.Status
}

// Options carries the sync tunables. Zero values fall back to the defaults
// the original client shipped with.
type Options struct {
	StoreTimeout   time.Duration
	TypingQuiet    time.Duration
	DedupBucket    time.Duration
	DedupTolerance time.Duration
	MarkReadDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	if o.TypingQuiet <= 0 {
		o.TypingQuiet = 3 * time.Second
	}
	if o.DedupBucket <= 0 {
		o.DedupBucket = time.Minute
	}
	if o.DedupTolerance <= 0 {
		o.DedupTolerance = 5 * time.Second
	}
	if o.MarkReadDelay <= 0 {
		o.MarkReadDelay = time.Second
	}
	return o
}

// Session is the sync engine for one user: a single actor goroutine folds
// transport events, store results and UI commands into the presence, typing,
// receipt, reconciliation and directory state in arrival order. Readers get
// snapshots; nothing outside the loop mutates the components.
type Session struct {
	userID string
	opts   Options
	log    zerolog.Logger

	store     Store
	cache     Snapshots
	transport Transport

	presence  *PresenceTracker
	typing    *TypingTracker
	receipts  *ReceiptTracker
	directory *Directory

	commands chan func()
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.RWMutex
	recon *Reconciler

	typingLimiter *rate.Limiter
}

func NewSession(userID string, store Store, cache Snapshots, tr Transport, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		userID:        userID,
		opts:          opts,
		log:           logger.With("session"),
		store:         store,
		cache:         cache,
		transport:     tr,
		presence:      NewPresenceTracker(),
		typing:        NewTypingTracker(opts.TypingQuiet),
		receipts:      NewReceiptTracker(),
		directory:     NewDirectory(),
		commands:      make(chan func(), 64),
		done:          make(chan struct{}),
		typingLimiter: rate.NewLimiter(rate.Every(opts.TypingQuiet), 1),
	}
}

// Start activates the transport and the event loop, then kicks off the
// initial conversation-list load.
func (s *Session) Start() {
	s.transport.Activate(s.userID)
	go s.loop()
	go s.loadConversations()
}

// Stop tears the session down: transport closed, ephemeral state cleared.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.transport.Deactivate()
		s.presence.Clear()
		s.typing.Clear()
	})
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.transport.Events():
			s.handleEvent(ev)
		case fn := <-s.commands:
			fn()
		}
	}
}

// post schedules fn on the session loop. After Stop it is a no-op.
func (s *Session) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.done:
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnected:
		// The server replays nothing, so catch up on whatever the durable
		// store saw while we were gone.
		go s.loadConversations()
		if r := s.reconciler(); r != nil {
			go s.loadConversation(r.PartnerID())
		}

	case transport.EventDisconnected:
		// Conservative: unknown is offline.
		s.presence.Clear()

	case transport.EventOnlineUsers:
		s.presence.ApplySnapshot(ev.Users)

	case transport.EventUserStatus:
		s.presence.ApplyDelta(ev.Status.UserID, ev.Status.Online)

	case transport.EventTypingUpdate:
		now := time.Now()
		s.typing.Set(ev.Typing.SenderID, ev.Typing.ReceiverID, ev.Typing.IsTyping, now)
		if ev.Typing.IsTyping {
			s.scheduleTypingSweep()
		}

	case transport.EventReadReceipt:
		s.receipts.MarkRead(ev.Read.MessageID)
		if r := s.reconciler(); r != nil {
			r.ApplyReceipt(ev.Read.MessageID)
		}

	case transport.EventReceiveMessage:
		s.handleMessage(ev.Message.Model())
	}
}

func (s *Session) handleMessage(m models.Message) {
	if m.SenderID == s.userID {
		// Echo of our own send (store broadcast for multi-device sync).
		// The reconciler either confirms the optimistic copy or absorbs
		// the duplicate.
		s.directory.Outbound(m)
		if r := s.reconciler(); r != nil && r.PartnerID() == m.ReceiverID {
			r.AddTransport(m)
		}
		return
	}

	s.directory.Inbound(m)

	r := s.reconciler()
	if r == nil || r.PartnerID() != m.SenderID {
		return
	}

	if r.AddTransport(m) {
		// The conversation is on screen, so the message counts as read,
		// but only after a short grace period so the receipt does not race
		// the sender's own persistence roundtrip.
		partnerID := m.SenderID
		time.AfterFunc(s.opts.MarkReadDelay, func() {
			s.post(func() { s.performMarkRead(partnerID) })
		})
	}
}

// OpenConversation makes the partner's thread the active view: fresh
// reconciler, durable history query, notification badge cleared, unread
// flagged read.
func (s *Session) OpenConversation(partnerID string) {
	s.post(func() {
		s.setReconciler(NewReconciler(partnerID, s.opts.DedupBucket, s.opts.DedupTolerance))
		s.directory.ClearNotifications(partnerID)
		s.performMarkRead(partnerID)
		go s.loadConversation(partnerID)
	})
}

// SendMessage creates the optimistic local echo, emits it over the transport
// for the receiver's immediate view and starts the durable create. Returns
// the temporary local ID right away; confirmation or failure folds in later.
func (s *Session) SendMessage(content, attachmentURL string) (string, error) {
	r := s.reconciler()
	if r == nil {
		return "", apperrors.ErrNoConversation
	}

	localID := utils.TempMessageID()
	partnerID := r.PartnerID()

	s.post(func() {
		m := models.Message{
			ID:            localID,
			SenderID:      s.userID,
			ReceiverID:    partnerID,
			Content:       content,
			AttachmentURL: attachmentURL,
			CreatedAt:     time.Now(),
			Status:        models.StatusOptimistic,
		}

		if cur := s.reconciler(); cur != nil && cur.PartnerID() == partnerID {
			cur.AddOptimistic(m)
		}
		s.directory.Outbound(m)

		// Best effort for the receiver's live view; the durable create is
		// the authoritative path and proceeds regardless.
		s.transport.Emit(transport.EventSendMessage, transport.MessagePayload{
			ID:            localID,
			SenderID:      m.SenderID,
			ReceiverID:    m.ReceiverID,
			Content:       m.Content,
			AttachmentURL: m.AttachmentURL,
			CreatedAt:     m.CreatedAt,
		})

		go s.persistSend(localID, partnerID, content, attachmentURL)
	})

	return localID, nil
}

// Resend retries a failed send. The entry keeps its local ID, so a retry
// that eventually succeeds replaces the same visible message instead of
// duplicating it.
func (s *Session) Resend(localID string) error {
	r := s.reconciler()
	if r == nil {
		return apperrors.ErrNoConversation
	}
	if !utils.IsTempMessageID(localID) {
		return apperrors.BadRequest("not a local message ID")
	}

	s.post(func() {
		cur := s.reconciler()
		if cur == nil {
			return
		}
		m, ok := cur.Resend(localID, time.Now())
		if !ok {
			s.log.Warn().Str("message_id", localID).Msg("resend requested for non-failed message")
			return
		}

		s.transport.Emit(transport.EventSendMessage, transport.MessagePayload{
			ID:            m.ID,
			SenderID:      m.SenderID,
			ReceiverID:    m.ReceiverID,
			Content:       m.Content,
			AttachmentURL: m.AttachmentURL,
			CreatedAt:     m.CreatedAt,
		})
		go s.persistSend(localID, m.ReceiverID, m.Content, m.AttachmentURL)
	})
	return nil
}

func (s *Session) persistSend(localID, partnerID, content, attachmentURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	msg, err := s.store.CreateMessage(ctx, partnerID, content, attachmentURL)

	s.post(func() {
		cur := s.reconciler()
		if err != nil {
			s.log.Warn().Err(err).Str("message_id", localID).Msg("durable create failed, marking message failed")
			if cur != nil {
				cur.Fail(localID)
			}
			return
		}

		if cur != nil && cur.PartnerID() == partnerID {
			cur.Confirm(localID, *msg)
		}
		s.directory.Outbound(*msg)
		s.snapshotMessages(partnerID)
	})
}

// SetTyping applies a local keystroke (or an empty input) to the typing
// state machine. State changes always broadcast so the remote mirror runs
// the same transitions; keystroke refreshes while already typing are
// throttled to one per quiet period, which is what keeps the remote expiry
// timer alive during continuous typing without spamming the wire.
func (s *Session) SetTyping(isTyping bool) error {
	r := s.reconciler()
	if r == nil {
		return apperrors.ErrNoConversation
	}
	partnerID := r.PartnerID()

	s.post(func() {
		now := time.Now()
		changed := s.typing.Set(s.userID, partnerID, isTyping, now)

		if changed || (isTyping && s.typingLimiter.Allow()) {
			s.transport.Emit(transport.EventTyping, transport.TypingPayload{
				SenderID:   s.userID,
				ReceiverID: partnerID,
				IsTyping:   isTyping,
			})
		}

		if isTyping {
			s.scheduleTypingSweep()
		}
	})
	return nil
}

// scheduleTypingSweep arms a timer for just past the quiet period. The sweep
// rechecks deadlines, so a refreshed pair survives an early timer and a
// later sweep picks it up.
func (s *Session) scheduleTypingSweep() {
	time.AfterFunc(s.opts.TypingQuiet+50*time.Millisecond, func() {
		s.post(s.sweepTyping)
	})
}

func (s *Session) sweepTyping() {
	for _, pair := range s.typing.Expire(time.Now()) {
		if pair[0] != s.userID {
			continue
		}
		// Local auto-expiry is a state change, so it broadcasts like any
		// other transition.
		s.transport.Emit(transport.EventTyping, transport.TypingPayload{
			SenderID:   pair[0],
			ReceiverID: pair[1],
			IsTyping:   false,
		})
	}
}

// performMarkRead runs on the loop. It flips the local views immediately,
// tells the store to flag everything from the partner as read (batch,
// idempotent) and emits per-message receipts so the sender's client updates
// without waiting for its next durable refresh.
func (s *Session) performMarkRead(partnerID string) {
	r := s.reconciler()
	if r != nil && r.PartnerID() == partnerID {
		for _, m := range r.UnreadInbound() {
			if m.ID == "" {
				continue
			}
			s.receipts.MarkRead(m.ID)
			s.transport.Emit(transport.EventMessageRead, transport.ReadPayload{
				MessageID:  m.ID,
				SenderID:   m.SenderID,
				ReceiverID: m.ReceiverID,
				Timestamp:  time.Now(),
			})
		}
		r.MarkInboundRead()
	}

	s.directory.MarkRead(partnerID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
		defer cancel()
		if _, err := s.store.MarkRead(ctx, partnerID); err != nil {
			s.log.Warn().Err(err).Str("partner_id", partnerID).Msg("store mark-read failed")
		}
	}()
}

func (s *Session) loadConversation(partnerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	msgs, err := s.store.ListConversation(ctx, partnerID)
	if err != nil {
		s.log.Warn().Err(err).Str("partner_id", partnerID).Msg("history query failed, trying cache")
		if s.cache == nil {
			return
		}
		cached, cerr := s.cache.Messages(partnerID)
		if cerr != nil || len(cached) == 0 {
			return
		}
		msgs = cached
		err = nil
	} else if s.cache != nil {
		go func() {
			if serr := s.cache.SaveMessages(partnerID, msgs); serr != nil {
				s.log.Warn().Err(serr).Msg("message snapshot write failed")
			}
		}()
	}

	s.post(func() {
		r := s.reconciler()
		if r == nil || r.PartnerID() != partnerID {
			return
		}
		r.SetDurable(msgs)
		if len(r.UnreadInbound()) > 0 {
			time.AfterFunc(s.opts.MarkReadDelay, func() {
				s.post(func() { s.performMarkRead(partnerID) })
			})
		}
	})
}

func (s *Session) loadConversations() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("conversation list query failed, trying cache")
		if s.cache == nil {
			return
		}
		cached, cerr := s.cache.Conversations()
		if cerr != nil || len(cached) == 0 {
			return
		}
		convs = cached
	} else if s.cache != nil {
		go func() {
			if serr := s.cache.SaveConversations(convs); serr != nil {
				s.log.Warn().Err(serr).Msg("conversation snapshot write failed")
			}
		}()
	}

	s.post(func() {
		s.directory.Load(convs)
	})
}

func (s *Session) snapshotMessages(partnerID string) {
	if s.cache == nil {
		return
	}
	r := s.reconciler()
	if r == nil || r.PartnerID() != partnerID {
		return
	}
	msgs := r.Messages()
	go func() {
		if err := s.cache.SaveMessages(partnerID, msgs); err != nil {
			s.log.Warn().Err(err).Msg("message snapshot write failed")
		}
	}()
}

func (s *Session) reconciler() *Reconciler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recon
}

func (s *Session) setReconciler(r *Reconciler) {
	s.mu.Lock()
	s.recon = r
	s.mu.Unlock()
}

// Messages returns the merged, deduplicated, time-ordered sequence for the
// open conversation.
func (s *Session) Messages() []models.Message {
	r := s.reconciler()
	if r == nil {
		return []models.Message{}
	}
	return r.Messages()
}

// Conversations returns the directory ordered by latest activity.
func (s *Session) Conversations() []models.Conversation {
	return s.directory.List()
}

func (s *Session) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

func (s *Session) OnlineUsers() []string {
	return s.presence.Snapshot()
}

// IsRead consults the receipt overlay first, then the merged message flag.
func (s *Session) IsRead(messageID string) bool {
	if s.receipts.IsRead(messageID) {
		return true
	}
	if r := s.reconciler(); r != nil {
		return r.IsRead(messageID)
	}
	return false
}

// IsTyping reports whether the partner is currently typing to this user.
func (s *Session) IsTyping(partnerID string) bool {
	return s.typing.IsTyping(partnerID, s.userID, time.Now())
}

func (s *Session) ActivePartner() string {
	if r := s.reconciler(); r != nil {
		return r.PartnerID()
	}
	return ""
}

func (s *Session) ConnectionStatus() transport.Status {
	return s.transport.Status()
}
