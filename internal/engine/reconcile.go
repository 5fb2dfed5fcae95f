package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/jericodaag/Horizon-sub000/internal/models"
)

// dedupKey is the composite identity used to recognize the same logical
// message arriving from two sources. The durable copy and the transport echo
// share sender and content but may differ in ID and sub-second timestamp, so
// the time component is a coarse bucket; a secondary fine-grained delta
// check keeps unrelated messages with identical content apart.
//
// This is a heuristic, not a strict identity. Under clock skew, or with
// identical content sent twice in quick succession, it can over- or
// under-merge; bucket and tolerance are tunable for that reason.
type dedupKey struct {
	senderID string
	content  string
	bucket   int64
}

type entry struct {
	msg models.Message
	seq int
}

// Reconciler owns the merged message sequence for the one open conversation.
// Durable-store results and transport/optimistic messages are folded in by
// dedup key, never by position, so the two sources can arrive in any order
// and duplicates are silently absorbed.
type Reconciler struct {
	mu        sync.RWMutex
	partnerID string
	bucket    time.Duration
	tolerance time.Duration

	entries []*entry
	byID    map[string]*entry
	byKey   map[dedupKey][]*entry
	nextSeq int
}

func NewReconciler(partnerID string, bucket, tolerance time.Duration) *Reconciler {
	return &Reconciler{
		partnerID: partnerID,
		bucket:    bucket,
		tolerance: tolerance,
		byID:      make(map[string]*entry),
		byKey:     make(map[dedupKey][]*entry),
	}
}

func (r *Reconciler) PartnerID() string {
	return r.partnerID
}

func (r *Reconciler) key(m models.Message) dedupKey {
	return dedupKey{
		senderID: m.SenderID,
		content:  m.Content,
		bucket:   m.CreatedAt.Truncate(r.bucket).Unix(),
	}
}

// findMatch looks for an existing entry that is the same logical message:
// same sender and content, timestamps within tolerance. The neighbor buckets
// are scanned too so a pair straddling a bucket boundary still matches.
func (r *Reconciler) findMatch(m models.Message) *entry {
	if m.ID != "" {
		if e, ok := r.byID[m.ID]; ok {
			return e
		}
	}

	base := r.key(m)
	for _, b := range []int64{base.bucket - int64(r.bucket/time.Second), base.bucket, base.bucket + int64(r.bucket/time.Second)} {
		for _, e := range r.byKey[dedupKey{senderID: base.senderID, content: base.content, bucket: b}] {
			delta := e.msg.CreatedAt.Sub(m.CreatedAt)
			if delta < 0 {
				delta = -delta
			}
			if delta < r.tolerance {
				return e
			}
		}
	}
	return nil
}

func (r *Reconciler) insert(m models.Message) *entry {
	e := &entry{msg: m, seq: r.nextSeq}
	r.nextSeq++
	r.entries = append(r.entries, e)
	if m.ID != "" {
		r.byID[m.ID] = e
	}
	k := r.key(m)
	r.byKey[k] = append(r.byKey[k], e)
	return e
}

func (r *Reconciler) unindex(e *entry) {
	if e.msg.ID != "" && r.byID[e.msg.ID] == e {
		delete(r.byID, e.msg.ID)
	}
	k := r.key(e.msg)
	list := r.byKey[k]
	for i, other := range list {
		if other == e {
			r.byKey[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// SetDurable replaces the durable half of the merge with a fresh query
// result. Durable rows go in first and are authoritative for content, IDs
// and order; surviving local entries (optimistic, failed, or transport
// messages the store has not caught up with) are re-added only if nothing
// durable matches them.
func (r *Reconciler) SetDurable(msgs []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.entries
	r.entries = nil
	r.byID = make(map[string]*entry)
	r.byKey = make(map[dedupKey][]*entry)
	r.nextSeq = 0

	for _, m := range msgs {
		m.Status = models.StatusConfirmed
		r.insert(m)
	}

	for _, e := range old {
		if match := r.findMatch(e.msg); match != nil {
			// The durable copy absorbed this entry. Reads observed on the
			// local copy survive the refresh.
			if e.msg.IsRead {
				match.msg.IsRead = true
			}
			continue
		}
		r.insert(e.msg)
	}
}

// AddTransport folds in one live message. Returns true when the message was
// genuinely new; a duplicate of something already merged reports false and
// changes nothing except possibly upgrading a temp ID to a durable one.
func (r *Reconciler) AddTransport(m models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.findMatch(m); e != nil {
		r.upgrade(e, m)
		return false
	}

	m.Status = models.StatusConfirmed
	r.insert(m)
	return true
}

// upgrade confirms an existing entry with the durable identity of m.
func (r *Reconciler) upgrade(e *entry, m models.Message) {
	if m.ID == "" || e.msg.ID == m.ID {
		return
	}
	if e.msg.Status == models.StatusConfirmed && e.msg.ID != "" {
		return
	}

	r.unindex(e)
	e.msg.ID = m.ID
	e.msg.CreatedAt = m.CreatedAt
	e.msg.Status = models.StatusConfirmed
	r.byID[e.msg.ID] = e
	k := r.key(e.msg)
	r.byKey[k] = append(r.byKey[k], e)
}

// AddOptimistic appends a locally-created message awaiting persistence.
func (r *Reconciler) AddOptimistic(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.Status = models.StatusOptimistic
	r.insert(m)
}

// Confirm resolves a durable create against the optimistic entry it came
// from: temp ID and status are replaced in place, matched by local ID first
// and dedup key as fallback. The durable message is inserted fresh when no
// local copy exists, which happens if the view was rebuilt in between.
func (r *Reconciler) Confirm(localID string, durable models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	durable.Status = models.StatusConfirmed

	if e, ok := r.byID[localID]; ok {
		r.unindex(e)
		e.msg.ID = durable.ID
		e.msg.CreatedAt = durable.CreatedAt
		e.msg.IsRead = durable.IsRead
		e.msg.Status = models.StatusConfirmed
		r.byID[e.msg.ID] = e
		k := r.key(e.msg)
		r.byKey[k] = append(r.byKey[k], e)
		return
	}

	if e := r.findMatch(durable); e != nil {
		r.upgrade(e, durable)
		return
	}

	r.insert(durable)
}

// Fail marks the optimistic entry as failed. It stays visible with its temp
// ID so the user can see which send died and retry it.
func (r *Reconciler) Fail(localID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[localID]
	if !ok || e.msg.Status != models.StatusOptimistic {
		return false
	}
	e.msg.Status = models.StatusFailed
	return true
}

// Resend flips a failed entry back to optimistic with a fresh timestamp and
// returns a copy for re-submission. The refreshed timestamp makes the dedup
// key line up with the durable row the retry will create.
func (r *Reconciler) Resend(localID string, now time.Time) (models.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[localID]
	if !ok || e.msg.Status != models.StatusFailed {
		return models.Message{}, false
	}

	r.unindex(e)
	e.msg.CreatedAt = now
	e.msg.Status = models.StatusOptimistic
	r.byID[e.msg.ID] = e
	k := r.key(e.msg)
	r.byKey[k] = append(r.byKey[k], e)

	return e.msg, true
}

// MarkInboundRead flags every counterpart-authored message as read locally.
// Called when the user reads the conversation; the durable flags follow via
// the store's batch mark-read.
func (r *Reconciler) MarkInboundRead() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.msg.SenderID == r.partnerID {
			e.msg.IsRead = true
		}
	}
}

// ApplyReceipt flags one of our own messages as read by the counterpart.
func (r *Reconciler) ApplyReceipt(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byID[messageID]; ok {
		e.msg.IsRead = true
	}
}

// IsRead reports the read flag of a merged message, false for unknown IDs.
func (r *Reconciler) IsRead(messageID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[messageID]
	return ok && e.msg.IsRead
}

// UnreadInbound returns counterpart-authored messages not yet marked read,
// the set the deferred mark-read acts on.
func (r *Reconciler) UnreadInbound() []models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unread []models.Message
	for _, e := range r.entries {
		if e.msg.SenderID == r.partnerID && !e.msg.IsRead {
			unread = append(unread, e.msg)
		}
	}
	return unread
}

// Messages returns the canonical merged sequence: ascending by creation
// time, with insertion order as the stable tie-break so durable-store order
// wins over transport order for equal timestamps.
func (r *Reconciler) Messages() []models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := make([]*entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].msg.CreatedAt.Equal(sorted[j].msg.CreatedAt) {
			return sorted[i].seq < sorted[j].seq
		}
		return sorted[i].msg.CreatedAt.Before(sorted[j].msg.CreatedAt)
	})

	msgs := make([]models.Message, 0, len(sorted))
	for _, e := range sorted {
		msgs = append(msgs, e.msg)
	}
	return msgs
}
