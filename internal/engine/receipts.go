package engine

import "sync"

// ReceiptTracker is the read-receipt overlay: message ID -> read. It only
// ever flips entries to true; unread-after-read is not a transition that
// exists in this domain, so a duplicate or late receipt is simply absorbed.
type ReceiptTracker struct {
	mu   sync.RWMutex
	read map[string]struct{}
}

func NewReceiptTracker() *ReceiptTracker {
	return &ReceiptTracker{read: make(map[string]struct{})}
}

// MarkRead records that the message has been read. Monotonic; there is no
// way to unmark.
func (r *ReceiptTracker) MarkRead(messageID string) {
	if messageID == "" {
		return
	}
	r.mu.Lock()
	r.read[messageID] = struct{}{}
	r.mu.Unlock()
}

func (r *ReceiptTracker) IsRead(messageID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.read[messageID]
	return ok
}
