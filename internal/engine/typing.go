package engine

import (
	"sync"
	"time"
)

type typingKey struct {
	senderID   string
	receiverID string
}

// TypingTracker is the per-(sender, receiver) typing state machine. Each
// active pair carries a deadline; the pair reads as typing only until the
// deadline passes, so a missed isTyping=false event can never wedge the
// indicator on. Deadlines are refreshed on every keystroke.
//
// The tracker is pure state. Broadcasting local transitions and scheduling
// the expiry sweep belong to the session, which owns the transport.
type TypingTracker struct {
	mu     sync.RWMutex
	quiet  time.Duration
	active map[typingKey]time.Time
}

func NewTypingTracker(quiet time.Duration) *TypingTracker {
	return &TypingTracker{
		quiet:  quiet,
		active: make(map[typingKey]time.Time),
	}
}

// Set applies one transition and reports whether the observable state
// actually changed. Setting an already-typing pair refreshes its deadline
// but is not a state change.
func (t *TypingTracker) Set(senderID, receiverID string, isTyping bool, now time.Time) bool {
	key := typingKey{senderID: senderID, receiverID: receiverID}

	t.mu.Lock()
	defer t.mu.Unlock()

	deadline, wasTyping := t.active[key]
	if wasTyping && now.After(deadline) {
		wasTyping = false
	}

	if isTyping {
		t.active[key] = now.Add(t.quiet)
		return !wasTyping
	}

	delete(t.active, key)
	return wasTyping
}

// IsTyping reports whether the pair is currently typing, honoring expiry
// even if no sweep has run yet.
func (t *TypingTracker) IsTyping(senderID, receiverID string, now time.Time) bool {
	key := typingKey{senderID: senderID, receiverID: receiverID}

	t.mu.RLock()
	defer t.mu.RUnlock()

	deadline, ok := t.active[key]
	return ok && now.Before(deadline)
}

// Expire removes every pair whose quiet period elapsed and returns them so
// the caller can broadcast the idle transition for locally-owned pairs.
func (t *TypingTracker) Expire(now time.Time) [][2]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired [][2]string
	for key, deadline := range t.active {
		if now.Before(deadline) {
			continue
		}
		delete(t.active, key)
		expired = append(expired, [2]string{key.senderID, key.receiverID})
	}
	return expired
}

// Deadline returns the pair's current expiry, if any.
func (t *TypingTracker) Deadline(senderID, receiverID string) (time.Time, bool) {
	key := typingKey{senderID: senderID, receiverID: receiverID}

	t.mu.RLock()
	defer t.mu.RUnlock()

	deadline, ok := t.active[key]
	return deadline, ok
}

// Clear drops all pairs, local and remote. Used on deactivation.
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	t.active = make(map[typingKey]time.Time)
	t.mu.Unlock()
}
