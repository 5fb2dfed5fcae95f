package engine

import "sync"

// PresenceTracker holds the set of currently-online counterpart users. It is
// fed only by transport events: a full snapshot right after identification
// and incremental deltas afterwards. Nothing is persisted; on disconnect the
// set is cleared because stale presence is worse than no presence.
type PresenceTracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]struct{})}
}

// ApplySnapshot replaces the whole set with the server's online_users list.
func (p *PresenceTracker) ApplySnapshot(users []string) {
	next := make(map[string]struct{}, len(users))
	for _, u := range users {
		next[u] = struct{}{}
	}

	p.mu.Lock()
	p.online = next
	p.mu.Unlock()
}

// ApplyDelta folds one user_status event into the set.
func (p *PresenceTracker) ApplyDelta(userID string, online bool) {
	p.mu.Lock()
	if online {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
	p.mu.Unlock()
}

func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Snapshot returns a copy of the online set for the UI layer.
func (p *PresenceTracker) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.online))
	for u := range p.online {
		users = append(users, u)
	}
	return users
}

// Clear drops everything. Called on every disconnect; unknown is treated as
// offline.
func (p *PresenceTracker) Clear() {
	p.mu.Lock()
	p.online = make(map[string]struct{})
	p.mu.Unlock()
}
