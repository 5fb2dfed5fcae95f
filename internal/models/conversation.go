package models

import "time"

// UserSummary is the denormalized counterpart profile shown in the
// conversation list.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

// Conversation is one (current user, counterpart) thread as the directory
// sees it.
//
// UnreadCount mirrors the durable unread flags: incremented by exactly one
// per inbound message, zeroed only by an explicit mark-read. NewCount is the
// transient "new since last visit" badge, cleared when the user opens the
// conversation; the two move independently.
type Conversation struct {
	Partner     UserSummary `json:"user"`
	LastMessage Message     `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
	NewCount    int         `json:"newCount"`

	// LastActivity is the newer of the durable lastMessage timestamp and
	// the latest transport-observed timestamp for this thread. The list is
	// ordered by it, descending.
	LastActivity time.Time `json:"lastActivity"`
}
