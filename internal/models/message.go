package models

import "time"

// MessageStatus is the local-only lifecycle tag of a message. It never
// round-trips to the backend; the durable store only ever sees confirmed
// rows.
type MessageStatus string

const (
	// StatusConfirmed means the durable store has persisted the message
	// (or the transport echoed it back with a durable ID).
	StatusConfirmed MessageStatus = "confirmed"
	// StatusOptimistic means the message was created locally on send and
	// persistence has not resolved yet.
	StatusOptimistic MessageStatus = "optimistic"
	// StatusFailed means the durable create did not complete. The message
	// stays visible so the user can see it and trigger a resend.
	StatusFailed MessageStatus = "failed"
)

// Message represents a direct message between users. Before persistence the
// ID is a temporary local one; confirmation swaps it for the durable ID.
type Message struct {
	ID            string        `json:"id"`
	SenderID      string        `json:"senderId"`
	ReceiverID    string        `json:"receiverId"`
	Content       string        `json:"content"`
	AttachmentURL string        `json:"attachmentUrl,omitempty"`
	IsRead        bool          `json:"isRead"`
	CreatedAt     time.Time     `json:"createdAt"`
	Status        MessageStatus `json:"status"`
}
