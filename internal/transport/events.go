package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jericodaag/Horizon-sub000/internal/models"
)

// EventType names one kind of wire event. The vocabulary matches what the
// Horizon backend emits and accepts on its socket endpoint.
type EventType string

const (
	EventIdentify       EventType = "identify"
	EventSendMessage    EventType = "send_message"
	EventReceiveMessage EventType = "receive_message"
	EventTyping         EventType = "typing"
	EventTypingUpdate   EventType = "typing_update"
	EventMessageRead    EventType = "message_read"
	EventReadReceipt    EventType = "read_receipt"
	EventOnlineUsers    EventType = "online_users"
	EventUserStatus     EventType = "user_status"

	// Synthetic lifecycle events delivered by the Manager, never on the wire.
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

// Envelope is the standard frame shared with the server: a type tag and a
// type-specific payload.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type IdentifyPayload struct {
	UserID string `json:"userId"`
}

type MessagePayload struct {
	ID            string    `json:"id,omitempty"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Content       string    `json:"content"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Model converts the wire message into the engine's message type. A message
// that arrives over the transport carries whatever ID the server knew at
// emit time; dedup against the durable copy happens downstream.
func (p *MessagePayload) Model() models.Message {
	return models.Message{
		ID:            p.ID,
		SenderID:      p.SenderID,
		ReceiverID:    p.ReceiverID,
		Content:       p.Content,
		AttachmentURL: p.AttachmentURL,
		CreatedAt:     p.CreatedAt,
		Status:        models.StatusConfirmed,
	}
}

type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

type ReadPayload struct {
	MessageID  string    `json:"messageId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Timestamp  time.Time `json:"timestamp"`
}

type UserStatusPayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Event is one decoded inbound event as the session consumes it. Exactly one
// payload field is set, matching Type; lifecycle events carry none.
type Event struct {
	Type    EventType
	Message *MessagePayload
	Typing  *TypingPayload
	Read    *ReadPayload
	Users   []string
	Status  *UserStatusPayload
}

func decode(env Envelope) (Event, error) {
	ev := Event{Type: env.Type}

	switch env.Type {
	case EventReceiveMessage:
		ev.Message = &MessagePayload{}
		if err := json.Unmarshal(env.Payload, ev.Message); err != nil {
			return ev, err
		}
	case EventTypingUpdate:
		ev.Typing = &TypingPayload{}
		if err := json.Unmarshal(env.Payload, ev.Typing); err != nil {
			return ev, err
		}
	case EventReadReceipt:
		ev.Read = &ReadPayload{}
		if err := json.Unmarshal(env.Payload, ev.Read); err != nil {
			return ev, err
		}
	case EventOnlineUsers:
		if err := json.Unmarshal(env.Payload, &ev.Users); err != nil {
			return ev, err
		}
	case EventUserStatus:
		ev.Status = &UserStatusPayload{}
		if err := json.Unmarshal(env.Payload, ev.Status); err != nil {
			return ev, err
		}
	default:
		return ev, fmt.Errorf("unknown event type %q", env.Type)
	}

	return ev, nil
}
