package engine

import (
	"sort"
	"sync"

	"github.com/jericodaag/Horizon-sub000/internal/models"
)

// Directory owns the conversation list: ordering by latest activity, the
// denormalized last message, the durable unread count and the transient
// new-since-last-visit badge. It is updated from the durable list on load
// and kept current by inbound/outbound message events.
type Directory struct {
	mu        sync.RWMutex
	byPartner map[string]*models.Conversation
}

func NewDirectory() *Directory {
	return &Directory{byPartner: make(map[string]*models.Conversation)}
}

// Load replaces the directory with a durable-store (or cache) result,
// keeping whichever activity timestamp is newer per conversation so a
// transport event observed before the query resolves is not rewound.
func (d *Directory) Load(convs []models.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]*models.Conversation, len(convs))
	for i := range convs {
		conv := convs[i]
		if conv.LastActivity.Before(conv.LastMessage.CreatedAt) {
			conv.LastActivity = conv.LastMessage.CreatedAt
		}
		if prev, ok := d.byPartner[conv.Partner.ID]; ok {
			if prev.LastActivity.After(conv.LastActivity) {
				conv.LastActivity = prev.LastActivity
				conv.LastMessage = prev.LastMessage
			}
			conv.NewCount = prev.NewCount
		}
		next[conv.Partner.ID] = &conv
	}
	d.byPartner = next
}

// Inbound folds in a message received from a counterpart: unread up by
// exactly one, last message replaced, conversation moved to the front. A
// previously unseen partner materializes a new conversation; the profile
// summary fills in on the next durable refresh.
func (d *Directory) Inbound(m models.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv := d.conversation(m.SenderID)
	conv.UnreadCount++
	conv.NewCount++
	d.touch(conv, m)
}

// Outbound folds in a message the user sent: last message and ordering only,
// unread untouched.
func (d *Directory) Outbound(m models.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv := d.conversation(m.ReceiverID)
	d.touch(conv, m)
}

func (d *Directory) conversation(partnerID string) *models.Conversation {
	conv, ok := d.byPartner[partnerID]
	if !ok {
		conv = &models.Conversation{Partner: models.UserSummary{ID: partnerID}}
		d.byPartner[partnerID] = conv
	}
	return conv
}

func (d *Directory) touch(conv *models.Conversation, m models.Message) {
	if m.CreatedAt.After(conv.LastActivity) {
		conv.LastActivity = m.CreatedAt
		conv.LastMessage = m
	}
}

// MarkRead zeroes the durable unread counter for the partner. This is the
// only way the counter ever decreases.
func (d *Directory) MarkRead(partnerID string) {
	d.mu.Lock()
	if conv, ok := d.byPartner[partnerID]; ok {
		conv.UnreadCount = 0
	}
	d.mu.Unlock()
}

// ClearNotifications zeroes the transient new-since-last-visit badge,
// leaving the durable unread counter alone.
func (d *Directory) ClearNotifications(partnerID string) {
	d.mu.Lock()
	if conv, ok := d.byPartner[partnerID]; ok {
		conv.NewCount = 0
	}
	d.mu.Unlock()
}

// List returns the conversations ordered by most recent activity.
func (d *Directory) List() []models.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	convs := make([]models.Conversation, 0, len(d.byPartner))
	for _, conv := range d.byPartner {
		convs = append(convs, *conv)
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].LastActivity.Equal(convs[j].LastActivity) {
			return convs[i].Partner.ID < convs[j].Partner.ID
		}
		return convs[i].LastActivity.After(convs[j].LastActivity)
	})
	return convs
}
