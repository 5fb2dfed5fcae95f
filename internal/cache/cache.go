package cache

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jericodaag/Horizon-sub000/internal/models"
)

// Cache is the local last-known-state store. When the durable store is
// unreachable the engine serves the snapshot saved here instead of an empty
// view. Only confirmed messages are persisted; optimistic and failed entries
// are session-local by definition.
type Cache struct {
	db *gorm.DB
}

type messageRow struct {
	ID            string `gorm:"primaryKey"`
	PartnerID     string `gorm:"index"`
	SenderID      string
	ReceiverID    string
	Content       string
	AttachmentURL string
	IsRead        bool
	CreatedAt     time.Time
}

type conversationRow struct {
	PartnerID       string `gorm:"primaryKey"`
	PartnerUsername string
	PartnerName     string
	PartnerImage    string

	LastMessageID       string
	LastMessageSenderID string
	LastMessageContent  string
	LastMessageAt       time.Time

	UnreadCount  int
	LastActivity time.Time `gorm:"index"`
}

// Open creates or opens the sqlite cache at path and migrates the snapshot
// tables.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&messageRow{}, &conversationRow{}); err != nil {
		return nil, err
	}

	return &Cache{db: db}, nil
}

// SaveMessages replaces the cached snapshot for one conversation.
func (c *Cache) SaveMessages(partnerID string, msgs []models.Message) error {
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		if m.Status != models.StatusConfirmed {
			continue
		}
		rows = append(rows, messageRow{
			ID:            m.ID,
			PartnerID:     partnerID,
			SenderID:      m.SenderID,
			ReceiverID:    m.ReceiverID,
			Content:       m.Content,
			AttachmentURL: m.AttachmentURL,
			IsRead:        m.IsRead,
			CreatedAt:     m.CreatedAt,
		})
	}

	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("partner_id = ?", partnerID).Delete(&messageRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Messages returns the cached snapshot for one conversation, oldest first.
func (c *Cache) Messages(partnerID string) ([]models.Message, error) {
	var rows []messageRow
	err := c.db.Where("partner_id = ?", partnerID).Order("created_at asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, models.Message{
			ID:            r.ID,
			SenderID:      r.SenderID,
			ReceiverID:    r.ReceiverID,
			Content:       r.Content,
			AttachmentURL: r.AttachmentURL,
			IsRead:        r.IsRead,
			CreatedAt:     r.CreatedAt,
			Status:        models.StatusConfirmed,
		})
	}
	return msgs, nil
}

// SaveConversations replaces the cached conversation list.
func (c *Cache) SaveConversations(convs []models.Conversation) error {
	rows := make([]conversationRow, 0, len(convs))
	for _, conv := range convs {
		rows = append(rows, conversationRow{
			PartnerID:           conv.Partner.ID,
			PartnerUsername:     conv.Partner.Username,
			PartnerName:         conv.Partner.Name,
			PartnerImage:        conv.Partner.Image,
			LastMessageID:       conv.LastMessage.ID,
			LastMessageSenderID: conv.LastMessage.SenderID,
			LastMessageContent:  conv.LastMessage.Content,
			LastMessageAt:       conv.LastMessage.CreatedAt,
			UnreadCount:         conv.UnreadCount,
			LastActivity:        conv.LastActivity,
		})
	}

	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&conversationRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Conversations returns the cached conversation list, newest activity first.
func (c *Cache) Conversations() ([]models.Conversation, error) {
	var rows []conversationRow
	err := c.db.Order("last_activity desc").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	convs := make([]models.Conversation, 0, len(rows))
	for _, r := range rows {
		convs = append(convs, models.Conversation{
			Partner: models.UserSummary{
				ID:       r.PartnerID,
				Username: r.PartnerUsername,
				Name:     r.PartnerName,
				Image:    r.PartnerImage,
			},
			LastMessage: models.Message{
				ID:        r.LastMessageID,
				SenderID:  r.LastMessageSenderID,
				Content:   r.LastMessageContent,
				CreatedAt: r.LastMessageAt,
				IsRead:    r.UnreadCount == 0,
				Status:    models.StatusConfirmed,
			},
			UnreadCount:  r.UnreadCount,
			LastActivity: r.LastActivity,
		})
	}
	return convs, nil
}
