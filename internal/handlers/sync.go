package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jericodaag/Horizon-sub000/internal/engine"
)

// SessionFactory builds a sync session for the configured user. The gateway
// serves one user at a time, matching the original client: one session per
// signed-in user, alive only while the conversation view is active.
type SessionFactory func() (*engine.Session, error)

// SyncHandler exposes the engine to the UI layer over plain request/response.
type SyncHandler struct {
	factory SessionFactory

	mu      sync.Mutex
	session *engine.Session
}

func NewSyncHandler(factory SessionFactory) *SyncHandler {
	return &SyncHandler{factory: factory}
}

func (h *SyncHandler) current() *engine.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Activate spins up the session: transport connect + identify, initial
// conversation-list load. Idempotent while already active.
func (h *SyncHandler) Activate(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		session, err := h.factory()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sync session"})
			return
		}
		session.Start()
		h.session = session
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":     h.session.UserID(),
		"connection": h.session.ConnectionStatus(),
	})
}

// Deactivate tears the session down immediately.
func (h *SyncHandler) Deactivate(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session != nil {
		h.session.Stop()
		h.session = nil
	}

	c.JSON(http.StatusOK, gin.H{"connection": "inactive"})
}

// OpenConversation makes a partner's thread the active view.
func (h *SyncHandler) OpenConversation(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	partnerID := c.Param("partnerId")
	if partnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partnerId required"})
		return
	}

	session.OpenConversation(partnerID)
	c.JSON(http.StatusOK, gin.H{"partnerId": partnerID})
}

// GetMessages returns the merged sequence for the open conversation.
func (h *SyncHandler) GetMessages(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partnerId": session.ActivePartner(),
		"messages":  session.Messages(),
	})
}

// GetConversations returns the directory ordered by latest activity.
func (h *SyncHandler) GetConversations(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": session.Conversations()})
}

// SendMessage submits a new message to the open conversation. The response
// carries the temporary local ID; the entry confirms or fails in place.
func (h *SyncHandler) SendMessage(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	var req struct {
		Content       string `json:"content" binding:"required"`
		AttachmentURL string `json:"attachmentUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	localID, err := session.SendMessage(req.Content, req.AttachmentURL)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"messageId": localID})
}

// ResendMessage retries a failed send by its local ID.
func (h *SyncHandler) ResendMessage(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	if err := session.Resend(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"messageId": c.Param("id")})
}

// SetTyping forwards the local input state into the typing state machine.
func (h *SyncHandler) SetTyping(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	var req struct {
		IsTyping bool `json:"isTyping"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := session.SetTyping(req.IsTyping); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"isTyping": req.IsTyping})
}

// GetTyping reports whether the partner is typing to the current user.
func (h *SyncHandler) GetTyping(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"typing": session.IsTyping(c.Param("partnerId"))})
}

// GetPresence returns the full online set.
func (h *SyncHandler) GetPresence(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"online": session.OnlineUsers()})
}

// GetUserPresence reports one user's online flag.
func (h *SyncHandler) GetUserPresence(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"online": session.IsOnline(c.Param("userId"))})
}

// GetReceipt reports a message's read flag.
func (h *SyncHandler) GetReceipt(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No active sync session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": session.IsRead(c.Param("messageId"))})
}

// GetStatus surfaces the connection-status flag and the active view.
func (h *SyncHandler) GetStatus(c *gin.Context) {
	session := h.current()
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"connection": "inactive"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connection":    session.ConnectionStatus(),
		"userId":        session.UserID(),
		"activePartner": session.ActivePartner(),
	})
}
