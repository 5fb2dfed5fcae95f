package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/jericodaag/Horizon-sub000/internal/handlers"
)

// RegisterSyncRoutes wires the UI-facing sync surface.
func RegisterSyncRoutes(rg *gin.RouterGroup, h *handlers.SyncHandler) {
	rg.POST("/activate", h.Activate)
	rg.POST("/deactivate", h.Deactivate)

	rg.GET("/conversations", h.GetConversations)
	rg.POST("/conversations/:partnerId/open", h.OpenConversation)

	rg.GET("/messages", h.GetMessages)
	rg.POST("/messages", h.SendMessage)
	rg.POST("/messages/:id/resend", h.ResendMessage)

	rg.POST("/typing", h.SetTyping)
	rg.GET("/typing/:partnerId", h.GetTyping)

	rg.GET("/presence", h.GetPresence)
	rg.GET("/presence/:userId", h.GetUserPresence)

	rg.GET("/receipts/:messageId", h.GetReceipt)

	rg.GET("/status", h.GetStatus)
}
