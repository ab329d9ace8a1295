package http

import (
	"github.com/gin-gonic/gin"
)

// NotificationQuery is the query of GET /api/notifications
type NotificationQuery struct {
	IsRead *bool `form:"is_read"`
	Page   int   `form:"page" binding:"omitempty,min=1"`
	Limit  int   `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var q NotificationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	result, err := h.services.Inbox.ListNotifications(c.Request.Context(), actorFrom(c).UserID, q.IsRead, q.Page, q.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, result)
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	if err := h.services.Inbox.MarkAsRead(c.Request.Context(), actorFrom(c).UserID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"id": c.Param("id"), "is_read": true})
}

// MarkAllNotificationsRead handles POST /api/notifications/read-all
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.services.Inbox.MarkAllAsRead(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"updated": n})
}
