package handlers

import (
	"net/http"
	"v4corner/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	notificationPageSize    = 20
	notificationPageSizeMax = 50
)

type NotificationHandler struct {
	inbox *services.NotificationService
}

func NewNotificationHandler(inbox *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, size := pageParams(c, notificationPageSize, notificationPageSizeMax)
	result, err := h.inbox.List(c.Request.Context(), viewer(c), services.NotificationQuery{
		UnreadOnly: boolQuery(c, "unread_only"),
		Type:       c.Query("type"),
		Page:       page,
		Size:       size,
	})
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.inbox.UnreadCount(c.Request.Context(), viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), viewer(c), id); err != nil {
		RenderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) ReadAll(c *gin.Context) {
	n, err := h.inbox.MarkAllRead(c.Request.Context(), viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_count": n})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.inbox.Delete(c.Request.Context(), viewer(c), id); err != nil {
		RenderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMany 默认只清理已读通知，all=true 时全部删除
func (h *NotificationHandler) DeleteMany(c *gin.Context) {
	n, err := h.inbox.DeleteMany(c.Request.Context(), viewer(c), boolQuery(c, "all"))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}
