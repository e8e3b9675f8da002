package notification

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/service/notification"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

type Handler struct {
	svc notification.Service
}

func NewHandler(svc notification.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.POST("/read-all", h.MarkAllRead)
		notifications.POST("/:id/read", h.MarkRead)
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	httputil.RespondWithSuccess(c, h.svc.List(c.Request.Context(), handler.ActorID(c), unreadOnly))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{
		"unread": h.svc.UnreadCount(c.Request.Context(), handler.ActorID(c)),
	})
}

func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.svc.MarkRead(c.Request.Context(), handler.ActorID(c), c.Param("id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, n)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	marked, err := h.svc.MarkAllRead(c.Request.Context(), handler.ActorID(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"marked": marked})
}
