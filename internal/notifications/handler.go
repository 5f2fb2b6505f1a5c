package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/notifications/websocket"
)

type Handler struct {
	service *Service
	ws      *websocket.Manager
	logger  *zap.Logger
}

func NewHandler(service *Service, ws *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, ws: ws, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	n := rg.Group("/notifications")
	{
		n.GET("", h.List)
		n.POST("/read-all", h.MarkAllRead)
		n.POST("/:id/read", h.MarkRead)
	}
	if h.ws != nil {
		rg.GET("/ws", h.Connect)
	}
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unreadOnly := c.Query("unread") == "true"

	items, err := h.service.List(c.Request.Context(), actor.ID, unreadOnly, limit, offset)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	unread, err := h.service.UnreadCount(c.Request.Context(), actor.ID)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "unread": unread})
}

func (h *Handler) MarkRead(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "code": "validation_error"})
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), actor.ID, uint(id)); err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	n, err := h.service.MarkAllRead(c.Request.Context(), actor.ID)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Connect upgrades to a websocket that receives live notifications.
func (h *Handler) Connect(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	if _, err := h.ws.HandleConnection(c.Writer, c.Request, actor.ID); err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Uint("user_id", actor.ID), zap.Error(err))
	}
}
