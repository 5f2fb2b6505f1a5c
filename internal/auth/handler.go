package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
)

type Handler struct {
	Service *Service
	logger  *zap.Logger
}

func NewHandler(s *Service, logger *zap.Logger) *Handler {
	return &Handler{Service: s, logger: logger}
}

// Login exchanges credentials for a bearer token
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	resp, err := h.Service.Login(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user
func (h *Handler) Me(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	user, err := h.Service.users.GetUser(c.Request.Context(), actor.ID)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
