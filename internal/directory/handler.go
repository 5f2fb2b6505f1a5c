package directory

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/departments", h.listDepartments)
	rg.POST("/departments", h.createDepartment)
	rg.GET("/users", h.listUsers)
	rg.POST("/users", h.createUser)
	rg.GET("/users/:id", h.getUser)
}

func (h *Handler) listDepartments(c *gin.Context) {
	depts, err := h.service.ListDepartments(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, depts)
}

func (h *Handler) createDepartment(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	var req CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	dept, err := h.service.CreateDepartment(c.Request.Context(), actor, req)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dept)
}

func (h *Handler) listUsers(c *gin.Context) {
	filter := UserFilter{ActiveOnly: c.Query("include_inactive") != "true"}
	if v := c.Query("department_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			apperr.Respond(c, h.logger, fmt.Errorf("%w: invalid department_id", apperr.ErrValidation))
			return
		}
		dept := uint(id)
		filter.DepartmentID = &dept
	}
	if v := c.Query("role"); v != "" {
		role := access.Role(v)
		filter.Role = &role
	}

	users, err := h.service.ListUsers(c.Request.Context(), filter)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) createUser(c *gin.Context) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	user, err := h.service.CreateUser(c.Request.Context(), actor, req)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) getUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: invalid user ID", apperr.ErrValidation))
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), uint(id))
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
