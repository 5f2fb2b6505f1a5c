package schedules

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

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
	g := rg.Group("/schedules")
	{
		g.POST("", h.create)
		g.GET("", h.list)
		g.GET("/:id", h.get)
		g.PUT("/:id", h.update)
		g.DELETE("/:id", h.delete)
		g.POST("/:id/approve", h.review)
		g.GET("/:id/history", h.history)
	}
}

func (h *Handler) actor(c *gin.Context) (access.Actor, bool) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
	}
	return actor, ok
}

func (h *Handler) id(c *gin.Context) (uint, bool) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || v == 0 {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: invalid id", apperr.ErrValidation))
		return 0, false
	}
	return uint(v), true
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(status, v)
}

func (h *Handler) create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateRequest
	if !h.bind(c, &req) {
		return
	}
	sched, err := h.service.Create(c.Request.Context(), actor, req)
	h.respond(c, http.StatusCreated, sched, err)
}

func (h *Handler) list(c *gin.Context) {
	f := ListFilter{Status: Status(c.Query("status"))}
	for name, dst := range map[string]*uint{"department_id": &f.DepartmentID, "creator_id": &f.CreatorID} {
		if v := c.Query(name); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				apperr.Respond(c, h.logger, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, name))
				return
			}
			*dst = uint(n)
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(name); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				apperr.Respond(c, h.logger, fmt.Errorf("%w: %s must be YYYY-MM-DD", apperr.ErrValidation, name))
				return
			}
			*dst = &t
		}
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	out, total, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "total": total, "page": f.Page, "page_size": f.PageSize})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := h.id(c)
	if !ok {
		return
	}
	sched, err := h.service.Get(c.Request.Context(), id)
	h.respond(c, http.StatusOK, sched, err)
}

func (h *Handler) update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if !h.bind(c, &req) {
		return
	}
	sched, err := h.service.Update(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, sched, err)
}

func (h *Handler) delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) review(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if !h.bind(c, &req) {
		return
	}
	sched, err := h.service.Review(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, sched, err)
}

func (h *Handler) history(c *gin.Context) {
	id, ok := h.id(c)
	if !ok {
		return
	}
	entries, err := h.service.History(c.Request.Context(), id)
	h.respond(c, http.StatusOK, entries, err)
}
