package documents

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-portal/portal-backend/internal/apperr"
)

func (h *Handler) createInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateInternalRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.CreateInternal(c.Request.Context(), actor, req)
	h.respond(c, http.StatusCreated, doc, err)
}

func (h *Handler) listInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	f, ok := h.filter(c, actor)
	if !ok {
		return
	}
	docs, total, err := h.service.ListInternal(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	h.list(c, docs, total, f)
}

func (h *Handler) inbox(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	f, ok := h.filter(c, actor)
	if !ok {
		return
	}
	docs, total, err := h.service.Inbox(c.Request.Context(), actor, f)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	h.list(c, docs, total, f)
}

func (h *Handler) getInternal(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetInternal(c.Request.Context(), id)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) updateInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req UpdateInternalRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.UpdateInternal(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) deleteInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteInternal(c.Request.Context(), actor, id); err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) submitInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.SubmitInternal(c.Request.Context(), actor, id)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) approveInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if !h.bind(c, &req) {
		return
	}
	doc, err := h.service.ApproveInternal(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) rejectInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if !h.bind(c, &req) {
		return
	}
	doc, err := h.service.RejectInternal(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) publishInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req IssueRequest
	if !h.bind(c, &req) {
		return
	}
	doc, err := h.service.PublishInternal(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) replyInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req ReplyRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.ReplyInternal(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusCreated, doc, err)
}

func (h *Handler) readInternal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	if err := h.service.MarkInternalRead(c.Request.Context(), actor, id); err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
