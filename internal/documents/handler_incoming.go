package documents

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-portal/portal-backend/internal/apperr"
)

func (h *Handler) createIncoming(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateIncomingRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.CreateIncoming(c.Request.Context(), actor, req)
	h.respond(c, http.StatusCreated, doc, err)
}

func (h *Handler) listIncoming(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	f, ok := h.filter(c, actor)
	if !ok {
		return
	}
	docs, total, err := h.service.ListIncoming(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	h.list(c, docs, total, f)
}

func (h *Handler) getIncoming(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetIncoming(c.Request.Context(), id)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) updateIncoming(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req UpdateIncomingRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.UpdateIncoming(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) deleteIncoming(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteIncoming(c.Request.Context(), actor, id); err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) assignIncoming(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.AssignIncoming(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) completeIncoming(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req CompleteRequest
	if !h.bind(c, &req) {
		return
	}
	doc, err := h.service.CompleteIncoming(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) incomingSlip(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	data, err := h.service.IncomingSlip(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", fmt.Sprintf("phieu-xu-ly-%d.pdf", id)))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Responses

func (h *Handler) createResponse(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req CreateResponseRequest
	if !h.bindRequired(c, &req) {
		return
	}
	resp, err := h.service.CreateResponse(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusCreated, resp, err)
}

func (h *Handler) listResponses(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	responses, err := h.service.ListResponses(c.Request.Context(), id)
	h.respond(c, http.StatusOK, responses, err)
}

func (h *Handler) getResponse(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.GetResponse(c.Request.Context(), id)
	h.respond(c, http.StatusOK, resp, err)
}

func (h *Handler) approveResponse(c *gin.Context) {
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
	resp, err := h.service.ApproveResponse(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, resp, err)
}

func (h *Handler) rejectResponse(c *gin.Context) {
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
	resp, err := h.service.RejectResponse(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, resp, err)
}

func (h *Handler) resubmitResponse(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req ResubmitRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.service.ResubmitResponse(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, resp, err)
}
