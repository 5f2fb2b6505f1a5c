package documents

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/reports/export"
	"document-portal/portal-backend/pkg/search"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	out := rg.Group("/documents/outgoing")
	{
		out.POST("", h.createOutgoing)
		out.GET("", h.listOutgoing)
		out.GET("/export", h.exportRegister(audit.KindOutgoing))
		out.GET("/:id", h.getOutgoing)
		out.PUT("/:id", h.updateOutgoing)
		out.DELETE("/:id", h.deleteOutgoing)
		out.POST("/:id/submit", h.submitOutgoing)
		out.POST("/:id/approve", h.approveOutgoing)
		out.POST("/:id/reject", h.rejectOutgoing)
		out.POST("/:id/issue", h.issueOutgoing)
		h.registerChildren(out, audit.KindOutgoing)
	}

	in := rg.Group("/documents/incoming")
	{
		in.POST("", h.createIncoming)
		in.GET("", h.listIncoming)
		in.GET("/export", h.exportRegister(audit.KindIncoming))
		in.GET("/:id", h.getIncoming)
		in.PUT("/:id", h.updateIncoming)
		in.DELETE("/:id", h.deleteIncoming)
		in.POST("/:id/assign", h.assignIncoming)
		in.POST("/:id/complete", h.completeIncoming)
		in.GET("/:id/slip", h.incomingSlip)
		in.POST("/:id/responses", h.createResponse)
		in.GET("/:id/responses", h.listResponses)
		h.registerChildren(in, audit.KindIncoming)
	}

	resp := rg.Group("/documents/responses")
	{
		resp.GET("/:id", h.getResponse)
		resp.POST("/:id/approve", h.approveResponse)
		resp.POST("/:id/reject", h.rejectResponse)
		resp.POST("/:id/resubmit", h.resubmitResponse)
		resp.GET("/:id/history", h.history(audit.KindResponse))
	}

	internal := rg.Group("/internal-documents")
	{
		internal.POST("", h.createInternal)
		internal.GET("", h.listInternal)
		internal.GET("/inbox", h.inbox)
		internal.GET("/:id", h.getInternal)
		internal.PUT("/:id", h.updateInternal)
		internal.DELETE("/:id", h.deleteInternal)
		internal.POST("/:id/submit", h.submitInternal)
		internal.POST("/:id/approve", h.approveInternal)
		internal.POST("/:id/reject", h.rejectInternal)
		internal.POST("/:id/publish", h.publishInternal)
		internal.POST("/:id/reply", h.replyInternal)
		internal.POST("/:id/read", h.readInternal)
		h.registerChildren(internal, audit.KindInternal)
	}

	rg.GET("/documents/search", h.search)
	rg.GET("/attachments/:id/url", h.attachmentURL)
	rg.GET("/attachments/:id/content", h.attachmentContent)
}

// registerChildren adds the history and attachment routes shared by every
// document kind.
func (h *Handler) registerChildren(g *gin.RouterGroup, kind audit.Kind) {
	g.GET("/:id/history", h.history(kind))
	g.POST("/:id/attachments", h.uploadAttachment(kind))
	g.GET("/:id/attachments", h.listAttachments(kind))
	g.DELETE("/:id/attachments/:attachmentId", h.deleteAttachment(kind))
}

// request helpers

func (h *Handler) actor(c *gin.Context) (access.Actor, bool) {
	actor, ok := access.ActorFromContext(c.Request.Context())
	if !ok {
		apperr.Respond(c, h.logger, apperr.ErrUnauthorized)
	}
	return actor, ok
}

func (h *Handler) id(c *gin.Context, param string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || v == 0 {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, param))
		return 0, false
	}
	return uint(v), true
}

// bind decodes an optional JSON body; an empty body leaves req untouched.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) bindRequired(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) filter(c *gin.Context, actor access.Actor) (ListFilter, bool) {
	f := ListFilter{
		Status:   Status(c.Query("status")),
		Priority: Priority(c.Query("priority")),
		Query:    c.Query("q"),
	}
	uints := map[string]*uint{
		"creator_id":    &f.CreatorID,
		"department_id": &f.DepartmentID,
		"assignee_id":   &f.AssigneeID,
	}
	for name, dst := range uints {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			apperr.Respond(c, h.logger, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, name))
			return f, false
		}
		*dst = uint(n)
	}
	if c.Query("mine") == "true" {
		f.CreatorID = actor.ID
	}
	if c.Query("assigned_to_me") == "true" {
		f.AssigneeID = actor.ID
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			apperr.Respond(c, h.logger, fmt.Errorf("%w: %s must be YYYY-MM-DD", apperr.ErrValidation, name))
			return f, false
		}
		if name == "to" {
			t = t.AddDate(0, 0, 1)
		}
		*dst = &t
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return f, true
}

func (h *Handler) list(c *gin.Context, data any, total int64, f ListFilter) {
	limit, offset := f.limits()
	c.JSON(http.StatusOK, gin.H{
		"data":      data,
		"total":     total,
		"page":      offset/limit + 1,
		"page_size": limit,
	})
}

func (h *Handler) respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(status, v)
}

// Outgoing

func (h *Handler) createOutgoing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateOutgoingRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.CreateOutgoing(c.Request.Context(), actor, req)
	h.respond(c, http.StatusCreated, doc, err)
}

func (h *Handler) listOutgoing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	f, ok := h.filter(c, actor)
	if !ok {
		return
	}
	docs, total, err := h.service.ListOutgoing(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	h.list(c, docs, total, f)
}

func (h *Handler) getOutgoing(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetOutgoing(c.Request.Context(), id)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) updateOutgoing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	var req UpdateOutgoingRequest
	if !h.bindRequired(c, &req) {
		return
	}
	doc, err := h.service.UpdateOutgoing(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) deleteOutgoing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteOutgoing(c.Request.Context(), actor, id); err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) submitOutgoing(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.SubmitOutgoing(c.Request.Context(), actor, id)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) approveOutgoing(c *gin.Context) {
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
	doc, err := h.service.ApproveOutgoing(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) rejectOutgoing(c *gin.Context) {
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
	doc, err := h.service.RejectOutgoing(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

func (h *Handler) issueOutgoing(c *gin.Context) {
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
	doc, err := h.service.IssueOutgoing(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, doc, err)
}

// Shared

func (h *Handler) history(kind audit.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.id(c, "id")
		if !ok {
			return
		}
		entries, err := h.service.History(c.Request.Context(), kind, id)
		h.respond(c, http.StatusOK, entries, err)
	}
}

func (h *Handler) uploadAttachment(kind audit.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.actor(c)
		if !ok {
			return
		}
		id, ok := h.id(c, "id")
		if !ok {
			return
		}
		file, err := c.FormFile("file")
		if err != nil {
			apperr.Respond(c, h.logger, fmt.Errorf("%w: file is required", apperr.ErrValidation))
			return
		}
		f, err := file.Open()
		if err != nil {
			apperr.Respond(c, h.logger, fmt.Errorf("failed to read upload: %w", err))
			return
		}
		defer f.Close()

		att, err := h.service.AddAttachment(c.Request.Context(), actor, kind, id, UploadRequest{
			Name:        file.Filename,
			ContentType: file.Header.Get("Content-Type"),
			Size:        file.Size,
			Body:        f,
		})
		h.respond(c, http.StatusCreated, att, err)
	}
}

func (h *Handler) listAttachments(kind audit.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.id(c, "id")
		if !ok {
			return
		}
		atts, err := h.service.ListAttachments(c.Request.Context(), kind, id)
		h.respond(c, http.StatusOK, atts, err)
	}
}

func (h *Handler) deleteAttachment(kind audit.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.actor(c)
		if !ok {
			return
		}
		id, ok := h.id(c, "id")
		if !ok {
			return
		}
		attID, ok := h.id(c, "attachmentId")
		if !ok {
			return
		}
		if err := h.service.DeleteAttachment(c.Request.Context(), actor, kind, id, attID); err != nil {
			apperr.Respond(c, h.logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) attachmentURL(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	link, err := h.service.AttachmentURL(c.Request.Context(), id)
	h.respond(c, http.StatusOK, link, err)
}

func (h *Handler) attachmentContent(c *gin.Context) {
	id, ok := h.id(c, "id")
	if !ok {
		return
	}
	att, body, err := h.service.OpenAttachment(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	defer body.Close()
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.Size, contentType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", att.Name),
	})
}

func (h *Handler) exportRegister(kind audit.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.actor(c)
		if !ok {
			return
		}
		format, err := export.ParseFormat(c.Query("format"))
		if err != nil {
			apperr.Respond(c, h.logger, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
			return
		}
		f, ok := h.filter(c, actor)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := h.service.ExportRegister(c.Request.Context(), actor, kind, format, f, &buf); err != nil {
			apperr.Respond(c, h.logger, err)
			return
		}
		name := fmt.Sprintf("so-van-ban-%s-%s.%s", kind, time.Now().Format("20060102"), format.Extension())
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}

func (h *Handler) search(c *gin.Context) {
	q := search.Query{Text: c.Query("q")}
	if kinds := c.Query("kind"); kinds != "" {
		q.Kinds = strings.Split(kinds, ",")
	}
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	docs, err := h.service.Search(c.Request.Context(), q)
	h.respond(c, http.StatusOK, gin.H{"data": docs}, err)
}
