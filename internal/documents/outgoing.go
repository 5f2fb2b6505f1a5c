package documents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/pkg/search"
)

type CreateOutgoingRequest struct {
	Title        string `json:"title" binding:"required"`
	DocumentType string `json:"document_type"`
	Summary      string `json:"summary"`
	Content      string `json:"content"`
	Recipients   string `json:"recipients"`
	DepartmentID *uint  `json:"department_id"`
}

// UpdateOutgoingRequest patches a draft; nil fields are left unchanged.
type UpdateOutgoingRequest struct {
	Title        *string `json:"title"`
	DocumentType *string `json:"document_type"`
	Summary      *string `json:"summary"`
	Content      *string `json:"content"`
	Recipients   *string `json:"recipients"`
	Version      uint    `json:"version"`
}

func (s *Service) CreateOutgoing(ctx context.Context, actor access.Actor, req CreateOutgoingRequest) (*OutgoingDocument, error) {
	if err := access.Check(access.ResourceOutgoing, access.OpCreate, actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	deptID := req.DepartmentID
	if deptID == nil {
		deptID = actor.DepartmentID
	}

	doc := &OutgoingDocument{
		Title:        title,
		DocumentType: strings.TrimSpace(req.DocumentType),
		Summary:      req.Summary,
		Content:      req.Content,
		Recipients:   req.Recipients,
		DepartmentID: deptID,
		Approval:     Approval{Status: StatusDraft, CreatorID: actor.ID},
	}
	if err := s.repo.CreateOutgoing(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("Outgoing document created", zap.Uint("id", doc.ID), zap.Uint("creator_id", actor.ID))
	s.index(ctx, outgoingSearchDoc(doc))
	return doc, nil
}

func (s *Service) GetOutgoing(ctx context.Context, id uint) (*OutgoingDocument, error) {
	doc, err := s.repo.GetOutgoing(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Attachments, err = s.repo.ListAttachments(ctx, audit.KindOutgoing, id); err != nil {
		return nil, err
	}
	if doc.History, err = s.repo.ListHistory(ctx, audit.KindOutgoing, id); err != nil {
		return nil, err
	}
	doc.NextStatuses = approvalFlow.GetAllowedTransitions(doc.Status)
	return doc, nil
}

func (s *Service) ListOutgoing(ctx context.Context, filter ListFilter) ([]OutgoingDocument, int64, error) {
	return s.repo.ListOutgoing(ctx, filter)
}

// UpdateOutgoing edits a draft. Only the creator may edit and no history is
// recorded since the status does not change.
func (s *Service) UpdateOutgoing(ctx context.Context, actor access.Actor, id uint, req UpdateOutgoingRequest) (*OutgoingDocument, error) {
	var doc *OutgoingDocument
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if doc, err = tx.GetOutgoing(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceOutgoing, access.OpUpdate, actor); err != nil {
			return err
		}
		if err := ownerOnly(actor, doc.CreatorID, outgoingKind.what); err != nil {
			return err
		}
		if err := requireStatus(outgoingKind.what, doc.Status, StatusDraft); err != nil {
			return err
		}
		if err := apperr.CheckVersion(outgoingKind.what, id, doc.Version, req.Version); err != nil {
			return err
		}

		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return fmt.Errorf("%w: title cannot be empty", apperr.ErrValidation)
			}
			doc.Title = title
		}
		if req.DocumentType != nil {
			doc.DocumentType = strings.TrimSpace(*req.DocumentType)
		}
		if req.Summary != nil {
			doc.Summary = *req.Summary
		}
		if req.Content != nil {
			doc.Content = *req.Content
		}
		if req.Recipients != nil {
			doc.Recipients = *req.Recipients
		}
		return tx.SaveOutgoing(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	s.index(ctx, outgoingSearchDoc(doc))
	return doc, nil
}

func (s *Service) SubmitOutgoing(ctx context.Context, actor access.Actor, id uint) (*OutgoingDocument, error) {
	rec, err := s.submit(ctx, outgoingKind, actor, id)
	if err != nil {
		return nil, err
	}
	doc := rec.(*OutgoingDocument)
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(s.approverIDs(ctx, doc.DepartmentID), actor.ID),
		Type:       notifications.TypeApprovalRequest,
		Title:      "Văn bản đi chờ phê duyệt",
		Message:    doc.Title,
		EntityKind: string(audit.KindOutgoing),
		EntityID:   doc.ID,
	})
	s.index(ctx, outgoingSearchDoc(doc))
	return doc, nil
}

func (s *Service) ApproveOutgoing(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*OutgoingDocument, error) {
	rec, err := s.approve(ctx, outgoingKind, actor, id, req)
	if err != nil {
		return nil, err
	}
	doc := rec.(*OutgoingDocument)
	s.notify(ctx, notifications.Event{
		UserIDs:    append([]uint{doc.CreatorID}, s.usersWithRole(ctx, access.RoleClerk)...),
		Type:       notifications.TypeApproved,
		Title:      "Văn bản đi đã được phê duyệt",
		Message:    doc.Title,
		EntityKind: string(audit.KindOutgoing),
		EntityID:   doc.ID,
	})
	s.index(ctx, outgoingSearchDoc(doc))
	return doc, nil
}

func (s *Service) RejectOutgoing(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*OutgoingDocument, error) {
	rec, err := s.reject(ctx, outgoingKind, actor, id, req)
	if err != nil {
		return nil, err
	}
	doc := rec.(*OutgoingDocument)
	s.notify(ctx, notifications.Event{
		UserIDs:    []uint{doc.CreatorID},
		Type:       notifications.TypeRejected,
		Title:      "Văn bản đi bị từ chối",
		Message:    strings.TrimSpace(doc.Title + ": " + req.Comment),
		EntityKind: string(audit.KindOutgoing),
		EntityID:   doc.ID,
		Email:      true,
	})
	s.index(ctx, outgoingSearchDoc(doc))
	return doc, nil
}

func (s *Service) IssueOutgoing(ctx context.Context, actor access.Actor, id uint, req IssueRequest) (*OutgoingDocument, error) {
	rec, err := s.issue(ctx, outgoingKind, actor, id, req)
	if err != nil {
		return nil, err
	}
	doc := rec.(*OutgoingDocument)
	s.logger.Info("Outgoing document issued", zap.Uint("id", doc.ID), zap.String("number", doc.numberOrEmpty()))
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without([]uint{doc.CreatorID}, actor.ID),
		Type:       notifications.TypeIssued,
		Title:      "Văn bản đi đã phát hành",
		Message:    doc.numberOrEmpty() + " " + doc.Title,
		EntityKind: string(audit.KindOutgoing),
		EntityID:   doc.ID,
	})
	s.index(ctx, outgoingSearchDoc(doc))
	return doc, nil
}

// DeleteOutgoing removes a draft. Admins may delete in any state.
func (s *Service) DeleteOutgoing(ctx context.Context, actor access.Actor, id uint) error {
	var removed []Attachment
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		doc, err := tx.GetOutgoing(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceOutgoing, access.OpDelete, actor); err != nil {
			return err
		}
		if err := ownerOrAdmin(actor, doc.CreatorID, outgoingKind.what); err != nil {
			return err
		}
		if !actor.IsAdmin() {
			if err := requireStatus(outgoingKind.what, doc.Status, StatusDraft); err != nil {
				return err
			}
		}
		if removed, err = tx.DeleteAttachmentsOf(ctx, audit.KindOutgoing, id); err != nil {
			return err
		}
		return tx.DeleteOutgoing(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Outgoing document deleted", zap.Uint("id", id), zap.Uint("actor_id", actor.ID))
	s.purgeFiles(ctx, removed)
	s.unindex(ctx, audit.KindOutgoing, id)
	return nil
}

func outgoingSearchDoc(d *OutgoingDocument) search.Document {
	return search.Document{
		Kind:       string(audit.KindOutgoing),
		DocumentID: d.ID,
		Number:     d.numberOrEmpty(),
		Title:      d.Title,
		Summary:    d.Summary,
		Party:      d.Recipients,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt,
	}
}
