package documents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/pkg/search"
)

type CreateInternalRequest struct {
	Title                  string `json:"title" binding:"required"`
	DocumentType           string `json:"document_type"`
	Summary                string `json:"summary"`
	Content                string `json:"content"`
	DepartmentID           *uint  `json:"department_id"`
	RecipientUserIDs       []uint `json:"recipient_user_ids"`
	RecipientDepartmentIDs []uint `json:"recipient_department_ids"`
}

// UpdateInternalRequest patches a draft. Recipient lists replace the current
// ones when present.
type UpdateInternalRequest struct {
	Title                  *string `json:"title"`
	DocumentType           *string `json:"document_type"`
	Summary                *string `json:"summary"`
	Content                *string `json:"content"`
	RecipientUserIDs       *[]uint `json:"recipient_user_ids"`
	RecipientDepartmentIDs *[]uint `json:"recipient_department_ids"`
	Version                uint    `json:"version"`
}

type ReplyRequest struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Content string `json:"content" binding:"required"`
}

func (s *Service) CreateInternal(ctx context.Context, actor access.Actor, req CreateInternalRequest) (*InternalDocument, error) {
	if err := access.Check(access.ResourceInternal, access.OpCreate, actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	recipients, err := s.resolveRecipients(ctx, req.RecipientUserIDs, req.RecipientDepartmentIDs)
	if err != nil {
		return nil, err
	}
	deptID := req.DepartmentID
	if deptID == nil {
		deptID = actor.DepartmentID
	}

	doc := &InternalDocument{
		Title:        title,
		DocumentType: strings.TrimSpace(req.DocumentType),
		Summary:      req.Summary,
		Content:      req.Content,
		DepartmentID: deptID,
		Approval:     Approval{Status: StatusDraft, CreatorID: actor.ID},
	}
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		return tx.CreateInternal(ctx, doc, recipients)
	})
	if err != nil {
		return nil, err
	}
	doc.Recipients = recipients

	s.logger.Info("Internal document created", zap.Uint("id", doc.ID), zap.Uint("creator_id", actor.ID))
	s.index(ctx, internalSearchDoc(doc))
	return doc, nil
}

func (s *Service) GetInternal(ctx context.Context, id uint) (*InternalDocument, error) {
	doc, err := s.repo.GetInternal(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Recipients, err = s.repo.ListRecipients(ctx, id); err != nil {
		return nil, err
	}
	if doc.Attachments, err = s.repo.ListAttachments(ctx, audit.KindInternal, id); err != nil {
		return nil, err
	}
	if doc.History, err = s.repo.ListHistory(ctx, audit.KindInternal, id); err != nil {
		return nil, err
	}
	doc.NextStatuses = approvalFlow.GetAllowedTransitions(doc.Status)
	return doc, nil
}

func (s *Service) ListInternal(ctx context.Context, filter ListFilter) ([]InternalDocument, int64, error) {
	return s.repo.ListInternal(ctx, filter)
}

// Inbox lists sent internal documents addressed to the actor directly or to
// the actor's department.
func (s *Service) Inbox(ctx context.Context, actor access.Actor, filter ListFilter) ([]InternalDocument, int64, error) {
	return s.repo.Inbox(ctx, actor.ID, actor.DepartmentID, filter)
}

func (s *Service) UpdateInternal(ctx context.Context, actor access.Actor, id uint, req UpdateInternalRequest) (*InternalDocument, error) {
	var recipients []InternalRecipient
	replaceRecipients := req.RecipientUserIDs != nil || req.RecipientDepartmentIDs != nil
	if replaceRecipients {
		var users, depts []uint
		if req.RecipientUserIDs != nil {
			users = *req.RecipientUserIDs
		}
		if req.RecipientDepartmentIDs != nil {
			depts = *req.RecipientDepartmentIDs
		}
		var err error
		if recipients, err = s.resolveRecipients(ctx, users, depts); err != nil {
			return nil, err
		}
	}

	var doc *InternalDocument
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if doc, err = tx.GetInternal(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceInternal, access.OpUpdate, actor); err != nil {
			return err
		}
		if err := ownerOnly(actor, doc.CreatorID, internalKind.what); err != nil {
			return err
		}
		if err := requireStatus(internalKind.what, doc.Status, StatusDraft); err != nil {
			return err
		}
		if err := apperr.CheckVersion(internalKind.what, id, doc.Version, req.Version); err != nil {
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
		if err := tx.SaveInternal(ctx, doc); err != nil {
			return err
		}
		if replaceRecipients {
			return tx.ReplaceRecipients(ctx, id, recipients)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.index(ctx, internalSearchDoc(doc))
	return doc, nil
}

func (s *Service) SubmitInternal(ctx context.Context, actor access.Actor, id uint) (*InternalDocument, error) {
	rec, err := s.submit(ctx, internalKind, actor, id)
	if err != nil {
		return nil, err
	}
	doc := rec.(*InternalDocument)
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(s.approverIDs(ctx, doc.DepartmentID), actor.ID),
		Type:       notifications.TypeApprovalRequest,
		Title:      "Văn bản nội bộ chờ phê duyệt",
		Message:    doc.Title,
		EntityKind: string(audit.KindInternal),
		EntityID:   doc.ID,
	})
	s.index(ctx, internalSearchDoc(doc))
	return doc, nil
}

func (s *Service) ApproveInternal(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*InternalDocument, error) {
	rec, err := s.approve(ctx, internalKind, actor, id, req)
	if err != nil {
		return nil, err
	}
	doc := rec.(*InternalDocument)
	s.notify(ctx, notifications.Event{
		UserIDs:    append([]uint{doc.CreatorID}, s.usersWithRole(ctx, access.RoleClerk)...),
		Type:       notifications.TypeApproved,
		Title:      "Văn bản nội bộ đã được phê duyệt",
		Message:    doc.Title,
		EntityKind: string(audit.KindInternal),
		EntityID:   doc.ID,
	})
	s.index(ctx, internalSearchDoc(doc))
	return doc, nil
}

func (s *Service) RejectInternal(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*InternalDocument, error) {
	rec, err := s.reject(ctx, internalKind, actor, id, req)
	if err != nil {
		return nil, err
	}
	doc := rec.(*InternalDocument)
	s.notify(ctx, notifications.Event{
		UserIDs:    []uint{doc.CreatorID},
		Type:       notifications.TypeRejected,
		Title:      "Văn bản nội bộ bị từ chối",
		Message:    strings.TrimSpace(doc.Title + ": " + req.Comment),
		EntityKind: string(audit.KindInternal),
		EntityID:   doc.ID,
	})
	s.index(ctx, internalSearchDoc(doc))
	return doc, nil
}

// PublishInternal sends an approved memo to its recipients.
func (s *Service) PublishInternal(ctx context.Context, actor access.Actor, id uint, req IssueRequest) (*InternalDocument, error) {
	rec, err := s.issue(ctx, internalKind, actor, id, req)
	if err != nil {
		return nil, err
	}
	doc := rec.(*InternalDocument)
	s.logger.Info("Internal document published", zap.Uint("id", doc.ID), zap.String("number", doc.numberOrEmpty()))

	recipients, err := s.repo.ListRecipients(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to load recipients for notification", zap.Uint("id", id), zap.Error(err))
	}
	s.notify(ctx, notifications.Event{
		UserIDs:    append(s.recipientUserIDs(ctx, recipients), doc.CreatorID),
		Type:       notifications.TypeIssued,
		Title:      "Văn bản nội bộ mới",
		Message:    doc.numberOrEmpty() + " " + doc.Title,
		EntityKind: string(audit.KindInternal),
		EntityID:   doc.ID,
	})
	s.index(ctx, internalSearchDoc(doc))
	return doc, nil
}

// ReplyInternal creates a draft answering a sent memo, addressed to the
// memo's creator.
func (s *Service) ReplyInternal(ctx context.Context, actor access.Actor, parentID uint, req ReplyRequest) (*InternalDocument, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", apperr.ErrValidation)
	}

	var reply *InternalDocument
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		parent, err := tx.GetInternal(ctx, parentID)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceInternal, access.OpReply, actor); err != nil {
			return err
		}
		recipients, err := tx.ListRecipients(ctx, parentID)
		if err != nil {
			return err
		}
		if actor.ID != parent.CreatorID && !actor.IsAdmin() && !isRecipient(recipients, actor) {
			return fmt.Errorf("%w: only recipients may reply to this document", apperr.ErrForbidden)
		}
		if err := requireStatus(internalKind.what, parent.Status, StatusSent); err != nil {
			return err
		}

		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = "Phản hồi: " + parent.Title
		}
		creator := parent.CreatorID
		pid := parent.ID
		reply = &InternalDocument{
			Title:        title,
			DocumentType: parent.DocumentType,
			Summary:      req.Summary,
			Content:      req.Content,
			DepartmentID: actor.DepartmentID,
			ReplyToID:    &pid,
			Approval:     Approval{Status: StatusDraft, CreatorID: actor.ID},
		}
		return tx.CreateInternal(ctx, reply, []InternalRecipient{{UserID: &creator}})
	})
	if err != nil {
		return nil, err
	}
	s.index(ctx, internalSearchDoc(reply))
	return reply, nil
}

// MarkInternalRead records that the actor has read a sent memo addressed to them.
func (s *Service) MarkInternalRead(ctx context.Context, actor access.Actor, id uint) error {
	return s.repo.Transaction(ctx, func(tx Repository) error {
		doc, err := tx.GetInternal(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(internalKind.what, doc.Status, StatusSent); err != nil {
			return err
		}
		recipients, err := tx.ListRecipients(ctx, id)
		if err != nil {
			return err
		}
		if !isRecipient(recipients, actor) {
			return fmt.Errorf("%w: document is not addressed to you", apperr.ErrForbidden)
		}
		return tx.MarkRead(ctx, id, actor.ID, s.now())
	})
}

// DeleteInternal removes a draft. Admins may delete in any state.
func (s *Service) DeleteInternal(ctx context.Context, actor access.Actor, id uint) error {
	var removed []Attachment
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		doc, err := tx.GetInternal(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceInternal, access.OpDelete, actor); err != nil {
			return err
		}
		if err := ownerOrAdmin(actor, doc.CreatorID, internalKind.what); err != nil {
			return err
		}
		if !actor.IsAdmin() {
			if err := requireStatus(internalKind.what, doc.Status, StatusDraft); err != nil {
				return err
			}
		}
		if removed, err = tx.DeleteAttachmentsOf(ctx, audit.KindInternal, id); err != nil {
			return err
		}
		return tx.DeleteInternal(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Internal document deleted", zap.Uint("id", id), zap.Uint("actor_id", actor.ID))
	s.purgeFiles(ctx, removed)
	s.unindex(ctx, audit.KindInternal, id)
	return nil
}

// resolveRecipients validates recipient ids against the directory.
func (s *Service) resolveRecipients(ctx context.Context, userIDs, departmentIDs []uint) ([]InternalRecipient, error) {
	var out []InternalRecipient
	if len(userIDs) > 0 {
		ids := dedupe(userIDs)
		users, err := s.dir.GetUsers(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(users) != len(ids) {
			return nil, fmt.Errorf("%w: unknown recipient user", apperr.ErrValidation)
		}
		for _, id := range ids {
			uid := id
			out = append(out, InternalRecipient{UserID: &uid})
		}
	}
	for _, id := range dedupe(departmentIDs) {
		if _, err := s.dir.GetDepartment(ctx, id); err != nil {
			return nil, fmt.Errorf("%w: unknown recipient department %d", apperr.ErrValidation, id)
		}
		did := id
		out = append(out, InternalRecipient{DepartmentID: &did})
	}
	return out, nil
}

// recipientUserIDs expands department recipients to their members.
func (s *Service) recipientUserIDs(ctx context.Context, recipients []InternalRecipient) []uint {
	var ids []uint
	for _, r := range recipients {
		switch {
		case r.UserID != nil:
			ids = append(ids, *r.UserID)
		case r.DepartmentID != nil:
			members, err := s.dir.ListUsers(ctx, directory.UserFilter{DepartmentID: r.DepartmentID, ActiveOnly: true})
			if err != nil {
				s.logger.Warn("Failed to list department members", zap.Uint("department_id", *r.DepartmentID), zap.Error(err))
				continue
			}
			for _, u := range members {
				ids = append(ids, u.ID)
			}
		}
	}
	return ids
}

func isRecipient(recipients []InternalRecipient, actor access.Actor) bool {
	for _, r := range recipients {
		if r.UserID != nil && *r.UserID == actor.ID {
			return true
		}
		if r.DepartmentID != nil && actor.InDepartment(r.DepartmentID) {
			return true
		}
	}
	return false
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func internalSearchDoc(d *InternalDocument) search.Document {
	return search.Document{
		Kind:       string(audit.KindInternal),
		DocumentID: d.ID,
		Number:     d.numberOrEmpty(),
		Title:      d.Title,
		Summary:    d.Summary,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt,
	}
}
