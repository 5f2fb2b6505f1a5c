package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/notifications"
)

const responseWhat = "response"

type CreateResponseRequest struct {
	Content string `json:"content" binding:"required"`
}

// ResubmitRequest optionally replaces the content of a rejected response.
type ResubmitRequest struct {
	Content *string `json:"content"`
	Version uint    `json:"version"`
}

// responseChange is the result of one response transition, used for the
// notifications sent after commit.
type responseChange struct {
	resp            *DocumentResponse
	parent          *IncomingDocument
	parentCompleted bool
}

// syncHistory appends the pair of entries that mirror a response transition
// on the response itself and on its parent document.
func syncHistory(ctx context.Context, tx Repository, resp *DocumentResponse, parentFrom, parentTo Status,
	op access.Operation, action, comment string, actor access.Actor, at time.Time, from, to Status) error {
	own := audit.NewEntry(audit.KindResponse, resp.ID, op, action, actor, at).
		Transition(string(from), string(to)).
		Describe(comment)
	if err := tx.AppendHistory(ctx, own); err != nil {
		return err
	}

	mirror := audit.NewEntry(audit.KindIncoming, resp.DocumentID, op, action, actor, at).
		Describe(comment)
	if parentFrom != parentTo {
		mirror.Transition(string(parentFrom), string(parentTo))
	}
	mirror, err := mirror.WithChanges(map[string]any{
		"response_id":     resp.ID,
		"response_status": change(from, to),
	})
	if err != nil {
		return err
	}
	return tx.AppendHistory(ctx, mirror)
}

// CreateResponse files a processing report on a document in processing.
// Only assignees and admins may report.
func (s *Service) CreateResponse(ctx context.Context, actor access.Actor, documentID uint, req CreateResponseRequest) (*DocumentResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", apperr.ErrValidation)
	}

	var out responseChange
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		parent, err := tx.GetIncoming(ctx, documentID)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceResponse, access.OpCreate, actor); err != nil {
			return err
		}
		if !actor.IsAdmin() {
			assignments, err := tx.ListAssignments(ctx, documentID)
			if err != nil {
				return err
			}
			if !assigned(assignments, actor.ID) {
				return fmt.Errorf("%w: only assignees may report on this document", apperr.ErrForbidden)
			}
		}
		if err := requireStatus(incomingWhat, parent.Status, StatusProcessing); err != nil {
			return err
		}

		now := s.now()
		resp := &DocumentResponse{
			DocumentID: documentID,
			CreatorID:  actor.ID,
			Content:    content,
			Status:     StatusPendingApproval,
		}
		if err := tx.CreateResponse(ctx, resp); err != nil {
			return err
		}
		out = responseChange{resp: resp, parent: parent}
		return syncHistory(ctx, tx, resp, parent.Status, parent.Status,
			access.OpCreate, audit.ActionResponseSubmit, "", actor, now, "", StatusPendingApproval)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Response submitted", zap.Uint("id", out.resp.ID), zap.Uint("document_id", documentID))
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(s.approverIDs(ctx, out.parent.AssignedDepartmentID), actor.ID),
		Type:       notifications.TypeResponse,
		Title:      "Báo cáo xử lý chờ phê duyệt",
		Message:    out.parent.Number + " " + out.parent.Title,
		EntityKind: string(audit.KindIncoming),
		EntityID:   documentID,
	})
	return out.resp, nil
}

func (s *Service) ListResponses(ctx context.Context, documentID uint) ([]DocumentResponse, error) {
	if _, err := s.repo.GetIncoming(ctx, documentID); err != nil {
		return nil, err
	}
	return s.repo.ListResponses(ctx, documentID)
}

func (s *Service) GetResponse(ctx context.Context, id uint) (*DocumentResponse, error) {
	resp, err := s.repo.GetResponse(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp.History, err = s.repo.ListHistory(ctx, audit.KindResponse, id); err != nil {
		return nil, err
	}
	return resp, nil
}

// ApproveResponse accepts a report. When a leader (manager or admin)
// approves, the parent document is completed in the same transaction.
func (s *Service) ApproveResponse(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*DocumentResponse, error) {
	tier := access.Tier(access.ResourceResponse, access.OpApprove, actor)
	comment := strings.TrimSpace(req.Comment)

	var out responseChange
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		resp, parent, err := loadResponse(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceResponse, access.OpApprove, actor); err != nil {
			return err
		}
		from := resp.Status
		if err := requireTransition(responseFlow, responseWhat, from, StatusApproved); err != nil {
			return err
		}

		now := s.now()
		approver := actor.ID
		resp.Status = StatusApproved
		resp.ApproverID = &approver
		resp.ApprovedAt = &now
		resp.ReviewComment = comment
		if err := tx.SaveResponse(ctx, resp); err != nil {
			return err
		}

		parentFrom := parent.Status
		completes := access.IsTopRole(actor) && incomingFlow.CanTransition(parent.Status, StatusCompleted)
		if completes {
			completeIncoming(parent, actor, now)
			if err := tx.SaveIncoming(ctx, parent); err != nil {
				return err
			}
			if err := tx.CompleteAssignments(ctx, parent.ID, now); err != nil {
				return err
			}
		}
		out = responseChange{resp: resp, parent: parent, parentCompleted: completes}
		return syncHistory(ctx, tx, resp, parentFrom, parent.Status,
			access.OpApprove, audit.ApprovalAction(tier), comment, actor, now, from, StatusApproved)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without([]uint{out.resp.CreatorID}, actor.ID),
		Type:       notifications.TypeApproved,
		Title:      "Báo cáo xử lý đã được phê duyệt",
		Message:    out.parent.Number + " " + out.parent.Title,
		EntityKind: string(audit.KindIncoming),
		EntityID:   out.parent.ID,
	})
	if out.parentCompleted {
		s.notifyCompleted(ctx, out.parent, actor)
		s.index(ctx, incomingSearchDoc(out.parent))
	}
	return out.resp, nil
}

// RejectResponse sends a report back to its author.
func (s *Service) RejectResponse(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*DocumentResponse, error) {
	tier := access.Tier(access.ResourceResponse, access.OpReject, actor)
	comment := strings.TrimSpace(req.Comment)

	var out responseChange
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		resp, parent, err := loadResponse(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceResponse, access.OpReject, actor); err != nil {
			return err
		}
		from := resp.Status
		if err := requireTransition(responseFlow, responseWhat, from, StatusRejected); err != nil {
			return err
		}

		now := s.now()
		resp.Status = StatusRejected
		resp.ReviewComment = comment
		if err := tx.SaveResponse(ctx, resp); err != nil {
			return err
		}
		out = responseChange{resp: resp, parent: parent}
		return syncHistory(ctx, tx, resp, parent.Status, parent.Status,
			access.OpReject, audit.RejectionAction(tier), comment, actor, now, from, StatusRejected)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notifications.Event{
		UserIDs:    []uint{out.resp.CreatorID},
		Type:       notifications.TypeRejected,
		Title:      "Báo cáo xử lý bị từ chối",
		Message:    strings.TrimSpace(out.parent.Number + ": " + comment),
		EntityKind: string(audit.KindIncoming),
		EntityID:   out.parent.ID,
		Email:      true,
	})
	return out.resp, nil
}

// ResubmitResponse returns a rejected report to review. Only its author may.
func (s *Service) ResubmitResponse(ctx context.Context, actor access.Actor, id uint, req ResubmitRequest) (*DocumentResponse, error) {
	var out responseChange
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		resp, parent, err := loadResponse(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceResponse, access.OpResubmit, actor); err != nil {
			return err
		}
		if err := ownerOnly(actor, resp.CreatorID, responseWhat); err != nil {
			return err
		}
		from := resp.Status
		if err := requireTransition(responseFlow, responseWhat, from, StatusPendingApproval); err != nil {
			return err
		}
		if err := requireStatus(incomingWhat, parent.Status, StatusProcessing); err != nil {
			return err
		}
		if err := apperr.CheckVersion(responseWhat, id, resp.Version, req.Version); err != nil {
			return err
		}

		if req.Content != nil {
			content := strings.TrimSpace(*req.Content)
			if content == "" {
				return fmt.Errorf("%w: content cannot be empty", apperr.ErrValidation)
			}
			resp.Content = content
		}
		now := s.now()
		resp.Status = StatusPendingApproval
		resp.ReviewComment = ""
		if err := tx.SaveResponse(ctx, resp); err != nil {
			return err
		}
		out = responseChange{resp: resp, parent: parent}
		return syncHistory(ctx, tx, resp, parent.Status, parent.Status,
			access.OpResubmit, audit.ActionResubmit, "", actor, now, from, StatusPendingApproval)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(s.approverIDs(ctx, out.parent.AssignedDepartmentID), actor.ID),
		Type:       notifications.TypeResponse,
		Title:      "Báo cáo xử lý được gửi lại",
		Message:    out.parent.Number + " " + out.parent.Title,
		EntityKind: string(audit.KindIncoming),
		EntityID:   out.parent.ID,
	})
	return out.resp, nil
}

func loadResponse(ctx context.Context, tx Repository, id uint) (*DocumentResponse, *IncomingDocument, error) {
	resp, err := tx.GetResponse(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	parent, err := tx.GetIncoming(ctx, resp.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	return resp, parent, nil
}

func assigned(assignments []Assignment, userID uint) bool {
	for _, a := range assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}
