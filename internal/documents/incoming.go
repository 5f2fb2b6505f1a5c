package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/pkg/search"
)

const incomingWhat = "incoming document"

type CreateIncomingRequest struct {
	Number       string     `json:"number" binding:"required"`
	Title        string     `json:"title" binding:"required"`
	DocumentType string     `json:"document_type"`
	Sender       string     `json:"sender"`
	Summary      string     `json:"summary"`
	IssuedDate   *time.Time `json:"issued_date"`
	ReceivedAt   *time.Time `json:"received_at"`
	Priority     Priority   `json:"priority"`
	Deadline     *time.Time `json:"deadline"`
}

// AssignRequest routes a document to a department. The department may be
// named by id or by name.
type AssignRequest struct {
	DepartmentID *uint      `json:"department_id"`
	Department   string     `json:"department"`
	UserIDs      []uint     `json:"user_ids"`
	Deadline     *time.Time `json:"deadline"`
	Comments     string     `json:"comments"`
	Version      uint       `json:"version"`
}

// UpdateIncomingRequest is a free patch. Status, when present, must be a
// valid next state.
type UpdateIncomingRequest struct {
	Number         *string    `json:"number"`
	Title          *string    `json:"title"`
	DocumentType   *string    `json:"document_type"`
	Sender         *string    `json:"sender"`
	Summary        *string    `json:"summary"`
	IssuedDate     *time.Time `json:"issued_date"`
	Priority       *Priority  `json:"priority"`
	Deadline       *time.Time `json:"deadline"`
	ProcessingNote *string    `json:"processing_note"`
	Status         *Status    `json:"status"`
	Version        uint       `json:"version"`
}

type CompleteRequest struct {
	Comment string `json:"comment"`
	Version uint   `json:"version"`
}

func (s *Service) CreateIncoming(ctx context.Context, actor access.Actor, req CreateIncomingRequest) (*IncomingDocument, error) {
	if err := access.Check(access.ResourceIncoming, access.OpCreate, actor); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.Number)
	title := strings.TrimSpace(req.Title)
	if number == "" || title == "" {
		return nil, fmt.Errorf("%w: number and title are required", apperr.ErrValidation)
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", apperr.ErrValidation, req.Priority)
	}

	now := s.now()
	received := now
	if req.ReceivedAt != nil {
		received = *req.ReceivedAt
	}
	doc := &IncomingDocument{
		Number:       number,
		Title:        title,
		DocumentType: strings.TrimSpace(req.DocumentType),
		Sender:       strings.TrimSpace(req.Sender),
		Summary:      req.Summary,
		IssuedDate:   req.IssuedDate,
		ReceivedAt:   received,
		Priority:     priority,
		Status:       StatusPending,
		CreatorID:    actor.ID,
		Deadline:     req.Deadline,
	}
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if err := tx.CreateIncoming(ctx, doc); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.KindIncoming, doc.ID, access.OpCreate, audit.ActionReceive, actor, now).
			Transition("", string(StatusPending)).
			Describe(doc.Sender)
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Incoming document received",
		zap.Uint("id", doc.ID),
		zap.String("number", doc.Number),
		zap.String("priority", string(doc.Priority)))
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(s.usersWithRole(ctx, access.RoleManager), actor.ID),
		Type:       notifications.TypeReceived,
		Title:      "Văn bản đến mới: " + doc.Number,
		Message:    doc.Title,
		EntityKind: string(audit.KindIncoming),
		EntityID:   doc.ID,
		Urgent:     doc.Priority != PriorityNormal,
	})
	s.index(ctx, incomingSearchDoc(doc))
	return doc, nil
}

func (s *Service) GetIncoming(ctx context.Context, id uint) (*IncomingDocument, error) {
	doc, err := s.repo.GetIncoming(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Assignments, err = s.repo.ListAssignments(ctx, id); err != nil {
		return nil, err
	}
	if doc.Attachments, err = s.repo.ListAttachments(ctx, audit.KindIncoming, id); err != nil {
		return nil, err
	}
	if doc.History, err = s.repo.ListHistory(ctx, audit.KindIncoming, id); err != nil {
		return nil, err
	}
	doc.NextStatuses = incomingFlow.GetAllowedTransitions(doc.Status)
	return doc, nil
}

func (s *Service) ListIncoming(ctx context.Context, filter ListFilter) ([]IncomingDocument, int64, error) {
	return s.repo.ListIncoming(ctx, filter)
}

// AssignIncoming moves a pending document into processing, or reassigns a
// document already in processing.
func (s *Service) AssignIncoming(ctx context.Context, actor access.Actor, id uint, req AssignRequest) (*IncomingDocument, error) {
	// Directory lookups cannot share the transaction, so the document and
	// the gate are checked first and again inside it.
	if _, err := s.repo.GetIncoming(ctx, id); err != nil {
		return nil, err
	}
	if err := access.Check(access.ResourceIncoming, access.OpAssign, actor); err != nil {
		return nil, err
	}
	dept, err := s.resolveDepartment(ctx, req.DepartmentID, req.Department)
	if err != nil {
		return nil, err
	}
	userIDs := dedupe(req.UserIDs)
	if len(userIDs) > 0 {
		users, err := s.dir.GetUsers(ctx, userIDs)
		if err != nil {
			return nil, err
		}
		if len(users) != len(userIDs) {
			return nil, fmt.Errorf("%w: unknown assignee", apperr.ErrValidation)
		}
	}

	var doc *IncomingDocument
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if doc, err = tx.GetIncoming(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceIncoming, access.OpAssign, actor); err != nil {
			return err
		}
		if err := requireStatus(incomingWhat, doc.Status, StatusPending, StatusProcessing); err != nil {
			return err
		}
		if err := apperr.CheckVersion(incomingWhat, id, doc.Version, req.Version); err != nil {
			return err
		}

		now := s.now()
		from := doc.Status
		deptID := dept.ID
		assigner := actor.ID
		doc.Status = StatusProcessing
		doc.AssignedDepartmentID = &deptID
		doc.AssignedByID = &assigner
		if req.Deadline != nil {
			doc.Deadline = req.Deadline
			doc.RemindedAt = nil
		}
		if c := strings.TrimSpace(req.Comments); c != "" {
			doc.ProcessingNote = c
		}
		if err := tx.SaveIncoming(ctx, doc); err != nil {
			return err
		}

		assignments := make([]Assignment, 0, len(userIDs))
		for _, uid := range userIDs {
			assignments = append(assignments, Assignment{
				UserID:       uid,
				AssignedByID: actor.ID,
				Status:       AssignmentPending,
				CreatedAt:    now,
			})
		}
		if err := tx.ReplaceAssignments(ctx, id, assignments); err != nil {
			return err
		}
		doc.Assignments = assignments

		changes := map[string]any{
			"department_id": deptID,
			"department":    dept.Name,
			"user_ids":      userIDs,
		}
		if doc.Deadline != nil {
			changes["deadline"] = doc.Deadline
		}
		entry, err := audit.NewEntry(audit.KindIncoming, id, access.OpAssign, audit.ActionAssign, actor, now).
			Transition(string(from), string(StatusProcessing)).
			Describe(strings.TrimSpace(req.Comments)).
			WithChanges(changes)
		if err != nil {
			return err
		}
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Incoming document assigned",
		zap.Uint("id", id),
		zap.String("department", dept.Name),
		zap.Int("assignees", len(userIDs)))
	msg := doc.Number + " " + doc.Title
	if doc.Deadline != nil {
		msg += " (hạn " + doc.Deadline.Format("02/01/2006") + ")"
	}
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(userIDs, actor.ID),
		Type:       notifications.TypeAssigned,
		Title:      "Bạn được phân công xử lý văn bản",
		Message:    msg,
		EntityKind: string(audit.KindIncoming),
		EntityID:   id,
		Urgent:     doc.Priority != PriorityNormal,
		Email:      true,
	})
	s.index(ctx, incomingSearchDoc(doc))
	return doc, nil
}

// UpdateIncoming applies a patch and records a single update entry carrying
// every changed field.
func (s *Service) UpdateIncoming(ctx context.Context, actor access.Actor, id uint, req UpdateIncomingRequest) (*IncomingDocument, error) {
	var doc *IncomingDocument
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if doc, err = tx.GetIncoming(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceIncoming, access.OpUpdate, actor); err != nil {
			return err
		}
		if err := apperr.CheckVersion(incomingWhat, id, doc.Version, req.Version); err != nil {
			return err
		}

		now := s.now()
		from := doc.Status
		changes, err := applyIncomingPatch(doc, req)
		if err != nil {
			return err
		}
		if req.Status != nil && *req.Status != from {
			if op, ok := incomingEdgeOps[*req.Status]; ok {
				if err := access.Check(access.ResourceIncoming, op, actor); err != nil {
					return err
				}
			}
			if err := requireTransition(incomingFlow, incomingWhat, from, *req.Status); err != nil {
				return err
			}
			changes["status"] = change(from, *req.Status)
			doc.Status = *req.Status
			if doc.Status == StatusCompleted {
				completeIncoming(doc, actor, now)
				if err := tx.CompleteAssignments(ctx, id, now); err != nil {
					return err
				}
			}
		}
		if err := tx.SaveIncoming(ctx, doc); err != nil {
			return err
		}

		entry := audit.NewEntry(audit.KindIncoming, id, access.OpUpdate, audit.ActionUpdate, actor, now)
		if doc.Status != from {
			entry.Transition(string(from), string(doc.Status))
		}
		if entry, err = entry.WithChanges(changes); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.index(ctx, incomingSearchDoc(doc))
	return doc, nil
}

func applyIncomingPatch(doc *IncomingDocument, req UpdateIncomingRequest) (map[string]any, error) {
	changes := map[string]any{}
	setString := func(field string, dst *string, src *string, required bool) error {
		if src == nil {
			return nil
		}
		v := strings.TrimSpace(*src)
		if required && v == "" {
			return fmt.Errorf("%w: %s cannot be empty", apperr.ErrValidation, field)
		}
		if v != *dst {
			changes[field] = change(*dst, v)
			*dst = v
		}
		return nil
	}
	if err := setString("number", &doc.Number, req.Number, true); err != nil {
		return nil, err
	}
	if err := setString("title", &doc.Title, req.Title, true); err != nil {
		return nil, err
	}
	if err := setString("document_type", &doc.DocumentType, req.DocumentType, false); err != nil {
		return nil, err
	}
	if err := setString("sender", &doc.Sender, req.Sender, false); err != nil {
		return nil, err
	}
	if err := setString("summary", &doc.Summary, req.Summary, false); err != nil {
		return nil, err
	}
	if err := setString("processing_note", &doc.ProcessingNote, req.ProcessingNote, false); err != nil {
		return nil, err
	}
	if req.Priority != nil && *req.Priority != doc.Priority {
		if !req.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", apperr.ErrValidation, *req.Priority)
		}
		changes["priority"] = change(doc.Priority, *req.Priority)
		doc.Priority = *req.Priority
	}
	if req.IssuedDate != nil && !sameTime(doc.IssuedDate, req.IssuedDate) {
		changes["issued_date"] = change(doc.IssuedDate, req.IssuedDate)
		doc.IssuedDate = req.IssuedDate
	}
	if req.Deadline != nil && !sameTime(doc.Deadline, req.Deadline) {
		changes["deadline"] = change(doc.Deadline, req.Deadline)
		doc.Deadline = req.Deadline
		doc.RemindedAt = nil
	}
	return changes, nil
}

func change(from, to any) map[string]any {
	return map[string]any{"from": from, "to": to}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// CompleteIncoming closes processing directly, without a response.
func (s *Service) CompleteIncoming(ctx context.Context, actor access.Actor, id uint, req CompleteRequest) (*IncomingDocument, error) {
	var doc *IncomingDocument
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if doc, err = tx.GetIncoming(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceIncoming, access.OpComplete, actor); err != nil {
			return err
		}
		if err := requireTransition(incomingFlow, incomingWhat, doc.Status, StatusCompleted); err != nil {
			return err
		}
		if err := apperr.CheckVersion(incomingWhat, id, doc.Version, req.Version); err != nil {
			return err
		}
		now := s.now()
		completeIncoming(doc, actor, now)
		if err := tx.SaveIncoming(ctx, doc); err != nil {
			return err
		}
		if err := tx.CompleteAssignments(ctx, id, now); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.KindIncoming, id, access.OpComplete, audit.ActionComplete, actor, now).
			Transition(string(StatusProcessing), string(StatusCompleted)).
			Describe(strings.TrimSpace(req.Comment))
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.notifyCompleted(ctx, doc, actor)
	s.index(ctx, incomingSearchDoc(doc))
	return doc, nil
}

func completeIncoming(doc *IncomingDocument, actor access.Actor, now time.Time) {
	approver := actor.ID
	doc.Status = StatusCompleted
	doc.CompletedAt = &now
	doc.ApproverID = &approver
	doc.ApprovedAt = &now
}

func (s *Service) notifyCompleted(ctx context.Context, doc *IncomingDocument, actor access.Actor) {
	ids := []uint{doc.CreatorID}
	assignments, err := s.repo.ListAssignments(ctx, doc.ID)
	if err != nil {
		s.logger.Warn("Failed to load assignments for notification", zap.Uint("id", doc.ID), zap.Error(err))
	}
	for _, a := range assignments {
		ids = append(ids, a.UserID)
	}
	s.notify(ctx, notifications.Event{
		UserIDs:    notifications.Without(ids, actor.ID),
		Type:       notifications.TypeCompleted,
		Title:      "Văn bản đã hoàn thành xử lý",
		Message:    doc.Number + " " + doc.Title,
		EntityKind: string(audit.KindIncoming),
		EntityID:   doc.ID,
	})
}

// DeleteIncoming removes a document that has not been assigned yet. Admins
// may delete in any state.
func (s *Service) DeleteIncoming(ctx context.Context, actor access.Actor, id uint) error {
	var removed []Attachment
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		doc, err := tx.GetIncoming(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceIncoming, access.OpDelete, actor); err != nil {
			return err
		}
		if !actor.IsAdmin() {
			if err := requireStatus(incomingWhat, doc.Status, StatusPending); err != nil {
				return err
			}
		}
		if removed, err = tx.DeleteAttachmentsOf(ctx, audit.KindIncoming, id); err != nil {
			return err
		}
		return tx.DeleteIncoming(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Incoming document deleted", zap.Uint("id", id), zap.Uint("actor_id", actor.ID))
	s.purgeFiles(ctx, removed)
	s.unindex(ctx, audit.KindIncoming, id)
	return nil
}

func (s *Service) resolveDepartment(ctx context.Context, id *uint, name string) (*directory.Department, error) {
	var (
		dept *directory.Department
		err  error
	)
	switch {
	case id != nil && *id != 0:
		dept, err = s.dir.GetDepartment(ctx, *id)
	case strings.TrimSpace(name) != "":
		dept, err = s.dir.GetDepartmentByName(ctx, strings.TrimSpace(name))
	default:
		return nil, fmt.Errorf("%w: department is required", apperr.ErrValidation)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown department: %v", apperr.ErrValidation, err)
	}
	if err != nil {
		return nil, err
	}
	return dept, nil
}

func incomingSearchDoc(d *IncomingDocument) search.Document {
	return search.Document{
		Kind:       string(audit.KindIncoming),
		DocumentID: d.ID,
		Number:     d.Number,
		Title:      d.Title,
		Summary:    d.Summary,
		Party:      d.Sender,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt,
	}
}
