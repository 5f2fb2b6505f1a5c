package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/pkg/search"
)

type Repository interface {
	// Transaction runs fn with a repository bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	CreateOutgoing(ctx context.Context, doc *OutgoingDocument) error
	GetOutgoing(ctx context.Context, id uint) (*OutgoingDocument, error)
	ListOutgoing(ctx context.Context, filter ListFilter) ([]OutgoingDocument, int64, error)
	SaveOutgoing(ctx context.Context, doc *OutgoingDocument) error
	DeleteOutgoing(ctx context.Context, id uint) error

	CreateInternal(ctx context.Context, doc *InternalDocument, recipients []InternalRecipient) error
	GetInternal(ctx context.Context, id uint) (*InternalDocument, error)
	ListInternal(ctx context.Context, filter ListFilter) ([]InternalDocument, int64, error)
	SaveInternal(ctx context.Context, doc *InternalDocument) error
	DeleteInternal(ctx context.Context, id uint) error
	ListRecipients(ctx context.Context, documentID uint) ([]InternalRecipient, error)
	ReplaceRecipients(ctx context.Context, documentID uint, recipients []InternalRecipient) error
	MarkRead(ctx context.Context, documentID, userID uint, at time.Time) error
	Inbox(ctx context.Context, userID uint, departmentID *uint, filter ListFilter) ([]InternalDocument, int64, error)

	CreateIncoming(ctx context.Context, doc *IncomingDocument) error
	GetIncoming(ctx context.Context, id uint) (*IncomingDocument, error)
	ListIncoming(ctx context.Context, filter ListFilter) ([]IncomingDocument, int64, error)
	SaveIncoming(ctx context.Context, doc *IncomingDocument) error
	DeleteIncoming(ctx context.Context, id uint) error
	ListDueIncoming(ctx context.Context, before time.Time) ([]IncomingDocument, error)
	MarkReminded(ctx context.Context, id uint, at time.Time) error

	ReplaceAssignments(ctx context.Context, documentID uint, assignments []Assignment) error
	ListAssignments(ctx context.Context, documentID uint) ([]Assignment, error)
	CompleteAssignments(ctx context.Context, documentID uint, at time.Time) error

	CreateResponse(ctx context.Context, resp *DocumentResponse) error
	GetResponse(ctx context.Context, id uint) (*DocumentResponse, error)
	ListResponses(ctx context.Context, documentID uint) ([]DocumentResponse, error)
	SaveResponse(ctx context.Context, resp *DocumentResponse) error

	AddAttachment(ctx context.Context, att *Attachment) error
	GetAttachment(ctx context.Context, id uint) (*Attachment, error)
	ListAttachments(ctx context.Context, kind audit.Kind, documentID uint) ([]Attachment, error)
	DeleteAttachment(ctx context.Context, id uint) error
	DeleteAttachmentsOf(ctx context.Context, kind audit.Kind, documentID uint) ([]Attachment, error)

	AppendHistory(ctx context.Context, entry *audit.HistoryEntry) error
	ListHistory(ctx context.Context, kind audit.Kind, documentID uint) ([]audit.HistoryEntry, error)

	// SearchTitles is the database fallback when no search index is configured.
	SearchTitles(ctx context.Context, q search.Query) ([]search.Document, error)
}

// ListFilter narrows list queries. Fields that do not apply to a document
// kind are ignored.
type ListFilter struct {
	Status       Status
	CreatorID    uint
	DepartmentID uint
	AssigneeID   uint
	Priority     Priority
	Query        string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

func (f ListFilter) limits() (limit, offset int) {
	limit = f.PageSize
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func first[T any](ctx context.Context, db *gorm.DB, what string, id uint) (*T, error) {
	var out T
	err := db.WithContext(ctx).First(&out, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %d", apperr.ErrNotFound, what, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", what, id, err)
	}
	return &out, nil
}

func create(ctx context.Context, db *gorm.DB, what string, model any) error {
	if err := db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s number already in use", apperr.ErrValidation, what)
		}
		return fmt.Errorf("failed to create %s: %w", what, err)
	}
	return nil
}

// saveVersioned writes every column of model guarded by its version. A
// concurrent writer that bumped the version first makes this fail with
// ErrConflict and leaves model's version untouched.
func saveVersioned(ctx context.Context, db *gorm.DB, what string, id uint, model versioned) error {
	expected := model.currentVersion()
	model.setVersion(expected + 1)

	res := db.WithContext(ctx).Model(model).
		Where("version = ?", expected).
		Select("*").Omit("ID", "CreatedAt").
		Updates(model)
	if res.Error != nil {
		model.setVersion(expected)
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s number already in use", apperr.ErrValidation, what)
		}
		return fmt.Errorf("failed to save %s %d: %w", what, id, res.Error)
	}
	if res.RowsAffected == 0 {
		model.setVersion(expected)
		return fmt.Errorf("%w: %s %d was modified concurrently (version %d)", apperr.ErrConflict, what, id, expected)
	}
	return nil
}

func deleteByID(ctx context.Context, db *gorm.DB, what string, model any, id uint) error {
	res := db.WithContext(ctx).Delete(model, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s %d: %w", what, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %d", apperr.ErrNotFound, what, id)
	}
	return nil
}

// page applies the common filter fields, counts, then loads one page.
func page[T any](ctx context.Context, q *gorm.DB, f ListFilter, textColumns ...string) ([]T, int64, error) {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CreatorID != 0 {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	if text := strings.TrimSpace(f.Query); text != "" && len(textColumns) > 0 {
		like := "%" + strings.ToLower(text) + "%"
		clauses := make([]string, len(textColumns))
		args := make([]any, len(textColumns))
		for i, c := range textColumns {
			clauses[i] = "LOWER(" + c + ") LIKE ?"
			args[i] = like
		}
		q = q.Where(strings.Join(clauses, " OR "), args...)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count: %w", err)
	}
	limit, offset := f.limits()
	var out []T
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list: %w", err)
	}
	return out, total, nil
}

// Outgoing

func (r *gormRepository) CreateOutgoing(ctx context.Context, doc *OutgoingDocument) error {
	return create(ctx, r.db, "outgoing document", doc)
}

func (r *gormRepository) GetOutgoing(ctx context.Context, id uint) (*OutgoingDocument, error) {
	return first[OutgoingDocument](ctx, r.db, "outgoing document", id)
}

func (r *gormRepository) ListOutgoing(ctx context.Context, f ListFilter) ([]OutgoingDocument, int64, error) {
	q := r.db.WithContext(ctx).Model(&OutgoingDocument{})
	if f.DepartmentID != 0 {
		q = q.Where("department_id = ?", f.DepartmentID)
	}
	return page[OutgoingDocument](ctx, q, f, "title", "number", "summary", "recipients")
}

func (r *gormRepository) SaveOutgoing(ctx context.Context, doc *OutgoingDocument) error {
	return saveVersioned(ctx, r.db, "outgoing document", doc.ID, doc)
}

func (r *gormRepository) DeleteOutgoing(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, "outgoing document", &OutgoingDocument{}, id)
}

// Internal

func (r *gormRepository) CreateInternal(ctx context.Context, doc *InternalDocument, recipients []InternalRecipient) error {
	if err := create(ctx, r.db, "internal document", doc); err != nil {
		return err
	}
	return r.ReplaceRecipients(ctx, doc.ID, recipients)
}

func (r *gormRepository) GetInternal(ctx context.Context, id uint) (*InternalDocument, error) {
	return first[InternalDocument](ctx, r.db, "internal document", id)
}

func (r *gormRepository) ListInternal(ctx context.Context, f ListFilter) ([]InternalDocument, int64, error) {
	q := r.db.WithContext(ctx).Model(&InternalDocument{})
	if f.DepartmentID != 0 {
		q = q.Where("department_id = ?", f.DepartmentID)
	}
	return page[InternalDocument](ctx, q, f, "title", "number", "summary")
}

func (r *gormRepository) SaveInternal(ctx context.Context, doc *InternalDocument) error {
	return saveVersioned(ctx, r.db, "internal document", doc.ID, doc)
}

func (r *gormRepository) DeleteInternal(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", id).Delete(&InternalRecipient{}).Error; err != nil {
		return fmt.Errorf("failed to delete recipients: %w", err)
	}
	return deleteByID(ctx, r.db, "internal document", &InternalDocument{}, id)
}

func (r *gormRepository) ListRecipients(ctx context.Context, documentID uint) ([]InternalRecipient, error) {
	var out []InternalRecipient
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return out, nil
}

func (r *gormRepository) ReplaceRecipients(ctx context.Context, documentID uint, recipients []InternalRecipient) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("document_id = ?", documentID).Delete(&InternalRecipient{}).Error; err != nil {
		return fmt.Errorf("failed to clear recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil
	}
	for i := range recipients {
		recipients[i].ID = 0
		recipients[i].DocumentID = documentID
	}
	if err := db.Create(&recipients).Error; err != nil {
		return fmt.Errorf("failed to create recipients: %w", err)
	}
	return nil
}

// MarkRead stamps the user's own recipient row, adding one when the user was
// reached through a department.
func (r *gormRepository) MarkRead(ctx context.Context, documentID, userID uint, at time.Time) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&InternalRecipient{}).
		Where("document_id = ? AND user_id = ? AND read_at IS NULL", documentID, userID).
		Update("read_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to mark read: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.Model(&InternalRecipient{}).Where("document_id = ? AND user_id = ?", documentID, userID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	uid := userID
	return db.Create(&InternalRecipient{DocumentID: documentID, UserID: &uid, ReadAt: &at}).Error
}

func (r *gormRepository) Inbox(ctx context.Context, userID uint, departmentID *uint, f ListFilter) ([]InternalDocument, int64, error) {
	db := r.db.WithContext(ctx)
	sub := db.Model(&InternalRecipient{}).Select("document_id").Where("user_id = ?", userID)
	if departmentID != nil {
		sub = sub.Or("department_id = ?", *departmentID)
	}
	q := db.Model(&InternalDocument{}).
		Where("status = ?", StatusSent).
		Where("id IN (?)", sub)
	f.Status = ""
	return page[InternalDocument](ctx, q, f, "title", "number", "summary")
}

// Incoming

func (r *gormRepository) CreateIncoming(ctx context.Context, doc *IncomingDocument) error {
	return create(ctx, r.db, "incoming document", doc)
}

func (r *gormRepository) GetIncoming(ctx context.Context, id uint) (*IncomingDocument, error) {
	return first[IncomingDocument](ctx, r.db, "incoming document", id)
}

func (r *gormRepository) ListIncoming(ctx context.Context, f ListFilter) ([]IncomingDocument, int64, error) {
	db := r.db.WithContext(ctx)
	q := db.Model(&IncomingDocument{})
	if f.DepartmentID != 0 {
		q = q.Where("assigned_department_id = ?", f.DepartmentID)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.AssigneeID != 0 {
		q = q.Where("id IN (?)", db.Model(&Assignment{}).Select("document_id").Where("user_id = ?", f.AssigneeID))
	}
	return page[IncomingDocument](ctx, q, f, "title", "number", "summary", "sender")
}

func (r *gormRepository) SaveIncoming(ctx context.Context, doc *IncomingDocument) error {
	return saveVersioned(ctx, r.db, "incoming document", doc.ID, doc)
}

func (r *gormRepository) DeleteIncoming(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("document_id = ?", id).Delete(&Assignment{}).Error; err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	if err := db.Where("document_id = ?", id).Delete(&DocumentResponse{}).Error; err != nil {
		return fmt.Errorf("failed to delete responses: %w", err)
	}
	return deleteByID(ctx, r.db, "incoming document", &IncomingDocument{}, id)
}

// ListDueIncoming returns documents still in processing whose deadline falls
// before the given time and that have not been reminded yet.
func (r *gormRepository) ListDueIncoming(ctx context.Context, before time.Time) ([]IncomingDocument, error) {
	var out []IncomingDocument
	err := r.db.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ? AND reminded_at IS NULL", StatusProcessing, before).
		Order("deadline ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due documents: %w", err)
	}
	return out, nil
}

// MarkReminded skips the version check but bumps the version, so a writer
// holding an older copy fails with ErrConflict instead of clearing
// reminded_at.
func (r *gormRepository) MarkReminded(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&IncomingDocument{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"reminded_at": at,
			"version":     gorm.Expr("version + 1"),
		}).Error
}

func (r *gormRepository) ReplaceAssignments(ctx context.Context, documentID uint, assignments []Assignment) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("document_id = ?", documentID).Delete(&Assignment{}).Error; err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	if len(assignments) == 0 {
		return nil
	}
	for i := range assignments {
		assignments[i].ID = 0
		assignments[i].DocumentID = documentID
	}
	if err := db.Create(&assignments).Error; err != nil {
		return fmt.Errorf("failed to create assignments: %w", err)
	}
	return nil
}

func (r *gormRepository) ListAssignments(ctx context.Context, documentID uint) ([]Assignment, error) {
	var out []Assignment
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return out, nil
}

func (r *gormRepository) CompleteAssignments(ctx context.Context, documentID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&Assignment{}).
		Where("document_id = ? AND status = ?", documentID, AssignmentPending).
		Updates(map[string]any{"status": AssignmentCompleted, "completed_at": at}).Error
	if err != nil {
		return fmt.Errorf("failed to complete assignments: %w", err)
	}
	return nil
}

// Responses

func (r *gormRepository) CreateResponse(ctx context.Context, resp *DocumentResponse) error {
	return create(ctx, r.db, "response", resp)
}

func (r *gormRepository) GetResponse(ctx context.Context, id uint) (*DocumentResponse, error) {
	return first[DocumentResponse](ctx, r.db, "response", id)
}

func (r *gormRepository) ListResponses(ctx context.Context, documentID uint) ([]DocumentResponse, error) {
	var out []DocumentResponse
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return out, nil
}

func (r *gormRepository) SaveResponse(ctx context.Context, resp *DocumentResponse) error {
	return saveVersioned(ctx, r.db, "response", resp.ID, resp)
}

// Attachments

func (r *gormRepository) AddAttachment(ctx context.Context, att *Attachment) error {
	if att.ID != 0 {
		return fmt.Errorf("attachment %d already stored", att.ID)
	}
	return create(ctx, r.db, "attachment", att)
}

func (r *gormRepository) GetAttachment(ctx context.Context, id uint) (*Attachment, error) {
	return first[Attachment](ctx, r.db, "attachment", id)
}

func (r *gormRepository) ListAttachments(ctx context.Context, kind audit.Kind, documentID uint) ([]Attachment, error) {
	var out []Attachment
	err := r.db.WithContext(ctx).
		Where("document_kind = ? AND document_id = ?", kind, documentID).
		Order("uploaded_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return out, nil
}

func (r *gormRepository) DeleteAttachment(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, "attachment", &Attachment{}, id)
}

func (r *gormRepository) DeleteAttachmentsOf(ctx context.Context, kind audit.Kind, documentID uint) ([]Attachment, error) {
	atts, err := r.ListAttachments(ctx, kind, documentID)
	if err != nil || len(atts) == 0 {
		return atts, err
	}
	err = r.db.WithContext(ctx).
		Where("document_kind = ? AND document_id = ?", kind, documentID).
		Delete(&Attachment{}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to delete attachments: %w", err)
	}
	return atts, nil
}

// History

func (r *gormRepository) AppendHistory(ctx context.Context, entry *audit.HistoryEntry) error {
	return audit.Append(ctx, r.db, entry)
}

func (r *gormRepository) ListHistory(ctx context.Context, kind audit.Kind, documentID uint) ([]audit.HistoryEntry, error) {
	return audit.List(ctx, r.db, kind, documentID)
}

// Search

func (r *gormRepository) SearchTitles(ctx context.Context, q search.Query) ([]search.Document, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	like := "%" + strings.ToLower(strings.TrimSpace(q.Text)) + "%"
	want := func(kind audit.Kind) bool {
		if len(q.Kinds) == 0 {
			return true
		}
		for _, k := range q.Kinds {
			if k == string(kind) {
				return true
			}
		}
		return false
	}

	var out []search.Document
	db := r.db.WithContext(ctx)
	if want(audit.KindIncoming) {
		var docs []IncomingDocument
		err := db.Where("LOWER(title) LIKE ? OR LOWER(number) LIKE ? OR LOWER(sender) LIKE ?", like, like, like).
			Order("created_at DESC").Limit(limit).Find(&docs).Error
		if err != nil {
			return nil, fmt.Errorf("failed to search incoming: %w", err)
		}
		for i := range docs {
			out = append(out, incomingSearchDoc(&docs[i]))
		}
	}
	if want(audit.KindOutgoing) {
		var docs []OutgoingDocument
		err := db.Where("LOWER(title) LIKE ? OR LOWER(number) LIKE ? OR LOWER(recipients) LIKE ?", like, like, like).
			Order("created_at DESC").Limit(limit).Find(&docs).Error
		if err != nil {
			return nil, fmt.Errorf("failed to search outgoing: %w", err)
		}
		for i := range docs {
			out = append(out, outgoingSearchDoc(&docs[i]))
		}
	}
	if want(audit.KindInternal) {
		var docs []InternalDocument
		err := db.Where("LOWER(title) LIKE ? OR LOWER(number) LIKE ?", like, like).
			Order("created_at DESC").Limit(limit).Find(&docs).Error
		if err != nil {
			return nil, fmt.Errorf("failed to search internal: %w", err)
		}
		for i := range docs {
			out = append(out, internalSearchDoc(&docs[i]))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
