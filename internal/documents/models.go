package documents

import (
	"time"

	"gorm.io/gorm"

	"document-portal/portal-backend/internal/audit"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusSent            Status = "sent"

	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

type Priority string

const (
	PriorityNormal     Priority = "normal"
	PriorityUrgent     Priority = "urgent"
	PriorityVeryUrgent Priority = "very_urgent"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityUrgent || p == PriorityVeryUrgent
}

// Revision is the optimistic lock carried by every mutable workflow record.
type Revision struct {
	Version uint `gorm:"not null" json:"version"`
}

func (r *Revision) currentVersion() uint { return r.Version }
func (r *Revision) setVersion(v uint)    { r.Version = v }

func (r *Revision) BeforeCreate(tx *gorm.DB) error {
	if r.Version == 0 {
		r.Version = 1
	}
	return nil
}

type versioned interface {
	currentVersion() uint
	setVersion(uint)
}

// Approval holds the fields shared by documents that go through the
// draft/approval/issue chain.
type Approval struct {
	Status     Status     `gorm:"size:32;not null;index" json:"status"`
	CreatorID  uint       `gorm:"not null;index" json:"creator_id"`
	ApproverID *uint      `json:"approver_id,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

func (a *Approval) approval() *Approval { return a }

// OutgoingDocument is an official document sent to outside agencies
type OutgoingDocument struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Number       *string    `gorm:"size:64;uniqueIndex" json:"number,omitempty"`
	Title        string     `gorm:"size:500;not null" json:"title"`
	DocumentType string     `gorm:"size:64" json:"document_type"`
	Summary      string     `gorm:"type:text" json:"summary"`
	Content      string     `gorm:"type:text" json:"content,omitempty"`
	Recipients   string     `gorm:"type:text" json:"recipients"`
	DepartmentID *uint      `gorm:"index" json:"department_id,omitempty"`
	IssuedDate   *time.Time `json:"issued_date,omitempty"`
	IssuedByID   *uint      `json:"issued_by_id,omitempty"`
	Approval
	Revision
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attachments  []Attachment         `gorm:"-" json:"attachments,omitempty"`
	History      []audit.HistoryEntry `gorm:"-" json:"history,omitempty"`
	NextStatuses []Status             `gorm:"-" json:"next_statuses,omitempty"`
}

func (d *OutgoingDocument) ref() (audit.Kind, uint) { return audit.KindOutgoing, d.ID }

// InternalDocument is a memo circulated inside the organization
type InternalDocument struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Number        *string    `gorm:"size:64;uniqueIndex" json:"number,omitempty"`
	Title         string     `gorm:"size:500;not null" json:"title"`
	DocumentType  string     `gorm:"size:64" json:"document_type"`
	Summary       string     `gorm:"type:text" json:"summary"`
	Content       string     `gorm:"type:text" json:"content,omitempty"`
	DepartmentID  *uint      `gorm:"index" json:"department_id,omitempty"`
	ReplyToID     *uint      `gorm:"index" json:"reply_to_id,omitempty"`
	IssuedDate    *time.Time `json:"issued_date,omitempty"`
	PublishedByID *uint      `json:"published_by_id,omitempty"`
	Approval
	Revision
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Recipients   []InternalRecipient  `gorm:"-" json:"recipients,omitempty"`
	Attachments  []Attachment         `gorm:"-" json:"attachments,omitempty"`
	History      []audit.HistoryEntry `gorm:"-" json:"history,omitempty"`
	NextStatuses []Status             `gorm:"-" json:"next_statuses,omitempty"`
}

func (d *InternalDocument) ref() (audit.Kind, uint) { return audit.KindInternal, d.ID }

// InternalRecipient addresses an internal document to a user or a whole department.
type InternalRecipient struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DocumentID   uint       `gorm:"not null;index" json:"document_id"`
	UserID       *uint      `gorm:"index" json:"user_id,omitempty"`
	DepartmentID *uint      `gorm:"index" json:"department_id,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// IncomingDocument is an official document received from an outside agency
type IncomingDocument struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Number               string     `gorm:"size:64;not null;uniqueIndex" json:"number"`
	Title                string     `gorm:"size:500;not null" json:"title"`
	DocumentType         string     `gorm:"size:64" json:"document_type"`
	Sender               string     `gorm:"size:255" json:"sender"`
	Summary              string     `gorm:"type:text" json:"summary"`
	IssuedDate           *time.Time `json:"issued_date,omitempty"`
	ReceivedAt           time.Time  `gorm:"not null;index" json:"received_at"`
	Priority             Priority   `gorm:"size:16;not null" json:"priority"`
	Status               Status     `gorm:"size:32;not null;index" json:"status"`
	CreatorID            uint       `gorm:"not null;index" json:"creator_id"`
	AssignedDepartmentID *uint      `gorm:"index" json:"assigned_department_id,omitempty"`
	AssignedByID         *uint      `json:"assigned_by_id,omitempty"`
	Deadline             *time.Time `gorm:"index" json:"deadline,omitempty"`
	ProcessingNote       string     `gorm:"type:text" json:"processing_note,omitempty"`
	ApproverID           *uint      `json:"approver_id,omitempty"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	RemindedAt           *time.Time `json:"-"`
	Revision
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Assignments  []Assignment         `gorm:"-" json:"assignments,omitempty"`
	Attachments  []Attachment         `gorm:"-" json:"attachments,omitempty"`
	History      []audit.HistoryEntry `gorm:"-" json:"history,omitempty"`
	NextStatuses []Status             `gorm:"-" json:"next_statuses,omitempty"`
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
)

// Assignment makes a user responsible for processing an incoming document
type Assignment struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	DocumentID   uint             `gorm:"not null;index" json:"document_id"`
	UserID       uint             `gorm:"not null;index" json:"user_id"`
	AssignedByID uint             `gorm:"not null" json:"assigned_by_id"`
	Status       AssignmentStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// DocumentResponse is a processing report on an incoming document that goes
// through its own approval.
type DocumentResponse struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	DocumentID    uint       `gorm:"not null;index" json:"document_id"`
	CreatorID     uint       `gorm:"not null;index" json:"creator_id"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	Status        Status     `gorm:"size:32;not null;index" json:"status"`
	ApproverID    *uint      `json:"approver_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ReviewComment string     `gorm:"type:text" json:"review_comment,omitempty"`
	Revision
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	History []audit.HistoryEntry `gorm:"-" json:"history,omitempty"`
}

// Attachment is a file stored alongside a document. Rows are never edited.
type Attachment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DocumentKind audit.Kind `gorm:"size:16;not null;index:idx_attachment_document,priority:1" json:"document_kind"`
	DocumentID   uint       `gorm:"not null;index:idx_attachment_document,priority:2" json:"document_id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	StoragePath  string     `gorm:"size:512;not null" json:"storage_path"`
	Size         int64      `gorm:"not null" json:"size"`
	ContentType  string     `gorm:"size:128" json:"content_type,omitempty"`
	UploadedBy   uint       `gorm:"not null" json:"uploaded_by"`
	UploadedAt   time.Time  `gorm:"not null" json:"uploaded_at"`
}

// Models lists the tables owned by this package, history included.
func Models() []any {
	return []any{
		&OutgoingDocument{},
		&InternalDocument{},
		&InternalRecipient{},
		&IncomingDocument{},
		&Assignment{},
		&DocumentResponse{},
		&Attachment{},
		&audit.HistoryEntry{},
	}
}
