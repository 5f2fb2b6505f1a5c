// Package audit stores the append-only history of workflow actions. Entries
// live in their own table keyed by (document_kind, document_id) and are never
// updated or deleted by the application.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"document-portal/portal-backend/internal/access"
)

type Kind string

const (
	KindIncoming Kind = "incoming"
	KindOutgoing Kind = "outgoing"
	KindInternal Kind = "internal"
	KindResponse Kind = "response"
	KindSchedule Kind = "schedule"
)

// Action labels recorded on history entries.
const (
	ActionReceive          = "Tiếp nhận văn bản"
	ActionSubmit           = "Gửi phê duyệt"
	ActionResubmit         = "Gửi lại phê duyệt"
	ActionIssue            = "Phát hành văn bản"
	ActionAssign           = "Phân công xử lý"
	ActionUpdate           = "Cập nhật văn bản"
	ActionComplete         = "Hoàn thành xử lý"
	ActionResponseSubmit   = "Gửi báo cáo xử lý"
	ActionScheduleRegister = "Đăng ký lịch công tác"
)

// ApprovalAction names the approving tier, e.g. "Trưởng phòng phê duyệt".
func ApprovalAction(tier access.Role) string {
	return tier.Title() + " phê duyệt"
}

// RejectionAction names the rejecting tier, e.g. "Trưởng phòng từ chối".
func RejectionAction(tier access.Role) string {
	return tier.Title() + " từ chối"
}

// HistoryEntry is one audited action on a document.
type HistoryEntry struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	DocumentKind Kind             `gorm:"size:16;not null;index:idx_history_document,priority:1" json:"document_kind"`
	DocumentID   uint             `gorm:"not null;index:idx_history_document,priority:2" json:"document_id"`
	Operation    access.Operation `gorm:"size:32;not null" json:"operation"`
	Action       string           `gorm:"size:255;not null" json:"action"`
	ActorID      uint             `gorm:"not null;index" json:"actor_id"`
	ActorName    string           `gorm:"size:255" json:"actor_name,omitempty"`
	FromStatus   string           `gorm:"size:32" json:"from_status,omitempty"`
	ToStatus     string           `gorm:"size:32" json:"to_status,omitempty"`
	Description  string           `gorm:"type:text" json:"description,omitempty"`
	Changes      datatypes.JSON   `json:"changes,omitempty"`
	CreatedAt    time.Time        `gorm:"not null" json:"timestamp"`
}

func (HistoryEntry) TableName() string {
	return "history_entries"
}

// NewEntry builds an entry attributed to actor at the given time.
func NewEntry(kind Kind, documentID uint, op access.Operation, action string, actor access.Actor, at time.Time) *HistoryEntry {
	return &HistoryEntry{
		DocumentKind: kind,
		DocumentID:   documentID,
		Operation:    op,
		Action:       action,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		CreatedAt:    at,
	}
}

// Transition records the status change carried by this entry.
func (e *HistoryEntry) Transition(from, to string) *HistoryEntry {
	e.FromStatus = from
	e.ToStatus = to
	return e
}

// Describe sets the free-text description (usually the actor's comment).
func (e *HistoryEntry) Describe(description string) *HistoryEntry {
	e.Description = description
	return e
}

// WithChanges attaches a JSON change set.
func (e *HistoryEntry) WithChanges(changes map[string]any) (*HistoryEntry, error) {
	if len(changes) == 0 {
		return e, nil
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history changes: %w", err)
	}
	e.Changes = datatypes.JSON(raw)
	return e, nil
}

// Append inserts the entry using db, which may be a transaction.
func Append(ctx context.Context, db *gorm.DB, entry *HistoryEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("history entry %d already persisted", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// List returns the history of one document in insertion order.
func List(ctx context.Context, db *gorm.DB, kind Kind, documentID uint) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := db.WithContext(ctx).
		Where("document_kind = ? AND document_id = ?", kind, documentID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}
