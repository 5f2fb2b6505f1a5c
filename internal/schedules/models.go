package schedules

import (
	"time"

	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/pkg/workflows"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var flow = workflows.NewStateMachine(map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
})

// Schedule is a work calendar (lịch công tác) registered for a period
type Schedule struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"size:500;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	StartDate     time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate       time.Time  `gorm:"not null" json:"end_date"`
	DepartmentID  *uint      `gorm:"index" json:"department_id,omitempty"`
	Status        Status     `gorm:"size:16;not null;index" json:"status"`
	CreatorID     uint       `gorm:"not null;index" json:"creator_id"`
	ApproverID    *uint      `json:"approver_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ReviewComment string     `gorm:"type:text" json:"review_comment,omitempty"`
	Version       uint       `gorm:"not null" json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Items        []ScheduleItem       `gorm:"-" json:"items"`
	History      []audit.HistoryEntry `gorm:"-" json:"history,omitempty"`
	NextStatuses []Status             `gorm:"-" json:"next_statuses,omitempty"`
}

// ScheduleItem is one entry of a schedule. Times are "HH:MM".
type ScheduleItem struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ScheduleID   uint      `gorm:"not null;index" json:"schedule_id"`
	Date         time.Time `gorm:"not null" json:"date"`
	StartTime    string    `gorm:"size:5" json:"start_time"`
	EndTime      string    `gorm:"size:5" json:"end_time"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Location     string    `gorm:"size:255" json:"location"`
	Host         string    `gorm:"size:255" json:"host"`
	Participants string    `gorm:"type:text" json:"participants"`
}

func Models() []any {
	return []any{&Schedule{}, &ScheduleItem{}, &audit.HistoryEntry{}}
}
