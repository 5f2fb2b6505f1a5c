package notifications

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types raised by the workflow engine
const (
	TypeApprovalRequest = "approval_request"
	TypeApproved        = "approved"
	TypeRejected        = "rejected"
	TypeIssued          = "issued"
	TypeReceived        = "received"
	TypeAssigned        = "assigned"
	TypeCompleted       = "completed"
	TypeResponse        = "response"
	TypeDeadline        = "deadline"
	TypeSchedule        = "schedule"
)

// Delivery channels
const (
	ChannelInApp     = "in_app"
	ChannelWebSocket = "websocket"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
)

// Delivery statuses
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Notification is an in-app message for one user
type Notification struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     uint           `gorm:"not null;index" json:"user_id"`
	Type       string         `gorm:"size:32;not null" json:"type"`
	Title      string         `gorm:"size:255;not null" json:"title"`
	Message    string         `gorm:"type:text" json:"message"`
	EntityKind string         `gorm:"size:16" json:"entity_kind,omitempty"`
	EntityID   uint           `json:"entity_id,omitempty"`
	Urgent     bool           `gorm:"not null;default:false" json:"urgent"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	ReadAt     *time.Time     `gorm:"index" json:"read_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Delivery records one attempt to push a notification over an external channel
type Delivery struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	NotificationID uint      `gorm:"not null;index" json:"notification_id"`
	Channel        string    `gorm:"size:16;not null" json:"channel"`
	Status         string    `gorm:"size:16;not null" json:"status"`
	Error          string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is what producers hand to Notify; it fans out to one row per user.
type Event struct {
	UserIDs    []uint
	Type       string
	Title      string
	Message    string
	EntityKind string
	EntityID   uint
	// Urgent events are also sent by SMS.
	Urgent bool
	// Email requests an email copy in addition to the in-app row.
	Email    bool
	Metadata map[string]any
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Notification{}, &Delivery{}}
}
