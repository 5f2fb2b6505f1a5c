package settings

import (
	"time"

	"gorm.io/datatypes"

	"document-portal/portal-backend/internal/notifications"
)

// NotificationPreferences controls external delivery for one user. A user
// without a row receives everything.
type NotificationPreferences struct {
	UserID     uint                        `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Email      bool                        `gorm:"not null" json:"email"`
	SMS        bool                        `gorm:"not null" json:"sms"`
	MutedTypes datatypes.JSONSlice[string] `json:"muted_types"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

func defaultPreferences(userID uint) *NotificationPreferences {
	return &NotificationPreferences{UserID: userID, Email: true, SMS: true, MutedTypes: datatypes.JSONSlice[string]{}}
}

// mutes reports whether the preferences silence channel for eventType.
func (p *NotificationPreferences) mutes(channel, eventType string) bool {
	switch channel {
	case notifications.ChannelEmail:
		if !p.Email {
			return true
		}
	case notifications.ChannelSMS:
		if !p.SMS {
			return true
		}
	}
	for _, t := range p.MutedTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

func Models() []any {
	return []any{&NotificationPreferences{}}
}
