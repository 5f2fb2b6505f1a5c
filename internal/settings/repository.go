package settings

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetNotifications(ctx context.Context, userIDs []uint) ([]NotificationPreferences, error)
	SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetNotifications(ctx context.Context, userIDs []uint) ([]NotificationPreferences, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var out []NotificationPreferences
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}
	return out, nil
}

// SaveNotifications upserts the row keyed by user id.
func (r *gormRepository) SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "sms", "muted_types", "updated_at"}),
	}).Create(prefs).Error
	if err != nil {
		return fmt.Errorf("failed to save notification preferences: %w", err)
	}
	return nil
}
