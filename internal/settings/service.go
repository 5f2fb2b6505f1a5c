package settings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/notifications"
)

var knownTypes = map[string]bool{
	notifications.TypeApprovalRequest: true,
	notifications.TypeApproved:        true,
	notifications.TypeRejected:        true,
	notifications.TypeIssued:          true,
	notifications.TypeReceived:        true,
	notifications.TypeAssigned:        true,
	notifications.TypeCompleted:       true,
	notifications.TypeResponse:        true,
	notifications.TypeDeadline:        true,
	notifications.TypeSchedule:        true,
}

type UpdateNotificationsRequest struct {
	Email      *bool     `json:"email"`
	SMS        *bool     `json:"sms"`
	MutedTypes *[]string `json:"muted_types"`
}

type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) GetNotifications(ctx context.Context, userID uint) (*NotificationPreferences, error) {
	rows, err := s.repo.GetNotifications(ctx, []uint{userID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return defaultPreferences(userID), nil
	}
	return &rows[0], nil
}

func (s *Service) UpdateNotifications(ctx context.Context, userID uint, req UpdateNotificationsRequest) (*NotificationPreferences, error) {
	prefs, err := s.GetNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		prefs.Email = *req.Email
	}
	if req.SMS != nil {
		prefs.SMS = *req.SMS
	}
	if req.MutedTypes != nil {
		muted := make([]string, 0, len(*req.MutedTypes))
		seen := make(map[string]bool)
		for _, t := range *req.MutedTypes {
			if !knownTypes[t] {
				return nil, fmt.Errorf("%w: unknown notification type %q", apperr.ErrValidation, t)
			}
			if !seen[t] {
				seen[t] = true
				muted = append(muted, t)
			}
		}
		prefs.MutedTypes = muted
	}
	prefs.UpdatedAt = s.now()
	if err := s.repo.SaveNotifications(ctx, prefs); err != nil {
		return nil, err
	}
	s.logger.Info("Notification preferences updated", zap.Uint("user_id", userID))
	return prefs, nil
}

// OptedOut implements notifications.Preferences.
func (s *Service) OptedOut(ctx context.Context, userIDs []uint, channel, eventType string) (map[uint]bool, error) {
	rows, err := s.repo.GetNotifications(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]bool, len(rows))
	for i := range rows {
		if rows[i].mutes(channel, eventType) {
			out[rows[i].UserID] = true
		}
	}
	return out, nil
}
