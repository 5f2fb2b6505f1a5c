package documents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/notifications"
)

// RemindDueDocuments notifies the assignees of every document in processing
// whose deadline falls within window. Each document is reminded once per
// deadline; reassigning with a new deadline re-arms the reminder.
func (s *Service) RemindDueDocuments(ctx context.Context, window time.Duration) (int, error) {
	now := s.now()
	due, err := s.repo.ListDueIncoming(ctx, now.Add(window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		doc := &due[i]
		assignments, err := s.repo.ListAssignments(ctx, doc.ID)
		if err != nil {
			s.logger.Warn("Failed to load assignments", zap.Uint("id", doc.ID), zap.Error(err))
			continue
		}
		var ids []uint
		for _, a := range assignments {
			if a.Status == AssignmentPending {
				ids = append(ids, a.UserID)
			}
		}
		if doc.AssignedByID != nil {
			ids = append(ids, *doc.AssignedByID)
		}

		title := "Văn bản sắp đến hạn xử lý"
		if doc.Deadline.Before(now) {
			title = "Văn bản đã quá hạn xử lý"
		}
		s.notify(ctx, notifications.Event{
			UserIDs:    ids,
			Type:       notifications.TypeDeadline,
			Title:      title,
			Message:    fmt.Sprintf("%s %s (hạn %s)", doc.Number, doc.Title, doc.Deadline.Format("02/01/2006 15:04")),
			EntityKind: string(audit.KindIncoming),
			EntityID:   doc.ID,
			Urgent:     true,
			Metadata:   map[string]any{"deadline": doc.Deadline},
		})
		if err := s.repo.MarkReminded(ctx, doc.ID, now); err != nil {
			s.logger.Warn("Failed to mark reminder", zap.Uint("id", doc.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("Deadline reminders sent", zap.Int("documents", sent))
	}
	return sent, nil
}
