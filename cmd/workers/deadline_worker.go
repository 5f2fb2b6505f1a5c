package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/app"
	"document-portal/portal-backend/internal/config"
	"document-portal/portal-backend/internal/jobs"
)

const (
	jobDeadlineReminders = "deadline-reminders"
	jobSearchReindex     = "search-reindex"
)

func workerJobs(portal *app.App, cfg config.WorkersConfig, log *zap.Logger) []jobs.Job {
	list := []jobs.Job{{
		Name:    jobDeadlineReminders,
		Spec:    cfg.ReminderSchedule,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := portal.Documents.RemindDueDocuments(ctx, cfg.ReminderWindow)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("Deadline reminders sent", zap.Int("documents", n))
			}
			return nil
		},
	}}
	if portal.Config.Search.Enabled {
		list = append(list, jobs.Job{
			Name:    jobSearchReindex,
			Spec:    cfg.ReindexSchedule,
			Timeout: 30 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := portal.Documents.Reindex(ctx)
				return err
			},
		})
	}
	return list
}
