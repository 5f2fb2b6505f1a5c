package schedules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications"
)

const what = "schedule"

// Directory lists the reviewers to notify of a new schedule
type Directory interface {
	GetDepartment(ctx context.Context, id uint) (*directory.Department, error)
	ListUsersWithRole(ctx context.Context, role access.Role, departmentID *uint) ([]directory.User, error)
}

type Service struct {
	repo     Repository
	dir      Directory
	notifier notifications.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n notifications.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, dir Directory, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ItemRequest struct {
	Date         time.Time `json:"date" binding:"required"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	Content      string    `json:"content" binding:"required"`
	Location     string    `json:"location"`
	Host         string    `json:"host"`
	Participants string    `json:"participants"`
}

type CreateRequest struct {
	Title        string        `json:"title" binding:"required"`
	Description  string        `json:"description"`
	StartDate    time.Time     `json:"start_date" binding:"required"`
	EndDate      time.Time     `json:"end_date" binding:"required"`
	DepartmentID *uint         `json:"department_id"`
	Items        []ItemRequest `json:"items"`
}

// UpdateRequest patches a pending schedule. Items, when present, replace
// the existing rows.
type UpdateRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	StartDate   *time.Time     `json:"start_date"`
	EndDate     *time.Time     `json:"end_date"`
	Items       *[]ItemRequest `json:"items"`
	Version     uint           `json:"version"`
}

// ReviewRequest decides a pending schedule; Status is approved or rejected.
type ReviewRequest struct {
	Status   Status `json:"status" binding:"required"`
	Comments string `json:"comments"`
	Version  uint   `json:"version"`
}

func (s *Service) Create(ctx context.Context, actor access.Actor, req CreateRequest) (*Schedule, error) {
	if err := access.Check(access.ResourceSchedule, access.OpCreate, actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	if err := checkPeriod(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	items, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}
	deptID := req.DepartmentID
	if deptID == nil {
		deptID = actor.DepartmentID
	} else if _, err := s.dir.GetDepartment(ctx, *deptID); err != nil {
		return nil, fmt.Errorf("%w: unknown department %d", apperr.ErrValidation, *deptID)
	}

	sched := &Schedule{
		Title:        title,
		Description:  strings.TrimSpace(req.Description),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		DepartmentID: deptID,
		Status:       StatusPending,
		CreatorID:    actor.ID,
	}
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		now := s.now()
		sched.CreatedAt = now
		if err := tx.Create(ctx, sched); err != nil {
			return err
		}
		if err := tx.ReplaceItems(ctx, sched.ID, items); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.KindSchedule, sched.ID, access.OpCreate, audit.ActionScheduleRegister, actor, now).
			Transition("", string(StatusPending))
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	sched.Items = items

	reviewers, err := directory.ReviewerIDs(ctx, s.dir, deptID)
	if err != nil {
		s.logger.Warn("Failed to list reviewers", zap.Error(err))
	}
	notifications.Dispatch(ctx, s.notifier, s.logger, notifications.Event{
		UserIDs:    notifications.Without(reviewers, actor.ID),
		Type:       notifications.TypeApprovalRequest,
		Title:      "Lịch công tác chờ phê duyệt",
		Message:    sched.Title,
		EntityKind: string(audit.KindSchedule),
		EntityID:   sched.ID,
	})
	s.logger.Info("Schedule registered", zap.Uint("schedule_id", sched.ID), zap.Uint("creator_id", actor.ID))
	return sched, nil
}

// Get returns the schedule with its items and history.
func (s *Service) Get(ctx context.Context, id uint) (*Schedule, error) {
	sched, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Items, err = s.repo.ListItems(ctx, id); err != nil {
		return nil, err
	}
	if sched.History, err = s.repo.ListHistory(ctx, id); err != nil {
		return nil, err
	}
	sched.NextStatuses = flow.GetAllowedTransitions(sched.Status)
	return sched, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Schedule, int64, error) {
	if f.Status != "" && !flow.IsKnown(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f)
}

func (s *Service) History(ctx context.Context, id uint) ([]audit.HistoryEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, id)
}

// Update is allowed to the creator while the schedule is pending. Edits are
// not audited.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uint, req UpdateRequest) (*Schedule, error) {
	var items []ScheduleItem
	if req.Items != nil {
		var err error
		if items, err = buildItems(*req.Items); err != nil {
			return nil, err
		}
	}

	var sched *Schedule
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if sched, err = tx.Get(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceSchedule, access.OpUpdate, actor); err != nil {
			return err
		}
		if actor.ID != sched.CreatorID {
			return fmt.Errorf("%w: only the creator may change this schedule", apperr.ErrForbidden)
		}
		if sched.Status != StatusPending {
			return fmt.Errorf("%w: schedule is %s, expected pending", apperr.ErrInvalidTransition, sched.Status)
		}
		if err := apperr.CheckVersion(what, id, sched.Version, req.Version); err != nil {
			return err
		}

		if req.Title != nil {
			t := strings.TrimSpace(*req.Title)
			if t == "" {
				return fmt.Errorf("%w: title is required", apperr.ErrValidation)
			}
			sched.Title = t
		}
		if req.Description != nil {
			sched.Description = strings.TrimSpace(*req.Description)
		}
		if req.StartDate != nil {
			sched.StartDate = *req.StartDate
		}
		if req.EndDate != nil {
			sched.EndDate = *req.EndDate
		}
		if err := checkPeriod(sched.StartDate, sched.EndDate); err != nil {
			return err
		}
		if err := tx.Save(ctx, sched); err != nil {
			return err
		}
		if req.Items != nil {
			return tx.ReplaceItems(ctx, id, items)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sched.Items, err = s.repo.ListItems(ctx, id); err != nil {
		return nil, err
	}
	return sched, nil
}

// Review applies an approve or reject decision to a pending schedule.
func (s *Service) Review(ctx context.Context, actor access.Actor, id uint, req ReviewRequest) (*Schedule, error) {
	op := access.OpApprove
	switch req.Status {
	case StatusApproved:
	case StatusRejected:
		op = access.OpReject
	default:
		return nil, fmt.Errorf("%w: status must be approved or rejected", apperr.ErrValidation)
	}

	var sched *Schedule
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if sched, err = tx.Get(ctx, id); err != nil {
			return err
		}
		if err := access.Check(access.ResourceSchedule, op, actor); err != nil {
			return err
		}
		from := sched.Status
		if !flow.CanTransition(from, req.Status) {
			return fmt.Errorf("%w: schedule cannot move from %s to %s", apperr.ErrInvalidTransition, from, req.Status)
		}
		if err := apperr.CheckVersion(what, id, sched.Version, req.Version); err != nil {
			return err
		}

		now := s.now()
		comment := strings.TrimSpace(req.Comments)
		tier := access.Tier(access.ResourceSchedule, op, actor)
		action := audit.RejectionAction(tier)
		sched.Status = req.Status
		sched.ReviewComment = comment
		if req.Status == StatusApproved {
			approver := actor.ID
			sched.ApproverID = &approver
			sched.ApprovedAt = &now
			action = audit.ApprovalAction(tier)
		}
		if err := tx.Save(ctx, sched); err != nil {
			return err
		}
		entry := audit.NewEntry(audit.KindSchedule, id, op, action, actor, now).
			Transition(string(from), string(req.Status)).
			Describe(comment)
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	ev := notifications.Event{
		UserIDs:    notifications.Without([]uint{sched.CreatorID}, actor.ID),
		Type:       notifications.TypeApproved,
		Title:      "Lịch công tác đã được phê duyệt",
		Message:    sched.Title,
		EntityKind: string(audit.KindSchedule),
		EntityID:   sched.ID,
	}
	if sched.Status == StatusRejected {
		ev.Type = notifications.TypeRejected
		ev.Title = "Lịch công tác bị từ chối"
		if sched.ReviewComment != "" {
			ev.Message = sched.Title + ": " + sched.ReviewComment
		}
	}
	notifications.Dispatch(ctx, s.notifier, s.logger, ev)
	return sched, nil
}

// Delete removes a pending schedule. Admins may delete in any state.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	return s.repo.Transaction(ctx, func(tx Repository) error {
		sched, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.ResourceSchedule, access.OpDelete, actor); err != nil {
			return err
		}
		if actor.ID != sched.CreatorID && !actor.IsAdmin() {
			return fmt.Errorf("%w: only the creator may delete this schedule", apperr.ErrForbidden)
		}
		if sched.Status != StatusPending && !actor.IsAdmin() {
			return fmt.Errorf("%w: schedule is %s and can no longer be deleted", apperr.ErrInvalidTransition, sched.Status)
		}
		return tx.Delete(ctx, id)
	})
}

func checkPeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", apperr.ErrValidation)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date is before start_date", apperr.ErrValidation)
	}
	return nil
}

func buildItems(reqs []ItemRequest) ([]ScheduleItem, error) {
	items := make([]ScheduleItem, 0, len(reqs))
	for i, r := range reqs {
		content := strings.TrimSpace(r.Content)
		if content == "" || r.Date.IsZero() {
			return nil, fmt.Errorf("%w: item %d needs a date and content", apperr.ErrValidation, i+1)
		}
		for _, t := range []string{r.StartTime, r.EndTime} {
			if t == "" {
				continue
			}
			if _, err := time.Parse("15:04", t); err != nil {
				return nil, fmt.Errorf("%w: item %d has invalid time %q", apperr.ErrValidation, i+1, t)
			}
		}
		items = append(items, ScheduleItem{
			Date:         r.Date,
			StartTime:    r.StartTime,
			EndTime:      r.EndTime,
			Content:      content,
			Location:     strings.TrimSpace(r.Location),
			Host:         strings.TrimSpace(r.Host),
			Participants: strings.TrimSpace(r.Participants),
		})
	}
	return items, nil
}
