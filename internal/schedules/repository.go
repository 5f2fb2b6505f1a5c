package schedules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	Create(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id uint) (*Schedule, error)
	List(ctx context.Context, filter ListFilter) ([]Schedule, int64, error)
	Save(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, id uint) error

	ListItems(ctx context.Context, scheduleID uint) ([]ScheduleItem, error)
	ReplaceItems(ctx context.Context, scheduleID uint, items []ScheduleItem) error

	AppendHistory(ctx context.Context, entry *audit.HistoryEntry) error
	ListHistory(ctx context.Context, scheduleID uint) ([]audit.HistoryEntry, error)
}

// ListFilter narrows List. From/To select schedules overlapping the range.
type ListFilter struct {
	Status       Status
	DepartmentID uint
	CreatorID    uint
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) Create(ctx context.Context, s *Schedule) error {
	s.Version = 1
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *gormRepository) Get(ctx context.Context, id uint) (*Schedule, error) {
	var s Schedule
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: schedule %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %d: %w", id, err)
	}
	return &s, nil
}

func (r *gormRepository) List(ctx context.Context, f ListFilter) ([]Schedule, int64, error) {
	q := r.db.WithContext(ctx).Model(&Schedule{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DepartmentID != 0 {
		q = q.Where("department_id = ?", f.DepartmentID)
	}
	if f.CreatorID != 0 {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if f.From != nil {
		q = q.Where("end_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("start_date < ?", *f.To)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count schedules: %w", err)
	}
	limit := f.PageSize
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	var out []Schedule
	err := q.Order("start_date DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list schedules: %w", err)
	}
	return out, total, nil
}

// Save writes s guarded by its version and bumps it.
func (r *gormRepository) Save(ctx context.Context, s *Schedule) error {
	expected := s.Version
	s.Version = expected + 1
	res := r.db.WithContext(ctx).Model(s).
		Where("version = ?", expected).
		Select("*").Omit("ID", "CreatedAt").
		Updates(s)
	if res.Error != nil {
		s.Version = expected
		return fmt.Errorf("failed to save schedule %d: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.Version = expected
		return fmt.Errorf("%w: schedule %d was modified concurrently (version %d)", apperr.ErrConflict, s.ID, expected)
	}
	return nil
}

func (r *gormRepository) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("schedule_id = ?", id).Delete(&ScheduleItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete schedule items: %w", err)
	}
	res := db.Delete(&Schedule{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: schedule %d", apperr.ErrNotFound, id)
	}
	return nil
}

func (r *gormRepository) ListItems(ctx context.Context, scheduleID uint) ([]ScheduleItem, error) {
	var out []ScheduleItem
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("date, start_time, id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule items: %w", err)
	}
	return out, nil
}

func (r *gormRepository) ReplaceItems(ctx context.Context, scheduleID uint, items []ScheduleItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("schedule_id = ?", scheduleID).Delete(&ScheduleItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear schedule items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ID = 0
		items[i].ScheduleID = scheduleID
	}
	if err := db.Create(&items).Error; err != nil {
		return fmt.Errorf("failed to create schedule items: %w", err)
	}
	return nil
}

func (r *gormRepository) AppendHistory(ctx context.Context, entry *audit.HistoryEntry) error {
	return audit.Append(ctx, r.db, entry)
}

func (r *gormRepository) ListHistory(ctx context.Context, scheduleID uint) ([]audit.HistoryEntry, error) {
	return audit.List(ctx, r.db, audit.KindSchedule, scheduleID)
}
