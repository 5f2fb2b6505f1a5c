package schedules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/internal/testutil"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ev notifications.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

var (
	opsID = uint(1)

	admin   = access.Actor{ID: 1, Name: "Quản trị", Roles: []access.Role{access.RoleAdmin}}
	manager = access.Actor{ID: 2, Name: "Giám đốc", Roles: []access.Role{access.RoleManager}}
	head    = access.Actor{ID: 3, Name: "Trưởng phòng", DepartmentID: &opsID, Roles: []access.Role{access.RoleDepartmentHead}}
	staff   = access.Actor{ID: 5, Name: "Chuyên viên", DepartmentID: &opsID, Roles: []access.Role{access.RoleStaff}}
	clerk   = access.Actor{ID: 6, Name: "Văn thư", Roles: []access.Role{access.RoleClerk}}

	testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *MockNotifier) {
	t.Helper()
	db := testutil.NewDB(t, append(directory.Models(), Models()...)...)
	require.NoError(t, db.Create(&directory.Department{ID: opsID, Name: "Operations", Code: "OPS"}).Error)
	for _, a := range []access.Actor{admin, manager, head, staff, clerk} {
		u := directory.User{ID: a.ID, Username: a.Name, FullName: a.Name, PasswordHash: "-", DepartmentID: a.DepartmentID, Active: true}
		for _, r := range a.Roles {
			u.Roles = append(u.Roles, directory.UserRole{Role: r})
		}
		require.NoError(t, db.Create(&u).Error)
	}

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	svc := NewService(NewRepository(db), directory.NewRepository(db), zap.NewNop(),
		WithNotifier(notifier),
		WithClock(func() time.Time { return testNow }))
	return svc, notifier
}

func weekRequest() CreateRequest {
	monday := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	return CreateRequest{
		Title:     "Lịch công tác tuần 12",
		StartDate: monday,
		EndDate:   monday.AddDate(0, 0, 6),
		Items: []ItemRequest{
			{Date: monday, StartTime: "08:00", EndTime: "10:00", Content: "Giao ban đầu tuần", Location: "Phòng họp 1"},
			{Date: monday.AddDate(0, 0, 2), StartTime: "14:00", Content: "Làm việc với Sở Nội vụ"},
		},
	}
}

func TestCreateRegistersPendingSchedule(t *testing.T) {
	svc, notifier := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sched.Status)
	assert.Equal(t, uint(1), sched.Version)
	require.NotNil(t, sched.DepartmentID)
	assert.Equal(t, opsID, *sched.DepartmentID)
	assert.Len(t, sched.Items, 2)

	got, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Giao ban đầu tuần", got.Items[0].Content)
	require.Len(t, got.History, 1)
	assert.Equal(t, audit.ActionScheduleRegister, got.History[0].Action)
	assert.Equal(t, string(StatusPending), got.History[0].ToStatus)
	assert.ElementsMatch(t, []Status{StatusApproved, StatusRejected}, got.NextStatuses)

	require.Len(t, notifier.Calls, 1)
	ev := notifier.Calls[0].Arguments.Get(1).(notifications.Event)
	assert.Equal(t, notifications.TypeApprovalRequest, ev.Type)
	assert.ElementsMatch(t, []uint{head.ID, manager.ID}, ev.UserIDs)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"empty title", func(r *CreateRequest) { r.Title = "  " }},
		{"end before start", func(r *CreateRequest) { r.EndDate = r.StartDate.AddDate(0, 0, -1) }},
		{"item without content", func(r *CreateRequest) { r.Items[0].Content = "" }},
		{"bad item time", func(r *CreateRequest) { r.Items[1].StartTime = "25:99" }},
		{"unknown department", func(r *CreateRequest) { d := uint(99); r.DepartmentID = &d }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := weekRequest()
			tt.mutate(&req)
			_, err := svc.Create(ctx, staff, req)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestReviewApproveStampsApprover(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sched, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)

	approved, err := svc.Review(ctx, head, sched.ID, ReviewRequest{Status: StatusApproved, Comments: "Đồng ý"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, head.ID, *approved.ApproverID)
	require.NotNil(t, approved.ApprovedAt)
	assert.True(t, approved.ApprovedAt.Equal(testNow))
	assert.Equal(t, uint(2), approved.Version)

	history, err := svc.History(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Trưởng phòng phê duyệt", history[1].Action)
	assert.Equal(t, "Đồng ý", history[1].Description)

	_, err = svc.Review(ctx, manager, sched.ID, ReviewRequest{Status: StatusRejected})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "got %v", err)
}

func TestReviewReject(t *testing.T) {
	svc, notifier := newTestService(t)
	ctx := context.Background()
	sched, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)

	rejected, err := svc.Review(ctx, manager, sched.ID, ReviewRequest{Status: StatusRejected, Comments: "Trùng lịch"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Nil(t, rejected.ApproverID)
	assert.Nil(t, rejected.ApprovedAt)
	assert.Equal(t, "Trùng lịch", rejected.ReviewComment)

	history, err := svc.History(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Lãnh đạo từ chối", history[1].Action)

	last := notifier.Calls[len(notifier.Calls)-1].Arguments.Get(1).(notifications.Event)
	assert.Equal(t, notifications.TypeRejected, last.Type)
	assert.Equal(t, []uint{staff.ID}, last.UserIDs)
}

func TestReviewRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sched, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)

	for _, actor := range []access.Actor{staff, clerk} {
		for _, st := range []Status{StatusApproved, StatusRejected} {
			_, err := svc.Review(ctx, actor, sched.ID, ReviewRequest{Status: st})
			assert.True(t, errors.Is(err, apperr.ErrForbidden), "%s %s: got %v", actor.Name, st, err)
		}
	}

	_, err = svc.Review(ctx, head, sched.ID, ReviewRequest{Status: StatusPending})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.Review(ctx, head, sched.ID, ReviewRequest{Status: StatusApproved, Version: 7})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.Review(ctx, head, 404, ReviewRequest{Status: StatusApproved})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	history, err := svc.History(ctx, sched.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdateOnlyByCreatorWhilePending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sched, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)

	title := "Lịch công tác tuần 12 (điều chỉnh)"
	items := []ItemRequest{{Date: sched.StartDate, Content: "Họp chi bộ"}}
	updated, err := svc.Update(ctx, staff, sched.ID, UpdateRequest{Title: &title, Items: &items, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, uint(2), updated.Version)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "Họp chi bộ", updated.Items[0].Content)

	_, err = svc.Update(ctx, staff, sched.ID, UpdateRequest{Title: &title, Version: 1})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.Update(ctx, manager, sched.ID, UpdateRequest{Title: &title})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = svc.Review(ctx, manager, sched.ID, ReviewRequest{Status: StatusApproved})
	require.NoError(t, err)
	_, err = svc.Update(ctx, staff, sched.ID, UpdateRequest{Title: &title})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	history, err := svc.History(ctx, sched.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pending, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)
	assert.True(t, errors.Is(svc.Delete(ctx, head, pending.ID), apperr.ErrForbidden))
	require.NoError(t, svc.Delete(ctx, staff, pending.ID))
	_, err = svc.Get(ctx, pending.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	approved, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)
	_, err = svc.Review(ctx, manager, approved.ID, ReviewRequest{Status: StatusApproved})
	require.NoError(t, err)
	assert.True(t, errors.Is(svc.Delete(ctx, staff, approved.ID), apperr.ErrInvalidTransition))
	require.NoError(t, svc.Delete(ctx, admin, approved.ID))
}

func TestList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, staff, weekRequest())
	require.NoError(t, err)
	req := weekRequest()
	req.StartDate = req.StartDate.AddDate(0, 1, 0)
	req.EndDate = req.EndDate.AddDate(0, 1, 0)
	req.Items = nil
	_, err = svc.Create(ctx, clerk, req)
	require.NoError(t, err)
	_, err = svc.Review(ctx, manager, a.ID, ReviewRequest{Status: StatusApproved})
	require.NoError(t, err)

	out, total, err := svc.List(ctx, ListFilter{Status: StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, out, 1)
	assert.Equal(t, a.ID, out[0].ID)

	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	_, total, err = svc.List(ctx, ListFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, _, err = svc.List(ctx, ListFilter{Status: "archived"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
