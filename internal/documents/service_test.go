package documents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/internal/testutil"
	"document-portal/portal-backend/pkg/search"
	"document-portal/portal-backend/pkg/storage"
)

// MockNotifier records workflow events
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ev notifications.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockNotifier) events(typ string) []notifications.Event {
	var out []notifications.Event
	for _, call := range m.Calls {
		ev := call.Arguments.Get(1).(notifications.Event)
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// MockIndexer is a mock implementation of the Indexer interface
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) Put(ctx context.Context, doc search.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockIndexer) Delete(ctx context.Context, kind string, id uint) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

func (m *MockIndexer) Search(ctx context.Context, q search.Query) ([]search.Document, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]search.Document), args.Error(1)
}

var (
	opsID = uint(1)

	admin    = access.Actor{ID: 1, Name: "Quản trị", Roles: []access.Role{access.RoleAdmin}}
	manager  = access.Actor{ID: 2, Name: "Giám đốc", Roles: []access.Role{access.RoleManager}}
	head     = access.Actor{ID: 3, Name: "Trưởng phòng Điều hành", DepartmentID: &opsID, Roles: []access.Role{access.RoleDepartmentHead}}
	assignee = access.Actor{ID: 4, Name: "Chuyên viên 4", DepartmentID: &opsID, Roles: []access.Role{access.RoleStaff}}
	creator  = access.Actor{ID: 5, Name: "Chuyên viên 5", DepartmentID: &opsID, Roles: []access.Role{access.RoleStaff}}
	clerk    = access.Actor{ID: 6, Name: "Văn thư", Roles: []access.Role{access.RoleClerk}}
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	repo     Repository
	svc      *Service
	notifier *MockNotifier
	blobs    *storage.MemoryClient
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := testutil.NewDB(t, append(directory.Models(), Models()...)...)
	seedDirectory(t, db)

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	blobs := storage.NewMemoryClient()

	repo := NewRepository(db)
	base := []Option{
		WithNotifier(notifier),
		WithAttachmentStore(NewAttachmentStore(blobs, "documents", time.Minute)),
		WithClock(func() time.Time { return testNow }),
	}
	svc := NewService(repo, directory.NewRepository(db), zap.NewNop(), append(base, opts...)...)
	return &fixture{db: db, repo: repo, svc: svc, notifier: notifier, blobs: blobs}
}

func seedDirectory(t *testing.T, db *gorm.DB) {
	t.Helper()
	depts := []directory.Department{
		{ID: opsID, Name: "Operations", Code: "OPS"},
		{ID: 2, Name: "Administration", Code: "ADM"},
	}
	require.NoError(t, db.Create(&depts).Error)

	actors := []access.Actor{admin, manager, head, assignee, creator, clerk}
	for _, a := range actors {
		u := directory.User{
			ID:           a.ID,
			Username:     strings.ToLower(strings.ReplaceAll(a.Name, " ", ".")),
			FullName:     a.Name,
			PasswordHash: "-",
			DepartmentID: a.DepartmentID,
			Active:       true,
		}
		for _, r := range a.Roles {
			u.Roles = append(u.Roles, directory.UserRole{Role: r})
		}
		require.NoError(t, db.Create(&u).Error)
	}
}

func (f *fixture) outgoingDraft(t *testing.T, id uint, by access.Actor) *OutgoingDocument {
	t.Helper()
	doc := &OutgoingDocument{
		ID:           id,
		Title:        "Công văn về kế hoạch công tác quý II",
		DocumentType: "Công văn",
		DepartmentID: by.DepartmentID,
		Approval:     Approval{Status: StatusDraft, CreatorID: by.ID},
	}
	require.NoError(t, f.repo.CreateOutgoing(context.Background(), doc))
	return doc
}

func (f *fixture) actions(t *testing.T, kind audit.Kind, id uint) []string {
	t.Helper()
	entries, err := f.repo.ListHistory(context.Background(), kind, id)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func TestOutgoingApprovalScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	doc, err := f.svc.SubmitOutgoing(ctx, creator, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, doc.Status)

	doc, err = f.svc.ApproveOutgoing(ctx, head, 10, ReviewRequest{Comment: "Đồng ý"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, doc.Status)
	require.NotNil(t, doc.ApproverID)
	assert.Equal(t, uint(3), *doc.ApproverID)
	require.NotNil(t, doc.ApprovedAt)
	assert.True(t, doc.ApprovedAt.Equal(testNow))

	assert.Equal(t, []string{"Gửi phê duyệt", "Trưởng phòng phê duyệt"}, f.actions(t, audit.KindOutgoing, 10))

	entries, err := f.svc.History(ctx, audit.KindOutgoing, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Đồng ý", entries[1].Description)
	assert.Equal(t, string(StatusPendingApproval), entries[1].FromStatus)
	assert.Equal(t, string(StatusApproved), entries[1].ToStatus)
	assert.Equal(t, uint(3), entries[1].ActorID)

	requests := f.notifier.events(notifications.TypeApprovalRequest)
	require.Len(t, requests, 1)
	assert.ElementsMatch(t, []uint{3, 2}, requests[0].UserIDs)
}

func TestIssueAssignsNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	_, err := f.svc.SubmitOutgoing(ctx, creator, 10)
	require.NoError(t, err)
	_, err = f.svc.ApproveOutgoing(ctx, manager, 10, ReviewRequest{})
	require.NoError(t, err)

	_, err = f.svc.IssueOutgoing(ctx, creator, 10, IssueRequest{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	doc, err := f.svc.IssueOutgoing(ctx, clerk, 10, IssueRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, doc.Status)
	require.NotNil(t, doc.Number)
	assert.Equal(t, "10/2025/CV", *doc.Number)
	require.NotNil(t, doc.SentAt)

	assert.Equal(t,
		[]string{"Gửi phê duyệt", "Lãnh đạo phê duyệt", "Phát hành văn bản"},
		f.actions(t, audit.KindOutgoing, 10))

	// sent is terminal
	_, err = f.svc.SubmitOutgoing(ctx, creator, 10)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestRejectReturnsToDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	_, err := f.svc.SubmitOutgoing(ctx, creator, 10)
	require.NoError(t, err)
	doc, err := f.svc.RejectOutgoing(ctx, admin, 10, ReviewRequest{Comment: "Sửa lại trích yếu"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Nil(t, doc.ApproverID)
	assert.Nil(t, doc.ApprovedAt)

	entries, err := f.repo.ListHistory(ctx, audit.KindOutgoing, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Quản trị viên từ chối", entries[1].Action)
	assert.Equal(t, "Sửa lại trích yếu", entries[1].Description)

	rejected := f.notifier.events(notifications.TypeRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, []uint{5}, rejected[0].UserIDs)

	// the draft can be edited and resubmitted
	title := "Công văn (sửa)"
	_, err = f.svc.UpdateOutgoing(ctx, creator, 10, UpdateOutgoingRequest{Title: &title})
	require.NoError(t, err)
	_, err = f.svc.SubmitOutgoing(ctx, creator, 10)
	require.NoError(t, err)
}

func TestReviewForbiddenOutsideRoleSet(t *testing.T) {
	outsiders := []access.Actor{creator, clerk}

	tests := []struct {
		name   string
		kind   audit.Kind
		setup  func(t *testing.T, f *fixture) uint
		review func(f *fixture, actor access.Actor, id uint) error
	}{
		{
			name: "outgoing approve",
			kind: audit.KindOutgoing,
			setup: func(t *testing.T, f *fixture) uint {
				f.outgoingDraft(t, 10, creator)
				_, err := f.svc.SubmitOutgoing(context.Background(), creator, 10)
				require.NoError(t, err)
				return 10
			},
			review: func(f *fixture, a access.Actor, id uint) error {
				_, err := f.svc.ApproveOutgoing(context.Background(), a, id, ReviewRequest{})
				return err
			},
		},
		{
			name: "outgoing reject",
			kind: audit.KindOutgoing,
			setup: func(t *testing.T, f *fixture) uint {
				f.outgoingDraft(t, 10, creator)
				_, err := f.svc.SubmitOutgoing(context.Background(), creator, 10)
				require.NoError(t, err)
				return 10
			},
			review: func(f *fixture, a access.Actor, id uint) error {
				_, err := f.svc.RejectOutgoing(context.Background(), a, id, ReviewRequest{})
				return err
			},
		},
		{
			name: "internal approve",
			kind: audit.KindInternal,
			setup: func(t *testing.T, f *fixture) uint {
				return f.pendingInternal(t)
			},
			review: func(f *fixture, a access.Actor, id uint) error {
				_, err := f.svc.ApproveInternal(context.Background(), a, id, ReviewRequest{})
				return err
			},
		},
		{
			name: "internal reject",
			kind: audit.KindInternal,
			setup: func(t *testing.T, f *fixture) uint {
				return f.pendingInternal(t)
			},
			review: func(f *fixture, a access.Actor, id uint) error {
				_, err := f.svc.RejectInternal(context.Background(), a, id, ReviewRequest{})
				return err
			},
		},
		{
			name: "response approve",
			kind: audit.KindResponse,
			setup: func(t *testing.T, f *fixture) uint {
				return f.pendingResponse(t).ID
			},
			review: func(f *fixture, a access.Actor, id uint) error {
				_, err := f.svc.ApproveResponse(context.Background(), a, id, ReviewRequest{})
				return err
			},
		},
		{
			name: "response reject",
			kind: audit.KindResponse,
			setup: func(t *testing.T, f *fixture) uint {
				return f.pendingResponse(t).ID
			},
			review: func(f *fixture, a access.Actor, id uint) error {
				_, err := f.svc.RejectResponse(context.Background(), a, id, ReviewRequest{})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := tt.setup(t, f)
			before := f.actions(t, tt.kind, id)

			for _, a := range outsiders {
				err := tt.review(f, a, id)
				assert.ErrorIs(t, err, apperr.ErrForbidden, "actor %d", a.ID)
			}
			assert.Equal(t, before, f.actions(t, tt.kind, id))
		})
	}
}

func TestSubmitOwnerOnly(t *testing.T) {
	f := newFixture(t)
	f.outgoingDraft(t, 10, creator)

	_, err := f.svc.SubmitOutgoing(context.Background(), assignee, 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.SubmitOutgoing(context.Background(), creator, 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteOnlyDraftUnlessAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)
	_, err := f.svc.SubmitOutgoing(ctx, creator, 10)
	require.NoError(t, err)

	err = f.svc.DeleteOutgoing(ctx, creator, 10)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	err = f.svc.DeleteOutgoing(ctx, assignee, 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, f.svc.DeleteOutgoing(ctx, admin, 10))
	_, err = f.svc.GetOutgoing(ctx, 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.outgoingDraft(t, 11, creator)
	require.NoError(t, f.svc.DeleteOutgoing(ctx, creator, 11))
}

func TestHistoryGrowsByOnePerTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	steps := []func() error{
		func() error { _, err := f.svc.SubmitOutgoing(ctx, creator, 10); return err },
		func() error { _, err := f.svc.RejectOutgoing(ctx, head, 10, ReviewRequest{}); return err },
		func() error { _, err := f.svc.SubmitOutgoing(ctx, creator, 10); return err },
		func() error { _, err := f.svc.ApproveOutgoing(ctx, head, 10, ReviewRequest{}); return err },
		func() error { _, err := f.svc.IssueOutgoing(ctx, clerk, 10, IssueRequest{Number: "15/CV-OPS"}); return err },
	}
	for i, step := range steps {
		require.NoError(t, step())
		assert.Len(t, f.actions(t, audit.KindOutgoing, 10), i+1)
	}

	// a failed transition appends nothing
	_, err := f.svc.ApproveOutgoing(ctx, head, 10, ReviewRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Len(t, f.actions(t, audit.KindOutgoing, 10), len(steps))
}

func TestVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	a, err := f.repo.GetOutgoing(ctx, 10)
	require.NoError(t, err)
	b, err := f.repo.GetOutgoing(ctx, 10)
	require.NoError(t, err)

	a.Title = "first writer"
	require.NoError(t, f.repo.SaveOutgoing(ctx, a))
	assert.Equal(t, uint(2), a.Version)

	b.Title = "second writer"
	err = f.repo.SaveOutgoing(ctx, b)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, uint(1), b.Version)

	stored, err := f.repo.GetOutgoing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Title)

	title := "stale edit"
	_, err = f.svc.UpdateOutgoing(ctx, creator, 10, UpdateOutgoingRequest{Title: &title, Version: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

// Incoming

func (f *fixture) assignedIncoming(t *testing.T) *IncomingDocument {
	t.Helper()
	ctx := context.Background()
	doc, err := f.svc.CreateIncoming(ctx, clerk, CreateIncomingRequest{
		Number: "IN-001",
		Title:  "Công văn đề nghị báo cáo tình hình",
		Sender: "Sở Nội vụ",
	})
	require.NoError(t, err)
	deadline := testNow.Add(48 * time.Hour)
	doc, err = f.svc.AssignIncoming(ctx, manager, doc.ID, AssignRequest{
		Department: "Operations",
		UserIDs:    []uint{4},
		Deadline:   &deadline,
		Comments:   "Giao phòng Điều hành xử lý",
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) pendingResponse(t *testing.T) *DocumentResponse {
	t.Helper()
	doc := f.assignedIncoming(t)
	resp, err := f.svc.CreateResponse(context.Background(), assignee, doc.ID, CreateResponseRequest{Content: "Đã hoàn thành báo cáo"})
	require.NoError(t, err)
	return resp
}

func TestIncomingAssignScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.CreateIncoming(ctx, clerk, CreateIncomingRequest{Number: "IN-001", Title: "Công văn đến", Priority: PriorityUrgent})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, doc.Status)

	received := f.notifier.events(notifications.TypeReceived)
	require.Len(t, received, 1)
	assert.Equal(t, []uint{2}, received[0].UserIDs)
	assert.True(t, received[0].Urgent)

	doc, err = f.svc.AssignIncoming(ctx, manager, doc.ID, AssignRequest{Department: "Operations", UserIDs: []uint{4}})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, doc.Status)
	require.NotNil(t, doc.AssignedDepartmentID)
	assert.Equal(t, opsID, *doc.AssignedDepartmentID)

	loaded, err := f.svc.GetIncoming(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Assignments, 1)
	assert.Equal(t, uint(4), loaded.Assignments[0].UserID)
	assert.Equal(t, uint(2), loaded.Assignments[0].AssignedByID)
	assert.Equal(t, AssignmentPending, loaded.Assignments[0].Status)
	assert.Equal(t, []string{"Tiếp nhận văn bản", "Phân công xử lý"}, f.actions(t, audit.KindIncoming, doc.ID))

	assigned := f.notifier.events(notifications.TypeAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, []uint{4}, assigned[0].UserIDs)
}

func TestIncomingCreateRequiresClerk(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIncoming(context.Background(), creator, CreateIncomingRequest{Number: "IN-001", Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.CreateIncoming(context.Background(), clerk, CreateIncomingRequest{Number: "IN-001", Title: "x", Priority: "later"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.CreateIncoming(ctx, clerk, CreateIncomingRequest{Number: "IN-002", Title: "x"})
	require.NoError(t, err)

	_, err = f.svc.AssignIncoming(ctx, manager, doc.ID, AssignRequest{Department: "Nowhere", UserIDs: []uint{4}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.AssignIncoming(ctx, manager, doc.ID, AssignRequest{Department: "Operations", UserIDs: []uint{4, 404}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.AssignIncoming(ctx, creator, doc.ID, AssignRequest{Department: "Operations", UserIDs: []uint{4}})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// the gate and the document come before the directory lookups
	_, err = f.svc.AssignIncoming(ctx, creator, doc.ID, AssignRequest{Department: "Nowhere"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.AssignIncoming(ctx, manager, 404, AssignRequest{Department: "Nowhere"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, []string{"Tiếp nhận văn bản"}, f.actions(t, audit.KindIncoming, doc.ID))
}

func TestReassignReplacesAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	_, err := f.svc.AssignIncoming(ctx, head, doc.ID, AssignRequest{DepartmentID: &opsID, UserIDs: []uint{5, 3}})
	require.NoError(t, err)

	assignments, err := f.repo.ListAssignments(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.ElementsMatch(t, []uint{5, 3}, []uint{assignments[0].UserID, assignments[1].UserID})
}

func TestUpdateIncomingRecordsSingleEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	title := "Công văn đề nghị báo cáo (bổ sung)"
	status := StatusCompleted
	urgent := PriorityVeryUrgent
	updated, err := f.svc.UpdateIncoming(ctx, head, doc.ID, UpdateIncomingRequest{
		Title:    &title,
		Priority: &urgent,
		Status:   &status,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	entries, err := f.repo.ListHistory(ctx, audit.KindIncoming, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	last := entries[2]
	assert.Equal(t, audit.ActionUpdate, last.Action)
	assert.Equal(t, string(StatusProcessing), last.FromStatus)
	assert.Equal(t, string(StatusCompleted), last.ToStatus)

	var changes map[string]any
	require.NoError(t, json.Unmarshal(last.Changes, &changes))
	assert.Contains(t, changes, "title")
	assert.Contains(t, changes, "priority")
	assert.Contains(t, changes, "status")

	// completed is terminal
	back := StatusPending
	_, err = f.svc.UpdateIncoming(ctx, head, doc.ID, UpdateIncomingRequest{Status: &back})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.UpdateIncoming(ctx, assignee, doc.ID, UpdateIncomingRequest{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUpdateIncomingStatusPassesEdgeGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	done := StatusCompleted
	_, err := f.svc.UpdateIncoming(ctx, clerk, doc.ID, UpdateIncomingRequest{Status: &done})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	loaded, err := f.svc.GetIncoming(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, loaded.Status)
	assert.Nil(t, loaded.ApproverID)
	assert.Nil(t, loaded.CompletedAt)
	for _, a := range loaded.Assignments {
		assert.Equal(t, AssignmentPending, a.Status)
	}
	assert.Equal(t, []Status{StatusCompleted}, loaded.NextStatuses)

	// clerks still correct the register fields
	sender := "Sở Tài chính"
	_, err = f.svc.UpdateIncoming(ctx, clerk, doc.ID, UpdateIncomingRequest{Sender: &sender})
	require.NoError(t, err)

	fresh, err := f.svc.CreateIncoming(ctx, clerk, CreateIncomingRequest{Number: "IN-002", Title: "Giấy mời họp"})
	require.NoError(t, err)
	processing := StatusProcessing
	_, err = f.svc.UpdateIncoming(ctx, clerk, fresh.ID, UpdateIncomingRequest{Status: &processing})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, []string{"Tiếp nhận văn bản"}, f.actions(t, audit.KindIncoming, fresh.ID))
}

func TestCompleteIncoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	done, err := f.svc.CompleteIncoming(ctx, head, doc.ID, CompleteRequest{Comment: "Đã xử lý"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.ApproverID)
	assert.Equal(t, uint(3), *done.ApproverID)

	assignments, err := f.repo.ListAssignments(ctx, doc.ID)
	require.NoError(t, err)
	for _, a := range assignments {
		assert.Equal(t, AssignmentCompleted, a.Status)
	}

	_, err = f.svc.CompleteIncoming(ctx, head, doc.ID, CompleteRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestDeleteIncoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	err := f.svc.DeleteIncoming(ctx, clerk, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.NoError(t, f.svc.DeleteIncoming(ctx, admin, doc.ID))

	assignments, err := f.repo.ListAssignments(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

// Responses

func TestResponseApprovedByLeaderCompletesParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.pendingResponse(t)
	assert.Equal(t, StatusPendingApproval, resp.Status)

	approved, err := f.svc.ApproveResponse(ctx, manager, resp.ID, ReviewRequest{Comment: "Đồng ý"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)

	parent, err := f.repo.GetIncoming(ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, parent.Status)
	require.NotNil(t, parent.CompletedAt)

	assignments, err := f.repo.ListAssignments(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, AssignmentCompleted, assignments[0].Status)

	assert.Equal(t, []string{"Gửi báo cáo xử lý", "Lãnh đạo phê duyệt"}, f.actions(t, audit.KindResponse, resp.ID))

	parentHistory, err := f.repo.ListHistory(ctx, audit.KindIncoming, parent.ID)
	require.NoError(t, err)
	require.Len(t, parentHistory, 4)
	last := parentHistory[3]
	assert.Equal(t, "Lãnh đạo phê duyệt", last.Action)
	assert.Equal(t, string(StatusProcessing), last.FromStatus)
	assert.Equal(t, string(StatusCompleted), last.ToStatus)
	assert.Equal(t, parentHistory[3].CreatedAt, f.lastEntry(t, audit.KindResponse, resp.ID).CreatedAt)
}

func (f *fixture) lastEntry(t *testing.T, kind audit.Kind, id uint) audit.HistoryEntry {
	entries, err := f.repo.ListHistory(context.Background(), kind, id)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func TestResponseApprovedByHeadKeepsParentOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.pendingResponse(t)

	_, err := f.svc.ApproveResponse(ctx, head, resp.ID, ReviewRequest{})
	require.NoError(t, err)

	parent, err := f.repo.GetIncoming(ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, parent.Status)
	last := f.lastEntry(t, audit.KindIncoming, parent.ID)
	assert.Equal(t, "Trưởng phòng phê duyệt", last.Action)
	assert.Empty(t, last.ToStatus)
}

func TestResponseRejectAndResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.pendingResponse(t)

	rejected, err := f.svc.RejectResponse(ctx, head, resp.ID, ReviewRequest{Comment: "Bổ sung số liệu"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "Bổ sung số liệu", rejected.ReviewComment)
	assert.Nil(t, rejected.ApproverID)

	content := "Đã bổ sung số liệu"
	_, err = f.svc.ResubmitResponse(ctx, head, resp.ID, ResubmitRequest{Content: &content})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	again, err := f.svc.ResubmitResponse(ctx, assignee, resp.ID, ResubmitRequest{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, again.Status)
	assert.Equal(t, content, again.Content)
	assert.Empty(t, again.ReviewComment)

	assert.Equal(t,
		[]string{"Gửi báo cáo xử lý", "Trưởng phòng từ chối", "Gửi lại phê duyệt"},
		f.actions(t, audit.KindResponse, resp.ID))
	// two entries from the incoming workflow plus one mirror per response step
	assert.Len(t, f.actions(t, audit.KindIncoming, resp.DocumentID), 5)

	_, err = f.svc.ResubmitResponse(ctx, assignee, resp.ID, ResubmitRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCreateResponseRequiresAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	_, err := f.svc.CreateResponse(ctx, creator, doc.ID, CreateResponseRequest{Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.CreateResponse(ctx, admin, doc.ID, CreateResponseRequest{Content: "x"})
	require.NoError(t, err)

	pending, err := f.svc.CreateIncoming(ctx, clerk, CreateIncomingRequest{Number: "IN-009", Title: "y"})
	require.NoError(t, err)
	_, err = f.svc.CreateResponse(ctx, admin, pending.ID, CreateResponseRequest{Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

// Internal

func (f *fixture) pendingInternal(t *testing.T) uint {
	t.Helper()
	doc, err := f.svc.CreateInternal(context.Background(), creator, CreateInternalRequest{
		Title:                  "Thông báo lịch họp giao ban",
		DocumentType:           "Thông báo",
		RecipientDepartmentIDs: []uint{opsID},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitInternal(context.Background(), creator, doc.ID)
	require.NoError(t, err)
	return doc.ID
}

func TestInternalPublishReadAndReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.pendingInternal(t)

	_, err := f.svc.ApproveInternal(ctx, head, id, ReviewRequest{})
	require.NoError(t, err)
	doc, err := f.svc.PublishInternal(ctx, admin, id, IssueRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, doc.Status)
	assert.Equal(t, "1/2025/TB", doc.numberOrEmpty())

	issued := f.notifier.events(notifications.TypeIssued)
	require.Len(t, issued, 1)
	assert.Subset(t, issued[0].UserIDs, []uint{3, 4, 5})

	inbox, total, err := f.svc.Inbox(ctx, assignee, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, inbox, 1)

	require.NoError(t, f.svc.MarkInternalRead(ctx, assignee, id))
	err = f.svc.MarkInternalRead(ctx, clerk, id)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	reply, err := f.svc.ReplyInternal(ctx, assignee, id, ReplyRequest{Content: "Đã nhận"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, reply.Status)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, id, *reply.ReplyToID)

	recipients, err := f.repo.ListRecipients(ctx, reply.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, uint(5), *recipients[0].UserID)

	_, err = f.svc.ReplyInternal(ctx, clerk, id, ReplyRequest{Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestInternalCreateValidatesRecipients(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateInternal(context.Background(), creator, CreateInternalRequest{Title: "x", RecipientUserIDs: []uint{404}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreateInternal(context.Background(), creator, CreateInternalRequest{Title: "x", RecipientDepartmentIDs: []uint{404}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// Attachments, search, reminders

func TestAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	att, err := f.svc.AddAttachment(ctx, creator, audit.KindOutgoing, 10, UploadRequest{
		Name:        "../du-thao.pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF-1.4 draft"),
	})
	require.NoError(t, err)
	assert.Equal(t, "du-thao.pdf", att.Name)
	assert.Equal(t, int64(14), att.Size)
	assert.True(t, strings.HasPrefix(att.StoragePath, "outgoing/10/"))
	assert.Equal(t, 1, f.blobs.Len())

	_, err = f.svc.AddAttachment(ctx, creator, audit.KindOutgoing, 99, UploadRequest{Name: "a.pdf", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	link, err := f.svc.AttachmentURL(ctx, att.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, link.URL)

	err = f.svc.DeleteAttachment(ctx, assignee, audit.KindOutgoing, 10, att.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	err = f.svc.DeleteAttachment(ctx, creator, audit.KindIncoming, 10, att.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.svc.DeleteAttachment(ctx, creator, audit.KindOutgoing, 10, att.ID))
	assert.Equal(t, 0, f.blobs.Len())
}

func pdfUpload(name string) UploadRequest {
	return UploadRequest{Name: name, ContentType: "application/pdf", Body: strings.NewReader("%PDF-1.4")}
}

func TestOutgoingAttachmentsOnlyOnOwnDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)

	_, err := f.svc.AddAttachment(ctx, assignee, audit.KindOutgoing, 10, pdfUpload("them.pdf"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	att, err := f.svc.AddAttachment(ctx, creator, audit.KindOutgoing, 10, pdfUpload("du-thao.pdf"))
	require.NoError(t, err)

	_, err = f.svc.SubmitOutgoing(ctx, creator, 10)
	require.NoError(t, err)
	_, err = f.svc.ApproveOutgoing(ctx, head, 10, ReviewRequest{})
	require.NoError(t, err)
	_, err = f.svc.IssueOutgoing(ctx, clerk, 10, IssueRequest{Number: "15/CV-OPS"})
	require.NoError(t, err)

	_, err = f.svc.AddAttachment(ctx, creator, audit.KindOutgoing, 10, pdfUpload("sau-phat-hanh.pdf"))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.AddAttachment(ctx, assignee, audit.KindOutgoing, 10, pdfUpload("them.pdf"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	err = f.svc.DeleteAttachment(ctx, creator, audit.KindOutgoing, 10, att.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	err = f.svc.DeleteAttachment(ctx, admin, audit.KindOutgoing, 10, att.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	atts, err := f.svc.ListAttachments(ctx, audit.KindOutgoing, 10)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "du-thao.pdf", atts[0].Name)
	assert.Equal(t, 1, f.blobs.Len())
	assert.Equal(t, []string{"Gửi phê duyệt", "Trưởng phòng phê duyệt", "Phát hành văn bản"}, f.actions(t, audit.KindOutgoing, 10))
}

func TestIncomingAttachmentsUntilCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	_, err := f.svc.AddAttachment(ctx, creator, audit.KindIncoming, doc.ID, pdfUpload("x.pdf"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	report, err := f.svc.AddAttachment(ctx, assignee, audit.KindIncoming, doc.ID, pdfUpload("bao-cao.pdf"))
	require.NoError(t, err)
	scan, err := f.svc.AddAttachment(ctx, clerk, audit.KindIncoming, doc.ID, pdfUpload("ban-quet.pdf"))
	require.NoError(t, err)

	// only the uploader or an admin removes a file
	err = f.svc.DeleteAttachment(ctx, clerk, audit.KindIncoming, doc.ID, report.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	require.NoError(t, f.svc.DeleteAttachment(ctx, clerk, audit.KindIncoming, doc.ID, scan.ID))

	_, err = f.svc.CompleteIncoming(ctx, head, doc.ID, CompleteRequest{})
	require.NoError(t, err)

	_, err = f.svc.AddAttachment(ctx, assignee, audit.KindIncoming, doc.ID, pdfUpload("bo-sung.pdf"))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	err = f.svc.DeleteAttachment(ctx, assignee, audit.KindIncoming, doc.ID, report.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestDeletePurgesAttachmentBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outgoingDraft(t, 10, creator)
	_, err := f.svc.AddAttachment(ctx, creator, audit.KindOutgoing, 10, UploadRequest{Name: "a.pdf", Body: strings.NewReader("x")})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteOutgoing(ctx, creator, 10))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	indexer := new(MockIndexer)
	indexer.On("Put", mock.Anything, mock.Anything).Return(nil)
	indexer.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("cluster unavailable"))
	f := newFixture(t, WithIndexer(indexer))
	ctx := context.Background()

	_, err := f.svc.CreateIncoming(ctx, clerk, CreateIncomingRequest{Number: "IN-001", Title: "Kế hoạch phòng chống thiên tai"})
	require.NoError(t, err)
	indexer.AssertCalled(t, "Put", mock.Anything, mock.MatchedBy(func(d search.Document) bool {
		return d.Kind == "incoming" && d.Number == "IN-001"
	}))

	docs, err := f.svc.Search(ctx, search.Query{Text: "thiên tai"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "IN-001", docs[0].Number)

	_, err = f.svc.Search(ctx, search.Query{Text: " "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Search(ctx, search.Query{Text: "x", Kinds: []string{"memo"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRemindDueDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignedIncoming(t)

	n, err := f.svc.RemindDueDocuments(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.RemindDueDocuments(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reminders := f.notifier.events(notifications.TypeDeadline)
	require.Len(t, reminders, 1)
	assert.ElementsMatch(t, []uint{4, 2}, reminders[0].UserIDs)
	assert.True(t, reminders[0].Urgent)

	n, err = f.svc.RemindDueDocuments(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReminderInvalidatesStaleCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.assignedIncoming(t)

	stale, err := f.repo.GetIncoming(ctx, doc.ID)
	require.NoError(t, err)
	n, err := f.svc.RemindDueDocuments(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stale.ProcessingNote = "ghi chú"
	assert.ErrorIs(t, f.repo.SaveIncoming(ctx, stale), apperr.ErrConflict)

	note := "ghi chú"
	_, err = f.svc.UpdateIncoming(ctx, clerk, doc.ID, UpdateIncomingRequest{ProcessingNote: &note, Version: stale.Version})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.svc.UpdateIncoming(ctx, clerk, doc.ID, UpdateIncomingRequest{ProcessingNote: &note})
	require.NoError(t, err)

	n, err = f.svc.RemindDueDocuments(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestExportRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignedIncoming(t)

	var buf strings.Builder
	err := f.svc.ExportRegister(ctx, clerk, audit.KindIncoming, "csv", ListFilter{}, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "IN-001")
	assert.Contains(t, buf.String(), "Đang xử lý")

	err = f.svc.ExportRegister(ctx, assignee, audit.KindIncoming, "csv", ListFilter{}, &buf)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	slip, err := f.svc.IncomingSlip(ctx, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(slip), "%PDF"))
}
