package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/testutil"
)

func TestAppendAndList(t *testing.T) {
	db := testutil.NewDB(t, &HistoryEntry{})
	ctx := context.Background()
	actor := access.Actor{ID: 3, Name: "Trần Văn B", Roles: []access.Role{access.RoleDepartmentHead}}
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first := NewEntry(KindOutgoing, 10, access.OpSubmit, ActionSubmit, access.Actor{ID: 5}, base).
		Transition("draft", "pending_approval")
	require.NoError(t, Append(ctx, db, first))

	second := NewEntry(KindOutgoing, 10, access.OpApprove, ApprovalAction(access.RoleDepartmentHead), actor, base.Add(time.Hour)).
		Transition("pending_approval", "approved").
		Describe("ok")
	require.NoError(t, Append(ctx, db, second))

	// another document's history stays separate
	require.NoError(t, Append(ctx, db, NewEntry(KindInternal, 10, access.OpSubmit, ActionSubmit, actor, base)))

	entries, err := List(ctx, db, KindOutgoing, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Gửi phê duyệt", entries[0].Action)
	assert.Equal(t, uint(5), entries[0].ActorID)
	assert.Equal(t, "Trưởng phòng phê duyệt", entries[1].Action)
	assert.Equal(t, "ok", entries[1].Description)
	assert.Equal(t, "approved", entries[1].ToStatus)
}

func TestAppendRejectsPersistedEntry(t *testing.T) {
	db := testutil.NewDB(t, &HistoryEntry{})
	ctx := context.Background()

	entry := NewEntry(KindSchedule, 1, access.OpCreate, ActionScheduleRegister, access.Actor{ID: 1}, time.Now())
	require.NoError(t, Append(ctx, db, entry))
	assert.Error(t, Append(ctx, db, entry))
}

func TestWithChanges(t *testing.T) {
	entry, err := NewEntry(KindIncoming, 1, access.OpUpdate, ActionUpdate, access.Actor{ID: 1}, time.Now()).
		WithChanges(map[string]any{"title": "Công văn số 12"})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(entry.Changes, &decoded))
	assert.Equal(t, "Công văn số 12", decoded["title"])

	empty, err := NewEntry(KindIncoming, 1, access.OpUpdate, ActionUpdate, access.Actor{ID: 1}, time.Now()).WithChanges(nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Changes)
}

func TestActionLabels(t *testing.T) {
	assert.Equal(t, "Lãnh đạo phê duyệt", ApprovalAction(access.RoleManager))
	assert.Equal(t, "Trưởng phòng từ chối", RejectionAction(access.RoleDepartmentHead))
}
