package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"document-portal/portal-backend/internal/apperr"
)

func actorWith(id uint, roles ...Role) Actor {
	return Actor{ID: id, Roles: roles}
}

func TestApproveRejectGatedForEveryVariant(t *testing.T) {
	resources := []Resource{ResourceOutgoing, ResourceInternal, ResourceResponse, ResourceSchedule}
	outsiders := []Actor{
		actorWith(10, RoleStaff),
		actorWith(11, RoleClerk),
		actorWith(12),
	}
	insiders := []Actor{
		actorWith(20, RoleDepartmentHead),
		actorWith(21, RoleManager),
		actorWith(22, RoleAdmin),
	}

	for _, res := range resources {
		for _, op := range []Operation{OpApprove, OpReject} {
			for _, a := range outsiders {
				err := Check(res, op, a)
				assert.Truef(t, errors.Is(err, apperr.ErrForbidden), "%v %s %s should be forbidden", a.Roles, op, res)
			}
			for _, a := range insiders {
				assert.NoErrorf(t, Check(res, op, a), "%v %s %s should be allowed", a.Roles, op, res)
			}
		}
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name  string
		res   Resource
		op    Operation
		actor Actor
		want  bool
	}{
		{"anyone creates outgoing", ResourceOutgoing, OpCreate, actorWith(1, RoleStaff), true},
		{"clerk issues outgoing", ResourceOutgoing, OpIssue, actorWith(1, RoleClerk), true},
		{"head cannot issue", ResourceOutgoing, OpIssue, actorWith(1, RoleDepartmentHead), false},
		{"clerk receives incoming", ResourceIncoming, OpCreate, actorWith(1, RoleClerk), true},
		{"staff cannot receive incoming", ResourceIncoming, OpCreate, actorWith(1, RoleStaff), false},
		{"manager assigns", ResourceIncoming, OpAssign, actorWith(1, RoleManager), true},
		{"clerk cannot assign", ResourceIncoming, OpAssign, actorWith(1, RoleClerk), false},
		{"multi-role actor", ResourceIncoming, OpAssign, actorWith(1, RoleStaff, RoleDepartmentHead), true},
		{"anonymous denied", ResourceOutgoing, OpCreate, Actor{}, false},
		{"undeclared operation denied", ResourceSchedule, OpIssue, actorWith(1, RoleAdmin), false},
		{"only admin creates users", ResourceUser, OpCreate, actorWith(1, RoleManager), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.res, tt.op, tt.actor))
		})
	}
}

func TestTier(t *testing.T) {
	assert.Equal(t, RoleDepartmentHead, Tier(ResourceOutgoing, OpApprove, actorWith(3, RoleStaff, RoleDepartmentHead)))
	assert.Equal(t, RoleManager, Tier(ResourceOutgoing, OpApprove, actorWith(3, RoleDepartmentHead, RoleManager)))
	assert.Equal(t, RoleAdmin, Tier(ResourceSchedule, OpReject, actorWith(3, RoleAdmin, RoleManager)))
	assert.Equal(t, Role(""), Tier(ResourceOutgoing, OpApprove, actorWith(3, RoleStaff)))

	assert.Equal(t, "Trưởng phòng", RoleDepartmentHead.Title())
	assert.True(t, IsTopRole(actorWith(1, RoleManager)))
	assert.False(t, IsTopRole(actorWith(1, RoleDepartmentHead)))
}

func TestInDepartment(t *testing.T) {
	dept := uint(4)
	other := uint(5)
	a := Actor{ID: 1, DepartmentID: &dept}

	assert.True(t, a.InDepartment(&dept))
	assert.False(t, a.InDepartment(&other))
	assert.False(t, a.InDepartment(nil))
	assert.False(t, Actor{ID: 2}.InDepartment(&dept))
}
