package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/testutil"
)

var admin = access.Actor{ID: 1, Name: "admin", Roles: []access.Role{access.RoleAdmin}}

func newTestService(t *testing.T) (*Service, Repository) {
	db := testutil.NewDB(t, Models()...)
	repo := NewRepository(db)
	return NewService(repo, zap.NewNop()), repo
}

func TestCreateDepartmentAndUser(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	dept, err := svc.CreateDepartment(ctx, admin, CreateDepartmentRequest{Name: "Operations", Code: "OPS"})
	require.NoError(t, err)
	assert.NotZero(t, dept.ID)

	user, err := svc.CreateUser(ctx, admin, CreateUserRequest{
		Username:     "hoa.nguyen",
		FullName:     "Nguyễn Thị Hoa",
		Email:        "hoa@example.org",
		Password:     "s3cret-pass",
		DepartmentID: &dept.ID,
		Roles:        []access.Role{access.RoleStaff, access.RoleDepartmentHead, access.RoleStaff},
	})
	require.NoError(t, err)

	loaded, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []access.Role{access.RoleStaff, access.RoleDepartmentHead}, loaded.RoleList())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(loaded.PasswordHash), []byte("s3cret-pass")))

	actor := loaded.Actor()
	assert.Equal(t, user.ID, actor.ID)
	assert.True(t, actor.InDepartment(&dept.ID))

	heads, err := repo.ListUsersWithRole(ctx, access.RoleDepartmentHead, &dept.ID)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, "hoa.nguyen", heads[0].Username)

	byName, err := repo.GetUserByUsername(ctx, "hoa.nguyen")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "x", FullName: "X", Password: "short", Roles: []access.Role{access.RoleStaff}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.CreateUser(ctx, admin, CreateUserRequest{Username: "x", FullName: "X", Password: "long-enough", Roles: []access.Role{"janitor"}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	missing := uint(99)
	_, err = svc.CreateUser(ctx, admin, CreateUserRequest{Username: "x", FullName: "X", Password: "long-enough", DepartmentID: &missing, Roles: []access.Role{access.RoleStaff}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	req := CreateUserRequest{Username: "dup", FullName: "Dup", Password: "long-enough", Roles: []access.Role{access.RoleStaff}}
	_, err = svc.CreateUser(ctx, admin, req)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, admin, req)
	assert.Error(t, err)
}

func TestOnlyAdminManagesDirectory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	manager := access.Actor{ID: 2, Roles: []access.Role{access.RoleManager}}

	_, err := svc.CreateDepartment(ctx, manager, CreateDepartmentRequest{Name: "Finance"})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = svc.CreateUser(ctx, manager, CreateUserRequest{Username: "a", FullName: "A", Password: "long-enough", Roles: []access.Role{access.RoleStaff}})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestGetUserNotFound(t *testing.T) {
	_, repo := newTestService(t)

	_, err := repo.GetUser(context.Background(), 404)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
