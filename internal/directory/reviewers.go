package directory

import (
	"context"
	"errors"
	"fmt"

	"document-portal/portal-backend/internal/access"
)

// RoleLister finds the users holding a role, optionally within a department.
type RoleLister interface {
	ListUsersWithRole(ctx context.Context, role access.Role, departmentID *uint) ([]User, error)
}

// ReviewerIDs lists who reviews work coming from a department: its heads
// plus every manager. On a lookup failure the ids found so far are returned
// together with the error.
func ReviewerIDs(ctx context.Context, users RoleLister, departmentID *uint) ([]uint, error) {
	var (
		ids  []uint
		errs []error
	)
	if departmentID != nil {
		heads, err := users.ListUsersWithRole(ctx, access.RoleDepartmentHead, departmentID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list department heads: %w", err))
		}
		for _, u := range heads {
			ids = append(ids, u.ID)
		}
	}
	managers, err := users.ListUsersWithRole(ctx, access.RoleManager, nil)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list managers: %w", err))
	}
	for _, u := range managers {
		ids = append(ids, u.ID)
	}
	return ids, errors.Join(errs...)
}
