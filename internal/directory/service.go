package directory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
)

type CreateDepartmentRequest struct {
	Name     string `json:"name" binding:"required"`
	Code     string `json:"code"`
	ParentID *uint  `json:"parent_id"`
	HeadID   *uint  `json:"head_id"`
}

type CreateUserRequest struct {
	Username     string        `json:"username" binding:"required"`
	FullName     string        `json:"full_name" binding:"required"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	Password     string        `json:"password" binding:"required,min=8"`
	DepartmentID *uint         `json:"department_id"`
	Roles        []access.Role `json:"roles" binding:"required,min=1"`
}

// Service manages users and departments
type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) CreateDepartment(ctx context.Context, actor access.Actor, req CreateDepartmentRequest) (*Department, error) {
	if err := access.Check(access.ResourceDepartment, access.OpCreate, actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: department name is required", apperr.ErrValidation)
	}
	if req.ParentID != nil {
		if _, err := s.repo.GetDepartment(ctx, *req.ParentID); err != nil {
			return nil, fmt.Errorf("%w: parent department %d does not exist", apperr.ErrValidation, *req.ParentID)
		}
	}

	dept := &Department{Name: name, Code: req.Code, ParentID: req.ParentID, HeadID: req.HeadID}
	if err := s.repo.CreateDepartment(ctx, dept); err != nil {
		return nil, err
	}

	s.logger.Info("Department created", zap.Uint("department_id", dept.ID), zap.String("name", dept.Name))
	return dept, nil
}

func (s *Service) CreateUser(ctx context.Context, actor access.Actor, req CreateUserRequest) (*User, error) {
	if err := access.Check(access.ResourceUser, access.OpCreate, actor); err != nil {
		return nil, err
	}
	user, err := NewUser(req)
	if err != nil {
		return nil, err
	}
	if req.DepartmentID != nil {
		if _, err := s.repo.GetDepartment(ctx, *req.DepartmentID); err != nil {
			return nil, fmt.Errorf("%w: department %d does not exist", apperr.ErrValidation, *req.DepartmentID)
		}
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Uint("created_by", actor.ID))
	return user, nil
}

// NewUser validates req and builds an unsaved user with a hashed password.
func NewUser(req CreateUserRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.FullName) == "" {
		return nil, fmt.Errorf("%w: username and full name are required", apperr.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", apperr.ErrValidation)
	}
	if len(req.Roles) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", apperr.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Username:     username,
		FullName:     strings.TrimSpace(req.FullName),
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		DepartmentID: req.DepartmentID,
		Active:       true,
	}
	seen := make(map[access.Role]bool)
	for _, role := range req.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, role)
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		user.Roles = append(user.Roles, UserRole{Role: role})
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uint) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	return s.repo.ListUsers(ctx, filter)
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListDepartments(ctx)
}
