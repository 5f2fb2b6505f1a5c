package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
)

type Repository interface {
	CreateDepartment(ctx context.Context, dept *Department) error
	GetDepartment(ctx context.Context, id uint) (*Department, error)
	GetDepartmentByName(ctx context.Context, name string) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUsers(ctx context.Context, ids []uint) ([]User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	ListUsersWithRole(ctx context.Context, role access.Role, departmentID *uint) ([]User, error)
	TouchLogin(ctx context.Context, id uint) error
}

// UserFilter narrows ListUsers
type UserFilter struct {
	DepartmentID *uint
	Role         *access.Role
	ActiveOnly   bool
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateDepartment(ctx context.Context, dept *Department) error {
	if err := r.db.WithContext(ctx).Create(dept).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: department %q already exists", apperr.ErrValidation, dept.Name)
		}
		return fmt.Errorf("failed to create department: %w", err)
	}
	return nil
}

func (r *gormRepository) GetDepartment(ctx context.Context, id uint) (*Department, error) {
	var dept Department
	err := r.db.WithContext(ctx).First(&dept, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: department %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

func (r *gormRepository) GetDepartmentByName(ctx context.Context, name string) (*Department, error) {
	var dept Department
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&dept).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: department %q", apperr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

func (r *gormRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	var depts []Department
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&depts).Error; err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return depts, nil
}

func (r *gormRepository) CreateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: username %q already taken", apperr.ErrValidation, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Preload("Roles").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *gormRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Preload("Roles").Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %q", apperr.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *gormRepository) GetUsers(ctx context.Context, ids []uint) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []User
	if err := r.db.WithContext(ctx).Preload("Roles").Where("id IN ?", ids).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

func (r *gormRepository) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	query := r.db.WithContext(ctx).Preload("Roles").Model(&User{})
	if filter.DepartmentID != nil {
		query = query.Where("department_id = ?", *filter.DepartmentID)
	}
	if filter.Role != nil {
		query = query.Where("id IN (?)", r.db.Model(&UserRole{}).Select("user_id").Where("role = ?", *filter.Role))
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var users []User
	if err := query.Order("full_name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *gormRepository) ListUsersWithRole(ctx context.Context, role access.Role, departmentID *uint) ([]User, error) {
	return r.ListUsers(ctx, UserFilter{DepartmentID: departmentID, Role: &role, ActiveOnly: true})
}

func (r *gormRepository) TouchLogin(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("last_login_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}
