package directory

import (
	"time"

	"document-portal/portal-backend/internal/access"
)

// Department is one unit of the organizational hierarchy
type Department struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Code      string    `gorm:"size:32" json:"code"`
	ParentID  *uint     `gorm:"index" json:"parent_id,omitempty"`
	HeadID    *uint     `json:"head_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a staff member able to act on documents
type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Username     string      `gorm:"size:64;not null;uniqueIndex" json:"username"`
	FullName     string      `gorm:"size:255;not null" json:"full_name"`
	Email        string      `gorm:"size:255" json:"email"`
	Phone        string      `gorm:"size:32" json:"phone,omitempty"`
	PasswordHash string      `gorm:"size:255;not null" json:"-"`
	DepartmentID *uint       `gorm:"index" json:"department_id,omitempty"`
	Department   *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Roles        []UserRole  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"roles"`
	Active       bool        `gorm:"not null;default:true" json:"active"`
	LastLoginAt  *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// UserRole grants one role to one user
type UserRole struct {
	ID     uint        `gorm:"primaryKey" json:"-"`
	UserID uint        `gorm:"not null;uniqueIndex:idx_user_role" json:"-"`
	Role   access.Role `gorm:"size:32;not null;uniqueIndex:idx_user_role" json:"role"`
}

// RoleList flattens the role rows.
func (u *User) RoleList() []access.Role {
	roles := make([]access.Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Role)
	}
	return roles
}

// Actor converts the user into the identity workflow operations run as.
func (u *User) Actor() access.Actor {
	return access.Actor{
		ID:           u.ID,
		Name:         u.FullName,
		DepartmentID: u.DepartmentID,
		Roles:        u.RoleList(),
	}
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Department{}, &User{}, &UserRole{}}
}
