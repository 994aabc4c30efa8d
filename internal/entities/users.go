package entities

import "time"

type UserRole string

const (
	UserRoleReader    UserRole = "reader"    // Browses the catalog and requests books
	UserRoleVolunteer UserRole = "volunteer" // Fulfills requests and tracks lendings in a hall
	UserRoleAdmin     UserRole = "admin"     // Manages catalog data and inventory
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleReader, UserRoleVolunteer, UserRoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may fulfill requests and resolve lendings.
func (r UserRole) IsStaff() bool {
	return r == UserRoleVolunteer || r == UserRoleAdmin
}

type User struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	Username     string   `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string   `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string   `gorm:"size:255" json:"-"`
	Role         UserRole `gorm:"size:20;index;not null;default:reader" json:"role"`
	DepartmentID *uint    `gorm:"index" json:"department_id,omitempty"`
	HallID       *uint    `gorm:"index" json:"hall_id,omitempty"`

	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
