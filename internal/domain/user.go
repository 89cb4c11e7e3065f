package domain

import "time"

// UserRole distinguishes requesters from the admin roster.
type UserRole string

const (
	UserRoleRequester     UserRole = "requester"
	UserRoleAdminHelpdesk UserRole = "admin_helpdesk"
	UserRoleAdminAplikasi UserRole = "admin_aplikasi"
)

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User is the domain model for requesters and admins.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user belongs to the admin roster.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdminHelpdesk || u.Role == UserRoleAdminAplikasi
}
