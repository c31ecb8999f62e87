package models

import "time"

// Role is the coarse permission level of a user
type Role string

const (
	RoleUser      Role = "user"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleSuperuser:
		return true
	}
	return false
}

// User represents an account that owns recipients, messages and mailings
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Blocked      bool      `json:"blocked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName returns the name or, if empty, the email
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserFilter for listing users
type UserFilter struct {
	Search string
	Limit  int
	Offset int
}

// Session is a server-side login session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
