package models

import (
	"time"
)

// UserStatus is the account state of a user
type UserStatus string

const (
	UserActive      UserStatus = "active"
	UserSuspended   UserStatus = "suspended"
	UserBlacklisted UserStatus = "blacklisted"
)

// Valid reports whether s is one of the known account states
func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserSuspended, UserBlacklisted:
		return true
	}
	return false
}

// User represents a registered account
type User struct {
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Password  string     `json:"password"` // bcrypt hash
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// PublicUser is the admin-facing view of a user, without credentials
type PublicUser struct {
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Public strips the password from u
func (u User) Public() PublicUser {
	return PublicUser{
		Username:  u.Username,
		Email:     u.Email,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}
