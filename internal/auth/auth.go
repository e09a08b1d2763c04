package auth

import (
	"errors"
	"time"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrUserNotFound = errors.New("user not found")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is the only error Login reports for a rejected
	// login name, password or inactive account.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Role is a principal's role. Only administrators and teachers exist.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// Identity represents an authenticated caller's token claims.
type Identity struct {
	UserID    int64  `json:"user_id"`
	LoginName string `json:"login_name"`
	Role      Role   `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Principal is the stored account record behind an Identity.
type Principal struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"display_name"`
	LoginName    string    `json:"login_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}
