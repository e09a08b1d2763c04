// Package account manages principals, subjects and the teacher-subject
// association.
package account

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/flavalia/avalia/internal/auth"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrLoginTaken        = errors.New("login name already exists")
	ErrEmailTaken        = errors.New("email already exists")
	ErrEmailInvalid      = errors.New("invalid email address")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPrincipalInUse    = errors.New("principal is referenced by exams")

	ErrSubjectNotFound  = errors.New("subject not found")
	ErrSubjectNameTaken = errors.New("a subject with this name already exists")
)

// SubjectSummary is the short form of a subject embedded in a teacher.
type SubjectSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TeacherSummary is the short form of a teacher embedded in a subject.
type TeacherSummary struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	LoginName   string `json:"login_name"`
}

// Teacher is a principal together with the subjects they teach.
type Teacher struct {
	auth.Principal
	Subjects []SubjectSummary `json:"subjects"`
}

// NewTeacher is the input for creating a teacher account.
type NewTeacher struct {
	DisplayName string `json:"display_name"`
	LoginName   string `json:"login_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (n *NewTeacher) Validate() error {
	n.DisplayName = strings.TrimSpace(n.DisplayName)
	n.LoginName = strings.TrimSpace(n.LoginName)
	n.Email = strings.TrimSpace(n.Email)

	switch {
	case n.DisplayName == "":
		return fmt.Errorf("%w: display_name is required", ErrInvalidInput)
	case n.LoginName == "":
		return fmt.Errorf("%w: login_name is required", ErrInvalidInput)
	case n.Password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if n.Email != "" {
		return ValidateEmail(n.Email)
	}
	return nil
}

// PrincipalUpdate changes a principal. Nil fields and an empty Password
// leave the stored value untouched.
type PrincipalUpdate struct {
	DisplayName string  `json:"display_name"`
	Email       *string `json:"email"`
	Password    string  `json:"password"`
	Active      *bool   `json:"active"`
}

func (u *PrincipalUpdate) Validate() error {
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.DisplayName == "" {
		return fmt.Errorf("%w: display_name is required", ErrInvalidInput)
	}
	if u.Email != nil {
		email := strings.TrimSpace(*u.Email)
		u.Email = &email
		if email != "" {
			return ValidateEmail(email)
		}
	}
	return nil
}

// ValidateEmail checks that an email address is syntactically valid.
func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %s", ErrEmailInvalid, err)
	}
	return nil
}
