package account

import (
	"fmt"
	"strings"
	"time"
)

// Subject is a course subject. Questions refer to it by name.
type Subject struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`

	// Teachers is only reported to administrators.
	Teachers []TeacherSummary `json:"teachers,omitempty"`
}

// SubjectInput is the writable part of a subject.
type SubjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (in *SubjectInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Active == nil {
		active := true
		in.Active = &active
	}
	return nil
}
