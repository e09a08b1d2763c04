package rbac

import (
	"errors"
	"fmt"

	"github.com/flavalia/avalia/internal/auth"
)

var (
	// ErrForbidden is returned when the caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidOperation is returned when no caller may perform the
	// operation on the resource, administrators included.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Action is an operation a principal attempts on a resource.
type Action string

const (
	ActionRead         Action = "read"
	ActionList         Action = "list"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionAssociate    Action = "associate"
	ActionDisassociate Action = "disassociate"
	ActionUse          Action = "use"
)

// Principal is the caller as the engine sees it. Subjects holds the names
// of the subjects the caller teaches and only matters for question reads.
type Principal struct {
	ID       int64
	Role     auth.Role
	Subjects []string
}

// FromIdentity builds a Principal from verified token claims.
func FromIdentity(identity *auth.Identity, subjects ...string) Principal {
	if identity == nil {
		return Principal{}
	}
	return Principal{ID: identity.UserID, Role: identity.Role, Subjects: subjects}
}

func (p Principal) teaches(subject string) bool {
	for _, s := range p.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// Resource is the target of an authorization check, carrying the
// ownership and membership metadata the rules need.
type Resource interface {
	ResourceType() string
	ResourceID() int64
}

// PrincipalRef targets a stored account. ID is zero for list and create.
type PrincipalRef struct {
	ID   int64
	Role auth.Role
}

// SubjectRef targets a subject. ID is zero for list and create.
type SubjectRef struct {
	ID int64
}

// QuestionRef targets a question.
type QuestionRef struct {
	ID          int64
	CreatorID   int64
	SubjectName string
}

// ExamRef targets an exam. A nil CreatorID marks an exam with no author.
type ExamRef struct {
	ID        int64
	CreatorID *int64
}

// TeachingRef targets the link between a teacher and a subject.
type TeachingRef struct {
	SubjectID   int64
	TeacherID   int64
	TeacherRole auth.Role
}

// AuditRef targets the audit trail.
type AuditRef struct{}

// AssistantRef targets the question-writing assistant.
type AssistantRef struct{}

func (PrincipalRef) ResourceType() string { return "principal" }
func (r PrincipalRef) ResourceID() int64 { return r.ID }
func (SubjectRef) ResourceType() string { return "subject" }
func (r SubjectRef) ResourceID() int64 { return r.ID }
func (QuestionRef) ResourceType() string { return "question" }
func (r QuestionRef) ResourceID() int64 { return r.ID }
func (ExamRef) ResourceType() string { return "exam" }
func (r ExamRef) ResourceID() int64 { return r.ID }
func (TeachingRef) ResourceType() string { return "teaching" }
func (r TeachingRef) ResourceID() int64 { return r.SubjectID }
func (AuditRef) ResourceType() string { return "audit" }
func (AuditRef) ResourceID() int64 { return 0 }
func (AssistantRef) ResourceType() string { return "assistant" }
func (AssistantRef) ResourceID() int64 { return 0 }

// Decision represents the result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	invalid bool
}

// Err converts the decision into nil, an ErrForbidden or an
// ErrInvalidOperation.
func (d *Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.invalid:
		return fmt.Errorf("%w: %s", ErrInvalidOperation, d.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
}

func allow() *Decision {
	return &Decision{Allowed: true}
}

func forbid(reason string) *Decision {
	return &Decision{Reason: reason}
}

func invalid(reason string) *Decision {
	return &Decision{Reason: reason, invalid: true}
}
