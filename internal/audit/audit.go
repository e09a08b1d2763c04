package audit

import (
	"context"

	"github.com/flavalia/avalia/internal/auth"
)

// Event represents a single auditable action in the system.
type Event struct {
	ActorID      *int64 // nil for system events
	Action       string // e.g. "question.deleted", "access.denied"
	ResourceType string // e.g. "question", "principal", "teaching"
	ResourceID   *int64
	Metadata     map[string]any
	Source       string // "api", "cli", "system"
}

const (
	ActionPrincipalCreated = "principal.created"
	ActionPrincipalUpdated = "principal.updated"
	ActionPrincipalDeleted = "principal.deleted"

	ActionSubjectCreated = "subject.created"
	ActionSubjectUpdated = "subject.updated"
	ActionSubjectDeleted = "subject.deleted"

	ActionTeacherAssociated    = "teaching.associated"
	ActionTeacherDisassociated = "teaching.disassociated"

	ActionQuestionCreated = "question.created"
	ActionQuestionUpdated = "question.updated"
	ActionQuestionDeleted = "question.deleted"

	ActionExamCreated = "exam.created"
	ActionExamUpdated = "exam.updated"
	ActionExamDeleted = "exam.deleted"

	ActionAccessDenied = "access.denied"
)

const (
	MetadataAction    = "action"
	MetadataReason    = "reason"
	MetadataLoginName = "login_name"
	MetadataTeacherID = "teacher_id"
)

const (
	SourceAPI    = "api"
	SourceCLI    = "cli"
	SourceSystem = "system"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorIDFromContext returns the authenticated caller's id, or nil when
// the request carries no identity.
func ActorIDFromContext(ctx context.Context) *int64 {
	identity := auth.GetIdentity(ctx)
	if identity == nil {
		return nil
	}
	id := identity.UserID
	return &id
}

// Record builds an api-sourced event attributed to the caller in ctx.
func Record(ctx context.Context, action, resourceType string, resourceID int64, metadata map[string]any) Event {
	e := Event{
		ActorID:      ActorIDFromContext(ctx),
		Action:       action,
		ResourceType: resourceType,
		Metadata:     metadata,
		Source:       SourceAPI,
	}
	if resourceID != 0 {
		e.ResourceID = &resourceID
	}
	return e
}
