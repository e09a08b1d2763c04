package rbac

import (
	"context"
	"log/slog"

	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/telemetry"
)

// Authorize decides whether p may perform action on res. It is pure and
// safe to call from any goroutine.
//
// Evaluation order: resource invariants -> administrator -> teacher rules ->
// deny.
func Authorize(p Principal, action Action, res Resource) *Decision {
	if d := checkInvariants(action, res); d != nil {
		return d
	}

	switch p.Role {
	case auth.RoleAdmin:
		return allow()
	case auth.RoleTeacher:
	default:
		return forbid("unknown role")
	}

	switch r := res.(type) {
	case QuestionRef:
		return authorizeQuestion(p, action, r)
	case ExamRef:
		return authorizeExam(p, action, r)
	case SubjectRef:
		if action == ActionRead || action == ActionList {
			return allow()
		}
		return forbid("admin role required")
	case PrincipalRef:
		if action == ActionRead && r.ID == p.ID {
			return allow()
		}
		return forbid("admin role required")
	case TeachingRef, AuditRef:
		return forbid("admin role required")
	case AssistantRef:
		if action == ActionUse {
			return allow()
		}
		return forbid("unsupported action")
	}
	return forbid("unsupported resource")
}

// Allowed is the boolean form of Authorize.
func Allowed(p Principal, action Action, res Resource) bool {
	return Authorize(p, action, res).Allowed
}

// checkInvariants rejects operations that no role may perform.
func checkInvariants(action Action, res Resource) *Decision {
	switch r := res.(type) {
	case PrincipalRef:
		if action == ActionDelete && r.Role == auth.RoleAdmin {
			return invalid("administrator accounts cannot be deleted")
		}
	case TeachingRef:
		if action == ActionAssociate && r.TeacherRole != auth.RoleTeacher {
			return invalid("only teachers can be associated with subjects")
		}
	}
	return nil
}

func authorizeQuestion(p Principal, action Action, q QuestionRef) *Decision {
	switch action {
	case ActionList:
		// Rows are filtered by QuestionScope.
		return allow()
	case ActionCreate:
		if q.CreatorID == p.ID {
			return allow()
		}
		return forbid("not owner")
	}

	if q.CreatorID == p.ID {
		return allow()
	}
	if action == ActionRead && p.teaches(q.SubjectName) {
		return allow()
	}
	if action == ActionRead {
		return forbid("subject not shared")
	}
	return forbid("not owner")
}

func authorizeExam(p Principal, action Action, e ExamRef) *Decision {
	if action == ActionList {
		return allow()
	}
	if e.CreatorID != nil && *e.CreatorID == p.ID {
		return allow()
	}
	return forbid("not owner")
}

// EvaluatorOption configures the Evaluator.
type EvaluatorOption func(*Evaluator)

// WithMetrics records every decision.
func WithMetrics(m *telemetry.Metrics) EvaluatorOption {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithAuditLogger records denials as access.denied events.
func WithAuditLogger(l audit.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.audit = l
	}
}

// Evaluator applies Authorize and reports the outcome.
type Evaluator struct {
	metrics *telemetry.Metrics
	audit   audit.Logger
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{audit: audit.NopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check authorizes the request and returns the decision's error.
func (e *Evaluator) Check(ctx context.Context, p Principal, action Action, res Resource) error {
	d := Authorize(p, action, res)
	e.metrics.AuthzDecision(res.ResourceType(), string(action), d.Allowed)
	if d.Allowed {
		return nil
	}

	slog.DebugContext(ctx, "authorization denied",
		"user_id", p.ID,
		"action", action,
		"resource", res.ResourceType(),
		"reason", d.Reason,
	)

	evt := audit.Event{
		Action:       audit.ActionAccessDenied,
		ResourceType: res.ResourceType(),
		Metadata: map[string]any{
			audit.MetadataAction: string(action),
			audit.MetadataReason: d.Reason,
		},
		Source: audit.SourceAPI,
	}
	if p.ID != 0 {
		actor := p.ID
		evt.ActorID = &actor
	}
	if id := res.ResourceID(); id != 0 {
		evt.ResourceID = &id
	}
	e.audit.Log(ctx, evt)

	return d.Err()
}
