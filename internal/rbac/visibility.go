package rbac

import (
	"context"
	"fmt"

	"github.com/flavalia/avalia/internal/auth"
)

// SubjectLookup returns the subject names a principal teaches.
// auth.Directory satisfies it.
type SubjectLookup interface {
	TeachesSubjects(ctx context.Context, principalID int64) ([]string, error)
}

// QuestionLister returns the ids of the questions inside a scope.
type QuestionLister interface {
	IDs(ctx context.Context, scope Scope) ([]int64, error)
}

// Visibility resolves callers into Principals and applies the question
// sharing rule to stored questions.
type Visibility struct {
	subjects  SubjectLookup
	questions QuestionLister
}

func NewVisibility(subjects SubjectLookup, questions QuestionLister) *Visibility {
	return &Visibility{subjects: subjects, questions: questions}
}

// Resolve loads the taught subjects of a teacher. Administrators need
// none.
func (v *Visibility) Resolve(ctx context.Context, identity *auth.Identity) (Principal, error) {
	if identity == nil {
		return Principal{}, auth.ErrUnauthorized
	}
	if identity.IsAdmin() {
		return FromIdentity(identity), nil
	}
	subjects, err := v.subjects.TeachesSubjects(ctx, identity.UserID)
	if err != nil {
		return Principal{}, fmt.Errorf("loading taught subjects: %w", err)
	}
	return FromIdentity(identity, subjects...), nil
}

// VisibleQuestions returns the ids of every question the caller may read.
func (v *Visibility) VisibleQuestions(ctx context.Context, identity *auth.Identity) ([]int64, error) {
	p, err := v.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	ids, err := v.questions.IDs(ctx, QuestionScope(p))
	if err != nil {
		return nil, fmt.Errorf("listing visible questions: %w", err)
	}
	return ids, nil
}
