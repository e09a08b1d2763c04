package rbac

import "github.com/flavalia/avalia/internal/auth"

// Scope restricts a listing to the rows a principal may see. A row is
// visible when All is set, when it was created by CreatorID, or when its
// subject name is one of Subjects.
type Scope struct {
	All       bool
	CreatorID int64
	Subjects  []string
}

// QuestionScope is the listing counterpart of the question read rule.
// A teacher without subjects sees only their own questions.
func QuestionScope(p Principal) Scope {
	if p.Role == auth.RoleAdmin {
		return Scope{All: true}
	}
	subjects := make([]string, len(p.Subjects))
	copy(subjects, p.Subjects)
	return Scope{CreatorID: p.ID, Subjects: subjects}
}

// ExamScope limits teachers to their own exams.
func ExamScope(p Principal) Scope {
	if p.Role == auth.RoleAdmin {
		return Scope{All: true}
	}
	return Scope{CreatorID: p.ID}
}

// Includes reports whether a row with the given creator and subject name
// falls inside the scope.
func (s Scope) Includes(creatorID int64, subjectName string) bool {
	if s.All {
		return true
	}
	if s.CreatorID != 0 && creatorID == s.CreatorID {
		return true
	}
	for _, name := range s.Subjects {
		if name == subjectName {
			return true
		}
	}
	return false
}
