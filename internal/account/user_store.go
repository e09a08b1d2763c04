package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/jackc/pgx/v5"
)

// UserStore handles principal writes and the teacher listings.
type UserStore struct{}

func NewUserStore() *UserStore {
	return &UserStore{}
}

const principalColumns = `p.id, p.display_name, p.login_name, COALESCE(p.email, ''), p.password_hash, p.role, p.active, p.created_at`

func scanPrincipal(row pgx.Row, extra ...any) (*auth.Principal, error) {
	var p auth.Principal
	dest := append([]any{&p.ID, &p.DisplayName, &p.LoginName, &p.Email, &p.PasswordHash, &p.Role, &p.Active, &p.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a principal. An empty email is stored as NULL.
func (s *UserStore) Create(ctx context.Context, q database.Querier, displayName, loginName, email, passwordHash string, role auth.Role) (*auth.Principal, error) {
	p, err := scanPrincipal(q.QueryRow(ctx,
		`INSERT INTO principals AS p (display_name, login_name, email, password_hash, role)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 RETURNING `+principalColumns,
		displayName, loginName, email, passwordHash, role,
	))
	if err != nil {
		if mapped := mapPrincipalConflict(err, loginName, email); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("creating principal: %w", err)
	}
	return p, nil
}

func (s *UserStore) GetByID(ctx context.Context, q database.Querier, id int64) (*auth.Principal, error) {
	p, err := scanPrincipal(q.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("getting principal: %w", err)
	}
	return p, nil
}

// Update applies u. passwordHash is empty when the password is unchanged.
func (s *UserStore) Update(ctx context.Context, q database.Querier, id int64, u PrincipalUpdate, passwordHash string) (*auth.Principal, error) {
	email := u.Email
	p, err := scanPrincipal(q.QueryRow(ctx,
		`UPDATE principals AS p SET
		     display_name  = $2,
		     email         = CASE WHEN $3::TEXT IS NULL THEN p.email ELSE NULLIF($3, '') END,
		     password_hash = COALESCE(NULLIF($4, ''), p.password_hash),
		     active        = COALESCE($5, p.active)
		 WHERE p.id = $1
		 RETURNING `+principalColumns,
		id, u.DisplayName, email, passwordHash, u.Active,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		var emailValue string
		if email != nil {
			emailValue = *email
		}
		if mapped := mapPrincipalConflict(err, "", emailValue); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("updating principal: %w", err)
	}
	return p, nil
}

// Delete removes a principal together with their exams, questions and
// subject links. q must be a transaction: the principal's exams are removed
// first so their exam_questions rows no longer pin the principal's own
// questions. A question still used by someone else's exam fails the delete
// with ErrPrincipalInUse.
func (s *UserStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	if _, err := q.Exec(ctx, "DELETE FROM exams WHERE creator_id = $1", id); err != nil {
		return fmt.Errorf("deleting principal exams: %w", err)
	}

	tag, err := q.Exec(ctx, "DELETE FROM principals WHERE id = $1", id)
	if err != nil {
		if database.IsForeignKeyViolation(err, "") {
			return ErrPrincipalInUse
		}
		return fmt.Errorf("deleting principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// AdminExists reports whether any ADMIN principal is stored.
func (s *UserStore) AdminExists(ctx context.Context, q database.Querier) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM principals WHERE role = $1)", auth.RoleAdmin,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for administrators: %w", err)
	}
	return exists, nil
}

// ListTeachers returns every TEACHER with the subjects they teach,
// ordered by display name.
func (s *UserStore) ListTeachers(ctx context.Context, q database.Querier) ([]Teacher, error) {
	rows, err := q.Query(ctx,
		`SELECT `+principalColumns+`, s.id, s.name
		 FROM principals p
		 LEFT JOIN teacher_subjects ts ON ts.teacher_id = p.id
		 LEFT JOIN subjects s ON s.id = ts.subject_id
		 WHERE p.role = $1
		 ORDER BY p.display_name, p.id, s.name`,
		auth.RoleTeacher,
	)
	if err != nil {
		return nil, fmt.Errorf("listing teachers: %w", err)
	}
	defer rows.Close()

	teachers := []Teacher{}
	for rows.Next() {
		var subjectID *int64
		var subjectName *string
		p, err := scanPrincipal(rows, &subjectID, &subjectName)
		if err != nil {
			return nil, fmt.Errorf("scanning teacher: %w", err)
		}
		if n := len(teachers); n == 0 || teachers[n-1].ID != p.ID {
			teachers = append(teachers, Teacher{Principal: *p, Subjects: []SubjectSummary{}})
		}
		if subjectID != nil {
			last := &teachers[len(teachers)-1]
			last.Subjects = append(last.Subjects, SubjectSummary{ID: *subjectID, Name: *subjectName})
		}
	}
	return teachers, rows.Err()
}

// SubjectsOf returns the subjects a principal teaches.
func (s *UserStore) SubjectsOf(ctx context.Context, q database.Querier, principalID int64) ([]SubjectSummary, error) {
	rows, err := q.Query(ctx,
		`SELECT s.id, s.name FROM subjects s
		 JOIN teacher_subjects ts ON ts.subject_id = s.id
		 WHERE ts.teacher_id = $1
		 ORDER BY s.name`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing principal subjects: %w", err)
	}
	defer rows.Close()

	subjects := []SubjectSummary{}
	for rows.Next() {
		var sub SubjectSummary
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, fmt.Errorf("scanning subject: %w", err)
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

func mapPrincipalConflict(err error, loginName, email string) error {
	switch {
	case database.IsUniqueViolation(err, "principals_login_name_key"):
		return fmt.Errorf("%w: %s", ErrLoginTaken, loginName)
	case database.IsUniqueViolation(err, "principals_email_key"):
		return fmt.Errorf("%w: %s", ErrEmailTaken, email)
	}
	return nil
}
