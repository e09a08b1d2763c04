package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/jackc/pgx/v5"
)

// SubjectStore handles subject persistence and teacher association.
type SubjectStore struct{}

func NewSubjectStore() *SubjectStore {
	return &SubjectStore{}
}

const subjectColumns = `s.id, s.name, s.description, s.active, s.created_at`

func (s *SubjectStore) Create(ctx context.Context, q database.Querier, in SubjectInput) (*Subject, error) {
	sub, err := scanSubject(q.QueryRow(ctx,
		`INSERT INTO subjects AS s (name, description, active) VALUES ($1, $2, $3)
		 RETURNING `+subjectColumns,
		in.Name, in.Description, in.Active,
	))
	if err != nil {
		if database.IsUniqueViolation(err, "subjects_name_key") {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNameTaken, in.Name)
		}
		return nil, fmt.Errorf("creating subject: %w", err)
	}
	return sub, nil
}

// GetByID returns a subject with its teachers.
func (s *SubjectStore) GetByID(ctx context.Context, q database.Querier, id int64) (*Subject, error) {
	subjects, err := s.list(ctx, q, "WHERE s.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrSubjectNotFound
	}
	return &subjects[0], nil
}

// Update renames or (de)activates a subject. Questions keep the subject
// name they were written with.
func (s *SubjectStore) Update(ctx context.Context, q database.Querier, id int64, in SubjectInput) (*Subject, error) {
	sub, err := scanSubject(q.QueryRow(ctx,
		`UPDATE subjects AS s SET name = $2, description = $3, active = COALESCE($4, s.active)
		 WHERE s.id = $1
		 RETURNING `+subjectColumns,
		id, in.Name, in.Description, in.Active,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubjectNotFound
		}
		if database.IsUniqueViolation(err, "subjects_name_key") {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNameTaken, in.Name)
		}
		return nil, fmt.Errorf("updating subject: %w", err)
	}
	return sub, nil
}

func (s *SubjectStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, "DELETE FROM subjects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubjectNotFound
	}
	return nil
}

// List returns subjects ordered by name, each with its teachers.
func (s *SubjectStore) List(ctx context.Context, q database.Querier, activeOnly bool) ([]Subject, error) {
	if activeOnly {
		return s.list(ctx, q, "WHERE s.active")
	}
	return s.list(ctx, q, "")
}

// Associate links a teacher to a subject. It reports false when the link
// already existed.
func (s *SubjectStore) Associate(ctx context.Context, q database.Querier, subjectID, teacherID int64) (bool, error) {
	tag, err := q.Exec(ctx,
		"INSERT INTO teacher_subjects (teacher_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		teacherID, subjectID,
	)
	if err != nil {
		return false, fmt.Errorf("associating teacher: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Disassociate removes the link. It reports false when there was none.
func (s *SubjectStore) Disassociate(ctx context.Context, q database.Querier, subjectID, teacherID int64) (bool, error) {
	tag, err := q.Exec(ctx,
		"DELETE FROM teacher_subjects WHERE teacher_id = $1 AND subject_id = $2",
		teacherID, subjectID,
	)
	if err != nil {
		return false, fmt.Errorf("disassociating teacher: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *SubjectStore) list(ctx context.Context, q database.Querier, where string, args ...any) ([]Subject, error) {
	rows, err := q.Query(ctx,
		`SELECT `+subjectColumns+`, p.id, p.display_name, p.login_name
		 FROM subjects s
		 LEFT JOIN teacher_subjects ts ON ts.subject_id = s.id
		 LEFT JOIN principals p ON p.id = ts.teacher_id
		 `+where+`
		 ORDER BY s.name, s.id, p.display_name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}
	defer rows.Close()

	subjects := []Subject{}
	for rows.Next() {
		var sub Subject
		var teacherID *int64
		var teacherName, teacherLogin *string
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Active, &sub.CreatedAt,
			&teacherID, &teacherName, &teacherLogin); err != nil {
			return nil, fmt.Errorf("scanning subject: %w", err)
		}
		if n := len(subjects); n == 0 || subjects[n-1].ID != sub.ID {
			sub.Teachers = []TeacherSummary{}
			subjects = append(subjects, sub)
		}
		if teacherID != nil {
			last := &subjects[len(subjects)-1]
			last.Teachers = append(last.Teachers, TeacherSummary{ID: *teacherID, DisplayName: *teacherName, LoginName: *teacherLogin})
		}
	}
	return subjects, rows.Err()
}

func scanSubject(row pgx.Row) (*Subject, error) {
	sub := Subject{Teachers: []TeacherSummary{}}
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Active, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
