package exam

import (
	"context"
	"errors"
	"fmt"

	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/rbac"
	"github.com/jackc/pgx/v5"
)

// Store handles exam persistence. Create and Update expect q to be a
// transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const examColumns = `e.id, e.title, e.class_name, e.institution_name, e.creator_id, e.created_at`

func scanExam(row pgx.Row) (*Exam, error) {
	var e Exam
	if err := row.Scan(&e.ID, &e.Title, &e.ClassName, &e.InstitutionName, &e.CreatorID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.QuestionIDs = []int64{}
	return &e, nil
}

func (s *Store) GetByID(ctx context.Context, q database.Querier, id int64) (*Exam, error) {
	e, err := scanExam(q.QueryRow(ctx, `SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting exam: %w", err)
	}
	if err := s.attachQuestions(ctx, q, []*Exam{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns the exams inside scope, newest first.
func (s *Store) List(ctx context.Context, q database.Querier, scope rbac.Scope) ([]*Exam, error) {
	rows, err := q.Query(ctx,
		`SELECT `+examColumns+` FROM exams e
		 WHERE ($1 OR e.creator_id = $2)
		 ORDER BY e.id DESC`,
		scope.All, scope.CreatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing exams: %w", err)
	}
	defer rows.Close()

	exams := []*Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning exam: %w", err)
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exams: %w", err)
	}

	if err := s.attachQuestions(ctx, q, exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// Create inserts a validated exam. Every question id must exist.
func (s *Store) Create(ctx context.Context, q database.Querier, in Input, creatorID *int64) (*Exam, error) {
	if err := s.requireQuestions(ctx, q, in.QuestionIDs); err != nil {
		return nil, err
	}

	e, err := scanExam(q.QueryRow(ctx,
		`INSERT INTO exams AS e (title, class_name, institution_name, creator_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+examColumns,
		in.Title, in.ClassName, in.InstitutionName, creatorID,
	))
	if err != nil {
		return nil, fmt.Errorf("creating exam: %w", err)
	}

	if err := s.linkQuestions(ctx, q, e.ID, in.QuestionIDs); err != nil {
		return nil, err
	}
	e.QuestionIDs = in.QuestionIDs
	return e, nil
}

// Update replaces an exam's fields and question set. The creator never
// changes.
func (s *Store) Update(ctx context.Context, q database.Querier, id int64, in Input) (*Exam, error) {
	if err := s.requireQuestions(ctx, q, in.QuestionIDs); err != nil {
		return nil, err
	}

	e, err := scanExam(q.QueryRow(ctx,
		`UPDATE exams AS e SET title = $2, class_name = $3, institution_name = $4
		 WHERE e.id = $1
		 RETURNING `+examColumns,
		id, in.Title, in.ClassName, in.InstitutionName,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating exam: %w", err)
	}

	if _, err := q.Exec(ctx, "DELETE FROM exam_questions WHERE exam_id = $1", id); err != nil {
		return nil, fmt.Errorf("clearing exam questions: %w", err)
	}
	if err := s.linkQuestions(ctx, q, id, in.QuestionIDs); err != nil {
		return nil, err
	}
	e.QuestionIDs = in.QuestionIDs
	return e, nil
}

func (s *Store) Delete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, "DELETE FROM exams WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) requireQuestions(ctx context.Context, q database.Querier, ids []int64) error {
	if len(ids) == 0 {
		return ErrNoQuestions
	}
	var found int
	if err := q.QueryRow(ctx, "SELECT count(*) FROM questions WHERE id = ANY($1)", ids).Scan(&found); err != nil {
		return fmt.Errorf("checking exam questions: %w", err)
	}
	if found != len(ids) {
		return fmt.Errorf("%w: %d of %d", ErrQuestionsMissing, len(ids)-found, len(ids))
	}
	return nil
}

func (s *Store) linkQuestions(ctx context.Context, q database.Querier, examID int64, ids []int64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO exam_questions (exam_id, question_id, position)
		 SELECT $1, id, ord - 1 FROM unnest($2::BIGINT[]) WITH ORDINALITY AS t(id, ord)`,
		examID, ids,
	)
	if err != nil {
		return fmt.Errorf("linking exam questions: %w", err)
	}
	return nil
}

func (s *Store) attachQuestions(ctx context.Context, q database.Querier, exams []*Exam) error {
	if len(exams) == 0 {
		return nil
	}
	byID := make(map[int64]*Exam, len(exams))
	ids := make([]int64, 0, len(exams))
	for _, e := range exams {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	rows, err := q.Query(ctx,
		`SELECT exam_id, question_id FROM exam_questions
		 WHERE exam_id = ANY($1)
		 ORDER BY exam_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("listing exam questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var examID, questionID int64
		if err := rows.Scan(&examID, &questionID); err != nil {
			return fmt.Errorf("scanning exam question: %w", err)
		}
		if e, ok := byID[examID]; ok {
			e.QuestionIDs = append(e.QuestionIDs, questionID)
		}
	}
	return rows.Err()
}
