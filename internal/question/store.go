package question

import (
	"context"
	"errors"
	"fmt"

	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/rbac"
	"github.com/jackc/pgx/v5"
)

// Store handles question persistence. Multi-row writes expect q to be a
// transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const questionColumns = `q.id, q.subject_name, q.topic, COALESCE(q.difficulty, ''), q.score, q.body, q.kind, q.creator_id, q.created_at`

// scopeFilter matches the rows of an rbac.Scope given as $1..$3.
const scopeFilter = `($1 OR q.creator_id = $2 OR q.subject_name = ANY($3))`

func scopeArgs(s rbac.Scope) []any {
	subjects := s.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return []any{s.All, s.CreatorID, subjects}
}

func scanQuestion(row pgx.Row) (*Question, error) {
	var q Question
	if err := row.Scan(&q.ID, &q.SubjectName, &q.Topic, &q.Difficulty, &q.Score,
		&q.Body, &q.Kind, &q.CreatorID, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.Choices = []Choice{}
	return &q, nil
}

func (s *Store) GetByID(ctx context.Context, q database.Querier, id int64) (*Question, error) {
	question, err := scanQuestion(q.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting question: %w", err)
	}
	if err := s.attachChoices(ctx, q, []*Question{question}); err != nil {
		return nil, err
	}
	return question, nil
}

// List returns the questions inside scope, newest first, with choices.
func (s *Store) List(ctx context.Context, q database.Querier, scope rbac.Scope) ([]*Question, error) {
	rows, err := q.Query(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE `+scopeFilter+` ORDER BY q.id DESC`,
		scopeArgs(scope)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	questions := []*Question{}
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating questions: %w", err)
	}

	if err := s.attachChoices(ctx, q, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// IDs returns the ids of the questions inside scope in ascending order.
func (s *Store) IDs(ctx context.Context, q database.Querier, scope rbac.Scope) ([]int64, error) {
	rows, err := q.Query(ctx,
		`SELECT q.id FROM questions q WHERE `+scopeFilter+` ORDER BY q.id`,
		scopeArgs(scope)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing question ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scanning question ids: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// Lister binds the store to q as an rbac.QuestionLister.
func (s *Store) Lister(q database.Querier) rbac.QuestionLister {
	return lister{store: s, q: q}
}

type lister struct {
	store *Store
	q     database.Querier
}

func (l lister) IDs(ctx context.Context, scope rbac.Scope) ([]int64, error) {
	return l.store.IDs(ctx, l.q, scope)
}

// Create inserts a validated question and its choices.
func (s *Store) Create(ctx context.Context, q database.Querier, in Input, creatorID int64) (*Question, error) {
	question, err := scanQuestion(q.QueryRow(ctx,
		`INSERT INTO questions AS q (subject_name, topic, difficulty, score, body, kind, creator_id)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		 RETURNING `+questionColumns,
		in.SubjectName, in.Topic, in.Difficulty, *in.Score, in.Body, in.Kind, creatorID,
	))
	if err != nil {
		return nil, fmt.Errorf("creating question: %w", err)
	}

	if err := s.insertChoices(ctx, q, question.ID, in.Choices); err != nil {
		return nil, err
	}
	question.Choices = in.Choices
	return question, nil
}

// Update replaces the question's fields and choices. The creator never
// changes.
func (s *Store) Update(ctx context.Context, q database.Querier, id int64, in Input) (*Question, error) {
	question, err := scanQuestion(q.QueryRow(ctx,
		`UPDATE questions AS q SET
		     subject_name = $2, topic = $3, difficulty = NULLIF($4, ''),
		     score = $5, body = $6, kind = $7
		 WHERE q.id = $1
		 RETURNING `+questionColumns,
		id, in.SubjectName, in.Topic, in.Difficulty, *in.Score, in.Body, in.Kind,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating question: %w", err)
	}

	if _, err := q.Exec(ctx, "DELETE FROM question_choices WHERE question_id = $1", id); err != nil {
		return nil, fmt.Errorf("clearing choices: %w", err)
	}
	if err := s.insertChoices(ctx, q, id, in.Choices); err != nil {
		return nil, err
	}
	question.Choices = in.Choices
	return question, nil
}

// Delete removes a question and its choices. A question still used by an
// exam is reported as ErrInUse.
func (s *Store) Delete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, "DELETE FROM questions WHERE id = $1", id)
	if err != nil {
		if database.IsForeignKeyViolation(err, "exam_questions_question_id_fkey") {
			return ErrInUse
		}
		return fmt.Errorf("deleting question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) insertChoices(ctx context.Context, q database.Querier, questionID int64, choices []Choice) error {
	for i, c := range choices {
		_, err := q.Exec(ctx,
			`INSERT INTO question_choices (question_id, position, text, letter, is_correct)
			 VALUES ($1, $2, $3, $4, $5)`,
			questionID, i, c.Text, c.Letter, c.Correct,
		)
		if err != nil {
			return fmt.Errorf("inserting choice: %w", err)
		}
	}
	return nil
}

func (s *Store) attachChoices(ctx context.Context, q database.Querier, questions []*Question) error {
	if len(questions) == 0 {
		return nil
	}
	byID := make(map[int64]*Question, len(questions))
	ids := make([]int64, 0, len(questions))
	for _, question := range questions {
		byID[question.ID] = question
		ids = append(ids, question.ID)
	}

	rows, err := q.Query(ctx,
		`SELECT question_id, text, letter, is_correct FROM question_choices
		 WHERE question_id = ANY($1)
		 ORDER BY question_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("listing choices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var questionID int64
		var c Choice
		if err := rows.Scan(&questionID, &c.Text, &c.Letter, &c.Correct); err != nil {
			return fmt.Errorf("scanning choice: %w", err)
		}
		if question, ok := byID[questionID]; ok {
			question.Choices = append(question.Choices, c)
		}
	}
	return rows.Err()
}
