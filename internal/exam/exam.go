// Package exam assembles questions into exams.
package exam

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flavalia/avalia/internal/rbac"
)

var (
	ErrNotFound         = errors.New("exam not found")
	ErrInvalidInput     = errors.New("invalid exam")
	ErrNoQuestions      = errors.New("an exam needs at least one question")
	ErrQuestionsMissing = errors.New("some questions were not found")
)

// Exam is an ordered set of questions. A nil CreatorID marks an exam
// written by an administrator.
type Exam struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	ClassName       string    `json:"class_name"`
	InstitutionName string    `json:"institution_name"`
	CreatorID       *int64    `json:"creator_id"`
	QuestionIDs     []int64   `json:"question_ids"`
	CreatedAt       time.Time `json:"created_at"`
}

func (e *Exam) Ref() rbac.ExamRef {
	return rbac.ExamRef{ID: e.ID, CreatorID: e.CreatorID}
}

// Input is the writable part of an exam.
type Input struct {
	Title           string  `json:"title"`
	ClassName       string  `json:"class_name"`
	InstitutionName string  `json:"institution_name"`
	QuestionIDs     []int64 `json:"question_ids"`
}

// Validate trims text fields and drops repeated question ids, keeping the
// first occurrence.
func (in *Input) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.ClassName = strings.TrimSpace(in.ClassName)
	in.InstitutionName = strings.TrimSpace(in.InstitutionName)

	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(in.QuestionIDs) == 0 {
		return ErrNoQuestions
	}

	seen := make(map[int64]struct{}, len(in.QuestionIDs))
	ids := in.QuestionIDs[:0]
	for _, id := range in.QuestionIDs {
		if id <= 0 {
			return fmt.Errorf("%w: invalid question id %d", ErrInvalidInput, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	in.QuestionIDs = ids
	return nil
}
