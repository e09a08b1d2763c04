// Package question stores multiple-choice and essay questions and serves
// them under the shared-subject visibility rule.
package question

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flavalia/avalia/internal/rbac"
)

var (
	ErrNotFound     = errors.New("question not found")
	ErrInUse        = errors.New("question is used by an exam")
	ErrInvalidInput = errors.New("invalid question")
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

type Kind string

const (
	KindMultipleChoice Kind = "MULTIPLE_CHOICE"
	KindEssay          Kind = "ESSAY"
)

// MinChoices is the fewest choices a question may have.
const MinChoices = 2

// DefaultScore is used when a question is written without one.
const DefaultScore = 1

type Choice struct {
	Text    string `json:"text"`
	Letter  string `json:"letter"`
	Correct bool   `json:"is_correct"`
}

type Question struct {
	ID          int64      `json:"id"`
	SubjectName string     `json:"subject_name"`
	Topic       string     `json:"topic"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
	Score       int        `json:"score"`
	Body        string     `json:"body"`
	Kind        Kind       `json:"kind"`
	CreatorID   int64      `json:"creator_id"`
	Choices     []Choice   `json:"choices"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Ref returns the authorization view of q.
func (q *Question) Ref() rbac.QuestionRef {
	return rbac.QuestionRef{ID: q.ID, CreatorID: q.CreatorID, SubjectName: q.SubjectName}
}

// Input is the writable part of a question.
type Input struct {
	SubjectName string     `json:"subject_name"`
	Topic       string     `json:"topic"`
	Difficulty  Difficulty `json:"difficulty"`
	Score       *int       `json:"score"`
	Body        string     `json:"body"`
	Kind        Kind       `json:"kind"`
	Choices     []Choice   `json:"choices"`
}

// Validate normalizes in and fills defaults: score 1, kind
// MULTIPLE_CHOICE and choice letters A, B, C… by position.
func (in *Input) Validate() error {
	in.SubjectName = strings.TrimSpace(in.SubjectName)
	in.Topic = strings.TrimSpace(in.Topic)
	in.Body = strings.TrimSpace(in.Body)

	switch {
	case in.SubjectName == "":
		return fmt.Errorf("%w: subject_name is required", ErrInvalidInput)
	case in.Body == "":
		return fmt.Errorf("%w: body is required", ErrInvalidInput)
	case len(in.Choices) < MinChoices:
		return fmt.Errorf("%w: at least %d choices are required", ErrInvalidInput, MinChoices)
	}

	switch in.Difficulty {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, in.Difficulty)
	}

	switch in.Kind {
	case "":
		in.Kind = KindMultipleChoice
	case KindMultipleChoice, KindEssay:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}

	if in.Score == nil {
		score := DefaultScore
		in.Score = &score
	} else if *in.Score < 0 {
		return fmt.Errorf("%w: score must not be negative", ErrInvalidInput)
	}

	for i := range in.Choices {
		c := &in.Choices[i]
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			return fmt.Errorf("%w: choice %d has no text", ErrInvalidInput, i+1)
		}
		c.Letter = strings.TrimSpace(c.Letter)
		if c.Letter == "" {
			c.Letter = letterFor(i)
		}
	}
	return nil
}

// letterFor returns A..Z, then AA, AB… for positions past Z.
func letterFor(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return letterFor(i/26-1) + letterFor(i%26)
}
