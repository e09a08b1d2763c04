// Package assistant drafts multiple-choice questions for teachers using a
// hosted language model.
package assistant

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrEmptyMessage  = errors.New("message must not be empty")
	ErrNotConfigured = errors.New("assistant is not configured")
	// ErrUpstream wraps every failure reported by the model provider.
	ErrUpstream = errors.New("assistant provider failed")
)

const systemPrompt = `You are the Avalia question assistant. You write multiple-choice questions for academic exams.

Rules:
- Write objective, well-formed questions with four or five choices.
- Always state which choice is correct.
- Match the requested difficulty: EASY, MEDIUM or HARD.
- Cover whatever subject or topic the teacher asks for.

Answer in this format:

**Question:** <question text>

**Choices:**
a) <choice>
b) <choice>
c) <choice>
d) <choice>
e) <choice> (optional)

**Correct answer:** <letter>

**Difficulty:** <EASY|MEDIUM|HARD>

Stay polite and professional and keep the focus on pedagogical quality.`

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service turns a teacher's request into a prompt for the Generator.
// A Service without a Generator is disabled.
type Service struct {
	gen   Generator
	model string
}

func NewService(gen Generator, model string) *Service {
	return &Service{gen: gen, model: model}
}

// Enabled reports whether a Generator is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.gen != nil
}

func (s *Service) Model() string {
	if s == nil {
		return ""
	}
	return s.model
}

// Chat sends message, wrapped in the question-writing instructions, to the
// Generator and returns its reply.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	return s.gen.Generate(ctx, Prompt(message))
}

// Prompt returns the full text sent to the model for message.
func Prompt(message string) string {
	return systemPrompt + "\n\nTeacher: " + message
}
