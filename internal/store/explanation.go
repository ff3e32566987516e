package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
)

// ExplanationStore persists generated explanations, one per question.
// Version: 1.0
type ExplanationStore interface {
	// Upsert stores e, replacing any earlier explanation for the same question.
	// Returns ErrQuestionNotFound if the question does not exist.
	Upsert(ctx context.Context, e *domain.Explanation) error

	// GetByQuestionID returns the explanation for a question.
	// Returns ErrExplanationNotFound if none has been generated.
	GetByQuestionID(ctx context.Context, questionID uuid.UUID) (*domain.Explanation, error)
}
