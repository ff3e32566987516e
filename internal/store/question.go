package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
)

// QuestionStore defines the interface for question persistence. The import
// pipeline only needs the calls below; question CRUD lives elsewhere.
// Version: 1.0
type QuestionStore interface {
	// Exists reports whether q would be a duplicate. The uniqueness key is
	// the question ID, or the question text within the same bank.
	Exists(ctx context.Context, q *domain.Question) (bool, error)

	// Create saves a new question.
	// Returns ErrQuestionExists if the uniqueness key is already taken and
	// validation errors from the domain Question if data is invalid.
	Create(ctx context.Context, q *domain.Question) error

	// GetByID retrieves a question by its unique ID.
	// Returns ErrQuestionNotFound if the question does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Question, error)

	// ClearBank deletes every question of a bank and returns how many were
	// removed. uuid.Nil clears questions that belong to no bank.
	ClearBank(ctx context.Context, bankID uuid.UUID) (int64, error)

	// WithTx returns a new QuestionStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) QuestionStore
}
