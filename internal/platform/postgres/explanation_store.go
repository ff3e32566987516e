package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
	"github.com/quizgen/quizgen-api/internal/store"
)

// PostgresExplanationStore implements store.ExplanationStore.
type PostgresExplanationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresExplanationStore creates an explanation store over db.
func NewPostgresExplanationStore(db store.DBTX, logger *slog.Logger) *PostgresExplanationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresExplanationStore{
		db:     db,
		logger: logger.With(slog.String("component", "explanation_store")),
	}
}

var _ store.ExplanationStore = (*PostgresExplanationStore)(nil)

// Upsert implements store.ExplanationStore.Upsert.
func (s *PostgresExplanationStore) Upsert(ctx context.Context, e *domain.Explanation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO explanations (question_id, content, credential_index, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (question_id) DO UPDATE
		SET content = EXCLUDED.content,
		    credential_index = EXCLUDED.credential_index,
		    generated_at = EXCLUDED.generated_at
	`
	_, err := s.db.ExecContext(ctx, query, e.QuestionID, e.Content, e.CredentialIndex, e.GeneratedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("explanation for unknown question",
				slog.String("question_id", e.QuestionID.String()))
			return store.ErrQuestionNotFound
		}
		log.Error("failed to upsert explanation",
			slog.String("error", err.Error()),
			slog.String("question_id", e.QuestionID.String()))
		return fmt.Errorf("failed to upsert explanation: %w", MapError(err))
	}

	// Keep the denormalized copy on the question in step.
	res, err := s.db.ExecContext(ctx,
		"UPDATE questions SET explanation = $1, updated_at = $2 WHERE id = $3",
		e.Content, e.GeneratedAt, e.QuestionID)
	if err != nil {
		return fmt.Errorf("failed to update question explanation: %w", MapError(err))
	}
	return CheckRowsAffected(res, store.ErrQuestionNotFound)
}

// GetByQuestionID implements store.ExplanationStore.GetByQuestionID.
func (s *PostgresExplanationStore) GetByQuestionID(ctx context.Context, questionID uuid.UUID) (*domain.Explanation, error) {
	query := `
		SELECT question_id, content, credential_index, generated_at
		FROM explanations
		WHERE question_id = $1
	`
	var e domain.Explanation
	err := s.db.QueryRowContext(ctx, query, questionID).
		Scan(&e.QuestionID, &e.Content, &e.CredentialIndex, &e.GeneratedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrExplanationNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get explanation",
			slog.String("error", err.Error()),
			slog.String("question_id", questionID.String()))
		return nil, fmt.Errorf("failed to get explanation: %w", MapError(err))
	}
	return &e, nil
}
