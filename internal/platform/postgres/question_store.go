package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
	"github.com/quizgen/quizgen-api/internal/store"
)

// PostgresQuestionStore implements the store.QuestionStore interface
// using a PostgreSQL database as the storage backend.
type PostgresQuestionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresQuestionStore creates a question store over db, which may be a
// *sql.DB or a *sql.Tx. If logger is nil, a default logger will be used.
func NewPostgresQuestionStore(db store.DBTX, logger *slog.Logger) *PostgresQuestionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQuestionStore{
		db:     db,
		logger: logger.With(slog.String("component", "question_store")),
	}
}

var _ store.QuestionStore = (*PostgresQuestionStore)(nil)

// nullableBank maps the "no bank" sentinel to SQL NULL.
func nullableBank(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// Exists implements store.QuestionStore.Exists. The text comparison mirrors
// the uq_questions_bank_text index.
func (s *PostgresQuestionStore) Exists(ctx context.Context, q *domain.Question) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM questions
			WHERE id = $1
			   OR (COALESCE(bank_id, '00000000-0000-0000-0000-000000000000'::uuid) = $2
			       AND md5(text) = md5($3))
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, q.ID, q.BankID, q.Text).Scan(&exists); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to check question existence",
			slog.String("error", err.Error()),
			slog.String("question_id", q.ID.String()))
		return false, fmt.Errorf("failed to check question existence: %w", MapError(err))
	}
	return exists, nil
}

// Create implements store.QuestionStore.Create.
func (s *PostgresQuestionStore) Create(ctx context.Context, q *domain.Question) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := q.Validate(); err != nil {
		log.Warn("question validation failed during create",
			slog.String("error", err.Error()),
			slog.String("question_id", q.ID.String()))
		return err
	}

	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
		INSERT INTO questions (id, bank_id, type, text, options, answer, explanation, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		q.ID,
		nullableBank(q.BankID),
		string(q.Type),
		q.Text,
		options,
		q.Answer,
		q.Explanation,
		tags,
		q.CreatedAt,
		q.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("question already exists", slog.String("question_id", q.ID.String()))
			return store.ErrQuestionExists
		}
		log.Error("failed to create question",
			slog.String("error", err.Error()),
			slog.String("question_id", q.ID.String()))
		return fmt.Errorf("failed to create question: %w", MapError(err))
	}
	return nil
}

// GetByID implements store.QuestionStore.GetByID.
func (s *PostgresQuestionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	query := `
		SELECT id, bank_id, type, text, options, answer, explanation, tags, created_at, updated_at
		FROM questions
		WHERE id = $1
	`
	var (
		q       domain.Question
		bankID  uuid.NullUUID
		qType   string
		options []byte
		tags    []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&q.ID,
		&bankID,
		&qType,
		&q.Text,
		&options,
		&q.Answer,
		&q.Explanation,
		&tags,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrQuestionNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get question by ID",
			slog.String("error", err.Error()),
			slog.String("question_id", id.String()))
		return nil, fmt.Errorf("failed to get question: %w", MapError(err))
	}

	if bankID.Valid {
		q.BankID = bankID.UUID
	}
	q.Type = domain.QuestionType(qType)
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	if err := json.Unmarshal(tags, &q.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return &q, nil
}

// ClearBank implements store.QuestionStore.ClearBank. Explanations of the
// removed questions go with them in the same transaction.
func (s *PostgresQuestionStore) ClearBank(ctx context.Context, bankID uuid.UUID) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var removed int64
	deleteBank := func(ctx context.Context, db store.DBTX) error {
		var bankClause string
		args := []any{}
		if bankID == uuid.Nil {
			bankClause = "bank_id IS NULL"
		} else {
			bankClause = "bank_id = $1"
			args = append(args, bankID)
		}

		_, err := db.ExecContext(ctx,
			"DELETE FROM explanations WHERE question_id IN (SELECT id FROM questions WHERE "+bankClause+")",
			args...)
		if err != nil {
			return fmt.Errorf("failed to delete explanations: %w", MapError(err))
		}
		res, err := db.ExecContext(ctx, "DELETE FROM questions WHERE "+bankClause, args...)
		if err != nil {
			return fmt.Errorf("failed to delete questions: %w", MapError(err))
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	}

	var err error
	if runner, ok := s.db.(store.TxRunner); ok {
		err = store.RunInTransaction(ctx, runner, func(ctx context.Context, tx *sql.Tx) error {
			return deleteBank(ctx, tx)
		})
	} else {
		err = deleteBank(ctx, s.db)
	}
	if err != nil {
		log.Error("failed to clear bank",
			slog.String("error", err.Error()),
			slog.String("bank_id", bankID.String()))
		return 0, store.NewStoreError("question", "clear", "bank clear failed", err)
	}

	log.Info("bank cleared",
		slog.String("bank_id", bankID.String()),
		slog.Int64("removed", removed))
	return removed, nil
}

// WithTx implements store.QuestionStore.WithTx.
func (s *PostgresQuestionStore) WithTx(tx *sql.Tx) store.QuestionStore {
	return &PostgresQuestionStore{db: tx, logger: s.logger}
}
