//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/store"
	"github.com/quizgen/quizgen-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return testdb.Open(t, func(ctx context.Context, db *sql.DB) error {
		return Migrate(ctx, db, "up", nil)
	})
}

func TestIntegrationQuestionLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		questions := NewPostgresQuestionStore(tx, nil)
		explanations := NewPostgresExplanationStore(tx, nil)
		bank := uuid.New()

		q, err := domain.NewQuestion(bank, domain.QuestionTypeFillBlank, "The capital of France is ___.", "Paris", nil)
		require.NoError(t, err)
		require.NoError(t, questions.Create(ctx, q))

		dup, err := domain.NewQuestion(bank, domain.QuestionTypeFillBlank, q.Text, "Paris", nil)
		require.NoError(t, err)
		exists, err := questions.Exists(ctx, dup)
		require.NoError(t, err)
		assert.True(t, exists)

		other, err := domain.NewQuestion(uuid.Nil, domain.QuestionTypeFillBlank, q.Text, "Paris", nil)
		require.NoError(t, err)
		exists, err = questions.Exists(ctx, other)
		require.NoError(t, err)
		assert.False(t, exists, "same text in another bank is not a duplicate")

		e, err := domain.NewExplanation(q.ID, "Paris has been the capital since 987.", 0)
		require.NoError(t, err)
		require.NoError(t, explanations.Upsert(ctx, e))

		got, err := questions.GetByID(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, e.Content, got.Explanation)

		n, err := questions.ClearBank(ctx, bank)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = explanations.GetByQuestionID(ctx, q.ID)
		assert.ErrorIs(t, err, store.ErrExplanationNotFound)
	})
}

func TestIntegrationDuplicateInsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		questions := NewPostgresQuestionStore(tx, nil)

		q, err := domain.NewQuestion(uuid.Nil, domain.QuestionTypeShortAnswer, "Define entropy.", "Disorder", nil)
		require.NoError(t, err)
		require.NoError(t, questions.Create(ctx, q))

		again, err := domain.NewQuestion(uuid.Nil, domain.QuestionTypeShortAnswer, "Define entropy.", "Disorder", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, questions.Create(ctx, again), store.ErrQuestionExists)
	})
}
