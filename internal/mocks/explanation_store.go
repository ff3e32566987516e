package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/store"
)

// MockExplanationStore implements store.ExplanationStore for testing.
type MockExplanationStore struct {
	UpsertFn          func(ctx context.Context, e *domain.Explanation) error
	GetByQuestionIDFn func(ctx context.Context, questionID uuid.UUID) (*domain.Explanation, error)

	mu           sync.Mutex
	explanations map[uuid.UUID]*domain.Explanation
	upserted     chan *domain.Explanation
}

var _ store.ExplanationStore = (*MockExplanationStore)(nil)

// NewMockExplanationStore creates an empty mock.
func NewMockExplanationStore() *MockExplanationStore {
	return &MockExplanationStore{
		explanations: make(map[uuid.UUID]*domain.Explanation),
		upserted:     make(chan *domain.Explanation, 16),
	}
}

// Upserted delivers every explanation passed to Upsert, so tests can wait
// for writes made from completion handlers.
func (m *MockExplanationStore) Upserted() <-chan *domain.Explanation {
	return m.upserted
}

// Upsert implements store.ExplanationStore.
func (m *MockExplanationStore) Upsert(ctx context.Context, e *domain.Explanation) error {
	defer func() {
		select {
		case m.upserted <- e:
		default:
		}
	}()
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explanations[e.QuestionID] = e
	return nil
}

// GetByQuestionID implements store.ExplanationStore.
func (m *MockExplanationStore) GetByQuestionID(ctx context.Context, questionID uuid.UUID) (*domain.Explanation, error) {
	if m.GetByQuestionIDFn != nil {
		return m.GetByQuestionIDFn(ctx, questionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.explanations[questionID]
	if !ok {
		return nil, store.ErrExplanationNotFound
	}
	return e, nil
}
