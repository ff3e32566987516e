package mocks

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/store"
)

// MockQuestionStore implements store.QuestionStore for testing. Without
// overrides it behaves like the Postgres store: questions are unique by ID
// and by text within a bank.
type MockQuestionStore struct {
	ExistsFn    func(ctx context.Context, q *domain.Question) (bool, error)
	CreateFn    func(ctx context.Context, q *domain.Question) error
	GetByIDFn   func(ctx context.Context, id uuid.UUID) (*domain.Question, error)
	ClearBankFn func(ctx context.Context, bankID uuid.UUID) (int64, error)

	mu        sync.Mutex
	questions map[uuid.UUID]*domain.Question

	// ClearBankCalls records the bank of every ClearBank call.
	ClearBankCalls []uuid.UUID
	// CreateCalls counts Create calls, including rejected ones.
	CreateCalls int
}

var _ store.QuestionStore = (*MockQuestionStore)(nil)

// NewMockQuestionStore creates a mock seeded with questions.
func NewMockQuestionStore(seed ...*domain.Question) *MockQuestionStore {
	m := &MockQuestionStore{questions: make(map[uuid.UUID]*domain.Question)}
	for _, q := range seed {
		m.questions[q.ID] = q
	}
	return m
}

func (m *MockQuestionStore) duplicateLocked(q *domain.Question) bool {
	if _, ok := m.questions[q.ID]; ok {
		return true
	}
	text := strings.TrimSpace(q.Text)
	for _, existing := range m.questions {
		if existing.BankID == q.BankID && strings.TrimSpace(existing.Text) == text {
			return true
		}
	}
	return false
}

// Exists implements store.QuestionStore.
func (m *MockQuestionStore) Exists(ctx context.Context, q *domain.Question) (bool, error) {
	if m.ExistsFn != nil {
		return m.ExistsFn(ctx, q)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duplicateLocked(q), nil
}

// Create implements store.QuestionStore.
func (m *MockQuestionStore) Create(ctx context.Context, q *domain.Question) error {
	m.mu.Lock()
	m.CreateCalls++
	m.mu.Unlock()

	if m.CreateFn != nil {
		return m.CreateFn(ctx, q)
	}
	if err := q.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicateLocked(q) {
		return store.ErrQuestionExists
	}
	m.questions[q.ID] = q
	return nil
}

// GetByID implements store.QuestionStore.
func (m *MockQuestionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, store.ErrQuestionNotFound
	}
	return q, nil
}

// ClearBank implements store.QuestionStore.
func (m *MockQuestionStore) ClearBank(ctx context.Context, bankID uuid.UUID) (int64, error) {
	m.mu.Lock()
	m.ClearBankCalls = append(m.ClearBankCalls, bankID)
	m.mu.Unlock()

	if m.ClearBankFn != nil {
		return m.ClearBankFn(ctx, bankID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, q := range m.questions {
		if q.BankID == bankID {
			delete(m.questions, id)
			removed++
		}
	}
	return removed, nil
}

// WithTx implements store.QuestionStore. The mock has no transactions.
func (m *MockQuestionStore) WithTx(*sql.Tx) store.QuestionStore {
	return m
}

// Len returns the number of stored questions.
func (m *MockQuestionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions)
}

// Questions returns the stored questions in no particular order.
func (m *MockQuestionStore) Questions() []*domain.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Question, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, q)
	}
	return out
}
