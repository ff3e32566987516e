package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/generation"
	"github.com/quizgen/quizgen-api/internal/mocks"
	"github.com/quizgen/quizgen-api/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var questionNumber = regexp.MustCompile(`Q(\d+)`)

// modelStub plays the language model: for every "Qn" in the chunk it returns
// one question, unless n is listed in garbage. With a delay set, each call
// takes that long and its span is recorded under the chunk's first question.
type modelStub struct {
	mu          sync.Mutex
	calls       int
	garbage     map[string]bool
	status      map[string]int
	delay       time.Duration
	inFlight    int
	maxInFlight int
	spans       map[string]callSpan
}

type callSpan struct {
	start, end time.Time
}

func (m *modelStub) Complete(_ context.Context, _ scheduler.Credential, req generation.ChatRequest) (*generation.ChatResponse, error) {
	chunk := req.Messages[len(req.Messages)-1].Content
	first := ""
	if match := questionNumber.FindStringSubmatch(chunk); match != nil {
		first = match[1]
	}

	m.mu.Lock()
	m.calls++
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	span := callSpan{start: time.Now()}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.inFlight--
	span.end = time.Now()
	if m.spans != nil {
		m.spans[first] = span
	}
	m.mu.Unlock()

	var items []string
	for _, match := range questionNumber.FindAllStringSubmatch(chunk, -1) {
		n := match[1]
		if m.garbage[n] {
			return reply("Sorry, I cannot format this content."), nil
		}
		if code, ok := m.status[n]; ok {
			return nil, &generation.ProviderError{StatusCode: code, Message: "rejected"}
		}
		items = append(items, fmt.Sprintf(
			`{"type":"single choice","text":"Q%s asks something","options":[{"letter":"A","text":"yes"},{"letter":"B","text":"no"}],"answer":"A"}`, n))
	}
	return reply("```json\n[" + strings.Join(items, ",") + "]\n```"), nil
}

func (m *modelStub) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func reply(content string) *generation.ChatResponse {
	return &generation.ChatResponse{Choices: []generation.Choice{
		{Message: generation.Message{Role: generation.RoleAssistant, Content: content}},
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, model scheduler.Transport) *scheduler.Scheduler {
	t.Helper()
	pool := scheduler.NewCredentialPool([]scheduler.Credential{
		{Name: "primary", Key: "sk-test-1234", Endpoint: "http://model.invalid/v1/chat/completions", Model: "test-model"},
	})
	s, err := scheduler.New(scheduler.Config{
		ThrottleWindow:       time.Minute,
		MaxRequestsPerWindow: 1000,
		ThrottleBackoff:      5 * time.Millisecond,
		MaxRetries:           2,
		RetryBaseDelay:       time.Millisecond,
		RequestTimeout:       time.Second,
		QueueSize:            100,
		ExecutorPoolSize:     4,
		ResultTTL:            time.Minute,
	}, pool, map[scheduler.Provider]scheduler.Transport{scheduler.ProviderOpenAI: model}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

type harness struct {
	orch      *Orchestrator
	model     *modelStub
	questions *mocks.MockQuestionStore
}

func testConfig(chunkSize int) Config {
	return Config{
		MaxConcurrent: 2,
		BatchDelay:    time.Millisecond,
		ChunkSize:     chunkSize,
		ResultTimeout: 5 * time.Second,
		ReapInterval:  time.Minute,
	}
}

func newHarness(t *testing.T, chunkSize int, questions *mocks.MockQuestionStore) *harness {
	t.Helper()
	return newHarnessWith(t, testConfig(chunkSize), questions, nil, &modelStub{})
}

// newHarnessWith builds a harness around cfg. A nil registry gets a fresh
// MemoryRegistry.
func newHarnessWith(t *testing.T, cfg Config, questions *mocks.MockQuestionStore, registry Registry, model *modelStub) *harness {
	t.Helper()
	if questions == nil {
		questions = mocks.NewMockQuestionStore()
	}
	if model.garbage == nil {
		model.garbage = map[string]bool{}
	}
	if model.status == nil {
		model.status = map[string]int{}
	}
	if registry == nil {
		registry = NewMemoryRegistry(time.Hour, 100, nil)
	}
	orch, err := NewOrchestrator(cfg, newTestScheduler(t, model), questions, registry, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return &harness{orch: orch, model: model, questions: questions}
}

// flakyRegistry fails chosen Update calls, counted from 1.
type flakyRegistry struct {
	*MemoryRegistry

	mu      sync.Mutex
	updates int
	failOn  map[int]bool
}

func (r *flakyRegistry) Update(ctx context.Context, id uuid.UUID, fn func(*ImportTask)) error {
	r.mu.Lock()
	r.updates++
	fail := r.failOn[r.updates]
	r.mu.Unlock()
	if fail {
		return errors.New("redis: connection reset")
	}
	return r.MemoryRegistry.Update(ctx, id, fn)
}

// bankText builds n question blocks, each long enough to need its own
// chunk at chunk size 60.
func bankText(n int) string {
	blocks := make([]string, n)
	for i := range blocks {
		blocks[i] = fmt.Sprintf("Single choice: Q%d what is the value?\nA. yes\nB. no\nAnswer: A", i+1)
	}
	return strings.Join(blocks, "\n")
}

// waitTerminal polls the task, checking the counter invariants on every
// snapshot, until it is terminal.
func waitTerminal(t *testing.T, o *Orchestrator, id uuid.UUID) *ImportTask {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, ok, err := o.Status(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, task.ProcessedChunks, task.SuccessfulChunks+task.FailedChunks)
		require.LessOrEqual(t, task.ProcessedChunks, task.TotalChunks)
		if task.Status.Terminal() {
			require.NotNil(t, task.EndedAt)
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("import task %s did not finish", id)
	return nil
}

func TestNewOrchestratorValidation(t *testing.T) {
	queue := newTestScheduler(t, &modelStub{})
	questions := mocks.NewMockQuestionStore()
	registry := NewMemoryRegistry(time.Hour, 10, nil)

	_, err := NewOrchestrator(Config{}, nil, questions, registry, nil)
	assert.ErrorIs(t, err, ErrNilQueue)
	_, err = NewOrchestrator(Config{}, queue, nil, registry, nil)
	assert.ErrorIs(t, err, ErrNilStore)
	_, err = NewOrchestrator(Config{}, queue, questions, nil, nil)
	assert.ErrorIs(t, err, ErrNilRegistry)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t, 1000, nil)

	_, err := h.orch.Submit(context.Background(), "   ", ModeAdd, uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = h.orch.Submit(context.Background(), bankText(1), Mode("merge"), uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestImportSingleChunk(t *testing.T) {
	h := newHarness(t, 10000, nil)
	bank := uuid.New()

	id, err := h.orch.Submit(context.Background(), bankText(3), ModeAdd, bank)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.TotalChunks)
	assert.Equal(t, 1, task.SuccessfulChunks)
	assert.Len(t, task.ImportedQuestions, 3)
	for _, q := range task.ImportedQuestions {
		assert.Equal(t, bank, q.BankID)
		assert.Equal(t, domain.QuestionTypeSingleChoice, q.Type)
	}
	assert.Equal(t, 3, h.questions.Len())
	assert.Equal(t, 1, h.model.Calls())
	assert.Empty(t, h.questions.ClearBankCalls, "add mode never clears")
}

func TestImportOneBadChunk(t *testing.T) {
	h := newHarness(t, 60, nil)
	h.model.garbage["3"] = true

	id, err := h.orch.Submit(context.Background(), bankText(5), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 5, task.TotalChunks)
	assert.Equal(t, 5, task.ProcessedChunks)
	assert.Equal(t, 4, task.SuccessfulChunks)
	assert.Equal(t, 1, task.FailedChunks)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0], "chunk 3:")
	assert.Len(t, task.ImportedQuestions, 4)
	assert.Empty(t, task.Error)
}

func TestImportProviderErrorFailsChunk(t *testing.T) {
	h := newHarness(t, 60, nil)
	h.model.status["2"] = 429

	id, err := h.orch.Submit(context.Background(), bankText(2), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.FailedChunks)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0], "provider")
	assert.Equal(t, 2, h.model.Calls(), "provider errors are not retried")
}

func TestImportReplaceClearFailure(t *testing.T) {
	questions := mocks.NewMockQuestionStore()
	questions.ClearBankFn = func(context.Context, uuid.UUID) (int64, error) {
		return 0, errors.New("database unavailable")
	}
	h := newHarness(t, 60, questions)

	id, err := h.orch.Submit(context.Background(), bankText(4), ModeReplace, uuid.New())
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Zero(t, task.ProcessedChunks)
	assert.Zero(t, task.TotalChunks)
	assert.Contains(t, task.Error, "failed to clear question bank")
	assert.Zero(t, h.model.Calls())
}

func TestImportReplaceClearsBankFirst(t *testing.T) {
	bank := uuid.New()
	old, err := domain.NewQuestion(bank, domain.QuestionTypeShortAnswer, "Old question", "old", nil)
	require.NoError(t, err)
	other, err := domain.NewQuestion(uuid.New(), domain.QuestionTypeShortAnswer, "Other bank", "kept", nil)
	require.NoError(t, err)
	questions := mocks.NewMockQuestionStore(old, other)
	h := newHarness(t, 60, questions)

	id, err := h.orch.Submit(context.Background(), bankText(2), ModeReplace, bank)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, []uuid.UUID{bank}, questions.ClearBankCalls)
	assert.Equal(t, 3, questions.Len(), "two imported plus the other bank's question")
}

func TestImportSkipsDuplicates(t *testing.T) {
	h := newHarness(t, 60, nil)

	first, err := h.orch.Submit(context.Background(), bankText(2), ModeAdd, uuid.Nil)
	require.NoError(t, err)
	task := waitTerminal(t, h.orch, first)
	assert.Len(t, task.ImportedQuestions, 2)

	second, err := h.orch.Submit(context.Background(), bankText(3), ModeAdd, uuid.Nil)
	require.NoError(t, err)
	task = waitTerminal(t, h.orch, second)

	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 3, task.SuccessfulChunks, "duplicates do not fail a chunk")
	assert.Len(t, task.ImportedQuestions, 1)
	assert.Equal(t, 3, h.questions.Len())
}

func TestImportStoreErrorsSkipCandidate(t *testing.T) {
	questions := mocks.NewMockQuestionStore()
	questions.CreateFn = func(context.Context, *domain.Question) error {
		return errors.New("disk full")
	}
	h := newHarness(t, 1000, questions)

	id, err := h.orch.Submit(context.Background(), bankText(2), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.SuccessfulChunks)
	assert.Empty(t, task.ImportedQuestions)
}

func TestStatusUnknownTask(t *testing.T) {
	h := newHarness(t, 1000, nil)
	task, ok, err := h.orch.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, task)
}

func TestShutdownRejectsNewImports(t *testing.T) {
	h := newHarness(t, 1000, nil)
	require.NoError(t, h.orch.Shutdown(context.Background()))

	_, err := h.orch.Submit(context.Background(), bankText(1), ModeAdd, uuid.Nil)
	assert.ErrorIs(t, err, ErrOrchestratorDown)
}

func TestShutdownTimeoutFailsRunningImport(t *testing.T) {
	block := make(chan struct{})
	model := scheduler.TransportFunc(func(ctx context.Context, _ scheduler.Credential, _ generation.ChatRequest) (*generation.ChatResponse, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})
	queue := newTestScheduler(t, model)
	t.Cleanup(func() { close(block) })

	registry := NewMemoryRegistry(time.Hour, 10, nil)
	orch, err := NewOrchestrator(Config{MaxConcurrent: 1, ChunkSize: 60, ResultTimeout: time.Minute},
		queue, mocks.NewMockQuestionStore(), registry, discardLogger())
	require.NoError(t, err)

	id, err := orch.Submit(context.Background(), bankText(3), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, orch.Shutdown(ctx), context.DeadlineExceeded)

	task, err := registry.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "interrupted")
	assert.Equal(t, task.ProcessedChunks, task.SuccessfulChunks+task.FailedChunks)
}

func TestImportBatchesAreBoundedAndSequential(t *testing.T) {
	cfg := testConfig(60)
	cfg.BatchDelay = 30 * time.Millisecond
	model := &modelStub{delay: 40 * time.Millisecond, spans: map[string]callSpan{}}
	h := newHarnessWith(t, cfg, nil, nil, model)

	id, err := h.orch.Submit(context.Background(), bankText(5), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	require.Equal(t, TaskStatusCompleted, task.Status)
	require.Equal(t, 5, task.TotalChunks)

	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, 2, model.maxInFlight, "at most MaxConcurrent chunks in flight")
	require.Len(t, model.spans, 5)

	batches := [][]string{{"1", "2"}, {"3", "4"}, {"5"}}
	for b := 1; b < len(batches); b++ {
		var prevEnd time.Time
		for _, n := range batches[b-1] {
			if model.spans[n].end.After(prevEnd) {
				prevEnd = model.spans[n].end
			}
		}
		for _, n := range batches[b] {
			gap := model.spans[n].start.Sub(prevEnd)
			assert.GreaterOrEqual(t, gap, cfg.BatchDelay,
				"chunk %s started %v after batch %d finished", n, gap, b)
		}
	}
}

func TestImportLostChunkWriteStillTerminates(t *testing.T) {
	// Update 1 sets the total; update 2 is the first chunk's result.
	registry := &flakyRegistry{
		MemoryRegistry: NewMemoryRegistry(time.Hour, 100, nil),
		failOn:         map[int]bool{2: true},
	}
	h := newHarnessWith(t, testConfig(60), nil, registry, &modelStub{})

	id, err := h.orch.Submit(context.Background(), bankText(3), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, ErrUnrecordedChunks.Error(), task.Error)
	assert.Equal(t, 3, task.TotalChunks)
	assert.Equal(t, 2, task.ProcessedChunks)
	assert.Equal(t, 3, h.model.Calls(), "every chunk was still sent")
}

func TestImportRetriesFinalWrite(t *testing.T) {
	// Updates: total, two chunk results, then the completion write.
	registry := &flakyRegistry{
		MemoryRegistry: NewMemoryRegistry(time.Hour, 100, nil),
		failOn:         map[int]bool{4: true},
	}
	h := newHarnessWith(t, testConfig(60), nil, registry, &modelStub{})

	id, err := h.orch.Submit(context.Background(), bankText(2), ModeAdd, uuid.Nil)
	require.NoError(t, err)

	task := waitTerminal(t, h.orch, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 2, task.SuccessfulChunks)
	assert.Len(t, task.ImportedQuestions, 2)
}
