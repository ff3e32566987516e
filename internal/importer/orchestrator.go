package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/chunker"
	"github.com/quizgen/quizgen-api/internal/config"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/generation"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
	"github.com/quizgen/quizgen-api/internal/scheduler"
	"github.com/quizgen/quizgen-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// Orchestrator errors.
var (
	ErrNilQueue         = errors.New("request queue cannot be nil")
	ErrNilStore         = errors.New("question store cannot be nil")
	ErrNilRegistry      = errors.New("task registry cannot be nil")
	ErrOrchestratorDown = errors.New("import orchestrator is shut down")
	ErrUnrecordedChunks = errors.New("import finished with unrecorded chunk results")
)

// RequestQueue is the part of the scheduler the pipeline submits chunks to.
// Version: 1.0
type RequestQueue interface {
	Enqueue(req scheduler.Request) (*scheduler.Future, error)
}

// Config holds pipeline tuning.
type Config struct {
	// MaxConcurrent is the batch width: chunks submitted together and awaited together.
	MaxConcurrent int
	// BatchDelay is the pause between batches.
	BatchDelay time.Duration
	// ChunkSize is the chunker target size in runes.
	ChunkSize int
	// ResultTimeout bounds the wait for one chunk's scheduler result.
	ResultTimeout time.Duration
	// ReapInterval is how often expired tasks are purged from the registry.
	ReapInterval time.Duration

	// Now is the task clock. Nil uses time.Now.
	Now func() time.Time
}

// ConfigFromImport maps application configuration to pipeline tuning.
func ConfigFromImport(cfg config.ImportConfig) Config {
	return Config{
		MaxConcurrent: cfg.MaxConcurrent,
		BatchDelay:    cfg.BatchDelay,
		ChunkSize:     cfg.ChunkSize,
		ResultTimeout: cfg.ResultTimeout,
		ReapInterval:  cfg.ReapInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultTargetSize
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = 2 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 10 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Orchestrator runs import pipelines. Each Submit starts one pipeline on its
// own goroutine; Shutdown waits for them.
type Orchestrator struct {
	cfg       Config
	queue     RequestQueue
	questions store.QuestionStore
	registry  Registry
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	reaper sync.WaitGroup
}

// NewOrchestrator creates an orchestrator and starts its registry reaper.
func NewOrchestrator(
	cfg Config,
	queue RequestQueue,
	questions store.QuestionStore,
	registry Registry,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if questions == nil {
		return nil, ErrNilStore
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		queue:     queue,
		questions: questions,
		registry:  registry,
		logger:    logger.With(slog.String("component", "import_orchestrator")),
		ctx:       ctx,
		cancel:    cancel,
	}

	o.reaper.Add(1)
	go o.reap()
	return o, nil
}

// Submit creates a processing task and starts its pipeline. It returns as
// soon as the task is registered.
func (o *Orchestrator) Submit(ctx context.Context, text string, mode Mode, bankID uuid.UUID) (uuid.UUID, error) {
	if strings.TrimSpace(text) == "" {
		return uuid.Nil, domain.ErrEmptyContent
	}
	if mode != ModeAdd && mode != ModeReplace {
		return uuid.Nil, ErrInvalidMode
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return uuid.Nil, ErrOrchestratorDown
	}

	task := NewImportTask(mode, bankID, o.cfg.Now())
	if err := o.registry.Create(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to register import task: %w", err)
	}

	log := logger.FromContextOrDefault(ctx, o.logger)
	log.Info("import task submitted",
		slog.String("task_id", task.ID.String()),
		slog.String("mode", string(mode)),
		slog.String("bank_id", bankID.String()),
		slog.Int("content_length", len(text)))

	// The pipeline outlives the request; keep its trace attributes only.
	pipelineCtx := logger.WithLogger(o.ctx, log.With(slog.String("task_id", task.ID.String())))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(pipelineCtx, task.ID, text, mode, bankID)
	}()
	return task.ID, nil
}

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(ctx context.Context, id uuid.UUID) (*ImportTask, bool, error) {
	task, err := o.registry.Get(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load import task: %w", err)
	}
	return task, true, nil
}

// Shutdown stops accepting imports and waits for running pipelines. When ctx
// ends first, the pipelines are cancelled, which marks their tasks failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		o.cancel()
		<-done
	}
	o.cancel()
	o.reaper.Wait()
	return err
}

func (o *Orchestrator) reap() {
	defer o.reaper.Done()
	ticker := time.NewTicker(o.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			n, err := o.registry.Reap(o.ctx)
			if err != nil {
				o.logger.Warn("failed to reap import tasks", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				o.logger.Debug("reaped import tasks", slog.Int("count", n))
			}
		}
	}
}

// update applies fn to the task, logging registry failures. Terminal writes
// use a context that survives cancellation so the final state is stored.
func (o *Orchestrator) update(ctx context.Context, id uuid.UUID, fn func(*ImportTask)) {
	if err := o.registry.Update(context.WithoutCancel(ctx), id, fn); err != nil {
		logger.FromContextOrDefault(ctx, o.logger).Error("failed to update import task",
			slog.String("error", err.Error()))
	}
}

// terminalWriteAttempts bounds retries of the write that ends a task, so a
// transient registry error does not leave it processing.
const terminalWriteAttempts = 3

// finish applies a terminal transition, retrying registry failures.
func (o *Orchestrator) finish(ctx context.Context, id uuid.UUID, fn func(*ImportTask)) {
	log := logger.FromContextOrDefault(ctx, o.logger)
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= terminalWriteAttempts; attempt++ {
		err = o.registry.Update(ctx, id, fn)
		if err == nil || errors.Is(err, ErrTaskNotFound) {
			break
		}
		log.Warn("failed to store final import state",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if attempt < terminalWriteAttempts {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
	}
	if err == nil {
		return
	}
	log.Error("giving up on final import state", slog.String("error", err.Error()))
}

func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, msg string) {
	logger.FromContextOrDefault(ctx, o.logger).Error("import task failed", slog.String("error", msg))
	o.finish(ctx, id, func(t *ImportTask) { t.Fail(msg, o.cfg.Now()) })
}

func (o *Orchestrator) run(ctx context.Context, id uuid.UUID, text string, mode Mode, bankID uuid.UUID) {
	log := logger.FromContextOrDefault(ctx, o.logger)
	startedAt := o.cfg.Now()

	defer func() {
		if p := recover(); p != nil {
			o.fail(ctx, id, fmt.Sprintf("import pipeline panicked: %v", p))
		}
	}()

	if mode == ModeReplace {
		removed, err := o.questions.ClearBank(ctx, bankID)
		if err != nil {
			o.fail(ctx, id, fmt.Sprintf("failed to clear question bank: %v", err))
			return
		}
		log.Info("question bank cleared for replace import", slog.Int64("removed", removed))
	}

	chunks := chunker.Split(text, o.cfg.ChunkSize)
	o.update(ctx, id, func(t *ImportTask) { t.SetTotal(len(chunks)) })
	log.Info("import content chunked", slog.Int("chunks", len(chunks)))

	for from := 0; from < len(chunks); from += o.cfg.MaxConcurrent {
		end := min(from+o.cfg.MaxConcurrent, len(chunks))

		var g errgroup.Group
		for i := from; i < end; i++ {
			g.Go(func() error {
				o.processChunk(ctx, id, i, chunks[i], bankID)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			o.fail(ctx, id, "import interrupted by shutdown")
			return
		}
		if end < len(chunks) && !sleep(ctx, o.cfg.BatchDelay) {
			o.fail(ctx, id, "import interrupted by shutdown")
			return
		}
	}

	// A lost chunk write leaves processed below total, and Complete refuses
	// such a task. Every chunk has been handled by now, so fail it instead.
	var (
		imported         int
		processed, total int
		unrecorded       bool
	)
	o.finish(ctx, id, func(t *ImportTask) {
		now := o.cfg.Now()
		unrecorded = false
		if !t.Complete(now) && t.Status == TaskStatusProcessing {
			unrecorded = true
			t.Fail(ErrUnrecordedChunks.Error(), now)
		}
		imported = len(t.ImportedQuestions)
		processed, total = t.ProcessedChunks, t.TotalChunks
	})
	if unrecorded {
		log.Error("import task finished with unrecorded chunk results",
			slog.Int("processed", processed),
			slog.Int("total", total))
		return
	}
	log.Info("import task completed",
		slog.Int("imported", imported),
		slog.Duration("duration", o.cfg.Now().Sub(startedAt)))
}

// processChunk sends one chunk through the scheduler and records the
// outcome. Every path counts the chunk exactly once.
func (o *Orchestrator) processChunk(ctx context.Context, id uuid.UUID, index int, chunk string, bankID uuid.UUID) {
	log := logger.FromContextOrDefault(ctx, o.logger).With(slog.Int("chunk", index+1))

	defer func() {
		if p := recover(); p != nil {
			log.Error("chunk processing panicked", slog.Any("panic", p))
			o.recordFailure(ctx, id, index, fmt.Errorf("internal error: %v", p))
		}
	}()

	content, err := o.generate(ctx, id, index, chunk)
	if err != nil {
		log.Warn("chunk generation failed", slog.String("error", err.Error()))
		o.recordFailure(ctx, id, index, err)
		return
	}

	cands, err := parseCandidates(content)
	if err != nil {
		log.Warn("chunk response could not be parsed", slog.String("error", err.Error()))
		o.recordFailure(ctx, id, index, err)
		return
	}

	imported := o.persist(ctx, cands, bankID)
	log.Debug("chunk imported",
		slog.Int("candidates", len(cands)),
		slog.Int("imported", len(imported)))
	o.update(ctx, id, func(t *ImportTask) { t.RecordSuccess(imported) })
}

func (o *Orchestrator) recordFailure(ctx context.Context, id uuid.UUID, index int, err error) {
	msg := fmt.Sprintf("chunk %d: %v", index+1, err)
	o.update(ctx, id, func(t *ImportTask) { t.RecordFailure(msg) })
}

// generate submits the chunk and waits for its result.
func (o *Orchestrator) generate(ctx context.Context, id uuid.UUID, index int, chunk string) (string, error) {
	payload, err := generation.ImportRequest(chunk)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	future, err := o.queue.Enqueue(scheduler.Request{
		ID:      fmt.Sprintf("import_%s_%d", id, index),
		Payload: payload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue request: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.ResultTimeout)
	defer cancel()
	result, err := future.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("request timed out after %s", o.cfg.ResultTimeout)
		}
		return "", err
	}
	if !result.OK() {
		if result.Err != nil {
			return "", result.Err
		}
		return "", generation.ErrInvalidResponse
	}
	return result.Content(), nil
}

// persist stores the valid, non-duplicate candidates and returns them.
// Invalid candidates and duplicates are skipped without failing the chunk.
func (o *Orchestrator) persist(ctx context.Context, cands []candidate, bankID uuid.UUID) []*domain.Question {
	log := logger.FromContextOrDefault(ctx, o.logger)
	imported := make([]*domain.Question, 0, len(cands))

	for i, c := range cands {
		q, err := c.toQuestion(bankID, o.cfg.Now())
		if err != nil {
			log.Debug("dropping invalid candidate",
				slog.Int("candidate", i),
				slog.String("error", err.Error()))
			continue
		}

		exists, err := o.questions.Exists(ctx, q)
		if err != nil {
			log.Error("failed to check for duplicate question",
				slog.String("question_id", q.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if exists {
			continue
		}

		if err := o.questions.Create(ctx, q); err != nil {
			if !store.IsDuplicateError(err) {
				log.Error("failed to create question",
					slog.String("question_id", q.ID.String()),
					slog.String("error", err.Error()))
			}
			continue
		}
		imported = append(imported, q)
	}
	return imported
}

// sleep waits d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
