package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/quizgen/quizgen-api/internal/config"
	"github.com/quizgen/quizgen-api/internal/generation"
)

// pollInterval is how often PollResult rechecks the result store.
const pollInterval = 50 * time.Millisecond

// Errors returned by New and Start.
var (
	ErrNilPool         = errors.New("credential pool cannot be nil")
	ErrNoTransports    = errors.New("at least one transport is required")
	ErrNilLogger       = errors.New("logger cannot be nil")
	ErrAlreadyStarted  = errors.New("scheduler already started")
	ErrSchedulerClosed = errors.New("scheduler is stopped")
)

// Request is one unit of work for the scheduler.
type Request struct {
	// ID correlates the result. Enqueue assigns a UUID when it is empty.
	ID      string
	Payload generation.ChatRequest
	// PreferredCredential pins the call to one pool index while that
	// credential has a key.
	PreferredCredential *int
	// Timeout bounds each attempt. Zero uses Config.RequestTimeout.
	Timeout time.Duration
	// OnComplete, when set, is called with the result after it is stored.
	OnComplete func(Result)
}

// Config holds scheduler tuning.
type Config struct {
	RequestInterval      time.Duration
	ThrottleWindow       time.Duration
	MaxRequestsPerWindow int
	ThrottleBackoff      time.Duration
	MaxRetries           int
	RetryBaseDelay       time.Duration
	RequestTimeout       time.Duration
	QueueSize            int
	ExecutorPoolSize     int
	ResultTTL            time.Duration

	// Now is the clock for the rate limiter and result expiry. Nil uses time.Now.
	Now func() time.Time
}

// ConfigFromLLM maps application configuration to scheduler tuning.
func ConfigFromLLM(cfg config.LLMConfig) Config {
	return Config{
		RequestInterval:      cfg.RequestInterval,
		ThrottleWindow:       cfg.ThrottleWindow,
		MaxRequestsPerWindow: cfg.MaxRequestsPerWindow,
		ThrottleBackoff:      cfg.ThrottleBackoff,
		MaxRetries:           cfg.MaxRetries,
		RetryBaseDelay:       cfg.RetryBaseDelay,
		RequestTimeout:       cfg.RequestTimeout,
		QueueSize:            cfg.QueueSize,
		ExecutorPoolSize:     cfg.ExecutorPoolSize,
		ResultTTL:            cfg.ResultTTL,
	}
}

// DefaultConfig returns the production defaults: 20 requests per minute, one
// second between dispatches, two retries.
func DefaultConfig() Config {
	return Config{
		RequestInterval:      time.Second,
		ThrottleWindow:       time.Minute,
		MaxRequestsPerWindow: 20,
		ThrottleBackoff:      time.Second,
		MaxRetries:           2,
		RetryBaseDelay:       time.Second,
		RequestTimeout:       30 * time.Second,
		QueueSize:            1000,
		ExecutorPoolSize:     16,
		ResultTTL:            10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ThrottleWindow <= 0 {
		c.ThrottleWindow = d.ThrottleWindow
	}
	if c.MaxRequestsPerWindow <= 0 {
		c.MaxRequestsPerWindow = d.MaxRequestsPerWindow
	}
	if c.ThrottleBackoff <= 0 {
		c.ThrottleBackoff = d.ThrottleBackoff
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.ExecutorPoolSize <= 0 {
		c.ExecutorPoolSize = d.ExecutorPoolSize
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = d.ResultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Stats is a point-in-time view of scheduler load.
type Stats struct {
	Queued        int `json:"queued"`
	InFlight      int `json:"in_flight"`
	StoredResults int `json:"stored_results"`
}

// Scheduler drains the request queue under the rate limit.
type Scheduler struct {
	cfg        Config
	pool       *CredentialPool
	transports map[Provider]Transport
	limiter    *RateLimiter
	queue      *requestQueue
	results    *resultStore
	executor   *ants.Pool
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// execCtx outlives Stop's dispatcher shutdown so in-flight calls can finish.
	execCtx    context.Context
	execCancel context.CancelFunc
	inflight   sync.WaitGroup
	running    sync.Mutex
	started    bool
	inFlightN  int
}

// New creates a Scheduler. Call Start to begin dispatching.
func New(cfg Config, pool *CredentialPool, transports map[Provider]Transport, logger *slog.Logger) (*Scheduler, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	if len(transports) == 0 {
		return nil, ErrNoTransports
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	cfg = cfg.withDefaults()
	logger = logger.With("component", "scheduler")

	executor, err := ants.NewPool(cfg.ExecutorPoolSize, ants.WithPanicHandler(func(p interface{}) {
		logger.Error("executor panic escaped request handling", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create executor pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	execCtx, execCancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:        cfg,
		pool:       pool,
		transports: transports,
		limiter:    NewRateLimiter(cfg.MaxRequestsPerWindow, cfg.ThrottleWindow, cfg.Now),
		queue:      newRequestQueue(cfg.QueueSize, logger),
		results:    newResultStore(cfg.ResultTTL, cfg.Now),
		executor:   executor,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		execCtx:    execCtx,
		execCancel: execCancel,
	}, nil
}

// Credentials exposes the pool for the settings API.
func (s *Scheduler) Credentials() *CredentialPool {
	return s.pool
}

// Start launches the dispatcher and the result janitor.
func (s *Scheduler) Start() error {
	s.running.Lock()
	defer s.running.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if s.ctx.Err() != nil {
		return ErrSchedulerClosed
	}
	s.started = true

	s.wg.Add(2)
	go s.dispatchLoop()
	go s.janitor()

	s.logger.Info("scheduler started",
		"max_requests_per_window", s.cfg.MaxRequestsPerWindow,
		"throttle_window", s.cfg.ThrottleWindow,
		"executor_pool_size", s.cfg.ExecutorPoolSize)
	return nil
}

// Stop halts dispatching, fails requests still queued with an ErrorQueue
// result and waits for in-flight calls until ctx ends. Calls still running
// then are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	s.wg.Wait()

	for _, p := range s.queue.close() {
		s.complete(p, Result{Err: &RequestError{Kind: ErrorQueue, Message: ErrSchedulerClosed.Error()}})
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		s.execCancel()
		<-done
		err = fmt.Errorf("in-flight requests cancelled: %w", ctx.Err())
	}

	s.execCancel()
	s.executor.Release()
	s.logger.Info("scheduler stopped")
	return err
}

// Enqueue appends req to the queue without blocking and returns its future.
// It fails with ErrQueueFull or ErrQueueClosed.
func (s *Scheduler) Enqueue(req Request) (*Future, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p := &pending{req: req, future: newFuture(req.ID, s.results)}
	if err := s.queue.enqueue(p); err != nil {
		return nil, err
	}
	return p.future, nil
}

// PollResult waits up to timeout for the result of id and consumes it. A
// timeout returns false and leaves a later result available to the next poll.
func (s *Scheduler) PollResult(ctx context.Context, id string, timeout time.Duration) (Result, bool) {
	if r, ok := s.results.take(id); ok {
		return r, true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}, false
		case <-deadline.C:
			return Result{}, false
		case <-ticker.C:
			if r, ok := s.results.take(id); ok {
				return r, true
			}
		}
	}
}

// Stats returns the current load.
func (s *Scheduler) Stats() Stats {
	s.running.Lock()
	inFlight := s.inFlightN
	s.running.Unlock()
	return Stats{
		Queued:        s.queue.size(),
		InFlight:      inFlight,
		StoredResults: s.results.size(),
	}
}

// sleep waits for d or until ctx ends. It reports whether the full duration elapsed.
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

// dispatchLoop is the single consumer of the queue. It is the only goroutine
// touching the rate limiter.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		if !s.limiter.Allow() {
			s.logger.Debug("throttle window full, backing off",
				"window_count", s.limiter.Count(),
				"retry_in", s.cfg.ThrottleBackoff)
			if !sleep(s.ctx, s.cfg.ThrottleBackoff) {
				return
			}
			continue
		}

		select {
		case <-s.ctx.Done():
			return
		case p, ok := <-s.queue.channel():
			if !ok {
				return
			}
			s.dispatch(p)
		}

		if !sleep(s.ctx, s.cfg.RequestInterval) {
			return
		}
	}
}

// dispatch resolves a credential, counts the call against the window and hands
// it to the executor pool.
func (s *Scheduler) dispatch(p *pending) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic while dispatching request", "request_id", p.req.ID, "panic", r)
			s.complete(p, Result{Err: &RequestError{Kind: ErrorTransport, Message: fmt.Sprintf("panic: %v", r)}})
		}
	}()

	cred, idx, ok := s.pool.Next(p.req.PreferredCredential)
	if !ok {
		s.logger.Warn("no usable credential for request", "request_id", p.req.ID)
		s.complete(p, Result{
			CredentialIndex: -1,
			Err:             &RequestError{Kind: ErrorNoCredential, Message: "no API credential with a key is configured"},
		})
		return
	}

	s.limiter.Record()
	s.trackInFlight(1)

	err := s.executor.Submit(func() {
		defer s.trackInFlight(-1)
		s.execute(p, cred, idx)
	})
	if err != nil {
		s.trackInFlight(-1)
		s.logger.Error("failed to submit request to executor", "request_id", p.req.ID, "error", err)
		s.complete(p, Result{
			Credential:      cred.Name,
			CredentialIndex: idx,
			Err:             &RequestError{Kind: ErrorQueue, Message: err.Error()},
		})
	}
}

func (s *Scheduler) trackInFlight(delta int) {
	s.running.Lock()
	s.inFlightN += delta
	s.running.Unlock()
	if delta > 0 {
		s.inflight.Add(delta)
	} else {
		s.inflight.Done()
	}
}

// execute performs the call with retries and publishes the result.
func (s *Scheduler) execute(p *pending, cred Credential, idx int) {
	result := Result{Credential: cred.Name, CredentialIndex: idx}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in transport", "request_id", p.req.ID, "panic", r)
			result.Response = nil
			result.Err = &RequestError{Kind: ErrorTransport, Message: fmt.Sprintf("panic: %v", r)}
			s.complete(p, result)
		}
	}()

	transport, ok := s.transports[cred.Provider]
	if !ok {
		result.Err = &RequestError{
			Kind:    ErrorProvider,
			Message: fmt.Sprintf("no transport registered for provider %q", cred.Provider),
		}
		s.complete(p, result)
		return
	}

	payload := p.req.Payload
	if payload.Model == "" {
		payload.Model = cred.Model
	}
	if payload.MaxTokens == 0 {
		payload.MaxTokens = cred.MaxTokens
	}
	payload.Stream = false

	timeout := p.req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.RequestTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries+1; attempt++ {
		result.Attempts = attempt

		ctx, cancel := context.WithTimeout(s.execCtx, timeout)
		resp, err := transport.Complete(ctx, cred, payload)
		cancel()

		if err == nil {
			result.Response = resp
			s.logger.Debug("request completed",
				"request_id", p.req.ID,
				"credential", cred.Name,
				"attempts", attempt)
			s.complete(p, result)
			return
		}

		var perr *generation.ProviderError
		switch {
		case errors.As(err, &perr):
			result.Err = &RequestError{Kind: ErrorProvider, Message: err.Error(), StatusCode: perr.StatusCode}
		case errors.Is(err, generation.ErrInvalidResponse), errors.Is(err, generation.ErrContentBlocked),
			errors.Is(err, generation.ErrInvalidConfig):
			result.Err = &RequestError{Kind: ErrorProvider, Message: err.Error()}
		}
		if result.Err != nil {
			s.logger.Warn("provider rejected request",
				"request_id", p.req.ID,
				"credential", cred.Name,
				"error", err)
			s.complete(p, result)
			return
		}

		lastErr = err
		if attempt > s.cfg.MaxRetries {
			break
		}

		delay := time.Duration(attempt) * s.cfg.RetryBaseDelay
		s.logger.Warn("request attempt failed, retrying",
			"request_id", p.req.ID,
			"credential", cred.Name,
			"attempt", attempt,
			"retry_in", delay,
			"error", err)
		if !sleep(s.execCtx, delay) {
			break
		}
	}

	s.logger.Error("request failed after retries",
		"request_id", p.req.ID,
		"credential", cred.Name,
		"attempts", result.Attempts,
		"error", lastErr)
	result.Err = &RequestError{Kind: ErrorTransport, Message: lastErr.Error()}
	s.complete(p, result)
}

// complete stores r, resolves the future and runs the completion handler.
func (s *Scheduler) complete(p *pending, r Result) {
	r.RequestID = p.req.ID
	r.CompletedAt = s.cfg.Now()

	s.results.put(p.req.ID, r)
	p.future.resolve(r)

	if p.req.OnComplete == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("recovered panic in completion handler", "request_id", p.req.ID, "panic", rec)
		}
	}()
	p.req.OnComplete(r)
}

// janitor drops results nobody collected.
func (s *Scheduler) janitor() {
	defer s.wg.Done()

	interval := s.cfg.ResultTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.results.sweep(); n > 0 {
				s.logger.Debug("dropped expired results", "count", n)
			}
		}
	}
}
