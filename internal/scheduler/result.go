package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/quizgen/quizgen-api/internal/generation"
)

// ErrorKind classifies a failed request.
type ErrorKind string

// Error kinds reported in Result.Err.
const (
	// ErrorNoCredential means every credential had an empty key.
	ErrorNoCredential ErrorKind = "no_credential"
	// ErrorTransport means the call timed out or failed on the network, after retries.
	ErrorTransport ErrorKind = "transport"
	// ErrorProvider means the provider answered with a non-2xx status or an unusable body.
	ErrorProvider ErrorKind = "provider"
	// ErrorQueue means the request never reached the provider because the scheduler stopped.
	ErrorQueue ErrorKind = "queue"
)

// RequestError is the structured failure stored in a Result.
type RequestError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Result is the outcome of one request.
type Result struct {
	RequestID       string                   `json:"request_id"`
	Response        *generation.ChatResponse `json:"response,omitempty"`
	Err             *RequestError            `json:"error,omitempty"`
	Credential      string                   `json:"credential,omitempty"`
	CredentialIndex int                      `json:"credential_index"`
	Attempts        int                      `json:"attempts"`
	CompletedAt     time.Time                `json:"completed_at"`
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Response != nil
}

// Content returns the generated text of a successful result.
func (r Result) Content() string {
	return r.Response.Content()
}

// Error returns the failure as an error, or nil.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

type storedResult struct {
	result   Result
	storedAt time.Time
}

// resultStore keeps results until they are consumed or expire.
type resultStore struct {
	mu      sync.Mutex
	entries map[string]storedResult
	ttl     time.Duration
	now     func() time.Time
}

func newResultStore(ttl time.Duration, now func() time.Time) *resultStore {
	return &resultStore{
		entries: make(map[string]storedResult),
		ttl:     ttl,
		now:     now,
	}
}

func (s *resultStore) put(id string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = storedResult{result: r, storedAt: s.now()}
}

// take removes and returns the result for id.
func (s *resultStore) take(id string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Result{}, false
	}
	delete(s.entries, id)
	if s.expired(e) {
		return Result{}, false
	}
	return e.result, true
}

func (s *resultStore) expired(e storedResult) bool {
	return s.ttl > 0 && s.now().Sub(e.storedAt) > s.ttl
}

// sweep drops expired results and returns how many it removed.
func (s *resultStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *resultStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
