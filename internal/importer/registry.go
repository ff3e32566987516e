package importer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry errors.
var (
	ErrTaskNotFound = errors.New("import task not found")
	ErrRegistryFull = errors.New("too many import tasks in progress")
)

// Registry holds import task state. Implementations evict terminal tasks
// once they have been terminal for longer than the retention window, and
// must not return an evicted task even if the periodic Reap has not run.
// Version: 1.0
type Registry interface {
	// Create stores a new task.
	Create(ctx context.Context, task *ImportTask) error

	// Get returns a copy of the task, or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*ImportTask, error)

	// Update applies fn to the stored task atomically.
	Update(ctx context.Context, id uuid.UUID, fn func(*ImportTask)) error

	// Reap removes expired tasks and returns how many were removed.
	Reap(ctx context.Context) (int, error)
}

// MemoryRegistry is an in-process Registry bounded by both retention and
// capacity.
type MemoryRegistry struct {
	mu        sync.Mutex
	tasks     map[uuid.UUID]*ImportTask
	retention time.Duration
	capacity  int
	now       func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates a registry that keeps at most capacity tasks.
// A nil now uses time.Now.
func NewMemoryRegistry(retention time.Duration, capacity int, now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRegistry{
		tasks:     make(map[uuid.UUID]*ImportTask),
		retention: retention,
		capacity:  capacity,
		now:       now,
	}
}

// Create implements Registry. At capacity it first drops expired tasks and
// then the oldest terminal ones; it fails only when every slot holds a
// running import.
func (r *MemoryRegistry) Create(_ context.Context, task *ImportTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity > 0 && len(r.tasks) >= r.capacity {
		r.reapLocked()
		if len(r.tasks) >= r.capacity && !r.evictOldestTerminalLocked() {
			return ErrRegistryFull
		}
	}
	r.tasks[task.ID] = task.Clone()
	return nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, id uuid.UUID) (*ImportTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.liveLocked(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Update implements Registry.
func (r *MemoryRegistry) Update(_ context.Context, id uuid.UUID, fn func(*ImportTask)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.liveLocked(id)
	if !ok {
		return ErrTaskNotFound
	}
	fn(t)
	return nil
}

// Reap implements Registry.
func (r *MemoryRegistry) Reap(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reapLocked(), nil
}

// Len returns the number of stored tasks, expired ones included.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *MemoryRegistry) liveLocked(id uuid.UUID) (*ImportTask, bool) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	if t.expiredAt(r.now(), r.retention) {
		delete(r.tasks, id)
		return nil, false
	}
	return t, true
}

func (r *MemoryRegistry) reapLocked() int {
	now := r.now()
	removed := 0
	for id, t := range r.tasks {
		if t.expiredAt(now, r.retention) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}

func (r *MemoryRegistry) evictOldestTerminalLocked() bool {
	terminal := make([]*ImportTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.EndedAt != nil {
			terminal = append(terminal, t)
		}
	}
	if len(terminal) == 0 {
		return false
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].EndedAt.Before(*terminal[j].EndedAt)
	})
	delete(r.tasks, terminal[0].ID)
	return true
}
