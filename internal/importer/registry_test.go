package importer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewMemoryRegistry(time.Hour, 10, clock.Now)

	task := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
	require.NoError(t, r.Create(ctx, task))

	require.NoError(t, r.Update(ctx, task.ID, func(t *ImportTask) { t.SetTotal(2) }))

	got, err := r.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalChunks)

	// Snapshots are copies.
	got.TotalChunks = 99
	again, err := r.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.TotalChunks)

	_, err = r.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, r.Update(ctx, uuid.New(), func(*ImportTask) {}), ErrTaskNotFound)
}

func TestMemoryRegistryEvictsOnAccess(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewMemoryRegistry(time.Hour, 10, clock.Now)

	done := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
	done.Complete(clock.Now())
	running := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
	require.NoError(t, r.Create(ctx, done))
	require.NoError(t, r.Create(ctx, running))

	clock.Advance(59 * time.Minute)
	_, err := r.Get(ctx, done.ID)
	require.NoError(t, err, "still inside retention")

	clock.Advance(2 * time.Minute)
	_, err = r.Get(ctx, done.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 1, r.Len(), "expired task removed without a reap")

	_, err = r.Get(ctx, running.ID)
	assert.NoError(t, err, "processing tasks never expire")
}

func TestMemoryRegistryReap(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewMemoryRegistry(time.Minute, 10, clock.Now)

	for i := 0; i < 3; i++ {
		task := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
		task.Complete(clock.Now())
		require.NoError(t, r.Create(ctx, task))
	}
	require.NoError(t, r.Create(ctx, NewImportTask(ModeAdd, uuid.Nil, clock.Now())))

	clock.Advance(2 * time.Minute)
	n, err := r.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, r.Len())
}

func TestMemoryRegistryCapacity(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewMemoryRegistry(time.Hour, 2, clock.Now)

	older := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
	older.Complete(clock.Now())
	require.NoError(t, r.Create(ctx, older))

	clock.Advance(time.Second)
	running := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
	require.NoError(t, r.Create(ctx, running))

	// Full: the oldest terminal task makes room.
	next := NewImportTask(ModeAdd, uuid.Nil, clock.Now())
	require.NoError(t, r.Create(ctx, next))
	_, err := r.Get(ctx, older.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// Full of running imports: rejected.
	assert.ErrorIs(t, r.Create(ctx, NewImportTask(ModeAdd, uuid.Nil, clock.Now())), ErrRegistryFull)
}
