package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/config"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/importer"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*TaskRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.CacheConfig{RedisAddress: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	reg, err := NewTaskRegistry(client, time.Hour, nil)
	require.NoError(t, err)
	return reg, mr
}

func TestNewTaskRegistryValidation(t *testing.T) {
	_, err := NewTaskRegistry(nil, time.Hour, nil)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()
	_, err = NewTaskRegistry(client, 0, nil)
	assert.Error(t, err)
}

func TestNewClientPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), config.CacheConfig{RedisAddress: addr})
	assert.ErrorContains(t, err, "failed to ping redis")
}

func TestTaskRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)

	bank := uuid.New()
	task := importer.NewImportTask(importer.ModeReplace, bank, time.Now().UTC())
	require.NoError(t, reg.Create(ctx, task))
	assert.ErrorIs(t, reg.Create(ctx, task), ErrTaskExists)
	assert.Equal(t, DefaultActiveTTL, mr.TTL(taskKey(task.ID)))

	q, err := domain.NewQuestion(bank, domain.QuestionTypeTrueFalse, "Water boils at 100C at sea level.", "true", nil)
	require.NoError(t, err)

	require.NoError(t, reg.Update(ctx, task.ID, func(t *importer.ImportTask) {
		t.SetTotal(2)
		t.RecordSuccess([]*domain.Question{q})
		t.RecordFailure("chunk 2: response is not a JSON array of questions")
	}))

	got, err := reg.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, importer.TaskStatusProcessing, got.Status)
	assert.Equal(t, importer.ModeReplace, got.Mode)
	assert.Equal(t, bank, got.BankID)
	assert.Equal(t, 2, got.ProcessedChunks)
	require.Len(t, got.ImportedQuestions, 1)
	assert.Equal(t, q.ID, got.ImportedQuestions[0].ID)
	assert.Equal(t, []string{"chunk 2: response is not a JSON array of questions"}, got.Errors)

	require.NoError(t, reg.Update(ctx, task.ID, func(t *importer.ImportTask) {
		t.Complete(time.Now().UTC())
	}))
	ttl := mr.TTL(taskKey(task.ID))
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "terminal task kept for retention, got %s", ttl)

	mr.FastForward(time.Hour + time.Second)
	_, err = reg.Get(ctx, task.ID)
	assert.ErrorIs(t, err, importer.ErrTaskNotFound)
}

func TestTaskRegistryUnknownTask(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, importer.ErrTaskNotFound)

	err = reg.Update(context.Background(), uuid.New(), func(*importer.ImportTask) {})
	assert.ErrorIs(t, err, importer.ErrTaskNotFound)

	n, err := reg.Reap(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestTaskRegistryConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	task := importer.NewImportTask(importer.ModeAdd, uuid.Nil, time.Now().UTC())
	require.NoError(t, reg.Create(ctx, task))
	require.NoError(t, reg.Update(ctx, task.ID, func(t *importer.ImportTask) { t.SetTotal(8) }))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Update(ctx, task.ID, func(t *importer.ImportTask) { t.RecordSuccess(nil) }))
		}()
	}
	wg.Wait()

	got, err := reg.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.ProcessedChunks)
	assert.Equal(t, 8, got.SuccessfulChunks)
}

func TestTaskRegistryExpiredOnWrite(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)

	task := importer.NewImportTask(importer.ModeAdd, uuid.Nil, time.Now().UTC())
	require.NoError(t, reg.Create(ctx, task))

	// A task that ended long ago is dropped instead of stored.
	require.NoError(t, reg.Update(ctx, task.ID, func(t *importer.ImportTask) {
		t.Complete(time.Now().Add(-2 * time.Hour))
	}))
	assert.False(t, mr.Exists(taskKey(task.ID)))
}
