package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/config"
	"github.com/quizgen/quizgen-api/internal/importer"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "quizgen:import:"

	// DefaultActiveTTL bounds how long a processing task survives without
	// updates, so a crashed pipeline does not leave keys behind forever.
	DefaultActiveTTL = 24 * time.Hour

	maxUpdateAttempts = 10
)

// ErrTaskExists is returned by Create when the id is already taken.
var ErrTaskExists = errors.New("import task already exists")

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddress, err)
	}
	return client, nil
}

// TaskRegistry implements importer.Registry on Redis. Each task is one JSON
// value; updates are optimistic WATCH/MULTI transactions.
type TaskRegistry struct {
	client    *redis.Client
	retention time.Duration
	activeTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

var _ importer.Registry = (*TaskRegistry)(nil)

// NewTaskRegistry creates a registry that keeps terminal tasks for retention.
func NewTaskRegistry(client *redis.Client, retention time.Duration, logger *slog.Logger) (*TaskRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskRegistry{
		client:    client,
		retention: retention,
		activeTTL: DefaultActiveTTL,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "redis_task_registry")),
	}, nil
}

func taskKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// ttlFor returns how long the task should live from now. Zero means it is
// already past retention.
func (r *TaskRegistry) ttlFor(t *importer.ImportTask) time.Duration {
	if t.EndedAt == nil {
		return r.activeTTL
	}
	remaining := r.retention - r.now().Sub(*t.EndedAt)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// Create implements importer.Registry.
func (r *TaskRegistry) Create(ctx context.Context, task *importer.ImportTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode import task: %w", err)
	}
	ok, err := r.client.SetNX(ctx, taskKey(task.ID), data, r.ttlFor(task)).Result()
	if err != nil {
		return fmt.Errorf("failed to store import task: %w", err)
	}
	if !ok {
		return ErrTaskExists
	}
	return nil
}

// Get implements importer.Registry.
func (r *TaskRegistry) Get(ctx context.Context, id uuid.UUID) (*importer.ImportTask, error) {
	data, err := r.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, importer.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load import task: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*importer.ImportTask, error) {
	var t importer.ImportTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode import task: %w", err)
	}
	return &t, nil
}

// Update implements importer.Registry. Concurrent chunk updates of the same
// task conflict on WATCH and are retried.
func (r *TaskRegistry) Update(ctx context.Context, id uuid.UUID, fn func(*importer.ImportTask)) error {
	key := taskKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return importer.ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		task, err := decode(data)
		if err != nil {
			return err
		}

		fn(task)

		updated, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode import task: %w", err)
		}
		ttl := r.ttlFor(task)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, updated, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, importer.ErrTaskNotFound) {
			return fmt.Errorf("failed to update import task: %w", err)
		}
		return err
	}

	r.logger.Warn("import task update kept conflicting", slog.String("task_id", id.String()))
	return fmt.Errorf("failed to update import task %s: too many concurrent writers", id)
}

// Reap implements importer.Registry. Redis expires keys on its own, so
// there is nothing to do.
func (r *TaskRegistry) Reap(context.Context) (int, error) {
	return 0, nil
}
