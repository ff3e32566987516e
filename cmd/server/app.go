package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quizgen/quizgen-api/internal/api"
	"github.com/quizgen/quizgen-api/internal/api/middleware"
	"github.com/quizgen/quizgen-api/internal/config"
	"github.com/quizgen/quizgen-api/internal/importer"
	"github.com/quizgen/quizgen-api/internal/platform/gemini"
	"github.com/quizgen/quizgen-api/internal/platform/openai"
	"github.com/quizgen/quizgen-api/internal/platform/postgres"
	"github.com/quizgen/quizgen-api/internal/platform/redis"
	"github.com/quizgen/quizgen-api/internal/scheduler"
	"github.com/quizgen/quizgen-api/internal/service"
	"github.com/quizgen/quizgen-api/internal/store"
)

// handlerTimeout bounds synchronous request handling. Imports and
// explanations run in the background and are not affected.
const handlerTimeout = 30 * time.Second

// application holds every long-lived component so they can be shut down in
// dependency order.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	questions    store.QuestionStore
	explanations store.ExplanationStore

	scheduler    *scheduler.Scheduler
	orchestrator *importer.Orchestrator
	explainer    service.ExplanationService

	router http.Handler
}

// newApplication wires the scheduler, the import pipeline and the HTTP
// handlers around an open database. The scheduler is started before it
// returns; call cleanup to stop everything.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		questions:    postgres.NewPostgresQuestionStore(db, logger),
		explanations: postgres.NewPostgresExplanationStore(db, logger),
	}

	transports, err := newTransports(logger)
	if err != nil {
		return nil, err
	}

	pool := scheduler.NewCredentialPool(scheduler.CredentialsFromConfig(cfg.LLM.Credentials))
	for i, c := range pool.List() {
		if !c.Usable() {
			logger.Warn("credential has no API key and will be skipped",
				slog.Int("index", i), slog.String("name", c.Name))
		}
	}

	app.scheduler, err = scheduler.New(scheduler.ConfigFromLLM(cfg.LLM), pool, transports, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := app.scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	registry, err := app.newRegistry(ctx)
	if err != nil {
		app.cleanup(ctx)
		return nil, err
	}

	app.orchestrator, err = importer.NewOrchestrator(
		importer.ConfigFromImport(cfg.Import), app.scheduler, app.questions, registry, logger)
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to create import orchestrator: %w", err)
	}

	app.explainer, err = service.NewExplanationService(
		app.scheduler, app.questions, app.explanations, cfg.LLM.ExplanationCredentialIndex, logger)
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to create explanation service: %w", err)
	}

	app.router = api.NewRouter(api.RouterDeps{
		Imports:        api.NewImportHandler(app.orchestrator, logger),
		Explanations:   api.NewExplanationHandler(app.explainer, logger),
		Credentials:    api.NewCredentialHandler(pool, logger),
		Stats:          app.scheduler,
		Auth:           middleware.NewAuthMiddleware(cfg.Auth.JWTSecret),
		Logger:         logger,
		RequestTimeout: handlerTimeout,
	})
	return app, nil
}

func newTransports(logger *slog.Logger) (map[scheduler.Provider]scheduler.Transport, error) {
	openaiTransport, err := openai.NewTransport(nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai transport: %w", err)
	}
	geminiTransport, err := gemini.NewTransport(logger, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini transport: %w", err)
	}
	return map[scheduler.Provider]scheduler.Transport{
		scheduler.ProviderOpenAI: openaiTransport,
		scheduler.ProviderGemini: geminiTransport,
	}, nil
}

// newRegistry picks the Redis registry when an address is configured and
// the in-process one otherwise.
func (app *application) newRegistry(ctx context.Context) (importer.Registry, error) {
	cfg := app.config
	if cfg.Cache.RedisAddress == "" {
		app.logger.Info("import tasks kept in memory",
			slog.Int("max_tasks", cfg.Import.MaxTasks),
			slog.Duration("retention", cfg.Import.TaskRetention))
		return importer.NewMemoryRegistry(cfg.Import.TaskRetention, cfg.Import.MaxTasks, nil), nil
	}

	client, err := redis.NewClient(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client

	registry, err := redis.NewTaskRegistry(client, cfg.Import.TaskRetention, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis task registry: %w", err)
	}
	app.logger.Info("import tasks kept in redis", slog.String("address", cfg.Cache.RedisAddress))
	return registry, nil
}

// cleanup stops the import pipeline first so running chunks can still reach
// the scheduler, then the scheduler, then the connections.
func (app *application) cleanup(ctx context.Context) {
	var errs []error
	if app.orchestrator != nil {
		if err := app.orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("import orchestrator: %w", err))
		}
	}
	if app.scheduler != nil {
		if err := app.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("shutdown incomplete", slog.String("error", err.Error()))
	}
}
