package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/generation"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
	"github.com/quizgen/quizgen-api/internal/scheduler"
	"github.com/quizgen/quizgen-api/internal/store"
)

// saveTimeout bounds the store write made from the completion handler.
const saveTimeout = 10 * time.Second

// RequestQueue accepts scheduler requests.
// Version: 1.0
type RequestQueue interface {
	Enqueue(req scheduler.Request) (*scheduler.Future, error)
}

// ExplanationService generates question explanations in the background.
// Version: 1.0
type ExplanationService interface {
	// Request queues generation for a question and returns the scheduler
	// request id. The explanation is stored when the request completes.
	// Returns store.ErrQuestionNotFound for an unknown question.
	Request(ctx context.Context, questionID uuid.UUID) (string, error)

	// Get returns the stored explanation.
	// Returns ErrNotReady while none has been stored.
	Get(ctx context.Context, questionID uuid.UUID) (*domain.Explanation, error)
}

type explanationServiceImpl struct {
	queue           RequestQueue
	questions       store.QuestionStore
	explanations    store.ExplanationStore
	credentialIndex int
	logger          *slog.Logger
}

// NewExplanationService creates an ExplanationService. Requests are pinned
// to credentialIndex while that credential has a key.
func NewExplanationService(
	queue RequestQueue,
	questions store.QuestionStore,
	explanations store.ExplanationStore,
	credentialIndex int,
	logger *slog.Logger,
) (ExplanationService, error) {
	if queue == nil || questions == nil || explanations == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &explanationServiceImpl{
		queue:           queue,
		questions:       questions,
		explanations:    explanations,
		credentialIndex: credentialIndex,
		logger:          logger.With(slog.String("component", "explanation_service")),
	}, nil
}

// Request implements ExplanationService.
func (s *explanationServiceImpl) Request(ctx context.Context, questionID uuid.UUID) (string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return "", newExplanationError("request", "failed to load question", err)
	}

	payload, err := generation.ExplanationRequest(q)
	if err != nil {
		return "", newExplanationError("request", "failed to build prompt", err)
	}

	idx := s.credentialIndex
	future, err := s.queue.Enqueue(scheduler.Request{
		ID:                  fmt.Sprintf("explanation_%s_%d", questionID, time.Now().UnixNano()),
		Payload:             payload,
		PreferredCredential: &idx,
		OnComplete:          s.saveResult(questionID),
	})
	if err != nil {
		return "", newExplanationError("request", "failed to queue generation", err)
	}

	log.Info("explanation generation queued",
		slog.String("question_id", questionID.String()),
		slog.String("request_id", future.ID()))
	return future.ID(), nil
}

// saveResult returns the completion handler that persists a generated explanation.
func (s *explanationServiceImpl) saveResult(questionID uuid.UUID) func(scheduler.Result) {
	return func(r scheduler.Result) {
		log := s.logger.With(
			slog.String("question_id", questionID.String()),
			slog.String("request_id", r.RequestID))

		if !r.OK() {
			log.Error("explanation generation failed", slog.Any("error", r.Error()))
			return
		}

		e, err := domain.NewExplanation(questionID, r.Content(), r.CredentialIndex)
		if err != nil {
			log.Error("generated explanation rejected", slog.String("error", err.Error()))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.explanations.Upsert(ctx, e); err != nil {
			log.Error("failed to save explanation", slog.String("error", err.Error()))
			return
		}
		log.Info("explanation saved", slog.String("credential", r.Credential))
	}
}

// Get implements ExplanationService.
func (s *explanationServiceImpl) Get(ctx context.Context, questionID uuid.UUID) (*domain.Explanation, error) {
	e, err := s.explanations.GetByQuestionID(ctx, questionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrNotReady
		}
		return nil, newExplanationError("get", "failed to load explanation", err)
	}
	return e, nil
}
