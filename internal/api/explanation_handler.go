package api

import (
	"log/slog"
	"net/http"

	"github.com/quizgen/quizgen-api/internal/api/shared"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
	"github.com/quizgen/quizgen-api/internal/service"
)

// ExplanationHandler handles explanation generation and retrieval.
type ExplanationHandler struct {
	explanations service.ExplanationService
	logger       *slog.Logger
}

// NewExplanationHandler creates a new ExplanationHandler.
func NewExplanationHandler(explanations service.ExplanationService, logger *slog.Logger) *ExplanationHandler {
	if explanations == nil {
		panic("explanation service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExplanationHandler{
		explanations: explanations,
		logger:       logger.With(slog.String("component", "explanation_handler")),
	}
}

// Generate handles POST /api/questions/{id}/explanation.
func (h *ExplanationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	questionID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	requestID, err := h.explanations.Request(r.Context(), questionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to queue explanation")
		return
	}

	log.Debug("explanation requested",
		slog.String("question_id", questionID.String()),
		slog.String("request_id", requestID))
	shared.RespondWithJSON(w, r, http.StatusAccepted, ExplanationAcceptedResponse{
		QuestionID: questionID.String(),
		RequestID:  requestID,
	})
}

// Get handles GET /api/questions/{id}/explanation.
func (h *ExplanationHandler) Get(w http.ResponseWriter, r *http.Request) {
	questionID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	e, err := h.explanations.Get(r.Context(), questionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load explanation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ExplanationResponse{
		QuestionID:      e.QuestionID.String(),
		Content:         e.Content,
		CredentialIndex: e.CredentialIndex,
		GeneratedAt:     e.GeneratedAt,
	})
}
