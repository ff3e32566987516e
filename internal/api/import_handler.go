package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/api/shared"
	"github.com/quizgen/quizgen-api/internal/importer"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
)

// Importer starts import tasks and reports their status.
// Version: 1.0
type Importer interface {
	Submit(ctx context.Context, text string, mode importer.Mode, bankID uuid.UUID) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (*importer.ImportTask, bool, error)
}

// ImportHandler handles the AI import endpoints.
type ImportHandler struct {
	importer Importer
	logger   *slog.Logger
	now      func() time.Time
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(imp Importer, logger *slog.Logger) *ImportHandler {
	if imp == nil {
		panic("importer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{
		importer: imp,
		logger:   logger.With(slog.String("component", "import_handler")),
		now:      time.Now,
	}
}

// Submit handles POST /api/questions/import/ai.
// It starts an asynchronous import and answers 202 with the task ID.
func (h *ImportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req ImportRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	bankID := uuid.Nil
	if req.BankID != "" {
		// validated as a UUID above
		bankID = uuid.MustParse(req.BankID)
	}

	taskID, err := h.importer.Submit(r.Context(), req.Content, mode, bankID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start import")
		return
	}

	log.Info("import accepted",
		slog.String("task_id", taskID.String()),
		slog.String("mode", string(mode)),
		slog.Int("content_length", len(req.Content)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, ImportAcceptedResponse{
		TaskID: taskID.String(),
		Mode:   string(mode),
	})
}

// Status handles GET /api/questions/import/status/{taskID}.
func (h *ImportHandler) Status(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID, err := getPathUUID(r, "taskID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, ok, err := h.importer.Status(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load import status")
		return
	}
	if !ok {
		log.Debug("import task not found", slog.String("task_id", taskID.String()))
		HandleAPIError(w, r, importer.ErrTaskNotFound, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, importStatusToResponse(task, h.now()))
}
