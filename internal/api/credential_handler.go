package api

import (
	"log/slog"
	"net/http"

	"github.com/quizgen/quizgen-api/internal/api/shared"
	"github.com/quizgen/quizgen-api/internal/platform/logger"
	"github.com/quizgen/quizgen-api/internal/scheduler"
)

// CredentialHandler exposes the scheduler's credential pool. Keys are
// accepted in full but only ever returned masked.
type CredentialHandler struct {
	pool   *scheduler.CredentialPool
	logger *slog.Logger
}

// NewCredentialHandler creates a new CredentialHandler.
func NewCredentialHandler(pool *scheduler.CredentialPool, logger *slog.Logger) *CredentialHandler {
	if pool == nil {
		panic("credential pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{
		pool:   pool,
		logger: logger.With(slog.String("component", "credential_handler")),
	}
}

func (h *CredentialHandler) respondWithList(w http.ResponseWriter, r *http.Request, status int) {
	creds := h.pool.List()
	resp := make([]CredentialResponse, 0, len(creds))
	for i, c := range creds {
		resp = append(resp, credentialToResponse(i, c))
	}
	shared.RespondWithJSON(w, r, status, resp)
}

// List handles GET /api/settings/credentials.
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	h.respondWithList(w, r, http.StatusOK)
}

// Add handles POST /api/settings/credentials.
func (h *CredentialHandler) Add(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CredentialRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	idx, err := h.pool.Add(req.toCredential())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	c, _ := h.pool.Get(idx)
	log.Info("credential added",
		slog.Int("index", idx),
		slog.String("name", c.Name),
		slog.String("provider", string(c.Provider)))
	shared.RespondWithJSON(w, r, http.StatusCreated, credentialToResponse(idx, c))
}

// Update handles PUT /api/settings/credentials/{index}.
func (h *CredentialHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	idx, err := getPathIndex(r, "index")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req CredentialRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	if err := h.pool.Update(idx, req.toCredential()); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	c, _ := h.pool.Get(idx)
	log.Info("credential updated", slog.Int("index", idx), slog.String("name", c.Name))
	shared.RespondWithJSON(w, r, http.StatusOK, credentialToResponse(idx, c))
}

// Reset handles POST /api/settings/credentials/reset. It restores the
// credentials loaded from configuration at startup.
func (h *CredentialHandler) Reset(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	h.pool.Reset()
	log.Info("credentials reset to configured defaults", slog.Int("count", h.pool.Len()))
	h.respondWithList(w, r, http.StatusOK)
}
