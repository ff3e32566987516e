package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/quizgen/quizgen-api/internal/api/middleware"
)

// RouterDeps collects the handlers mounted by NewRouter.
type RouterDeps struct {
	Imports      *ImportHandler
	Explanations *ExplanationHandler
	Credentials  *CredentialHandler
	Stats        StatsSource
	Auth         *middleware.AuthMiddleware
	Logger       *slog.Logger
	// RequestTimeout bounds synchronous handler work. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	if deps.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(deps.RequestTimeout))
	}

	r.Get("/health", HealthHandler(deps.Stats))

	r.Route("/api", func(r chi.Router) {
		r.Route("/questions", func(r chi.Router) {
			if deps.Imports != nil {
				r.Post("/import/ai", deps.Imports.Submit)
				r.Get("/import/status/{taskID}", deps.Imports.Status)
			}
			if deps.Explanations != nil {
				r.Post("/{id}/explanation", deps.Explanations.Generate)
				r.Get("/{id}/explanation", deps.Explanations.Get)
			}
		})

		if deps.Credentials != nil {
			r.Route("/settings/credentials", func(r chi.Router) {
				r.Use(deps.Auth.Authenticate)
				r.Get("/", deps.Credentials.List)
				r.Post("/", deps.Credentials.Add)
				r.Post("/reset", deps.Credentials.Reset)
				r.Put("/{index}", deps.Credentials.Update)
			})
		}
	})

	return r
}
