package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-sync/internal/api/middleware"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/service"
)

// NewRouter wires every handler under /api. Per-user routes live below
// /api/users/{userID}.
func NewRouter(svc service.StudyService, clk clock.Clock, logger *slog.Logger) http.Handler {
	cards := NewCardHandler(svc, clk, logger)
	study := NewStudyHandler(svc, clk, logger)
	syncing := NewSyncHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Trace(logger))
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		syncing.RegisterGlobal(r)
		r.Route("/users/{"+middleware.UserIDParam+"}", func(r chi.Router) {
			r.Use(middleware.UserScope)
			cards.Register(r)
			study.Register(r)
			syncing.Register(r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})
	return r
}
