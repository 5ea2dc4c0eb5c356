package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/api/shared"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/service"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/syncer"
)

// SyncHandler exposes the sync engine: status, manual passes, migration and
// conflict resolution.
type SyncHandler struct {
	svc    service.StudyService
	logger *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(svc service.StudyService, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for SyncHandler")
	}
	return &SyncHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "sync_handler")),
	}
}

// RegisterGlobal mounts the routes that are not scoped to a user.
func (h *SyncHandler) RegisterGlobal(r chi.Router) {
	r.Get("/sync/status", h.Status)
	r.Get("/sync/status/stream", h.StatusStream)
	r.Post("/sync", h.ForceSync)
}

// Register mounts the per-user sync routes.
func (h *SyncHandler) Register(r chi.Router) {
	r.Post("/sync", h.ForceSync)
	r.Post("/sync/migrate", h.Migrate)
	r.Get("/sync/conflicts", h.ListConflicts)
	r.Post("/sync/conflicts/resolve", h.ResolveConflict)
}

// Status handles GET /sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.svc.GetSyncStatus())
}

// StatusStream handles GET /sync/status/stream as server-sent events: the
// current status first, then one event per change until the client leaves.
func (h *SyncHandler) StatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	updates, cancel := h.svc.SubscribeSyncStatus()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	for {
		select {
		case <-r.Context().Done():
			return
		case status, open := <-updates:
			if !open {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				log.Error("failed to encode sync status", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ForceSync handles POST /sync. Scoped to a user it syncs that user,
// otherwise every user with cached data. The pass runs in the background.
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserID(r.Context())
	if err := h.svc.ForceSync(userID); err != nil {
		HandleAPIError(w, r, err, "Failed to schedule sync")
		return
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Debug("sync scheduled",
		slog.Bool("all_users", userID == uuid.Nil))
	shared.RespondWithJSON(w, r, http.StatusAccepted, SyncAcceptedResponse{
		Scheduled: true,
		Status:    h.svc.GetSyncStatus(),
	})
}

// Migrate handles POST /sync/migrate.
func (h *SyncHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	result, err := h.svc.MigrateLocalToRemote(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Migration failed")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// ListConflicts handles GET /sync/conflicts.
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.svc.PendingConflicts(userID))
}

// ResolveConflict handles POST /sync/conflicts/resolve.
func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ResolveConflictRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	conflict, err := h.svc.ResolveConflict(
		r.Context(),
		userID,
		store.Collection(req.Collection),
		req.DocumentID,
		syncer.Resolution(req.Resolution),
	)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resolve conflict")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, conflict)
}
