package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/api/shared"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
)

// UserIDParam is the route parameter naming the user a request acts for.
const UserIDParam = "userID"

// UserScope parses the {userID} route parameter and stores it in the
// request context. Requests with a missing or malformed ID are rejected
// before they reach a handler.
func UserScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, UserIDParam)
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid user ID", err)
			return
		}

		ctx := shared.WithUserID(r.Context(), userID)
		log := logger.FromContext(ctx).With(slog.String("user_id", userID.String()))
		ctx = logger.WithLogger(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
