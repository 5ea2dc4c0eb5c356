package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-sync/internal/api/shared"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/domain/deck"
	"github.com/phrazzld/scry-sync/internal/service"
	"github.com/phrazzld/scry-sync/internal/session"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/syncer"
	"github.com/phrazzld/scry-sync/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing the error itself to the client.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, syncer.ErrConflictNotFound),
		errors.Is(err, service.ErrNoActiveRun):
		return http.StatusNotFound

	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, syncer.ErrSyncInProgress),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, deck.ErrUnknownMode),
		errors.Is(err, deck.ErrInvalidRatios),
		errors.Is(err, syncer.ErrInvalidStrategy),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, syncer.ErrOffline),
		errors.Is(err, task.ErrQueueClosed),
		errors.Is(err, task.ErrQueueFull):
		return http.StatusServiceUnavailable

	case errors.Is(err, service.ErrNoCardsDue):
		return http.StatusNoContent

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, service.ErrNotOwned):
		return "Resource belongs to another user"
	case errors.Is(err, service.ErrCardNotFound):
		return "Card not found"
	case errors.Is(err, syncer.ErrConflictNotFound):
		return "No pending conflict for this document"
	case errors.Is(err, service.ErrNoActiveRun):
		return "No study run in progress"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, session.ErrInvalidTransition):
		return "Study session is not in a state that allows this"
	case errors.Is(err, syncer.ErrSyncInProgress):
		return "A sync is already running for this user"
	case errors.Is(err, deck.ErrUnknownMode):
		return "Unknown deck mode"
	case errors.Is(err, deck.ErrInvalidRatios):
		return "Invalid deck ratios"
	case errors.As(err, &vErr):
		return fmt.Sprintf("Invalid %s: %s", vErr.Field, vErr.Message)
	case errors.Is(err, syncer.ErrInvalidStrategy):
		return "Invalid conflict resolution"
	case errors.Is(err, syncer.ErrOffline):
		return "Remote store is unreachable"
	case errors.Is(err, task.ErrQueueClosed), errors.Is(err, task.ErrQueueFull):
		return "Sync is temporarily unavailable"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and message for err. A non-empty
// fallback replaces the generic message of unmapped errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	if status == http.StatusNoContent {
		shared.RespondWithNoContent(w, r)
		return
	}
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError describes the first failed field of a request
// validation error without echoing the submitted value.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return fmt.Sprintf("Invalid %s: %s", vErr.Field, vErr.Message)
	}
	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	case "uuid", "uuid4":
		return "must be a UUID"
	default:
		return "validation failed"
	}
}
