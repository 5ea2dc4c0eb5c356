package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scry-sync/internal/store"
)

// Common service errors. Callers check them with errors.Is; the API layer
// maps them to status codes.
var (
	// ErrNotOwned indicates a resource belongs to a different user than the
	// one making the request. API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrCardNotFound indicates that the card does not exist in the user's
	// cache. It wraps store.ErrNotFound.
	ErrCardNotFound = fmt.Errorf("card not found: %w", store.ErrNotFound)

	// ErrNoCardsDue indicates that the user has no cards due for review.
	ErrNoCardsDue = errors.New("no cards due for review")

	// ErrNoActiveRun indicates that the user has not begun a study run.
	ErrNoActiveRun = errors.New("no study run in progress")
)

// ServiceError wraps errors from the study service with the operation that
// failed, so callers can use errors.As instead of string matching.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "save_flashcard")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
