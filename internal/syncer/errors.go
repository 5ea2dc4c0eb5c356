package syncer

import "errors"

var (
	// ErrOffline is returned when a pass is requested while the remote store
	// is unreachable. Local data is untouched.
	ErrOffline = errors.New("remote store is offline")

	// ErrRetryExhausted is recorded when a document failed more times than
	// MaxRetryAttempts allows. The document stays dirty.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrConflictUnresolved is recorded when the manual strategy leaves a
	// conflict for the caller to resolve.
	ErrConflictUnresolved = errors.New("conflict requires manual resolution")

	// ErrConflictNotFound is returned by ResolveConflict for an unknown conflict.
	ErrConflictNotFound = errors.New("no pending conflict for document")

	// ErrSyncInProgress is returned when an exclusive operation finds a pass
	// already running for the same user.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrForeignDocument is recorded when a local document's ID is already
	// taken remotely by another user. The push is parked, never merged.
	ErrForeignDocument = errors.New("document id is owned by another user")

	// ErrInvalidStrategy is returned for an unknown strategy or resolution name.
	ErrInvalidStrategy = errors.New("invalid conflict strategy")
)
