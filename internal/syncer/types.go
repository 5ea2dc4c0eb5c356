package syncer

import (
	"fmt"
	"time"

	"github.com/phrazzld/scry-sync/internal/store"
)

// Strategy decides how conflicts are resolved during a pass.
type Strategy string

// Conflict strategies.
const (
	// StrategyLocal overwrites the remote document with the local copy.
	StrategyLocal Strategy = "local"
	// StrategyRemote discards the local change and keeps the remote copy.
	StrategyRemote Strategy = "remote"
	// StrategyMerge keeps the side with the newer UpdatedAt, local on a tie.
	StrategyMerge Strategy = "merge"
	// StrategyManual records the conflict for ResolveConflict.
	StrategyManual Strategy = "manual"
)

// ParseStrategy converts a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyLocal, StrategyRemote, StrategyMerge, StrategyManual:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// Resolution is the outcome applied to a conflict.
type Resolution string

// Conflict resolutions.
const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionMerge  Resolution = "merge"
)

// ParseResolution converts a caller-supplied value to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionLocal, ResolutionRemote, ResolutionMerge:
		return r, nil
	default:
		return "", fmt.Errorf("%w: resolution %q", ErrInvalidStrategy, s)
	}
}

// ConflictType describes how the two sides diverged.
type ConflictType string

// Conflict types.
const (
	// ConflictCreate: a never-synced local document collides with a remote one.
	ConflictCreate ConflictType = "create"
	// ConflictUpdate: both sides changed since the last confirmed version.
	ConflictUpdate ConflictType = "update"
	// ConflictDelete: one side deleted a document the other side changed.
	ConflictDelete ConflictType = "delete"
)

// Conflict is a divergence between a dirty local document and a remote
// document that changed independently.
type Conflict struct {
	UserID     string           `json:"user_id"`
	Collection store.Collection `json:"collection"`
	DocumentID string           `json:"document_id"`
	// LocalVersion is the remote version the local copy was based on.
	LocalVersion int `json:"local_version"`
	// RemoteVersion is the remote document's current version, 0 if deleted.
	RemoteVersion int          `json:"remote_version"`
	Type          ConflictType `json:"conflict_type"`
	Resolved      bool         `json:"resolved"`
	Resolution    Resolution   `json:"resolution,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// SessionStatus is the state of a sync session.
type SessionStatus string

// Session states.
const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Session records one reconciliation pass for one user.
type Session struct {
	ID          string        `json:"session_id"`
	UserID      string        `json:"user_id"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Status      SessionStatus `json:"status"`
	TotalItems  int           `json:"total_items"`
	SyncedItems int           `json:"synced_items"`
	Conflicts   []Conflict    `json:"conflicts"`
	Errors      []string      `json:"errors"`
}

// Status is the aggregate, observable state of the engine.
type Status struct {
	IsOnline          bool       `json:"is_online" yaml:"is_online"`
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp,omitempty" yaml:"last_sync_timestamp,omitempty"`
	PendingChanges    int        `json:"pending_changes" yaml:"pending_changes"`
	SyncInProgress    bool       `json:"sync_in_progress" yaml:"sync_in_progress"`
	LastSyncError     string     `json:"last_sync_error,omitempty" yaml:"last_sync_error,omitempty"`
	// RetryCount is the number of documents waiting in the retry queue.
	RetryCount int `json:"retry_count" yaml:"retry_count"`
}

func (s Status) equal(o Status) bool {
	if (s.LastSyncTimestamp == nil) != (o.LastSyncTimestamp == nil) {
		return false
	}
	if s.LastSyncTimestamp != nil && !s.LastSyncTimestamp.Equal(*o.LastSyncTimestamp) {
		return false
	}
	return s.IsOnline == o.IsOnline &&
		s.PendingChanges == o.PendingChanges &&
		s.SyncInProgress == o.SyncInProgress &&
		s.LastSyncError == o.LastSyncError &&
		s.RetryCount == o.RetryCount
}

// MigrationResult summarizes a MigrateLocalToRemote run.
type MigrationResult struct {
	MigratedItems int      `json:"migrated_items"`
	SkippedItems  int      `json:"skipped_items"`
	Errors        []string `json:"errors"`
}

func (s Status) clone() Status {
	if s.LastSyncTimestamp != nil {
		t := *s.LastSyncTimestamp
		s.LastSyncTimestamp = &t
	}
	return s
}
