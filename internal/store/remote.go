package store

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names a group of documents owned by a user.
type Collection string

// The collections kept in sync between the local cache and the remote store.
const (
	CollectionFlashcards    Collection = "flashcards"
	CollectionStudySessions Collection = "study_sessions"
	CollectionProgressStats Collection = "progress_stats"
	CollectionStudyProfiles Collection = "study_profiles"
)

// Collections returns every synchronized collection in a stable order.
func Collections() []Collection {
	return []Collection{
		CollectionFlashcards,
		CollectionStudySessions,
		CollectionProgressStats,
		CollectionStudyProfiles,
	}
}

// Valid reports whether c is one of the synchronized collections.
func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// Document is an entity as the remote store holds it. Data is opaque JSON;
// Version starts at 1 and increases with every update.
type Document struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Filter restricts a query. Empty fields match everything.
type Filter struct {
	OwnerID      string
	UpdatedSince time.Time
}

// SortOrder orders query results by last update.
type SortOrder string

// Supported sort orders.
const (
	SortUpdatedAsc  SortOrder = "updated_at_asc"
	SortUpdatedDesc SortOrder = "updated_at_desc"
)

// QueryOptions bounds and orders a query. A zero Limit means no limit.
type QueryOptions struct {
	Limit int
	Sort  SortOrder
}

// RemoteStore is the remote persistence collaborator used by the sync engine.
// Every call may fail; implementations map failures onto the errors in this
// package so IsRetryable can classify them.
type RemoteStore interface {
	// CreateEntity stores a new document and returns its id and initial version.
	// Returns ErrDuplicate if a document with doc.ID already exists.
	CreateEntity(ctx context.Context, collection Collection, doc Document) (string, int, error)

	// UpdateEntity replaces the document's data, increments its version and
	// returns the stored document. Returns ErrNotFound if it does not exist.
	UpdateEntity(ctx context.Context, collection Collection, id string, patch Document) (Document, error)

	// DeleteEntity removes a document. Returns ErrNotFound if it does not exist.
	DeleteEntity(ctx context.Context, collection Collection, id string) error

	// FindEntity returns a document by id. Returns ErrNotFound if it does not exist.
	FindEntity(ctx context.Context, collection Collection, id string) (Document, error)

	// QueryEntities returns the documents of a collection matching filter.
	QueryEntities(ctx context.Context, collection Collection, filter Filter, opts QueryOptions) ([]Document, error)
}
