package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/store"
)

// EntityStore implements store.RemoteStore on the entities table.
type EntityStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Ensure EntityStore implements store.RemoteStore interface
var _ store.RemoteStore = (*EntityStore)(nil)

// NewEntityStore creates an EntityStore. If logger is nil, a default logger
// will be used.
func NewEntityStore(db *sql.DB, logger *slog.Logger) *EntityStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityStore{
		db:     db,
		logger: logger.With(slog.String("component", "entity_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping reports whether the database is reachable. The connectivity probe
// uses it to decide whether the service is online.
func (s *EntityStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func validateDocument(collection store.Collection, doc store.Document) error {
	if !collection.Valid() {
		return fmt.Errorf("%w: unknown collection %q", store.ErrInvalidEntity, collection)
	}
	if len(doc.Data) == 0 || !json.Valid(doc.Data) {
		return fmt.Errorf("%w: document data must be valid JSON", store.ErrInvalidEntity)
	}
	return nil
}

const selectColumns = `id, owner_id, version, updated_at, data`

func scanDocument(row interface{ Scan(dest ...any) error }) (store.Document, error) {
	var doc store.Document
	var data []byte
	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Version, &doc.UpdatedAt, &data); err != nil {
		return store.Document{}, err
	}
	doc.Data = data
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

// CreateEntity implements store.RemoteStore.CreateEntity
// A document without an ID gets a new UUID.
func (s *EntityStore) CreateEntity(ctx context.Context, collection store.Collection, doc store.Document) (string, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validateDocument(collection, doc); err != nil {
		log.Warn("document validation failed during create",
			slog.String("collection", string(collection)),
			slog.String("error", err.Error()))
		return "", 0, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (collection, id, owner_id, version, data, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
	`, string(collection), doc.ID, doc.OwnerID, []byte(doc.Data), doc.UpdatedAt)
	if err != nil {
		log.Error("failed to create entity",
			slog.String("collection", string(collection)),
			slog.String("id", doc.ID),
			slog.String("error", err.Error()))
		return "", 0, store.NewStoreError(string(collection), "create", "id "+doc.ID, MapError(err))
	}

	log.Debug("entity created",
		slog.String("collection", string(collection)),
		slog.String("id", doc.ID))
	return doc.ID, 1, nil
}

// UpdateEntity implements store.RemoteStore.UpdateEntity
// The row is locked, its data replaced and its version incremented in one
// transaction.
func (s *EntityStore) UpdateEntity(ctx context.Context, collection store.Collection, id string, patch store.Document) (store.Document, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validateDocument(collection, patch); err != nil {
		return store.Document{}, err
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	var updated store.Document
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		current, err := findEntity(ctx, tx, collection, id, true)
		if err != nil {
			return err
		}
		if patch.OwnerID != "" && patch.OwnerID != current.OwnerID {
			return fmt.Errorf("%w: %s belongs to another owner", store.ErrDuplicate, id)
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE entities
			SET data = $3, version = $4, updated_at = $5
			WHERE collection = $1 AND id = $2 AND owner_id = $6
			RETURNING `+selectColumns,
			string(collection), id, []byte(patch.Data), current.Version+1, updatedAt, current.OwnerID)
		updated, err = scanDocument(row)
		return err
	})
	if err != nil {
		mapped := MapError(err)
		if store.IsNotFoundError(mapped) {
			log.Debug("entity not found for update",
				slog.String("collection", string(collection)),
				slog.String("id", id))
		} else {
			log.Error("failed to update entity",
				slog.String("collection", string(collection)),
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
		return store.Document{}, store.NewStoreError(string(collection), "update", "id "+id, mapped)
	}
	return updated, nil
}

// DeleteEntity implements store.RemoteStore.DeleteEntity
func (s *EntityStore) DeleteEntity(ctx context.Context, collection store.Collection, id string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = $1 AND id = $2`, string(collection), id)
	if err != nil {
		log.Error("failed to delete entity",
			slog.String("collection", string(collection)),
			slog.String("id", id),
			slog.String("error", err.Error()))
		return store.NewStoreError(string(collection), "delete", "id "+id, MapError(err))
	}
	if err := CheckRowsAffected(result, string(collection)+" "+id); err != nil {
		return store.NewStoreError(string(collection), "delete", "id "+id, err)
	}
	return nil
}

// FindEntity implements store.RemoteStore.FindEntity
func (s *EntityStore) FindEntity(ctx context.Context, collection store.Collection, id string) (store.Document, error) {
	doc, err := findEntity(ctx, s.db, collection, id, false)
	if err != nil {
		return store.Document{}, store.NewStoreError(string(collection), "find", "id "+id, MapError(err))
	}
	return doc, nil
}

func findEntity(ctx context.Context, db store.DBTX, collection store.Collection, id string, forUpdate bool) (store.Document, error) {
	query := `SELECT ` + selectColumns + ` FROM entities WHERE collection = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanDocument(db.QueryRowContext(ctx, query, string(collection), id))
}

// QueryEntities implements store.RemoteStore.QueryEntities
func (s *EntityStore) QueryEntities(ctx context.Context, collection store.Collection, filter store.Filter, opts store.QueryOptions) ([]store.Document, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args := buildQuery(collection, filter, opts)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query entities",
			slog.String("collection", string(collection)),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError(string(collection), "query", "query failed", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	docs := make([]store.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, store.NewStoreError(string(collection), "query", "scan failed", MapError(err))
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(string(collection), "query", "iteration failed", MapError(err))
	}
	return docs, nil
}

// buildQuery renders the SELECT for a filtered, ordered and limited query.
func buildQuery(collection store.Collection, filter store.Filter, opts store.QueryOptions) (string, []any) {
	var b strings.Builder
	args := []any{string(collection)}
	b.WriteString(`SELECT ` + selectColumns + ` FROM entities WHERE collection = $1`)

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		fmt.Fprintf(&b, ` AND owner_id = $%d`, len(args))
	}
	if !filter.UpdatedSince.IsZero() {
		args = append(args, filter.UpdatedSince)
		fmt.Fprintf(&b, ` AND updated_at >= $%d`, len(args))
	}

	if opts.Sort == store.SortUpdatedDesc {
		b.WriteString(` ORDER BY updated_at DESC, id DESC`)
	} else {
		b.WriteString(` ORDER BY updated_at ASC, id ASC`)
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args
}
