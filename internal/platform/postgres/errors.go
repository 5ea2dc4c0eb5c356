package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-sync/internal/store"
)

// SQLSTATE codes with a permanent meaning for the entities table.
const (
	uniqueViolationCode           = "23505"
	foreignKeyViolationCode       = "23503"
	checkViolationCode            = "23514"
	notNullViolationCode          = "23502"
	invalidTextRepresentationCode = "22P02" // malformed JSON data
)

// permanentCodes maps SQLSTATE codes onto the store error they stand for.
var permanentCodes = map[string]error{
	uniqueViolationCode:           store.ErrDuplicate,
	foreignKeyViolationCode:       store.ErrInvalidEntity,
	checkViolationCode:            store.ErrInvalidEntity,
	notNullViolationCode:          store.ErrInvalidEntity,
	invalidTextRepresentationCode: store.ErrInvalidEntity,
}

// MapError maps a database error onto the store error taxonomy. Anything
// that is not a known permanent failure is reported as store.ErrTransient so
// the sync engine retries it.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case errors.Is(err, context.Canceled),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrInvalidEntity):
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if target, ok := permanentCodes[pgErr.Code]; ok {
			detail := pgErr.ConstraintName
			if detail == "" {
				detail = pgErr.ColumnName
			}
			if detail != "" {
				return fmt.Errorf("%w (%s): %v", target, detail, err)
			}
			return fmt.Errorf("%w: %v", target, err)
		}
	}

	return fmt.Errorf("%w: %v", store.ErrTransient, err)
}

// CheckRowsAffected returns store.ErrNotFound when result touched no rows.
// what names the missing row in the error.
func CheckRowsAffected(result sql.Result, what string) error {
	if result == nil {
		return errors.New("nil result provided to CheckRowsAffected")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if what == "" {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %s not found", store.ErrNotFound, what)
}
