// Package postgres implements the remote document store on PostgreSQL.
// Every synchronized collection lives in one jsonb-backed entities table,
// whose schema is managed by goose migrations embedded in the binary.
package postgres
