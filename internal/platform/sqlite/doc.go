// Package sqlite provides the durable key-value backend of the local cache,
// stored in a single SQLite file through the pure-Go modernc.org/sqlite driver.
package sqlite
