// Package store defines the remote persistence contract the sync engine
// depends on, together with the error taxonomy every implementation maps its
// failures into. Implementations live in internal/platform/postgres and
// internal/mocks.
package store
