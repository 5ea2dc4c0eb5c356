// Package api serves the study and sync operations over HTTP. Every user
// scoped route lives under /api/users/{userID}; the sync status and the
// all-user sync trigger live under /api/sync.
//
// Handlers translate requests into service calls and map service errors to
// status codes with MapErrorToStatusCode. Internal error text never reaches
// the client; it is redacted and logged with the request's trace ID.
package api
