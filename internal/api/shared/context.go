package shared

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of request-scoped values set by the api packages.
type ContextKey string

const (
	// UserIDContextKey holds the uuid.UUID of the user a route is scoped to.
	UserIDContextKey ContextKey = "userID"
	// TraceIDKey holds the request's trace ID.
	TraceIDKey ContextKey = "traceID"
	// TraceIDHeader is read from incoming requests and echoed on responses.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDLength is the length of a generated trace ID in hex characters.
	TraceIDLength = 32
)

var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{8,64}$`)

// SetTraceID stores a trace ID in ctx. A well-formed incoming ID is kept so
// client and server logs correlate; anything else is replaced.
func SetTraceID(ctx context.Context, incoming string) context.Context {
	id := incoming
	if !traceIDPattern.MatchString(id) {
		id = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID returns the trace ID in ctx, or "" when there is none.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithUserID stores the route's user in ctx.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserID returns the route's user from ctx.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}

func generateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
