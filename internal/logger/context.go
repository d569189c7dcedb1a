package logger

import "context"

// contextKey keeps the request-id value from colliding with keys set by
// other packages.
type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores a request id on the context. The HTTP layer sets it
// from the incoming request before handing off to services.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id carried by the context, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
