package logger

import "context"

type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores a request ID on the context. The ID travels
// from the HTTP middleware through guard evaluation and onto bus
// message headers so one invocation can be traced across surfaces.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID on the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
