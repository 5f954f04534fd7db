package logging

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}

// WithRequestID stores id in ctx for RequestIDExtractor.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID carried by ctx, if any.
func RequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// RequestIDExtractor adds request_id to every record logged with a request
// context.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := RequestID(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}
