package log

import (
	"context"
	"log/slog"

	"github.com/lunasched/lunasched/internal/requestid"
)

type execIDKey struct{}

// WithExecutionID returns a copy of ctx carrying execID, picked up by
// ContextHandler so every log line emitted while handling one execution
// carries its execution_id without threading it through every call site.
func WithExecutionID(ctx context.Context, execID string) context.Context {
	return context.WithValue(ctx, execIDKey{}, execID)
}

func executionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(execIDKey{}).(string)
	return id
}

// ContextHandler wraps an slog.Handler and automatically extracts
// request_id and execution_id from the context of each log record.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler returns a handler that enriches every record with
// context values (request_id, execution_id) before delegating to inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if id := executionIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("execution_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
