package logging

import "context"

type traceIDKey struct{}

// WithTraceID stores a request trace id on the context.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceID returns the trace id stored on ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// AuditFrom returns the audit logger bound to the trace id on ctx.
func AuditFrom(ctx context.Context) *AuditLogger {
	return Audit().WithRequest(TraceID(ctx))
}
