package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestContextKey struct{}

// RequestMeta identifies one routed request across logs and spans.
type RequestMeta struct {
	RequestID     string
	CorrelationID string
	Tool          string
	TraceID       string
	SpanID        string
}

func (m RequestMeta) IsZero() bool {
	return m.RequestID == "" && m.CorrelationID == "" && m.TraceID == "" && m.SpanID == ""
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	if meta.IsZero() {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestContextKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(requestContextKey{}).(RequestMeta)
	return meta, ok && !meta.IsZero()
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	meta, ok := RequestMetaFromContext(ctx)
	if !ok || meta.RequestID == "" {
		return "", false
	}
	return meta.RequestID, true
}

func NewRequestID() string {
	return uuid.NewString()
}

func TraceSpanFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

// StartRequest attaches fresh request meta to ctx. correlationID is the
// caller's envelope id rendered as text; it may be empty.
func StartRequest(ctx context.Context, correlationID, tool string) (context.Context, RequestMeta) {
	traceID, spanID := TraceSpanFromContext(ctx)
	meta := RequestMeta{
		RequestID:     NewRequestID(),
		CorrelationID: correlationID,
		Tool:          tool,
		TraceID:       traceID,
		SpanID:        spanID,
	}
	if existing, ok := RequestMetaFromContext(ctx); ok && existing.RequestID != "" {
		meta.RequestID = existing.RequestID
	}
	return WithRequestMeta(ctx, meta), meta
}

func RequestFields(meta RequestMeta) []zap.Field {
	if meta.IsZero() {
		return nil
	}
	fields := make([]zap.Field, 0, 5)
	if meta.RequestID != "" {
		fields = append(fields, RequestIDField(meta.RequestID))
	}
	if meta.CorrelationID != "" {
		fields = append(fields, zap.String("rpc_id", meta.CorrelationID))
	}
	if meta.Tool != "" {
		fields = append(fields, ToolIDField(meta.Tool))
	}
	if meta.TraceID != "" {
		fields = append(fields, TraceIDField(meta.TraceID))
	}
	if meta.SpanID != "" {
		fields = append(fields, SpanIDField(meta.SpanID))
	}
	return fields
}

func LoggerWithRequest(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, ok := RequestMetaFromContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(RequestFields(meta)...)
}
