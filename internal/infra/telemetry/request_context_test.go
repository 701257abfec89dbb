package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestStartRequestGeneratesID(t *testing.T) {
	ctx, meta := StartRequest(context.Background(), "7", "mcp.tools.list")
	require.NotEmpty(t, meta.RequestID)
	require.Equal(t, "7", meta.CorrelationID)
	require.Equal(t, "mcp.tools.list", meta.Tool)

	got, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, meta.RequestID, got)
}

func TestStartRequestKeepsExistingID(t *testing.T) {
	ctx := WithRequestMeta(context.Background(), RequestMeta{RequestID: "req-123"})
	_, meta := StartRequest(ctx, "", "")
	require.Equal(t, "req-123", meta.RequestID)
}

func TestTraceSpanFromContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	gotTraceID, gotSpanID := TraceSpanFromContext(ctx)
	require.Equal(t, traceID.String(), gotTraceID)
	require.Equal(t, spanID.String(), gotSpanID)

	_, meta := StartRequest(ctx, "1", "")
	require.Equal(t, traceID.String(), meta.TraceID)
	require.Equal(t, spanID.String(), meta.SpanID)
}

func TestRequestFields(t *testing.T) {
	fields := RequestFields(RequestMeta{
		RequestID:     "req-1",
		CorrelationID: "42",
		Tool:          "mcp.health",
		TraceID:       "trace-1",
		SpanID:        "span-1",
	})
	require.Len(t, fields, 5)
	require.Equal(t, FieldRequestID, fields[0].Key)
	require.Equal(t, "rpc_id", fields[1].Key)
	require.Equal(t, FieldToolID, fields[2].Key)
	require.Equal(t, FieldTraceID, fields[3].Key)
	require.Equal(t, FieldSpanID, fields[4].Key)
}
