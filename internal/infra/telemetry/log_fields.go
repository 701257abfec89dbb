package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldToolID     = "tool"
	FieldMethod     = "method"
	FieldDurationMs = "duration_ms"
	FieldQueueDepth = "queue_depth"
	FieldLogSource  = "log_source"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventToolsDiscovered  = "tools_discovered"
	EventToolSkipped      = "tool_skipped"
	EventRouteError       = "route_error"
	EventToolFault        = "tool_fault"
	EventDispatchTimeout  = "dispatch_timeout"
	EventDispatchReload   = "dispatch_reload"
	EventRateLimited      = "rate_limited"
	EventIdleTimeout      = "idle_timeout"
	EventParseError       = "parse_error"
	EventTransportStart   = "transport_start"
	EventTransportStop    = "transport_stop"
	EventReadLoopStuck    = "read_loop_stuck"
	EventServerStart      = "server_start"
	EventServerStop       = "server_stop"
	EventConfigReload     = "config_reload"
	EventDiagnosticsWrite = "diagnostics_write"
)

const (
	LogSourceCore = "core"
	LogSourceTool = "tool"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ToolIDField(toolID string) zap.Field {
	return zap.String(FieldToolID, toolID)
}

func MethodField(method string) zap.Field {
	return zap.String(FieldMethod, method)
}

func QueueDepthField(depth int) zap.Field {
	return zap.Int(FieldQueueDepth, depth)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
