package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/dispatcher"
	"editormcp/internal/infra/registry"
	"editormcp/internal/infra/telemetry"
)

const tracerName = "editormcp/router"

// Options configures a Router.
type Options struct {
	// Registry returns the registry to resolve against. registry.Current is
	// used when nil.
	Registry    func() *registry.Registry
	Dispatchers *dispatcher.Slot
	Tier        domain.TierSource
	Timeout     time.Duration
	Logger      *zap.Logger
	Metrics     domain.Metrics
	Tracer      trace.Tracer
}

// Router turns tools/call envelopes into dispatched tool invocations.
type Router struct {
	registry    func() *registry.Registry
	dispatchers *dispatcher.Slot
	tier        domain.TierSource
	timeout     time.Duration
	logger      *zap.Logger
	metrics     domain.Metrics
	tracer      trace.Tracer
}

func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.Current
	}
	slot := opts.Dispatchers
	if slot == nil {
		slot = dispatcher.Default()
	}
	tier := opts.Tier
	if tier == nil {
		tier = domain.StaticTier(domain.TierCore)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Router{
		registry:    reg,
		dispatchers: slot,
		tier:        tier,
		timeout:     opts.Timeout,
		logger:      logger.Named("router"),
		metrics:     metrics,
		tracer:      tracer,
	}
}

// Route produces exactly one response for req.
func (r *Router) Route(ctx context.Context, req domain.Request) domain.Response {
	start := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	if req.Method != domain.MethodToolCall {
		perr := domain.NewProtocolError(domain.ErrCodeMethodNotFound, "Method not found: "+req.Method, nil)
		r.finish(ctx, req, "", start, perr, domain.NewRouteError(domain.RouteStageDecode, domain.ErrMethodNotFound))
		return domain.NewErrorResponse(req.ID, perr)
	}

	params, err := decodeParams(req.Params)
	if err != nil {
		perr := domain.NewProtocolError(domain.ErrCodeInvalidParams, "Invalid params: "+err.Error(), nil)
		r.finish(ctx, req, "", start, perr, domain.NewRouteError(domain.RouteStageDecode, err))
		return domain.NewErrorResponse(req.ID, perr)
	}

	ctx, span := r.tracer.Start(ctx, "tools/call "+params.Tool,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.method", req.Method),
			attribute.String("editormcp.tool", params.Tool),
		),
	)
	defer span.End()
	ctx, _ = telemetry.StartRequest(ctx, idText(req.ID), params.Tool)

	resp, perr, routeErr := r.call(ctx, req.ID, params)
	if perr != nil {
		span.SetStatus(codes.Error, perr.Message)
		span.SetAttributes(attribute.Int64("rpc.error_code", perr.Code))
	}
	r.finish(ctx, req, params.Tool, start, perr, routeErr)
	return resp
}

func (r *Router) call(ctx context.Context, id json.RawMessage, params domain.ToolCallParams) (domain.Response, *domain.ProtocolError, error) {
	tier := r.tier.CurrentTier()
	tool, err := r.registry().Resolve(params.Tool, tier)
	if err != nil {
		var perr *domain.ProtocolError
		switch {
		case errors.Is(err, domain.ErrTierDenied):
			def, _ := r.registry().Describe(params.Tool)
			perr = domain.NewProtocolError(domain.ErrCodeTierDenied,
				fmt.Sprintf("Tool %s requires tier %s", params.Tool, def.MinTier),
				domain.TierDeniedData{ToolID: params.Tool, RequiredTier: def.MinTier.String(), CurrentTier: tier.String()},
			)
		default:
			perr = domain.NewProtocolError(domain.ErrCodeMethodNotFound, "Tool not found: "+params.Tool, nil)
		}
		return domain.NewErrorResponse(id, perr), perr, domain.NewRouteError(domain.RouteStageResolve, err)
	}

	args := domain.ToolArgs(params.Arguments)
	if args == nil {
		args = domain.ToolArgs{}
	}
	if err := tool.ValidateArguments(args); err != nil {
		var toolErr domain.ToolError
		errors.As(err, &toolErr)
		return domain.NewResultResponse(id, toolErrorResult(params.Tool, toolErr)), nil, nil
	}

	disp := r.dispatchers.Current()
	if disp == nil {
		perr := domain.NewProtocolError(domain.ErrCodeInternalError, "Internal error: dispatcher unavailable", nil)
		return domain.NewErrorResponse(id, perr), perr, domain.NewRouteError(domain.RouteStageDispatch, domain.ErrDispatcherDetached)
	}

	resp, err := disp.Invoke(ctx, invokeTool(tool, args), r.timeout)
	if err != nil {
		return r.classify(id, params.Tool, err)
	}

	return domain.NewResultResponse(id, domain.ToolCallResult{
		Tool:        params.Tool,
		Output:      resp.Output,
		Diagnostics: resp.Diagnostics,
	}), nil, nil
}

func (r *Router) classify(id json.RawMessage, toolID string, err error) (domain.Response, *domain.ProtocolError, error) {
	var toolErr domain.ToolError
	if errors.As(err, &toolErr) {
		return domain.NewResultResponse(id, toolErrorResult(toolID, toolErr)), nil, nil
	}

	routeErr := domain.NewRouteError(domain.RouteStageDispatch, err)
	var (
		perr       *domain.ProtocolError
		fault      *domain.ToolFault
		timeoutErr *domain.TimeoutError
	)
	switch {
	case errors.As(err, &timeoutErr):
		perr = domain.NewProtocolError(domain.ErrCodeDispatchTimeout, "Tool execution timed out",
			domain.TimeoutData{ToolID: toolID, TimeoutSeconds: domain.TimeoutSeconds(timeoutErr.Timeout)})
	case errors.Is(err, domain.ErrHostReloaded):
		perr = domain.NewProtocolError(domain.ErrCodeHostReloaded, "Host reloaded before the tool executed", nil)
	case errors.As(err, &fault):
		perr = domain.NewProtocolError(domain.ErrCodeInternalError, "Internal error: "+fault.Message,
			domain.FaultData{ExceptionType: fault.Type, StackTrace: fault.StackTrace})
	default:
		perr = domain.NewProtocolError(domain.ErrCodeInternalError, "Internal error: "+err.Error(),
			domain.FaultData{ExceptionType: fmt.Sprintf("%T", err)})
	}
	return domain.NewErrorResponse(id, perr), perr, routeErr
}

func invokeTool(tool registry.Tool, args domain.ToolArgs) dispatcher.Work {
	return func(ctx context.Context) (domain.InvokeResponse, error) {
		result, err := tool.Handler(ctx, args)
		if err != nil {
			return domain.InvokeResponse{Tool: tool.Definition.ID}, err
		}
		return domain.InvokeResponse{
			Tool:        tool.Definition.ID,
			Output:      result.Output,
			Diagnostics: result.Diagnostics,
		}, nil
	}
}

func toolErrorResult(toolID string, toolErr domain.ToolError) domain.ToolCallResult {
	output := make(map[string]any, len(toolErr.Details)+1)
	for key, value := range toolErr.Details {
		output[key] = value
	}
	output["error"] = toolErr.Message
	return domain.ToolCallResult{Tool: toolID, Output: output}
}

func decodeParams(raw json.RawMessage) (domain.ToolCallParams, error) {
	var params domain.ToolCallParams
	if len(strings.TrimSpace(string(raw))) == 0 {
		return params, fmt.Errorf("%w: 'tool' is required", domain.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}
	params.Tool = strings.TrimSpace(params.Tool)
	if params.Tool == "" {
		return params, fmt.Errorf("%w: 'tool' is required", domain.ErrInvalidParams)
	}
	return params, nil
}

func (r *Router) finish(ctx context.Context, req domain.Request, tool string, start time.Time, perr *domain.ProtocolError, routeErr error) {
	duration := time.Since(start)
	metric := domain.RouteMetric{
		Method:   req.Method,
		Tool:     tool,
		Status:   domain.RouteStatusSuccess,
		Duration: duration,
	}
	if perr != nil {
		metric.Status = domain.RouteStatusError
		metric.Code = perr.Code
	}
	r.metrics.ObserveRoute(metric)

	if perr == nil {
		return
	}
	fields := []zap.Field{
		telemetry.EventField(telemetry.EventRouteError),
		telemetry.MethodField(req.Method),
		telemetry.DurationField(duration),
		zap.Int64("code", perr.Code),
	}
	if tool != "" {
		fields = append(fields, telemetry.ToolIDField(tool))
	}
	if stage, ok := domain.RouteStageFrom(routeErr); ok {
		fields = append(fields, zap.String("stage", string(stage)))
	}
	if routeErr != nil {
		fields = append(fields, zap.Error(routeErr))
	}
	logger := telemetry.LoggerWithRequest(ctx, r.logger)
	if perr.Code == domain.ErrCodeInternalError {
		logger.Error("route failed", fields...)
		return
	}
	logger.Warn("route failed", fields...)
}

func idText(id json.RawMessage) string {
	trimmed := strings.TrimSpace(string(id))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	return strings.Trim(trimmed, `"`)
}
