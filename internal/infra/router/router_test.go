package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"editormcp/internal/domain"
	"editormcp/internal/infra/dispatcher"
	"editormcp/internal/infra/registry"
)

// goScheduler runs every callback on its own goroutine with a privileged context.
type goScheduler struct{}

func (goScheduler) ScheduleOnce(fn func(ctx context.Context)) func() {
	go fn(domain.WithPrivileged(context.Background()))
	return func() {}
}

type routerFixture struct {
	router   *Router
	recorder *tracetest.SpanRecorder
}

func newFixture(t *testing.T, tier domain.Tier, timeout time.Duration, regs ...registry.Registration) routerFixture {
	t.Helper()
	builder := registry.NewBuilder(nil)
	for _, reg := range regs {
		require.NoError(t, builder.Register(reg.Definition, reg.Handler))
	}
	reg := builder.Build()

	slot := &dispatcher.Slot{}
	dispatcher.New(dispatcher.Options{Scheduler: goScheduler{}, Slot: slot})

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return routerFixture{
		router: New(Options{
			Registry:    func() *registry.Registry { return reg },
			Dispatchers: slot,
			Tier:        domain.StaticTier(tier),
			Timeout:     timeout,
			Tracer:      provider.Tracer("test"),
		}),
		recorder: recorder,
	}
}

func echoTool() registry.Registration {
	return registry.Registration{
		Definition: domain.ToolDefinition{
			ID:       "scene.echo",
			Category: "scene",
			Inputs: map[string]domain.ParameterSchema{
				"text": {Type: "string", Required: true},
			},
		},
		Handler: func(ctx context.Context, args domain.ToolArgs) (domain.ToolResult, error) {
			return domain.ToolResult{
				Output:      map[string]any{"text": args["text"], "privileged": domain.IsPrivileged(ctx)},
				Diagnostics: []string{"echoed"},
			}, nil
		},
	}
}

func toolWith(id string, tier domain.Tier, handler domain.ToolHandler) registry.Registration {
	return registry.Registration{
		Definition: domain.ToolDefinition{ID: id, Category: "test", MinTier: tier},
		Handler:    handler,
	}
}

func call(id any, tool string, args map[string]any) domain.Request {
	rawID, _ := json.Marshal(id)
	params, _ := json.Marshal(domain.ToolCallParams{Tool: tool, Arguments: args})
	return domain.Request{JSONRPC: "2.0", ID: rawID, Method: domain.MethodToolCall, Params: params}
}

func encode(t *testing.T, resp domain.Response) string {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(raw)
}

func TestRouteSuccess(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, echoTool())

	resp := fx.router.Route(context.Background(), call(7, "scene.echo", map[string]any{"text": "hi"}))

	require.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"tool":"scene.echo","output":{"text":"hi","privileged":true},"diagnostics":["echoed"]}}`, encode(t, resp))

	spans := fx.recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "tools/call scene.echo", spans[0].Name())
	require.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestRouteEchoesStringID(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, echoTool())

	resp := fx.router.Route(context.Background(), call("abc", "scene.echo", map[string]any{"text": "x"}))
	require.Equal(t, `"abc"`, string(resp.ID))
}

func TestRouteUnknownMethod(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second)

	resp := fx.router.Route(context.Background(), domain.Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/list"})
	require.NotNil(t, resp.Error)
	require.Equal(t, int64(domain.ErrCodeMethodNotFound), resp.Error.Code)
	require.Contains(t, resp.Error.Message, "tools/list")
	require.Nil(t, resp.Result)
}

func TestRouteInvalidParams(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, echoTool())

	cases := map[string]json.RawMessage{
		"missing":   nil,
		"empty":     json.RawMessage(`{}`),
		"blank":     json.RawMessage(`{"tool":"  "}`),
		"malformed": json.RawMessage(`{"tool":5}`),
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			resp := fx.router.Route(context.Background(), domain.Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: domain.MethodToolCall, Params: params})
			require.NotNil(t, resp.Error)
			require.Equal(t, int64(domain.ErrCodeInvalidParams), resp.Error.Code)
		})
	}
}

func TestRouteUnknownTool(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, echoTool())

	resp := fx.router.Route(context.Background(), call(1, "scene.missing", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, int64(domain.ErrCodeMethodNotFound), resp.Error.Code)
	require.Contains(t, resp.Error.Message, "scene.missing")
}

func TestRouteTierDeniedIsDistinctFromNotFound(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, toolWith("studio.only", domain.TierStudio, func(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
		return domain.ToolResult{}, nil
	}))

	resp := fx.router.Route(context.Background(), call(1, "studio.only", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, int64(domain.ErrCodeTierDenied), resp.Error.Code)
	require.JSONEq(t, `{"toolId":"studio.only","requiredTier":"studio","currentTier":"core"}`, string(resp.Error.Data))
}

func TestRouteToolErrorIsReportedInOutput(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, toolWith("asset.find", domain.TierCore, func(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
		return domain.ToolResult{}, domain.ToolError{Message: "path is outside the project", Details: map[string]any{"path": "/etc"}}
	}))

	resp := fx.router.Route(context.Background(), call(3, "asset.find", nil))
	require.Nil(t, resp.Error)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":{"tool":"asset.find","output":{"error":"path is outside the project","path":"/etc"}}}`, encode(t, resp))
}

func TestRouteSchemaViolationIsToolLocal(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, echoTool())

	resp := fx.router.Route(context.Background(), call(4, "scene.echo", map[string]any{"text": 12}))
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
	require.Contains(t, resp.Result.Output["error"], "invalid arguments for scene.echo")
}

func TestRouteFaultBecomesInternalError(t *testing.T) {
	fx := newFixture(t, domain.TierCore, time.Second, toolWith("scene.crash", domain.TierCore, func(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
		panic(errors.New("null reference"))
	}))

	resp := fx.router.Route(context.Background(), call(5, "scene.crash", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, int64(domain.ErrCodeInternalError), resp.Error.Code)
	require.Contains(t, resp.Error.Message, "null reference")

	var data domain.FaultData
	require.NoError(t, json.Unmarshal(resp.Error.Data, &data))
	require.Equal(t, "*errors.errorString", data.ExceptionType)
	require.NotEmpty(t, data.StackTrace)

	spans := fx.recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestRouteTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fx := newFixture(t, domain.TierCore, 20*time.Millisecond, toolWith("scene.slow", domain.TierCore, func(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
		<-release
		return domain.ToolResult{}, nil
	}))

	resp := fx.router.Route(context.Background(), call(6, "scene.slow", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, int64(domain.ErrCodeDispatchTimeout), resp.Error.Code)
	require.JSONEq(t, `{"toolId":"scene.slow","timeoutSeconds":1}`, string(resp.Error.Data))
}

func TestParseRequest(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"jsonrpc":"2.0","id":"a","method":"tools/call","params":{"tool":"x"}}`))
	require.Nil(t, perr)
	require.Equal(t, domain.MethodToolCall, req.Method)
	require.True(t, req.HasID())

	_, perr = ParseRequest([]byte(`{not json`))
	require.NotNil(t, perr)
	require.Equal(t, int64(domain.ErrCodeParseError), perr.Code)
	resp := ErrorResponseForLine([]byte(`{not json`), perr)
	require.Equal(t, "null", string(resp.ID))

	_, perr = ParseRequest([]byte(`[1,2]`))
	require.NotNil(t, perr)
	require.Equal(t, int64(domain.ErrCodeInvalidRequest), perr.Code)

	line := []byte(`{"id":9,"method":{"bad":true}}`)
	_, perr = ParseRequest(line)
	require.NotNil(t, perr)
	require.Equal(t, int64(domain.ErrCodeInvalidRequest), perr.Code)
	require.Equal(t, "9", string(ErrorResponseForLine(line, perr).ID))
}
