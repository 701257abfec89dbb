package mcpbridge

import (
	"context"
	"encoding/json"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"editormcp/internal/domain"
	"editormcp/internal/infra/dispatcher"
	"editormcp/internal/infra/registry"
	"editormcp/internal/infra/router"
)

type goScheduler struct{}

func (goScheduler) ScheduleOnce(fn func(ctx context.Context)) func() {
	go fn(domain.WithPrivileged(context.Background()))
	return func() {}
}

func buildRegistry(t *testing.T, regs ...registry.Registration) *registry.Registry {
	t.Helper()
	builder := registry.NewBuilder(nil)
	for _, reg := range regs {
		require.NoError(t, builder.Register(reg.Definition, reg.Handler))
	}
	return builder.Build()
}

func echoTool() registry.Registration {
	return registry.Registration{
		Definition: domain.ToolDefinition{
			ID:          "scene.echo",
			Name:        "Echo",
			Description: "Echoes text",
			Category:    "scene",
			Inputs:      map[string]domain.ParameterSchema{"text": {Type: "string", Required: true}},
		},
		Handler: func(ctx context.Context, args domain.ToolArgs) (domain.ToolResult, error) {
			return domain.ToolResult{Output: map[string]any{"text": args["text"]}}, nil
		},
	}
}

func failingTool() registry.Registration {
	return registry.Registration{
		Definition: domain.ToolDefinition{ID: "scene.fail", Category: "scene", SafetyLevel: domain.SafetyDestructive},
		Handler: func(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
			return domain.ToolResult{}, domain.NewToolError("scene is locked")
		},
	}
}

func studioTool() registry.Registration {
	return registry.Registration{
		Definition: domain.ToolDefinition{ID: "audio.mix", Category: "audio", MinTier: domain.TierStudio},
		Handler: func(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
			return domain.ToolResult{}, nil
		},
	}
}

type fixture struct {
	bridge  *Bridge
	current *atomic.Pointer[registry.Registry]
	session *mcp.ClientSession
}

func newFixture(t *testing.T, regs ...registry.Registration) fixture {
	t.Helper()
	ctx := context.Background()

	current := &atomic.Pointer[registry.Registry]{}
	current.Store(buildRegistry(t, regs...))
	lookup := func() *registry.Registry { return current.Load() }

	slot := &dispatcher.Slot{}
	dispatcher.New(dispatcher.Options{Scheduler: goScheduler{}, Slot: slot})
	rt := router.New(router.Options{Registry: lookup, Dispatchers: slot, Tier: domain.StaticTier(domain.TierPro)})

	bridge := New(Options{Router: rt, Registry: lookup, Tier: domain.StaticTier(domain.TierPro)})

	ct, st := mcp.NewInMemoryTransports()
	serverSession, err := bridge.Connect(ctx, st)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return fixture{bridge: bridge, current: current, session: session}
}

func toolNames(t *testing.T, session *mcp.ClientSession) []string {
	t.Helper()
	res, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	return names
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestBridge_ListsToolsVisibleAtTier(t *testing.T) {
	f := newFixture(t, echoTool(), failingTool(), studioTool())
	require.Equal(t, []string{"scene.echo", "scene.fail"}, toolNames(t, f.session))

	res, err := f.session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	for _, tool := range res.Tools {
		if tool.Name != "scene.echo" {
			continue
		}
		require.Equal(t, "Echoes text", tool.Description)
		raw, err := json.Marshal(tool.InputSchema)
		require.NoError(t, err)
		require.JSONEq(t, `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`, string(raw))
	}
}

func TestBridge_CallToolRoutesThroughRouter(t *testing.T) {
	f := newFixture(t, echoTool())

	result, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "scene.echo",
		Arguments: map[string]any{"text": "hello"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.JSONEq(t, `{"text":"hello"}`, textOf(t, result))
}

func TestBridge_ToolErrorsAreFlagged(t *testing.T) {
	f := newFixture(t, echoTool(), failingTool())

	result, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{Name: "scene.fail"})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.JSONEq(t, `{"error":"scene is locked"}`, textOf(t, result))

	result, err = f.session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "scene.echo",
		Arguments: map[string]any{"text": 42},
	})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, textOf(t, result), "invalid arguments for scene.echo")
}

func TestBridge_SyncFollowsRegistryRevision(t *testing.T) {
	f := newFixture(t, echoTool())
	require.Equal(t, 1, f.bridge.Sync())

	f.current.Store(buildRegistry(t, failingTool(), studioTool()))
	require.Equal(t, 1, f.bridge.Sync())
	require.Equal(t, []string{"scene.fail"}, toolNames(t, f.session))
}

func TestBridge_RoutedProtocolErrors(t *testing.T) {
	f := newFixture(t, echoTool())
	// A tool removed from the registry but still mirrored resolves to
	// method-not-found at call time.
	f.current.Store(buildRegistry(t))

	result, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "scene.echo",
		Arguments: map[string]any{"text": "hello"},
	})
	require.NoError(t, err)
	require.True(t, result.IsError)

	var perr domain.ProtocolError
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &perr))
	require.Equal(t, int64(domain.ErrCodeMethodNotFound), perr.Code)
}

func TestNewEnvelope(t *testing.T) {
	req, err := newEnvelope("scene.echo", json.RawMessage(`{"text":"a"}`))
	require.NoError(t, err)
	require.Equal(t, domain.MethodToolCall, req.Method)
	require.True(t, req.HasID())
	require.JSONEq(t, `{"tool":"scene.echo","arguments":{"text":"a"}}`, string(req.Params))

	req, err = newEnvelope("scene.echo", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"tool":"scene.echo"}`, string(req.Params))

	_, err = newEnvelope("scene.echo", json.RawMessage(`[1,2]`))
	require.Error(t, err)
}
