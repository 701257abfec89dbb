package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/registry"
)

// Router routes tools/call envelopes.
type Router interface {
	Route(ctx context.Context, req domain.Request) domain.Response
}

// Options configures a Bridge.
type Options struct {
	Name     string
	Version  string
	Router   Router
	Registry func() *registry.Registry
	Tier     domain.TierSource
	Logger   *zap.Logger
}

// Bridge exposes registry tools over the Model Context Protocol. Every
// call is converted into a tools/call envelope and routed, so MCP clients
// see the same tier gating, validation and dispatch as line clients.
type Bridge struct {
	server   *mcp.Server
	router   Router
	registry func() *registry.Registry
	tier     domain.TierSource
	logger   *zap.Logger

	mu         sync.Mutex
	registered map[string]struct{}
	revision   uint64
	synced     bool
}

func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := opts.Name
	if name == "" {
		name = "editormcp"
	}
	version := opts.Version
	if version == "" {
		version = domain.ServerVersion
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.Current
	}
	tier := opts.Tier
	if tier == nil {
		tier = domain.StaticTier(domain.TierCore)
	}
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{HasTools: true})
	return &Bridge{
		server:     server,
		router:     opts.Router,
		registry:   reg,
		tier:       tier,
		logger:     logger.Named("mcpbridge"),
		registered: make(map[string]struct{}),
	}
}

// Server returns the underlying MCP server.
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Sync mirrors the tools visible at the current tier onto the MCP server.
// It is a no-op when the registry revision has not changed.
func (b *Bridge) Sync() int {
	reg := b.registry()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.synced && reg.Revision() == b.revision {
		return len(b.registered)
	}

	next := make(map[string]struct{})
	for _, def := range reg.List("", b.tier.CurrentTier()) {
		tool := &mcp.Tool{
			Name:        def.ID,
			Description: def.Description,
			InputSchema: registry.InputSchema(def),
			Annotations: annotations(def),
		}
		b.server.AddTool(tool, b.handler(def.ID))
		next[def.ID] = struct{}{}
	}

	var remove []string
	for id := range b.registered {
		if _, ok := next[id]; !ok {
			remove = append(remove, id)
		}
	}
	if len(remove) > 0 {
		b.server.RemoveTools(remove...)
	}

	b.registered = next
	b.revision = reg.Revision()
	b.synced = true
	b.logger.Debug("mcp tools synced",
		zap.Int("count", len(next)),
		zap.Int("removed", len(remove)),
		zap.Uint64("revision", b.revision),
	)
	return len(next)
}

// Run serves one MCP session over transport until it ends or ctx is done.
func (b *Bridge) Run(ctx context.Context, transport mcp.Transport) error {
	b.Sync()
	return b.server.Run(ctx, transport)
}

// Connect attaches a session over transport without blocking.
func (b *Bridge) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	b.Sync()
	return b.server.Connect(ctx, transport, nil)
}

func (b *Bridge) handler(id string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		envelope, err := newEnvelope(id, args)
		if err != nil {
			return errorResult(domain.NewProtocolError(domain.ErrCodeInvalidParams, err.Error(), nil)), nil
		}
		resp := b.router.Route(ctx, envelope)
		if resp.Error != nil {
			return errorResult(resp.Error), nil
		}
		return successResult(resp.Result)
	}
}

func newEnvelope(id string, args json.RawMessage) (domain.Request, error) {
	var arguments map[string]any
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return domain.Request{}, fmt.Errorf("arguments must be an object: %w", err)
		}
	}
	params, err := json.Marshal(domain.ToolCallParams{Tool: id, Arguments: arguments})
	if err != nil {
		return domain.Request{}, err
	}
	rpcID, err := json.Marshal(uuid.NewString())
	if err != nil {
		return domain.Request{}, err
	}
	return domain.Request{
		JSONRPC: domain.JSONRPCVersion,
		ID:      rpcID,
		Method:  domain.MethodToolCall,
		Params:  params,
	}, nil
}

func successResult(result *domain.ToolCallResult) (*mcp.CallToolResult, error) {
	output := map[string]any{}
	if result != nil && result.Output != nil {
		output = result.Output
	}
	text, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("encode tool output: %w", err)
	}
	_, toolErr := output["error"]
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
		StructuredContent: output,
		IsError:           toolErr,
	}, nil
}

func errorResult(perr *domain.ProtocolError) *mcp.CallToolResult {
	text, err := json.Marshal(perr)
	if err != nil {
		text = []byte(perr.Message)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: true,
	}
}

func annotations(def domain.ToolDefinition) *mcp.ToolAnnotations {
	readOnly := def.SafetyLevel == domain.SafetyReadOnly
	destructive := def.SafetyLevel == domain.SafetyDestructive
	return &mcp.ToolAnnotations{
		Title:           def.Name,
		ReadOnlyHint:    readOnly,
		DestructiveHint: &destructive,
	}
}
