// Package tools holds the built-in platform tools that describe the server
// and its catalog to clients.
package tools

import (
	"context"
	"strings"
	"time"

	"editormcp/internal/domain"
	"editormcp/internal/infra/hostversion"
	"editormcp/internal/infra/registry"
)

const ProviderName = "platform"

const (
	ServerInfoID   = "mcp.server.info"
	ToolsListID    = "mcp.tools.list"
	ToolDescribeID = "mcp.tool.describe"
	HealthID       = "mcp.health"
)

// Environment supplies the runtime facts the platform tools report.
type Environment struct {
	ServerVersion string
	Host          func() domain.HostInfo
	Tier          domain.TierSource
	Registry      func() *registry.Registry
	QueueDepth    func() int
	StartedAt     func() time.Time
	Now           func() time.Time
}

func (e Environment) withDefaults() Environment {
	if e.ServerVersion == "" {
		e.ServerVersion = domain.ServerVersion
	}
	if e.Host == nil {
		e.Host = func() domain.HostInfo { return domain.HostInfo{} }
	}
	if e.Tier == nil {
		e.Tier = domain.StaticTier(domain.TierCore)
	}
	if e.Registry == nil {
		e.Registry = registry.Current
	}
	if e.QueueDepth == nil {
		e.QueueDepth = func() int { return 0 }
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

// Platform returns the provider of the mcp.* platform tools.
func Platform(env Environment) registry.Provider {
	env = env.withDefaults()
	p := &platform{env: env}
	return registry.StaticProvider{
		ProviderName: ProviderName,
		Tools: []registry.Registration{
			{Definition: serverInfoDefinition, Handler: p.serverInfo},
			{Definition: toolsListDefinition, Handler: p.toolsList},
			{Definition: toolDescribeDefinition, Handler: p.toolDescribe},
			{Definition: healthDefinition, Handler: p.health},
		},
	}
}

type platform struct {
	env Environment
}

func (p *platform) serverInfo(_ context.Context, _ domain.ToolArgs) (domain.ToolResult, error) {
	reg := p.env.Registry()
	tier := p.env.Tier.CurrentTier()
	host := p.env.Host()
	categories := reg.Categories(domain.TierEnterprise)
	if categories == nil {
		categories = []string{}
	}
	return domain.ToolResult{Output: map[string]any{
		"success":               true,
		"serverVersion":         p.env.ServerVersion,
		"hostVersion":           host.Version,
		"minHostVersion":        domain.MinHostVersion,
		"isCompatible":          hostversion.IsCompatible(host.Version),
		"platform":              host.Platform,
		"enabledToolCategories": categories,
		"tier":                  tier.String(),
		"toolCount":             reg.Count(),
	}}, nil
}

func (p *platform) toolsList(_ context.Context, args domain.ToolArgs) (domain.ToolResult, error) {
	tier := p.env.Tier.CurrentTier()
	if requested, ok := stringArg(args, "tier"); ok {
		parsed, err := domain.ParseTier(requested)
		if err != nil {
			return domain.ToolResult{}, domain.ToolError{Message: err.Error(), Details: map[string]any{"tools": []domain.ToolSummary{}}}
		}
		if parsed < tier {
			tier = parsed
		}
	}
	category, _ := stringArg(args, "category")

	defs := p.env.Registry().List(category, tier)
	summaries := make([]domain.ToolSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, def.Summary())
	}
	return domain.ToolResult{Output: map[string]any{"tools": summaries}}, nil
}

func (p *platform) toolDescribe(_ context.Context, args domain.ToolArgs) (domain.ToolResult, error) {
	toolID, _ := stringArg(args, "toolId")
	def, err := p.env.Registry().Describe(toolID)
	if err != nil {
		return domain.ToolResult{Output: map[string]any{
			"tool": map[string]any{"id": toolID, "error": "Tool not found"},
		}}, nil
	}
	return domain.ToolResult{Output: map[string]any{"tool": DescribeDefinition(def)}}, nil
}

func (p *platform) health(_ context.Context, _ domain.ToolArgs) (domain.ToolResult, error) {
	reg := p.env.Registry()
	uptime := "unknown"
	var uptimeSeconds float64
	if p.env.StartedAt != nil {
		if started := p.env.StartedAt(); !started.IsZero() {
			elapsed := p.env.Now().Sub(started)
			uptimeSeconds = elapsed.Seconds()
			uptime = elapsed.Truncate(time.Second).String()
		}
	}
	duplicates := reg.Duplicates()
	status := "healthy"
	if len(duplicates) > 0 {
		status = "degraded"
	}
	return domain.ToolResult{Output: map[string]any{
		"status":        status,
		"queueDepth":    p.env.QueueDepth(),
		"uptime":        uptime,
		"uptimeSeconds": uptimeSeconds,
		"toolCount":     reg.Count(),
		"duplicates":    duplicates,
	}}, nil
}

// DescribeDefinition renders a definition in its describe shape.
func DescribeDefinition(def domain.ToolDefinition) map[string]any {
	schemaVersion := def.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = domain.DefaultSchemaVersion
	}
	inputs := make(map[string]any, len(def.Inputs))
	for _, name := range def.SortedInputNames() {
		inputs[name] = def.Inputs[name]
	}
	outputs := make(map[string]any, len(def.Outputs))
	for _, name := range def.SortedOutputNames() {
		outputs[name] = def.Outputs[name]
	}
	out := map[string]any{
		"id":            def.ID,
		"name":          def.Name,
		"description":   def.Description,
		"category":      def.Category,
		"safetyLevel":   def.SafetyLevel,
		"tier":          def.MinTier.String(),
		"schemaVersion": schemaVersion,
		"inputs":        inputs,
		"outputs":       outputs,
	}
	if def.Notes != "" {
		out["notes"] = def.Notes
	}
	return out
}

func stringArg(args domain.ToolArgs, key string) (string, bool) {
	raw, ok := args[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
