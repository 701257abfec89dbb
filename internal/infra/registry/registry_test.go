package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"editormcp/internal/domain"
)

func noopHandler(context.Context, domain.ToolArgs) (domain.ToolResult, error) {
	return domain.ToolResult{Output: map[string]any{"success": true}}, nil
}

func TestBuilder_RegisterDefaults(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "  scene.list  ", Category: "scene"}, noopHandler))
	reg := b.Build()

	def, err := reg.Describe("scene.list")
	require.NoError(t, err)
	assert.Equal(t, "scene.list", def.ID)
	assert.Equal(t, "scene.list", def.Name)
	assert.Equal(t, domain.DefaultSchemaVersion, def.SchemaVersion)
	assert.Equal(t, domain.SafetyReadOnly, def.SafetyLevel)
	assert.Equal(t, domain.TierCore, def.MinTier)
}

func TestBuilder_RegisterRejectsInvalid(t *testing.T) {
	b := NewBuilder(nil)

	err := b.Register(domain.ToolDefinition{ID: "   "}, noopHandler)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidToolID))

	err = b.Register(domain.ToolDefinition{ID: "scene.list"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidToolID))
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidArgument, code)

	assert.Equal(t, 0, b.Build().Count())
}

func TestBuilder_DuplicatesFirstWins(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := NewBuilder(zap.New(core))

	require.NoError(t, b.Register(domain.ToolDefinition{ID: "scene.list", Description: "first", Source: "scene"}, noopHandler))
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "scene.list", Description: "second", Source: "legacy"}, noopHandler))
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "scene.list", Description: "third", Source: "plugin"}, noopHandler))
	reg := b.Build()

	def, err := reg.Describe("scene.list")
	require.NoError(t, err)
	assert.Equal(t, "first", def.Description)
	assert.Equal(t, 1, reg.Count())

	want := []domain.DuplicateTool{{ID: "scene.list", Count: 3, Sources: []string{"scene", "legacy", "plugin"}}}
	if diff := cmp.Diff(want, reg.Duplicates()); diff != "" {
		t.Fatalf("duplicates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, logs.FilterMessage("duplicate tool id").Len())
}

func TestRegistry_Resolve(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "scene.list"}, noopHandler))
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "audio.mix", MinTier: domain.TierStudio}, noopHandler))
	reg := b.Build()

	tool, err := reg.Resolve("scene.list", domain.TierCore)
	require.NoError(t, err)
	assert.Equal(t, "scene.list", tool.Definition.ID)
	assert.NotNil(t, tool.Handler)

	_, err = reg.Resolve("missing.tool", domain.TierEnterprise)
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))

	_, err = reg.Resolve("audio.mix", domain.TierPro)
	assert.True(t, errors.Is(err, domain.ErrTierDenied))
	assert.Contains(t, err.Error(), "requires studio")

	_, err = reg.Resolve("audio.mix", domain.TierEnterprise)
	assert.NoError(t, err)

	def, err := reg.Describe("audio.mix")
	require.NoError(t, err)
	assert.Equal(t, domain.TierStudio, def.MinTier)
}

func TestRegistry_ListSortedAndFiltered(t *testing.T) {
	b := NewBuilder(nil)
	for _, def := range []domain.ToolDefinition{
		{ID: "scene.objects.find", Category: "scene", MinTier: domain.TierPro},
		{ID: "asset.import", Category: "asset"},
		{ID: "scene.list", Category: "scene"},
		{ID: "audio.mix", Category: "audio", MinTier: domain.TierStudio},
	} {
		require.NoError(t, b.Register(def, noopHandler))
	}
	reg := b.Build()

	ids := func(defs []domain.ToolDefinition) []string {
		out := make([]string, 0, len(defs))
		for _, def := range defs {
			out = append(out, def.ID)
		}
		return out
	}

	assert.Equal(t, []string{"asset.import", "scene.list"}, ids(reg.List("", domain.TierCore)))
	assert.Equal(t, []string{"asset.import", "scene.list", "scene.objects.find"}, ids(reg.List("", domain.TierPro)))
	assert.Equal(t, []string{"scene.list", "scene.objects.find"}, ids(reg.List(" scene ", domain.TierEnterprise)))
	assert.Empty(t, reg.List("physics", domain.TierEnterprise))

	assert.Equal(t, []string{"asset", "scene"}, reg.Categories(domain.TierCore))
	assert.Equal(t, []string{"asset", "audio", "scene"}, reg.Categories(domain.TierEnterprise))
	assert.Equal(t, []string{"asset.import", "audio.mix", "scene.list", "scene.objects.find"}, reg.IDs())
	_, err := reg.Describe("audio.mix")
	assert.NoError(t, err)
	_, err = reg.Describe("audio")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestTool_ValidateArguments(t *testing.T) {
	maxCount := 10.0
	b := NewBuilder(nil)
	require.NoError(t, b.Register(domain.ToolDefinition{
		ID: "scene.objects.find",
		Inputs: map[string]domain.ParameterSchema{
			"name":  {Type: "string", Required: true},
			"limit": {Type: "integer", Maximum: &maxCount},
			"mode":  {Type: "string", Enum: []any{"exact", "prefix"}},
		},
	}, noopHandler))
	tool, err := b.Build().Resolve("scene.objects.find", domain.TierCore)
	require.NoError(t, err)

	assert.NoError(t, tool.ValidateArguments(domain.ToolArgs{"name": "Camera"}))
	assert.NoError(t, tool.ValidateArguments(domain.ToolArgs{"name": "Camera", "limit": 3.0, "mode": "prefix"}))

	cases := map[string]domain.ToolArgs{
		"missing required": nil,
		"wrong type":       {"name": 5.0},
		"above maximum":    {"name": "Camera", "limit": 50.0},
		"not in enum":      {"name": "Camera", "mode": "fuzzy"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			err := tool.ValidateArguments(args)
			require.Error(t, err)
			var toolErr domain.ToolError
			require.True(t, errors.As(err, &toolErr))
			assert.Contains(t, toolErr.Message, "invalid arguments for scene.objects.find")
		})
	}
}

func TestInputSchema(t *testing.T) {
	def := domain.ToolDefinition{
		ID: "asset.import",
		Inputs: map[string]domain.ParameterSchema{
			"path":   {Type: "string", Required: true, Description: "Asset path"},
			"labels": {Type: "array", Items: &domain.ParameterSchema{Type: "string"}},
			"extra":  {Type: "any"},
		},
	}
	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "Asset path"},
			"labels": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"extra":  map[string]any{},
		},
		"required": []string{"path"},
	}
	if diff := cmp.Diff(want, InputSchema(def)); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

type countingMetrics struct {
	domain.Metrics
	registered int
}

func (m *countingMetrics) SetRegisteredTools(count int) {
	m.registered = count
}

type countingProvider struct {
	calls int
	regs  []Registration
}

func (p *countingProvider) Name() string { return "scene" }

func (p *countingProvider) Registrations() []Registration {
	p.calls++
	return p.regs
}

func TestDiscoverer_DiscoverTools(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := &countingMetrics{}
	scene := &countingProvider{regs: []Registration{
		{Definition: domain.ToolDefinition{ID: "scene.list"}, Handler: noopHandler},
		{Definition: domain.ToolDefinition{ID: ""}, Handler: noopHandler},
	}}
	static := StaticProvider{ProviderName: "asset", Tools: []Registration{
		{Definition: domain.ToolDefinition{ID: "asset.import"}, Handler: noopHandler},
		{Definition: domain.ToolDefinition{ID: "scene.list", Source: "override"}, Handler: noopHandler},
	}}

	d := NewDiscoverer([]Provider{scene, nil, static}, DiscovererOptions{Logger: zap.New(core), Metrics: metrics})
	assert.Nil(t, d.Last())

	reg := d.DiscoverTools(false)
	assert.Equal(t, []string{"asset.import", "scene.list"}, reg.IDs())
	assert.Equal(t, 2, metrics.registered)
	assert.Equal(t, 1, logs.FilterMessage("skip tool registration").Len())
	want := []domain.DuplicateTool{{ID: "scene.list", Count: 2, Sources: []string{"scene", "override"}}}
	if diff := cmp.Diff(want, reg.Duplicates()); diff != "" {
		t.Fatalf("duplicates mismatch (-want +got):\n%s", diff)
	}

	assert.Same(t, reg, d.DiscoverTools(false))
	assert.Equal(t, 1, scene.calls)

	forced := d.DiscoverTools(true)
	assert.NotSame(t, reg, forced)
	assert.Greater(t, forced.Revision(), reg.Revision())
	assert.Equal(t, 2, scene.calls)
	assert.Same(t, forced, d.Last())
}

func TestCurrent(t *testing.T) {
	prev := current.Load()
	t.Cleanup(func() { current.Store(prev) })

	current.Store(nil)
	require.NotNil(t, Current())
	assert.Equal(t, 0, Current().Count())

	unsetRevision := Current().Revision()
	Empty()
	assert.Same(t, Current(), Current())
	assert.Equal(t, unsetRevision, Current().Revision(), "unset registry revision is stable")

	b := NewBuilder(nil)
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "scene.list"}, noopHandler))
	reg := b.Build()
	SetCurrent(reg)
	assert.Same(t, reg, Current())
}

func TestRegistry_HandlerInvocation(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, b.Register(domain.ToolDefinition{ID: "scene.list"}, noopHandler))
	tool, err := b.Build().Resolve("scene.list", domain.TierCore)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := tool.Handler(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true}, result.Output)
}
