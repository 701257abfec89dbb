package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"editormcp/internal/domain"
)

// Tool is a resolved registry entry.
type Tool struct {
	Definition domain.ToolDefinition
	Handler    domain.ToolHandler
	schema     *jsonschema.Resolved
}

// Registry is an immutable id to tool mapping built by a Builder.
type Registry struct {
	tools      map[string]Tool
	ids        []string
	duplicates []domain.DuplicateTool
	revision   uint64
}

// Builder accumulates registrations. First registration of an id wins;
// later ones are recorded as duplicates.
type Builder struct {
	logger     *zap.Logger
	tools      map[string]Tool
	duplicates map[string]*domain.DuplicateTool
	dupOrder   []string
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		logger:     logger,
		tools:      make(map[string]Tool),
		duplicates: make(map[string]*domain.DuplicateTool),
	}
}

// Register adds a tool. An empty id or missing handler is rejected; a
// duplicate id is recorded and not an error.
func (b *Builder) Register(def domain.ToolDefinition, handler domain.ToolHandler) error {
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		return domain.E(domain.CodeInvalidArgument, "registry.Register", "tool id is required", domain.ErrInvalidToolID)
	}
	if handler == nil {
		return domain.E(domain.CodeInvalidArgument, "registry.Register", fmt.Sprintf("tool %s has no handler", def.ID), domain.ErrInvalidToolID)
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if def.SchemaVersion == "" {
		def.SchemaVersion = domain.DefaultSchemaVersion
	}
	if def.SafetyLevel == "" {
		def.SafetyLevel = domain.SafetyReadOnly
	}

	if existing, ok := b.tools[def.ID]; ok {
		dup, seen := b.duplicates[def.ID]
		if !seen {
			dup = &domain.DuplicateTool{ID: def.ID, Count: 1, Sources: []string{existing.Definition.Source}}
			b.duplicates[def.ID] = dup
			b.dupOrder = append(b.dupOrder, def.ID)
		}
		dup.Count++
		dup.Sources = append(dup.Sources, def.Source)
		b.logger.Warn("duplicate tool id",
			zap.String("tool", def.ID),
			zap.String("source", def.Source),
			zap.String("kept", existing.Definition.Source),
		)
		return nil
	}

	schema, err := resolveInputSchema(def)
	if err != nil {
		return domain.E(domain.CodeInvalidArgument, "registry.Register", fmt.Sprintf("tool %s input schema", def.ID), err)
	}
	b.tools[def.ID] = Tool{Definition: def, Handler: handler, schema: schema}
	return nil
}

// Build freezes the accumulated registrations.
func (b *Builder) Build() *Registry {
	tools := make(map[string]Tool, len(b.tools))
	ids := make([]string, 0, len(b.tools))
	for id, tool := range b.tools {
		tools[id] = tool
		ids = append(ids, id)
	}
	sort.Strings(ids)

	dupIDs := append([]string(nil), b.dupOrder...)
	sort.Strings(dupIDs)
	duplicates := make([]domain.DuplicateTool, 0, len(dupIDs))
	for _, id := range dupIDs {
		dup := b.duplicates[id]
		duplicates = append(duplicates, domain.DuplicateTool{
			ID:      dup.ID,
			Count:   dup.Count,
			Sources: append([]string(nil), dup.Sources...),
		})
	}
	return &Registry{
		tools:      tools,
		ids:        ids,
		duplicates: duplicates,
		revision:   revisionCounter.Add(1),
	}
}

var revisionCounter atomic.Uint64

// Empty returns a registry with no tools.
func Empty() *Registry {
	return NewBuilder(nil).Build()
}

// Resolve returns the tool for id when the caller's tier permits it.
func (r *Registry) Resolve(id string, tier domain.Tier) (Tool, error) {
	tool, ok := r.lookup(id)
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
	}
	if !tier.Allows(tool.Definition.MinTier) {
		return Tool{}, fmt.Errorf("%w: %s requires %s, current tier is %s",
			domain.ErrTierDenied, id, tool.Definition.MinTier, tier)
	}
	return tool, nil
}

// Describe returns the full definition of id regardless of tier.
func (r *Registry) Describe(id string) (domain.ToolDefinition, error) {
	tool, ok := r.lookup(id)
	if !ok {
		return domain.ToolDefinition{}, fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
	}
	return tool.Definition, nil
}

// List returns definitions visible at tier, optionally restricted to a
// category, sorted by id.
func (r *Registry) List(category string, tier domain.Tier) []domain.ToolDefinition {
	if r == nil {
		return nil
	}
	category = strings.TrimSpace(category)
	out := make([]domain.ToolDefinition, 0, len(r.ids))
	for _, id := range r.ids {
		def := r.tools[id].Definition
		if category != "" && def.Category != category {
			continue
		}
		if !tier.Allows(def.MinTier) {
			continue
		}
		out = append(out, def)
	}
	return out
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// IDs returns every registered id in ascending order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

// Duplicates reports ids that were registered more than once.
func (r *Registry) Duplicates() []domain.DuplicateTool {
	if r == nil {
		return nil
	}
	out := make([]domain.DuplicateTool, 0, len(r.duplicates))
	for _, dup := range r.duplicates {
		dup.Sources = append([]string(nil), dup.Sources...)
		out = append(out, dup)
	}
	return out
}

// Categories returns the distinct categories of tools visible at tier.
func (r *Registry) Categories(tier domain.Tier) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, def := range r.List("", tier) {
		if def.Category == "" {
			continue
		}
		if _, ok := seen[def.Category]; ok {
			continue
		}
		seen[def.Category] = struct{}{}
		out = append(out, def.Category)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Revision() uint64 {
	if r == nil {
		return 0
	}
	return r.revision
}

func (r *Registry) lookup(id string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	tool, ok := r.tools[strings.TrimSpace(id)]
	return tool, ok
}

var (
	current atomic.Pointer[Registry]
	// unset is served by Current until a registry is installed, so reads
	// of an unset registry report a stable revision.
	unset = Empty()
)

// Current returns the process-wide registry, never nil.
func Current() *Registry {
	if reg := current.Load(); reg != nil {
		return reg
	}
	return unset
}

// SetCurrent installs reg as the process-wide registry.
func SetCurrent(reg *Registry) {
	current.Store(reg)
}
