package domain

import (
	"context"
	"sort"
)

// SafetyLevel classifies what a tool may do to host state.
type SafetyLevel string

const (
	SafetyReadOnly    SafetyLevel = "ReadOnly"
	SafetyMutating    SafetyLevel = "Mutating"
	SafetyDestructive SafetyLevel = "Destructive"
)

const DefaultSchemaVersion = "0.1.0"

// ParameterSchema describes a single tool input.
type ParameterSchema struct {
	Type        string                     `json:"type"`
	Required    bool                       `json:"required"`
	Description string                     `json:"description,omitempty"`
	Default     any                        `json:"default,omitempty"`
	Enum        []any                      `json:"enum,omitempty"`
	Minimum     *float64                   `json:"minimum,omitempty"`
	Maximum     *float64                   `json:"maximum,omitempty"`
	Properties  map[string]ParameterSchema `json:"properties,omitempty"`
	Items       *ParameterSchema           `json:"items,omitempty"`
}

// OutputSchema describes a single tool output field.
type OutputSchema struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]OutputSchema `json:"properties,omitempty"`
	Items       *OutputSchema           `json:"items,omitempty"`
}

// ToolDefinition is the immutable metadata for one registered tool.
type ToolDefinition struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Description   string                     `json:"description"`
	Category      string                     `json:"category"`
	SafetyLevel   SafetyLevel                `json:"safetyLevel"`
	MinTier       Tier                       `json:"tier"`
	Inputs        map[string]ParameterSchema `json:"inputs,omitempty"`
	Outputs       map[string]OutputSchema    `json:"outputs,omitempty"`
	Notes         string                     `json:"notes,omitempty"`
	SchemaVersion string                     `json:"schemaVersion"`
	Source        string                     `json:"-"`
}

// SortedInputNames returns input names in ascending order.
func (d ToolDefinition) SortedInputNames() []string {
	return sortedKeys(d.Inputs)
}

// SortedOutputNames returns output names in ascending order.
func (d ToolDefinition) SortedOutputNames() []string {
	return sortedKeys(d.Outputs)
}

// Summary projects the definition onto its listing shape.
func (d ToolDefinition) Summary() ToolSummary {
	return ToolSummary{
		ID:          d.ID,
		Name:        d.Name,
		Category:    d.Category,
		SafetyLevel: d.SafetyLevel,
		Description: d.Description,
		Tier:        d.MinTier.String(),
	}
}

// ToolSummary is the listing shape exposed by discovery tools.
type ToolSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	SafetyLevel SafetyLevel `json:"safetyLevel"`
	Description string      `json:"description"`
	Tier        string      `json:"tier"`
}

// DuplicateTool reports an id registered more than once.
type DuplicateTool struct {
	ID      string   `json:"id"`
	Count   int      `json:"count"`
	Sources []string `json:"sources"`
}

// ToolArgs are decoded tool arguments.
type ToolArgs map[string]any

// ToolResult is what a tool body returns.
type ToolResult struct {
	Output      map[string]any
	Diagnostics []string
}

// ToolHandler executes a tool body. It runs on the privileged thread and
// must not block.
type ToolHandler func(ctx context.Context, args ToolArgs) (ToolResult, error)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
