package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"editormcp/internal/domain"
)

// InputSchema renders a definition's inputs as a JSON Schema object.
func InputSchema(def domain.ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Inputs))
	required := make([]string, 0)
	for _, name := range def.SortedInputNames() {
		param := def.Inputs[name]
		properties[name] = parameterSchema(param)
		if param.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func parameterSchema(param domain.ParameterSchema) map[string]any {
	out := map[string]any{}
	if param.Type != "" && param.Type != "any" {
		out["type"] = param.Type
	}
	if param.Description != "" {
		out["description"] = param.Description
	}
	if param.Default != nil {
		out["default"] = param.Default
	}
	if len(param.Enum) > 0 {
		out["enum"] = param.Enum
	}
	if param.Minimum != nil {
		out["minimum"] = *param.Minimum
	}
	if param.Maximum != nil {
		out["maximum"] = *param.Maximum
	}
	if len(param.Properties) > 0 {
		nested := domain.ToolDefinition{Inputs: param.Properties}
		object := InputSchema(nested)
		out["properties"] = object["properties"]
		if req, ok := object["required"]; ok {
			out["required"] = req
		}
	}
	if param.Items != nil {
		out["items"] = parameterSchema(*param.Items)
	}
	return out
}

func resolveInputSchema(def domain.ToolDefinition) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(InputSchema(def))
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}

// ValidateArguments checks args against the tool's input schema. A
// mismatch is a tool-local error.
func (t Tool) ValidateArguments(args domain.ToolArgs) error {
	if t.schema == nil {
		return nil
	}
	instance := map[string]any(args)
	if instance == nil {
		instance = map[string]any{}
	}
	if err := t.schema.Validate(instance); err != nil {
		return domain.ToolError{
			Message: fmt.Sprintf("invalid arguments for %s: %v", t.Definition.ID, err),
		}
	}
	return nil
}
