package tools

import "editormcp/internal/domain"

var serverInfoDefinition = domain.ToolDefinition{
	ID:          ServerInfoID,
	Name:        "Server Info",
	Description: "Returns server and environment information to verify that the bridge is operational and provide context for tool execution.",
	Category:    domain.PlatformCategory,
	SafetyLevel: domain.SafetyReadOnly,
	MinTier:     domain.TierCore,
	Outputs: map[string]domain.OutputSchema{
		"success":               {Type: "boolean"},
		"serverVersion":         {Type: "string"},
		"hostVersion":           {Type: "string"},
		"minHostVersion":        {Type: "string"},
		"isCompatible":          {Type: "boolean"},
		"platform":              {Type: "string"},
		"enabledToolCategories": {Type: "array", Items: &domain.OutputSchema{Type: "string"}},
		"tier":                  {Type: "string"},
		"toolCount":             {Type: "integer"},
	},
}

var toolsListDefinition = domain.ToolDefinition{
	ID:          ToolsListID,
	Name:        "List Tools",
	Description: "Lists all available tools with their metadata, categories, and tier availability. Required for client discovery.",
	Category:    domain.PlatformCategory,
	SafetyLevel: domain.SafetyReadOnly,
	MinTier:     domain.TierCore,
	Inputs: map[string]domain.ParameterSchema{
		"category": {Type: "string", Description: "Only list tools in this category."},
		"tier": {
			Type:        "string",
			Description: "Only list tools available at this tier. Cannot exceed the current tier.",
			Enum:        []any{"core", "pro", "studio", "enterprise"},
		},
	},
	Outputs: map[string]domain.OutputSchema{
		"tools": {
			Type: "array",
			Items: &domain.OutputSchema{
				Type: "object",
				Properties: map[string]domain.OutputSchema{
					"id":          {Type: "string"},
					"name":        {Type: "string"},
					"category":    {Type: "string"},
					"safetyLevel": {Type: "string"},
					"description": {Type: "string"},
					"tier":        {Type: "string"},
				},
			},
		},
	},
}

var toolDescribeDefinition = domain.ToolDefinition{
	ID:          ToolDescribeID,
	Name:        "Describe Tool",
	Description: "Returns the complete schema for a specific tool, including input parameters, output structure, and safety information.",
	Category:    domain.PlatformCategory,
	SafetyLevel: domain.SafetyReadOnly,
	MinTier:     domain.TierCore,
	Inputs: map[string]domain.ParameterSchema{
		"toolId": {Type: "string", Description: "Id of the tool to describe."},
	},
	Outputs: map[string]domain.OutputSchema{
		"tool": {Type: "object", Description: "Full definition, or {id, error} when the tool is unknown."},
	},
	Notes: "Describe ignores tier so clients can explain why a tool is unavailable.",
}

var healthDefinition = domain.ToolDefinition{
	ID:          HealthID,
	Name:        "Health",
	Description: "Returns server health status, uptime, tool count, and queue depth for monitoring and diagnostics.",
	Category:    domain.PlatformCategory,
	SafetyLevel: domain.SafetyReadOnly,
	MinTier:     domain.TierCore,
	Outputs: map[string]domain.OutputSchema{
		"status":        {Type: "string"},
		"queueDepth":    {Type: "integer"},
		"uptime":        {Type: "string"},
		"uptimeSeconds": {Type: "number"},
		"toolCount":     {Type: "integer"},
		"duplicates":    {Type: "array"},
	},
}
