package llm

// ToolDefinition defines a tool that can be called by the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ParameterProperty defines a parameter property in JSON Schema format.
type ParameterProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// NewToolDefinition creates a new tool definition with standard JSON Schema parameters.
func NewToolDefinition(name, description string, properties map[string]ParameterProperty, required []string) ToolDefinition {
	props := make(map[string]any)
	for k, v := range properties {
		props[k] = map[string]any{
			"type":        v.Type,
			"description": v.Description,
		}
		if len(v.Enum) > 0 {
			props[k].(map[string]any)["enum"] = v.Enum
		}
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// ChartToolName is the tool the response model calls to attach a chart.
const ChartToolName = "generate_chart"

// GetChartTools returns the tool definitions offered during streaming
// response generation. The model calls generate_chart at most once when
// the result set benefits from visualization.
func GetChartTools() []ToolDefinition {
	return []ToolDefinition{
		NewToolDefinition(
			ChartToolName,
			"Generate a chart to visualize the query results. Call this at most once, only when the data benefits from a visual representation.",
			map[string]ParameterProperty{
				"type": {
					Type:        "string",
					Description: "The chart type to render",
					Enum:        []string{"bar", "line", "pie", "area", "scatter"},
				},
				"title": {
					Type:        "string",
					Description: "A short title for the chart",
				},
				"description": {
					Type:        "string",
					Description: "Optional one-sentence description of what the chart shows",
				},
				"data": {
					Type:        "array",
					Description: "The data points to plot, one object per row",
				},
				"xKey": {
					Type:        "string",
					Description: "The data field used for the x axis (or pie labels)",
				},
				"yKeys": {
					Type:        "array",
					Description: "The data fields plotted as series (or pie values)",
				},
				"colors": {
					Type:        "array",
					Description: "Optional hex colors, one per series",
				},
			},
			[]string{"type", "title", "data", "xKey", "yKeys"},
		),
	}
}
