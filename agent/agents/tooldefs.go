package agents

import (
	openaisdk "github.com/openai/openai-go"

	contractx "github.com/chronicai/chronicai/agent/contract"
	toolx "github.com/chronicai/chronicai/agent/tool"
)

// toolDefs builds the chat-completion tool declarations for one
// specialist from its closed tool set.
func toolDefs(agent contractx.AgentName) []openaisdk.ChatCompletionToolParam {
	names := toolx.ForAgent(agent)
	out := make([]openaisdk.ChatCompletionToolParam, 0, len(names))
	for _, name := range names {
		if def, ok := toolSchemas[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

var toolSchemas = map[string]openaisdk.ChatCompletionToolParam{
	toolx.ToolSQLSchema: functionDef(
		toolx.ToolSQLSchema,
		"Return column/type metadata for the allow-listed tables.",
		map[string]any{}, nil,
	),
	toolx.ToolSQLRunReadonly: functionDef(
		toolx.ToolSQLRunReadonly,
		"Execute a single read-only SELECT/WITH statement scoped to the session user.",
		map[string]any{
			"sql": map[string]any{"type": "string", "description": "SELECT or WITH statement with a user_id filter"},
		},
		[]string{"sql"},
	),
	toolx.ToolRAGRetrieve: functionDef(
		toolx.ToolRAGRetrieve,
		"Retrieve up to k knowledge snippets for a query.",
		map[string]any{
			"section": map[string]any{"type": "string", "description": "Knowledge section"},
			"query":   map[string]any{"type": "string", "description": "Retrieval query"},
			"k":       map[string]any{"type": "integer", "description": "Maximum snippets"},
		},
		[]string{"section", "query"},
	),
	toolx.ToolWeeklyMetrics: functionDef(
		toolx.ToolWeeklyMetrics,
		"Fetch the session user's weekly metrics.",
		map[string]any{}, nil,
	),
	toolx.ToolRecordAssessment: functionDef(
		toolx.ToolRecordAssessment,
		"Persist raw metrics, per-section assessment and trends into the profile.",
		map[string]any{
			"raw_metrics": map[string]any{"type": "object", "description": "Weekly metrics JSON"},
			"assessment":  map[string]any{"type": "object", "description": "Per-section snapshot"},
			"trends":      map[string]any{"type": "object", "description": "Week-over-week summaries"},
		},
		[]string{"raw_metrics", "assessment", "trends"},
	),
	toolx.ToolRecordRecommendations: functionDef(
		toolx.ToolRecordRecommendations,
		"Persist per-section recommendation summaries into the profile.",
		map[string]any{
			"recs": map[string]any{"type": "object", "description": "Section to summary mapping"},
		},
		[]string{"recs"},
	),
	toolx.ToolPersistInsight: functionDef(
		toolx.ToolPersistInsight,
		"Persist a brief natural-language insight for follow-up turns.",
		map[string]any{
			"summary": map[string]any{"type": "string", "description": "Insight summary"},
		},
		[]string{"summary"},
	),
	toolx.ToolHandoff: functionDef(
		toolx.ToolHandoff,
		"Hand control to another specialist when it is better suited.",
		map[string]any{
			"target": map[string]any{"type": "string", "description": "Target specialist name"},
			"reason": map[string]any{"type": "string", "description": "Short audit note"},
		},
		[]string{"target"},
	),
}

func functionDef(name, desc string, properties map[string]any, required []string) openaisdk.ChatCompletionToolParam {
	params := openaisdk.FunctionParameters{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return openaisdk.ChatCompletionToolParam{
		Function: openaisdk.FunctionDefinitionParam{
			Name:        name,
			Description: openaisdk.String(desc),
			Parameters:  params,
		},
	}
}
