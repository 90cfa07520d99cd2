package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// filterProperties are the optional scoping arguments shared by both search tools
func filterProperties(props map[string]interface{}) map[string]interface{} {
	props["top_k"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results to return (values above 100 are capped)",
		"default":     10,
	}
	props["repo_id"] = map[string]interface{}{
		"type":        "string",
		"description": "Restrict results to one repository",
	}
	props["language"] = map[string]interface{}{
		"type":        "string",
		"description": "Restrict results to one language (e.g. python)",
	}
	props["min_score"] = map[string]interface{}{
		"type":        "number",
		"description": "Drop results scoring below this value (0.0-1.0)",
		"minimum":     0.0,
		"maximum":     1.0,
	}
	return props
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed code with a natural language or code-like query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: filterProperties(map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, identifier or code fragment)",
				},
			}),
			Required: []string{"query"},
		},
	}
}

// searchSimilarTool returns the tool definition for search_similar
func searchSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_similar",
		Description: "Find indexed code that resembles a code snippet",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: filterProperties(map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Code snippet to compare against",
				},
				"exclude_self": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop chunks whose code is identical to the snippet",
					"default":     false,
				},
			}),
			Required: []string{"code"},
		},
	}
}

// indexChunksTool returns the tool definition for index_chunks
func indexChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_chunks",
		Description: "Embed and store code chunks so they become searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to a JSONL file with one chunk record per line",
				},
				"chunks": map[string]interface{}{
					"type":        "array",
					"description": "Inline chunk records, used instead of path",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"file_path":        map[string]interface{}{"type": "string"},
							"start_line":       map[string]interface{}{"type": "integer"},
							"end_line":         map[string]interface{}{"type": "integer"},
							"language":         map[string]interface{}{"type": "string"},
							"symbol_type":      map[string]interface{}{"type": "string", "enum": []string{"function", "call", "doc", "docstring"}},
							"symbol_name":      map[string]interface{}{"type": "string"},
							"code":             map[string]interface{}{"type": "string"},
							"signature":        map[string]interface{}{"type": "string"},
							"docstring":        map[string]interface{}{"type": "string"},
							"semantic_context": map[string]interface{}{"type": "string"},
						},
						"required": []string{"file_path", "code"},
					},
				},
				"repo_id": map[string]interface{}{
					"type":        "string",
					"description": "Repository the chunks belong to; overrides repo_id on each record",
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report store backend, collections and whether indexing is running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
