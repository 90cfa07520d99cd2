package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/coderetrieve/internal/indexer"
	"github.com/dshills/coderetrieve/internal/searcher"
	"github.com/dshills/coderetrieve/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeUpstreamFailure    = -32001 // Embedding provider or vector store unavailable
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
)

// maxErrorMessages caps the batch errors echoed back from index_chunks
const maxErrorMessages = 5

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	minScore, err := getScore(args, "min_score")
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		TopK:     getIntDefault(args, "top_k", 0),
		RepoID:   getStringDefault(args, "repo_id", ""),
		Language: getStringDefault(args, "language", ""),
		MinScore: minScore,
	})
	if err != nil {
		return nil, searchError(err)
	}

	return mcp.NewToolResultText(formatJSON(searchResponse(resp))), nil
}

// handleSearchSimilar handles the search_similar tool invocation
func (s *Server) handleSearchSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	code, ok := args["code"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "code parameter is required", map[string]interface{}{
			"param":  "code",
			"reason": "missing or not a string",
		})
	}

	minScore, err := getScore(args, "min_score")
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.SearchSimilar(ctx, searcher.SimilarRequest{
		Code:        code,
		TopK:        getIntDefault(args, "top_k", 0),
		RepoID:      getStringDefault(args, "repo_id", ""),
		Language:    getStringDefault(args, "language", ""),
		ExcludeSelf: getBoolDefault(args, "exclude_self", false),
		MinScore:    minScore,
	})
	if err != nil {
		return nil, searchError(err)
	}

	return mcp.NewToolResultText(formatJSON(searchResponse(resp))), nil
}

// handleIndexChunks handles the index_chunks tool invocation
func (s *Server) handleIndexChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	records, err := chunkArgs(args)
	if err != nil {
		return nil, err
	}

	if s.indexer.Busy() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}

	stats, err := s.indexer.Index(ctx, records, getStringDefault(args, "repo_id", ""))
	if err != nil {
		return nil, indexError(err)
	}

	response := map[string]interface{}{
		"indexed":          stats.ChunksFailed == 0,
		"chunks_read":      stats.ChunksRead,
		"chunks_indexed":   stats.ChunksIndexed,
		"chunks_skipped":   stats.ChunksSkipped,
		"chunks_duplicate": stats.ChunksDuplicate,
		"chunks_failed":    stats.ChunksFailed,
		"batches":          stats.Batches,
		"duration_ms":      stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxErrorMessages {
			response["errors"] = stats.ErrorMessages[:maxErrorMessages]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	textPoints, err := s.store.Count(ctx, s.cfg.Search.TextCollection)
	if err != nil {
		return nil, statusError(err)
	}
	codePoints, err := s.store.Count(ctx, s.cfg.Search.CodeCollection)
	if err != nil {
		return nil, statusError(err)
	}

	textDim, codeDim := s.embedder.Dimensions()
	textCache, codeCache := s.embedder.CacheStats()
	response := map[string]interface{}{
		"indexing": s.indexer.Busy(),
		"store": map[string]interface{}{
			"backend":         s.cfg.Store.Backend,
			"text_collection": s.cfg.Search.TextCollection,
			"code_collection": s.cfg.Search.CodeCollection,
			"text_points":     textPoints,
			"code_points":     codePoints,
		},
		"embeddings": map[string]interface{}{
			"text_dimension": textDim,
			"code_dimension": codeDim,
			"text_cache":     textCache,
			"code_cache":     codeCache,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// statusError reports a store that could not be counted
func statusError(err error) error {
	return newMCPError(ErrorCodeUpstreamFailure, "vector store unavailable", map[string]interface{}{
		"error": err.Error(),
	})
}

// chunkArgs reads records from either the inline "chunks" array or the JSONL file at "path"
func chunkArgs(args map[string]interface{}) ([]types.ChunkRecord, error) {
	if raw, ok := args["chunks"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunks", map[string]interface{}{
				"param":  "chunks",
				"reason": err.Error(),
			})
		}
		var records []types.ChunkRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunks", map[string]interface{}{
				"param":  "chunks",
				"reason": err.Error(),
			})
		}
		return records, nil
	}

	path := strings.TrimSpace(getStringDefault(args, "path", ""))
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path or chunks parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	defer func() { _ = f.Close() }()

	records, err := indexer.ReadJSONL(f)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "malformed chunk file", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return records, nil
}

// searchResponse renders a search response for the client
func searchResponse(resp *searcher.SearchResponse) map[string]interface{} {
	return map[string]interface{}{
		"results":     resp.Results,
		"count":       len(resp.Results),
		"variants":    resp.Variants,
		"code_like":   resp.CodeLike,
		"candidates":  resp.Candidates,
		"degraded":    resp.Degraded,
		"duration_ms": resp.Duration.Milliseconds(),
	}
}

// searchError maps engine failures onto MCP error codes
func searchError(err error) error {
	if errors.Is(err, searcher.ErrUpstream) {
		return newMCPError(ErrorCodeUpstreamFailure, "search backends unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// indexError maps indexer failures onto MCP error codes
func indexError(err error) error {
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	return newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getScore extracts an optional score in [0, 1]; absent yields nil
func getScore(args map[string]interface{}, key string) (*float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	val, ok := raw.(float64)
	if !ok || val < 0 || val > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be a number between 0 and 1", map[string]interface{}{
			"param": key,
			"value": raw,
		})
	}
	return &val, nil
}
