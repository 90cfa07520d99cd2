// Package mcp implements the Model Context Protocol (MCP) server for coderetrieve.
//
// The server exposes four tools to AI coding assistants:
//   - search_code: hybrid search with a natural language or code-like query
//   - search_similar: find chunks resembling a code snippet
//   - index_chunks: embed and store chunk records (JSONL file or inline)
//   - get_status: report the store backend, point counts, cache counters and indexing state
//
// MCP is JSON-RPC 2.0 over stdio. Logs go to stderr since stdout carries the
// protocol.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "remove duplicates from list",
//	    "top_k": 5,
//	    "language": "python",
//	    "min_score": 0.3
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.87,
//	      "file_path": "utils/list.py",
//	      "start_line": 12,
//	      "end_line": 20,
//	      "symbol_type": "function",
//	      "symbol_name": "remove_duplicates",
//	      "code": "def remove_duplicates(xs): ..."
//	    }
//	  ],
//	  "count": 1,
//	  "variants": ["remove duplicates from list", "delete duplicates from list"],
//	  "degraded": false
//	}
//
// An empty or whitespace query returns no results rather than an error.
//
// # Tool: index_chunks
//
//	{"name": "index_chunks", "arguments": {"path": "/data/chunks.jsonl", "repo_id": "acme/api"}}
//
// Re-indexing the same chunk replaces its stored points.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing or mistyped arguments)
//   - -32603: Internal error
//   - -32001: Upstream failure (no embedding or every store query failed)
//   - -32002: Indexing in progress
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "coderetrieve": {
//	      "command": "/usr/local/bin/coderetrieve",
//	      "args": ["serve", "--config", "/etc/coderetrieve.yaml"],
//	      "env": {"JINA_API_KEY": "your-api-key"}
//	    }
//	  }
//	}
package mcp
