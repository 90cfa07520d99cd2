package types

import (
	"strconv"
	"strings"
)

// SymbolType represents the kind of code fragment a chunk holds
type SymbolType string

const (
	SymbolFunction  SymbolType = "function"
	SymbolCall      SymbolType = "call"
	SymbolDoc       SymbolType = "doc"
	SymbolDocstring SymbolType = "docstring" // legacy alias of SymbolDoc
)

// IsDoc reports whether the symbol type denotes a documentation block
func (t SymbolType) IsDoc() bool {
	return t == SymbolDoc || t == SymbolDocstring
}

// ChunkRecord is an immutable indexed unit produced by the chunk extraction pipeline
type ChunkRecord struct {
	// Location
	RepoID    string `json:"repo_id,omitempty"`
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`

	// Symbol
	Language   string     `json:"language"`
	SymbolType SymbolType `json:"symbol_type"`
	SymbolName string     `json:"symbol_name"`

	// Content
	Code            string `json:"code"`
	Signature       string `json:"signature,omitempty"`
	Docstring       string `json:"docstring,omitempty"`
	SemanticContext string `json:"semantic_context,omitempty"`
}

// IdentityKey identifies the same chunk across retrieval paths
type IdentityKey struct {
	FilePath   string
	StartLine  int
	SymbolName string
}

// String renders the key as path:line:symbol
func (k IdentityKey) String() string {
	return k.FilePath + ":" + strconv.Itoa(k.StartLine) + ":" + k.SymbolName
}

// Key returns the record's deduplication identity
func (c *ChunkRecord) Key() IdentityKey {
	return IdentityKey{
		FilePath:   c.FilePath,
		StartLine:  c.StartLine,
		SymbolName: c.SymbolName,
	}
}

// Validate checks that the record can be materialized into a search candidate.
// Only the code body is required; every other field is optional.
func (c *ChunkRecord) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return ErrEmptyCode
	}
	return nil
}

// Field returns a payload field by its wire name, used for equality filters
func (c *ChunkRecord) Field(name string) (string, bool) {
	switch name {
	case "repo_id":
		return c.RepoID, true
	case "language":
		return c.Language, true
	case "symbol_type":
		return string(c.SymbolType), true
	case "symbol_name":
		return c.SymbolName, true
	case "file_path":
		return c.FilePath, true
	case "start_line":
		return strconv.Itoa(c.StartLine), true
	case "end_line":
		return strconv.Itoa(c.EndLine), true
	case "signature":
		return c.Signature, true
	default:
		return "", false
	}
}

// EmbeddingText returns the natural-language view of the chunk embedded in the text space
func (c *ChunkRecord) EmbeddingText() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{c.SymbolName, c.Signature, c.Docstring, c.SemanticContext} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return c.Code
	}
	return strings.Join(parts, "\n")
}
