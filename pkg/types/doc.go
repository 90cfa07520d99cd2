// Package types provides shared type definitions for the code retrieval engine.
//
// This package defines the records exchanged between the chunk producer, the
// vector store clients and the ranking engine.
//
// # Core Types
//
// ChunkRecord is the unit emitted by the external chunk extraction pipeline and
// stored as a vector payload:
//
//	rec := types.ChunkRecord{
//	    FilePath:   "utils/list.py",
//	    StartLine:  12,
//	    EndLine:    20,
//	    Language:   "python",
//	    SymbolType: types.SymbolFunction,
//	    SymbolName: "remove_duplicates",
//	    Code:       "def remove_duplicates(items): ...",
//	}
//
// IdentityKey (file path, start line, symbol name) is the deduplication unit: two
// hits with the same key are the same chunk, whichever query variant or embedding
// space surfaced them.
//
// # Validation
//
// Records are validated once at the ingestion and retrieval boundaries. A record
// without code is never turned into a search candidate:
//
//	if err := rec.Validate(); err != nil {
//	    // errors.Is(err, types.ErrEmptyCode)
//	}
//
// # Search Results
//
// RankedResult carries the fused score and the record fields:
//
//	result := types.RankedResult{
//	    Rank:        1,
//	    Score:       0.85,
//	    ChunkRecord: rec,
//	}
//
// Scores are clamped to the [0, 1] range, with higher values indicating better matches.
package types
