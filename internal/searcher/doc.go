// Package searcher implements hybrid code retrieval and ranking over two embedding spaces.
//
// A query is normalized and expanded into up to five variants. Each variant is
// embedded in the text space and the code space, and every (variant, space) pair
// becomes one vector store query against the matching collection. Hits are merged
// into a candidate pool keyed by (file_path, start_line, symbol_name).
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, dual, searcher.DefaultConfig(),
//	    searcher.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:    "remove duplicates from list",
//	    TopK:     10,
//	    Language: "python",
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (score: %.2f)\n", r.Rank, r.SymbolName, r.Score)
//	}
//
// # Scoring
//
// Every candidate gets five signals:
//
//   - text and code similarity: best score seen in each space
//   - lexical: weighted substring, phrase and token overlap across text fields
//   - BM25: saturated term frequency over signature, docstring, name and code
//   - signature: overlap between query tokens and the function name
//
// The first four are fused with weights text 0.4, code 0.2, lexical 0.3 and
// BM25 0.1. Code-like queries move 0.1 from text to code. Boosts for signature
// matches, documentation and functions, and a penalty for call sites, are then
// applied with clamping to [0,1] after each step.
//
// # Failure Handling
//
// One failed vector query is logged and skipped. ErrUpstream is returned when
// embedding fails, when every vector query fails, or when the deadline passes
// before any candidate arrives. A deadline with some candidates ranks what was
// gathered and sets SearchResponse.Degraded.
//
// # Similar Code
//
// SearchSimilar embeds a snippet in the code space only, scores with code
// similarity and lexical overlap, and can exclude chunks whose code equals the
// snippet.
package searcher
