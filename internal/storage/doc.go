// Package storage provides the vector stores that hold indexed chunks.
//
// A VectorStore keeps one collection per embedding space. Each point is a
// vector plus the ChunkRecord payload it was computed from. Queries return
// hits by descending cosine similarity, optionally narrowed by equality
// filters on payload fields and a minimum score.
//
// # Backends
//
//   - memory: in-process, for tests and one-shot CLI runs
//   - sqlite: a single database file; migrations are versioned with semver
//   - qdrant: the Qdrant REST API
//
// Open selects a backend from Config:
//
//	store, err := storage.Open(storage.Config{Backend: "sqlite", Path: "chunks.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.EnsureCollection(ctx, "code_chunks_code", 768); err != nil {
//	    log.Fatal(err)
//	}
//	hits, err := store.Query(ctx, "code_chunks_code", storage.QueryRequest{
//	    Vector: vec,
//	    Limit:  30,
//	    Filter: storage.NewFilter(storage.Match{Field: "language", Value: "go"}),
//	})
//
// # Build Modes
//
// The SQLite backend uses modernc.org/sqlite by default. Building with the
// sqlite_cgo tag switches to github.com/mattn/go-sqlite3.
//
// # Filters
//
// NewFilter drops predicates with empty values, so an unset repo or language
// never constrains a query. The SQLite backend pushes repo_id and language
// predicates into SQL; other fields are matched against the decoded payload.
package storage
