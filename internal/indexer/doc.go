// Package indexer ingests chunk records produced by an external extraction
// pipeline into the vector store.
//
// # Basic Usage
//
//	idx := indexer.New(store, dual, indexer.DefaultConfig(), indexer.WithLogger(logger))
//
//	f, _ := os.Open("chunks.jsonl")
//	defer f.Close()
//
//	stats, err := idx.IndexReader(ctx, f, "acme/tools")
//	fmt.Printf("Indexed %d chunks (%d skipped) in %v\n",
//	    stats.ChunksIndexed, stats.ChunksSkipped, stats.Duration)
//
// # Input Format
//
// One JSON object per line with the ChunkRecord fields (file_path, start_line,
// end_line, language, symbol_type, symbol_name, code and the optional
// signature, docstring, semantic_context and repo_id). Blank lines are ignored.
// Records without code are skipped and counted.
//
// # Pipeline
//
//  1. Validate: drop records with blank code, stamp repo_id
//  2. Identify: derive a UUIDv5 point ID from repo_id and (file_path, start_line, symbol_name)
//  3. Embed: batch the text view and the code of each record into their spaces
//  4. Store: upsert the batch into the text and code collections
//
// Batches run concurrently, bounded by Config.Workers. A failed batch is
// reported in Statistics.ErrorMessages without stopping the others.
//
// # Re-indexing
//
// Point IDs are deterministic, so indexing the same chunks again replaces
// their points instead of adding copies. Only one Index call runs at a time
// per Indexer; a concurrent call returns ErrIndexingInProgress.
package indexer
