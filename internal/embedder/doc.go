// Package embedder turns text and code into dense vectors.
//
// Retrieval uses two embedding spaces: a natural-language space for queries and
// chunk descriptions, and a code space for source text. Dual holds one Embedder
// per space.
//
// # Basic Usage
//
//	dual, err := embedder.NewDual(embedder.DualConfig{
//	    Text: embedder.Config{Provider: "jina", Model: embedder.DefaultJinaModel},
//	    Code: embedder.Config{Provider: "jina", Model: embedder.DefaultJinaCodeModel},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dual.Close()
//
//	vec, err := dual.EmbedText(ctx, "remove duplicates from a list")
//	codeVecs, err := dual.EmbedCode(ctx, []string{"def dedupe(xs): ..."})
//
// # Provider Selection
//
// When Config.Provider is empty:
//
//  1. If CODERETRIEVE_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if JINA_API_KEY is set → use Jina AI
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → local feature-hashing provider (offline mode)
//
// Jina and OpenAI speak the same JSON shape; BaseURL points either at any
// compatible endpoint.
//
// # Caching
//
// Providers accept an optional LRU Cache keyed by model and content hash.
// Cached vectors are copied on read.
//
// # Error Handling
//
// Transient HTTP failures and 429s are retried with exponential backoff.
// Other 4xx responses and validation errors fail immediately. All provider
// failures wrap ErrProviderFailed.
package embedder
