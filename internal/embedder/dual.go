package embedder

import (
	"context"
	"errors"
	"fmt"
)

// Dual pairs a natural-language embedder with a code embedder.
// Vectors from the two spaces are never compared with each other.
type Dual struct {
	Text      Embedder
	Code      Embedder
	BatchSize int
}

// NewDualFrom wraps two already-constructed embedders
func NewDualFrom(text, code Embedder) *Dual {
	return &Dual{Text: text, Code: code, BatchSize: DefaultBatchSize}
}

// EmbedText embeds a single string in the text space
func (d *Dual) EmbedText(ctx context.Context, text string) ([]float32, error) {
	emb, err := d.Text.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// EmbedTexts embeds many strings in the text space, preserving order
func (d *Dual) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return embedBatched(ctx, d.Text, texts, d.batchSize())
}

// EmbedCode embeds strings in the code space, preserving order
func (d *Dual) EmbedCode(ctx context.Context, codes []string) ([][]float32, error) {
	return embedBatched(ctx, d.Code, codes, d.batchSize())
}

// Dimensions returns the text and code vector sizes
func (d *Dual) Dimensions() (text, code int) {
	return d.Text.Dimension(), d.Code.Dimension()
}

// cacheReporter is implemented by embedders that keep an embedding cache
type cacheReporter interface {
	CacheStats() (CacheStats, bool)
}

// CacheStats returns cache counters for each space; nil means that space is uncached
func (d *Dual) CacheStats() (text, code *CacheStats) {
	return cacheStats(d.Text), cacheStats(d.Code)
}

func cacheStats(e Embedder) *CacheStats {
	r, ok := e.(cacheReporter)
	if !ok {
		return nil
	}
	stats, ok := r.CacheStats()
	if !ok {
		return nil
	}
	return &stats
}

// Close closes both embedders
func (d *Dual) Close() error {
	return errors.Join(d.Text.Close(), d.Code.Close())
}

func (d *Dual) batchSize() int {
	if d.BatchSize <= 0 || d.BatchSize > MaxBatchSize {
		return DefaultBatchSize
	}
	return d.BatchSize
}

func embedBatched(ctx context.Context, e Embedder, texts []string, size int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[start:end]})
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, emb.Vector)
		}
	}
	return vectors, nil
}
