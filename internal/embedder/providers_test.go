package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderetrieve/internal/retry"
)

var fastRetry = retry.Config{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
	Multiplier:  2,
}

// embeddingServer answers OpenAI-compatible requests with vectors whose first
// component is the input index, returned in reverse order.
func embeddingServer(t *testing.T, dim int, status func(call int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if status != nil {
			if code := status(n); code != http.StatusOK {
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
				return
			}
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			data = append(data, item{Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "data": data})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestHTTPProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch is reordered by index", func(t *testing.T) {
		server, calls := embeddingServer(t, 4, nil)
		p, err := NewJinaProvider("test-key", nil, HTTPOptions{BaseURL: server.URL, Dimension: 4, Retry: &fastRetry})
		require.NoError(t, err)

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.Equal(t, float32(i), emb.Vector[0])
		}
		assert.Equal(t, ProviderJina, resp.Provider)
		assert.Equal(t, DefaultJinaModel, resp.Model)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cache hit skips the network", func(t *testing.T) {
		server, calls := embeddingServer(t, 4, nil)
		p, err := NewOpenAIProvider("test-key", NewCache(10), HTTPOptions{BaseURL: server.URL, Retry: &fastRetry})
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parse"})
		require.NoError(t, err)
		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parse"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, OpenAIDimension, p.Dimension())
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		server, calls := embeddingServer(t, 4, func(n int32) int {
			if n < 3 {
				return http.StatusServiceUnavailable
			}
			return http.StatusOK
		})
		p, err := NewJinaProvider("test-key", nil, HTTPOptions{BaseURL: server.URL, Retry: &fastRetry})
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		server, calls := embeddingServer(t, 4, func(int32) int { return http.StatusUnauthorized })
		p, err := NewJinaProvider("test-key", nil, HTTPOptions{BaseURL: server.URL, Retry: &fastRetry})
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("throttling is retried until exhausted", func(t *testing.T) {
		server, calls := embeddingServer(t, 4, func(int32) int { return http.StatusTooManyRequests })
		p, err := NewJinaProvider("test-key", nil, HTTPOptions{BaseURL: server.URL, Retry: &fastRetry})
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(fastRetry.MaxAttempts), calls.Load())
	})

	t.Run("oversized batch", func(t *testing.T) {
		p, err := NewJinaProvider("test-key", nil, HTTPOptions{BaseURL: "http://127.0.0.1:0"})
		require.NoError(t, err)
		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "t"
		}
		_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("cancelled context", func(t *testing.T) {
		server, _ := embeddingServer(t, 4, nil)
		p, err := NewJinaProvider("test-key", nil, HTTPOptions{BaseURL: server.URL, Retry: &fastRetry})
		require.NoError(t, err)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = p.GenerateEmbedding(cctx, EmbeddingRequest{Text: "x"})
		assert.Error(t, err)
		assert.NoError(t, p.Close())
	})
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewJinaProvider("", nil, HTTPOptions{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
	_, err = NewOpenAIProvider("", nil, HTTPOptions{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestJinaCodeModelDimension(t *testing.T) {
	p, err := NewJinaProvider("k", nil, HTTPOptions{Model: DefaultJinaCodeModel})
	require.NoError(t, err)
	assert.Equal(t, JinaCodeDimension, p.Dimension())
	assert.Equal(t, DefaultJinaCodeModel, p.Model())
}
