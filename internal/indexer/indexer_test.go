package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderetrieve/internal/storage"
	"github.com/dshills/coderetrieve/pkg/types"
)

const (
	textDim = 4
	codeDim = 3
)

// mockEmbedder returns constant vectors and records what it was asked to embed
type mockEmbedder struct {
	mu      sync.Mutex
	texts   []string
	codes   []string
	failOn  string        // EmbedTexts fails when any text contains this
	entered chan struct{} // closed on the first EmbedTexts call when set
	block   chan struct{} // EmbedTexts waits on it when set
	once    sync.Once
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.entered != nil {
		m.once.Do(func() { close(m.entered) })
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.texts = append(m.texts, texts...)
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.failOn != "" && strings.Contains(text, m.failOn) {
			return nil, errors.New("provider unavailable")
		}
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (m *mockEmbedder) EmbedCode(_ context.Context, codes []string) ([][]float32, error) {
	m.mu.Lock()
	m.codes = append(m.codes, codes...)
	m.mu.Unlock()

	out := make([][]float32, len(codes))
	for i := range codes {
		out[i] = []float32{0, 1, 0}
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() (int, int) { return textDim, codeDim }

func record(path string, line int, name string) types.ChunkRecord {
	return types.ChunkRecord{
		FilePath:   path,
		StartLine:  line,
		EndLine:    line + 3,
		Language:   "python",
		SymbolType: types.SymbolFunction,
		SymbolName: name,
		Code:       fmt.Sprintf("def %s():\n    pass", name),
		Docstring:  "Does " + name,
	}
}

func allPoints(t *testing.T, store *storage.MemoryStore, collection string, vector []float32) []storage.Hit {
	t.Helper()
	hits, err := store.Query(context.Background(), collection, storage.QueryRequest{Vector: vector})
	require.NoError(t, err)
	return hits
}

func countPoints(t *testing.T, store *storage.MemoryStore, collection string) int {
	t.Helper()
	n, err := store.Count(context.Background(), collection)
	require.NoError(t, err)
	return n
}

func TestNewAppliesDefaults(t *testing.T) {
	idx := New(storage.NewMemoryStore(), &mockEmbedder{}, Config{})
	assert.Positive(t, idx.cfg.Workers)
	assert.Equal(t, DefaultBatchSize, idx.cfg.BatchSize)
	assert.Equal(t, storage.DefaultTextCollection, idx.cfg.TextCollection)
	assert.Equal(t, storage.DefaultCodeCollection, idx.cfg.CodeCollection)
	assert.False(t, idx.Busy())
}

func TestIndex_Success(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := &mockEmbedder{}
	idx := New(store, emb, DefaultConfig())

	records := []types.ChunkRecord{
		record("a.py", 1, "load"),
		record("a.py", 10, "save"),
		record("b.py", 1, "parse"),
	}
	stats, err := idx.Index(context.Background(), records, "acme")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ChunksRead)
	assert.Equal(t, 3, stats.ChunksIndexed)
	assert.Zero(t, stats.ChunksSkipped)
	assert.Zero(t, stats.ChunksFailed)
	assert.Empty(t, stats.ErrorMessages)
	assert.Equal(t, 3, countPoints(t, store, storage.DefaultTextCollection))
	assert.Equal(t, 3, countPoints(t, store, storage.DefaultCodeCollection))

	for _, h := range allPoints(t, store, storage.DefaultTextCollection, []float32{1, 0, 0, 0}) {
		assert.Equal(t, "acme", h.Record.RepoID)
		assert.Equal(t, PointID(&h.Record), h.ID)
	}

	assert.ElementsMatch(t, []string{records[0].EmbeddingText(), records[1].EmbeddingText(), records[2].EmbeddingText()}, emb.texts)
	assert.ElementsMatch(t, []string{records[0].Code, records[1].Code, records[2].Code}, emb.codes)
}

func TestIndex_SkipsBlankCode(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, DefaultConfig())

	blank := record("a.py", 5, "empty")
	blank.Code = "  \n\t"
	stats, err := idx.Index(context.Background(), []types.ChunkRecord{record("a.py", 1, "ok"), blank}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ChunksIndexed)
	assert.Equal(t, 1, stats.ChunksSkipped)
	assert.Equal(t, 1, countPoints(t, store, storage.DefaultCodeCollection))
}

func TestIndex_KeepsRecordRepoWhenNoneGiven(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, DefaultConfig())

	rec := record("a.py", 1, "ok")
	rec.RepoID = "own/repo"
	_, err := idx.Index(context.Background(), []types.ChunkRecord{rec}, "")
	require.NoError(t, err)

	hits := allPoints(t, store, storage.DefaultCodeCollection, []float32{0, 1, 0})
	require.Len(t, hits, 1)
	assert.Equal(t, "own/repo", hits[0].Record.RepoID)
}

func TestIndex_ReindexReplaces(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, DefaultConfig())
	records := []types.ChunkRecord{record("a.py", 1, "load"), record("a.py", 10, "save")}

	_, err := idx.Index(context.Background(), records, "acme")
	require.NoError(t, err)
	_, err = idx.Index(context.Background(), records, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, countPoints(t, store, storage.DefaultTextCollection))

	_, err = idx.Index(context.Background(), records, "other")
	require.NoError(t, err)
	assert.Equal(t, 4, countPoints(t, store, storage.DefaultTextCollection), "another repo gets its own points")
}

func TestIndex_DuplicateInputLastWins(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, DefaultConfig())

	first := record("a.py", 1, "load")
	second := record("a.py", 1, "load")
	second.Code = "def load():\n    return 2"

	stats, err := idx.Index(context.Background(), []types.ChunkRecord{first, second}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksDuplicate)
	assert.Equal(t, 1, stats.ChunksIndexed)

	hits := allPoints(t, store, storage.DefaultCodeCollection, []float32{0, 1, 0})
	require.Len(t, hits, 1)
	assert.Equal(t, second.Code, hits[0].Record.Code)
}

func TestIndex_Batches(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, Config{Workers: 2, BatchSize: 2})

	records := make([]types.ChunkRecord, 5)
	for i := range records {
		records[i] = record("f.py", i+1, fmt.Sprintf("fn%d", i))
	}
	stats, err := idx.Index(context.Background(), records, "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 5, stats.ChunksIndexed)
	assert.Equal(t, 5, countPoints(t, store, storage.DefaultTextCollection))
}

func TestIndex_FailedBatchDoesNotStopOthers(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{failOn: "boom"}, Config{Workers: 1, BatchSize: 2})

	records := []types.ChunkRecord{
		record("a.py", 1, "ok1"),
		record("a.py", 2, "ok2"),
		record("b.py", 1, "boom"),
		record("b.py", 2, "ok3"),
		record("c.py", 1, "ok4"),
	}
	stats, err := idx.Index(context.Background(), records, "")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ChunksIndexed)
	assert.Equal(t, 2, stats.ChunksFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "provider unavailable")
	assert.Equal(t, 3, countPoints(t, store, storage.DefaultCodeCollection))
}

func TestIndex_DimensionMismatch(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), storage.DefaultTextCollection, 8))
	idx := New(store, &mockEmbedder{}, DefaultConfig())

	_, err := idx.Index(context.Background(), []types.ChunkRecord{record("a.py", 1, "x")}, "")
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestIndex_EmptyInput(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, DefaultConfig())

	stats, err := idx.Index(context.Background(), nil, "acme")
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksIndexed)
	assert.Zero(t, stats.Batches)
}

func TestIndex_CanceledContext(t *testing.T) {
	idx := New(storage.NewMemoryStore(), &mockEmbedder{}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Index(ctx, []types.ChunkRecord{record("a.py", 1, "x")}, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_RejectsConcurrentRun(t *testing.T) {
	emb := &mockEmbedder{entered: make(chan struct{}), block: make(chan struct{})}
	idx := New(storage.NewMemoryStore(), emb, DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := idx.Index(context.Background(), []types.ChunkRecord{record("a.py", 1, "x")}, "")
		done <- err
	}()

	select {
	case <-emb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first Index call never reached the embedder")
	}
	assert.True(t, idx.Busy())

	_, err := idx.Index(context.Background(), []types.ChunkRecord{record("b.py", 1, "y")}, "")
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	close(emb.block)
	require.NoError(t, <-done)
	assert.False(t, idx.Busy())
}

func TestIndexReader(t *testing.T) {
	store := storage.NewMemoryStore()
	idx := New(store, &mockEmbedder{}, DefaultConfig())

	input := `{"file_path":"a.py","start_line":1,"end_line":2,"language":"python","symbol_type":"function","symbol_name":"f","code":"def f(): pass"}

{"file_path":"a.py","start_line":4,"end_line":5,"language":"python","symbol_type":"call","symbol_name":"f","code":"f()"}
`
	stats, err := idx.IndexReader(context.Background(), strings.NewReader(input), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunksIndexed)

	_, err = idx.IndexReader(context.Background(), strings.NewReader("{not json}\n"), "acme")
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestPointID(t *testing.T) {
	a := record("a.py", 1, "load")
	b := record("a.py", 1, "load")
	b.Code = "different body"

	id := PointID(&a)
	assert.Equal(t, id, PointID(&b), "identity ignores the body")

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	other := a
	other.RepoID = "other"
	assert.NotEqual(t, id, PointID(&other))

	moved := a
	moved.StartLine = 2
	assert.NotEqual(t, id, PointID(&moved))
}
