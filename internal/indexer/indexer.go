package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/coderetrieve/internal/logging"
	"github.com/dshills/coderetrieve/internal/storage"
	"github.com/dshills/coderetrieve/pkg/types"
)

// ErrIndexingInProgress is returned when Index is called while another run holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Embedder produces vectors in both embedding spaces.
// *embedder.Dual satisfies it.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedCode(ctx context.Context, codes []string) ([][]float32, error)
	Dimensions() (text, code int)
}

// Config contains configuration for the indexer
type Config struct {
	Workers        int    `json:"workers" mapstructure:"workers"`     // Concurrent batches (default: runtime.NumCPU())
	BatchSize      int    `json:"batchSize" mapstructure:"batchSize"` // Records embedded and upserted together (default: 32)
	TextCollection string `json:"textCollection" mapstructure:"textCollection"`
	CodeCollection string `json:"codeCollection" mapstructure:"codeCollection"`
}

// DefaultBatchSize is the number of records per embedding batch
const DefaultBatchSize = 32

// DefaultConfig returns the standard indexer configuration
func DefaultConfig() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		BatchSize:      DefaultBatchSize,
		TextCollection: storage.DefaultTextCollection,
		CodeCollection: storage.DefaultCodeCollection,
	}
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	ChunksRead      int           `json:"chunks_read"`
	ChunksIndexed   int           `json:"chunks_indexed"`
	ChunksSkipped   int           `json:"chunks_skipped"`   // blank code
	ChunksDuplicate int           `json:"chunks_duplicate"` // same point ID seen again in the input; the last one wins
	ChunksFailed    int           `json:"chunks_failed"`
	Batches         int           `json:"batches"`
	Duration        time.Duration `json:"duration_ns"`
	ErrorMessages   []string      `json:"errors,omitempty"`
}

// Indexer embeds chunk records in both spaces and upserts them into the vector store
type Indexer struct {
	store    storage.VectorStore
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
	lock     IndexLock
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger; the default discards output
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// New creates a new Indexer instance. Zero config fields take their defaults.
func New(store storage.VectorStore, emb Embedder, cfg Config, opts ...Option) *Indexer {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TextCollection == "" {
		cfg.TextCollection = def.TextCollection
	}
	if cfg.CodeCollection == "" {
		cfg.CodeCollection = def.CodeCollection
	}

	idx := &Indexer{
		store:    store,
		embedder: emb,
		cfg:      cfg,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Busy reports whether an Index call is running
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// IndexReader reads JSONL chunk records from r and indexes them
func (idx *Indexer) IndexReader(ctx context.Context, r io.Reader, repoID string) (*Statistics, error) {
	records, err := ReadJSONL(r)
	if err != nil {
		return nil, err
	}
	return idx.Index(ctx, records, repoID)
}

// Index validates, embeds and upserts records. A non-empty repoID replaces the
// repo_id of every record. Re-indexing a chunk replaces its points because IDs
// are derived from repo_id and the chunk identity.
//
// A failed batch is recorded in Statistics and the remaining batches continue.
// An error is returned only when indexing could not run at all.
func (idx *Indexer) Index(ctx context.Context, records []types.ChunkRecord, repoID string) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	stats := &Statistics{
		ChunksRead:    len(records),
		ErrorMessages: make([]string, 0),
	}

	points := idx.prepare(records, repoID, stats)
	if len(points) == 0 {
		stats.Duration = time.Since(startTime)
		idx.logger.Info("nothing to index",
			slog.String("repo_id", repoID),
			slog.Int("skipped", stats.ChunksSkipped))
		return stats, nil
	}

	textDim, codeDim := idx.embedder.Dimensions()
	if err := idx.store.EnsureCollection(ctx, idx.cfg.TextCollection, textDim); err != nil {
		return nil, fmt.Errorf("ensure text collection: %w", err)
	}
	if err := idx.store.EnsureCollection(ctx, idx.cfg.CodeCollection, codeDim); err != nil {
		return nil, fmt.Errorf("ensure code collection: %w", err)
	}

	if err := idx.indexBatches(ctx, points, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("indexing complete",
		slog.String("repo_id", repoID),
		slog.Int("indexed", stats.ChunksIndexed),
		slog.Int("skipped", stats.ChunksSkipped),
		slog.Int("duplicates", stats.ChunksDuplicate),
		slog.Int("failed", stats.ChunksFailed),
		slog.Int("batches", stats.Batches),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// pending is a validated record with its point ID
type pending struct {
	id     string
	record types.ChunkRecord
}

// prepare validates records, stamps repoID and collapses duplicate IDs,
// keeping the last occurrence at the position of the first.
func (idx *Indexer) prepare(records []types.ChunkRecord, repoID string, stats *Statistics) []pending {
	out := make([]pending, 0, len(records))
	position := make(map[string]int, len(records))

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			stats.ChunksSkipped++
			idx.logger.Debug("skipping record",
				slog.Int("index", i),
				slog.String("file_path", rec.FilePath),
				slog.Any("error", err))
			continue
		}
		if repoID != "" {
			rec.RepoID = repoID
		}

		id := PointID(&rec)
		if pos, dup := position[id]; dup {
			stats.ChunksDuplicate++
			out[pos].record = rec
			continue
		}
		position[id] = len(out)
		out = append(out, pending{id: id, record: rec})
	}
	return out
}

// indexBatches embeds and upserts points in batches on a bounded worker pool
func (idx *Indexer) indexBatches(ctx context.Context, points []pending, stats *Statistics) error {
	var (
		indexed int32
		failed  int32
		batches int32
		mu      sync.Mutex // Protects stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)

	for start := 0; start < len(points); start += idx.cfg.BatchSize {
		batch := points[start:min(start+idx.cfg.BatchSize, len(points))]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			atomic.AddInt32(&batches, 1)

			if err := idx.indexBatch(gctx, batch); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt32(&failed, int32(len(batch)))
				msg := fmt.Sprintf("batch %s..%s: %v", batch[0].record.Key(), batch[len(batch)-1].record.Key(), err)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, msg)
				mu.Unlock()
				idx.logger.Warn("batch failed", slog.Int("size", len(batch)), slog.Any("error", err))
				return nil
			}
			atomic.AddInt32(&indexed, int32(len(batch)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing interrupted: %w", err)
	}

	stats.ChunksIndexed = int(indexed)
	stats.ChunksFailed = int(failed)
	stats.Batches = int(batches)
	return nil
}

// indexBatch embeds one batch in both spaces and upserts it into both collections
func (idx *Indexer) indexBatch(ctx context.Context, batch []pending) error {
	texts := make([]string, len(batch))
	codes := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.record.EmbeddingText()
		codes[i] = p.record.Code
	}

	textVecs, err := idx.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}
	codeVecs, err := idx.embedder.EmbedCode(ctx, codes)
	if err != nil {
		return fmt.Errorf("embed code: %w", err)
	}
	if len(textVecs) != len(batch) || len(codeVecs) != len(batch) {
		return fmt.Errorf("embedder returned %d text and %d code vectors for %d records",
			len(textVecs), len(codeVecs), len(batch))
	}

	textPoints := make([]storage.Point, len(batch))
	codePoints := make([]storage.Point, len(batch))
	for i, p := range batch {
		textPoints[i] = storage.Point{ID: p.id, Vector: textVecs[i], Record: p.record}
		codePoints[i] = storage.Point{ID: p.id, Vector: codeVecs[i], Record: p.record}
	}

	if err := idx.store.Upsert(ctx, idx.cfg.TextCollection, textPoints); err != nil {
		return fmt.Errorf("upsert text points: %w", err)
	}
	if err := idx.store.Upsert(ctx, idx.cfg.CodeCollection, codePoints); err != nil {
		return fmt.Errorf("upsert code points: %w", err)
	}
	return nil
}

// pointNamespace scopes the name-based point IDs
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("coderetrieve:chunk"))

// PointID returns the deterministic UUIDv5 of a record, derived from its
// repo_id and identity key
func PointID(rec *types.ChunkRecord) string {
	name := rec.RepoID + "\x00" + rec.Key().String()
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}
