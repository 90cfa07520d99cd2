package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dshills/coderetrieve/internal/logging"
	"github.com/dshills/coderetrieve/internal/query"
	"github.com/dshills/coderetrieve/internal/storage"
	"github.com/dshills/coderetrieve/pkg/types"
)

// Embedder maps text into the two embedding spaces.
// *embedder.Dual satisfies it.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedCode(ctx context.Context, codes []string) ([][]float32, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	TopK     int      // <= 0 uses the configured default
	RepoID   string   // Empty means any repository
	Language string   // Empty means any language
	MinScore *float64 // nil uses the configured default floor
}

// SimilarRequest contains parameters for a code-to-code search
type SimilarRequest struct {
	Code        string
	TopK        int
	RepoID      string
	Language    string
	ExcludeSelf bool // Drop chunks whose trimmed code equals the trimmed query code
	MinScore    *float64
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.RankedResult
	Variants      []string
	CodeLike      bool
	Candidates    int // Distinct identities merged before ranking
	QueriesIssued int
	QueriesFailed int
	Degraded      bool // Deadline reached before every query returned
	Duration      time.Duration
}

// Searcher runs hybrid retrieval and ranking over a vector store.
// It holds no per-request state and is safe for concurrent use.
type Searcher struct {
	store    storage.VectorStore
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the logger; the default discards output
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.VectorStore, emb Embedder, cfg Config, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, errors.New("searcher: vector store is required")
	}
	if emb == nil {
		return nil, errors.New("searcher: embedder is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Searcher{
		store:    store,
		embedder: emb,
		cfg:      cfg,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the searcher's configuration
func (s *Searcher) Config() Config {
	return s.cfg
}

// Search answers a natural-language or code query. An empty query yields an
// empty result without touching the embedder or the store.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	q := query.Parse(req.Query, s.cfg.MaxVariants)
	if q.Empty() {
		return &SearchResponse{Results: []types.RankedResult{}}, nil
	}

	topK := s.cfg.topK(req.TopK)
	floor := s.cfg.minScore(req.MinScore)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	queries, err := s.embedVariants(ctx, q.Variants)
	if err != nil {
		return nil, err
	}

	r, err := s.retrieve(ctx, queries, s.fetchParams(topK, floor, req.RepoID, req.Language))
	if err != nil {
		return nil, err
	}

	weights := s.cfg.Weights.Adapt(q.CodeLike)
	scored := s.score(r.pool.candidates, func(c *Candidate) float64 {
		return scoreSearch(&q, c, weights, s.cfg.Boosts)
	})

	resp := &SearchResponse{
		Results:       Rank(scored, topK, floor),
		Variants:      q.Variants,
		CodeLike:      q.CodeLike,
		Candidates:    len(r.pool.candidates),
		QueriesIssued: r.issued,
		QueriesFailed: r.failed,
		Degraded:      r.degraded,
		Duration:      time.Since(startTime),
	}
	s.logger.Debug("search complete",
		slog.Int("variants", len(q.Variants)),
		slog.Int("candidates", resp.Candidates),
		slog.Int("results", len(resp.Results)),
		slog.Int("failed_queries", r.failed),
		slog.Duration("duration", resp.Duration))
	return resp, nil
}

// SearchSimilar finds chunks similar to a code snippet using the code space only
func (s *Searcher) SearchSimilar(ctx context.Context, req SimilarRequest) (*SearchResponse, error) {
	startTime := time.Now()

	q := query.ParseCode(req.Code)
	if q.Empty() {
		return &SearchResponse{Results: []types.RankedResult{}, CodeLike: true}, nil
	}

	topK := s.cfg.topK(req.TopK)
	floor := s.cfg.minScore(req.MinScore)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vecs, err := s.embedder.EmbedCode(ctx, q.Variants)
	if err != nil {
		return nil, fmt.Errorf("%w: embed code: %v", ErrUpstream, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embed code: got %d vectors", ErrUpstream, len(vecs))
	}

	queries := []annQuery{{variant: 0, space: spaceCode, vector: vecs[0]}}
	r, err := s.retrieve(ctx, queries, s.fetchParams(topK, floor, req.RepoID, req.Language))
	if err != nil {
		return nil, err
	}

	candidates := r.pool.candidates
	if req.ExcludeSelf {
		self := strings.TrimSpace(req.Code)
		kept := candidates[:0:0]
		for _, c := range candidates {
			if strings.TrimSpace(c.Record.Code) != self {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	weights := s.cfg.Weights.Similar()
	scored := s.score(candidates, func(c *Candidate) float64 {
		return scoreSimilar(&q, c, weights, s.cfg.Boosts)
	})

	return &SearchResponse{
		Results:       Rank(scored, topK, floor),
		Variants:      q.Variants,
		CodeLike:      true,
		Candidates:    len(candidates),
		QueriesIssued: r.issued,
		QueriesFailed: r.failed,
		Degraded:      r.degraded,
		Duration:      time.Since(startTime),
	}, nil
}

func (s *Searcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Searcher) fetchParams(topK int, floor *float64, repoID, language string) fetchParams {
	return fetchParams{
		limit: s.cfg.fetchLimit(topK),
		filter: storage.NewFilter(
			storage.Match{Field: "repo_id", Value: repoID},
			storage.Match{Field: "language", Value: language},
		),
		threshold: s.cfg.fetchThreshold(floor),
	}
}

// score evaluates fn for every candidate on a bounded worker pool. Output order
// follows input order. Scoring does not observe ctx cancellation: once retrieval
// has finished, ranking completes with what was gathered.
func (s *Searcher) score(candidates []*Candidate, fn func(*Candidate) float64) []Scored {
	scored := make([]Scored, len(candidates))
	workers := s.cfg.ScoreWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			scored[i] = Scored{Record: c.Record, Score: fn(c)}
		}()
	}
	wg.Wait()
	return scored
}
