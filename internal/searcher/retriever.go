package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/coderetrieve/internal/retry"
	"github.com/dshills/coderetrieve/internal/storage"
	"github.com/dshills/coderetrieve/pkg/types"
)

// space identifies an embedding space and its collection
type space int

const (
	spaceText space = iota
	spaceCode
)

func (s space) String() string {
	if s == spaceText {
		return "text"
	}
	return "code"
}

// Candidate is a chunk with the similarity evidence gathered for it
type Candidate struct {
	Record     types.ChunkRecord
	TextScores []float64
	CodeScores []float64
}

// pool merges hits by identity, preserving first-encounter order
type pool struct {
	byKey      map[types.IdentityKey]*Candidate
	candidates []*Candidate
	dropped    int
}

func newPool() *pool {
	return &pool{byKey: make(map[types.IdentityKey]*Candidate)}
}

// add merges one hit. Hits without code are dropped.
func (p *pool) add(hit storage.Hit, sp space) bool {
	if err := hit.Record.Validate(); err != nil {
		p.dropped++
		return false
	}
	key := hit.Record.Key()
	c, ok := p.byKey[key]
	if !ok {
		c = &Candidate{Record: hit.Record}
		p.byKey[key] = c
		p.candidates = append(p.candidates, c)
	}
	if sp == spaceText {
		c.TextScores = append(c.TextScores, hit.Score)
	} else {
		c.CodeScores = append(c.CodeScores, hit.Score)
	}
	return true
}

// annQuery is one vector store query of the fan-out
type annQuery struct {
	variant int
	space   space
	vector  []float32
}

// annResult is delivered by a fan-out goroutine for its slot
type annResult struct {
	slot int
	hits []storage.Hit
	err  error
}

// fetchParams are shared by every query of one request
type fetchParams struct {
	limit     int
	filter    *storage.Filter
	threshold *float64
}

// retrieval summarizes the fan-out
type retrieval struct {
	pool     *pool
	issued   int
	failed   int
	degraded bool
}

// embedVariants embeds every variant in the text space and, in one batch, in the
// code space. Calls run concurrently; any failure fails the request.
func (s *Searcher) embedVariants(ctx context.Context, variants []string) ([]annQuery, error) {
	textVecs := make([][]float32, len(variants))
	var codeVecs [][]float32

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			vec, err := s.embedder.EmbedText(gctx, v)
			if err != nil {
				return fmt.Errorf("embed variant %d: %w", i, err)
			}
			textVecs[i] = vec
			return nil
		})
	}
	g.Go(func() error {
		vecs, err := s.embedder.EmbedCode(gctx, variants)
		if err != nil {
			return fmt.Errorf("embed variants as code: %w", err)
		}
		if len(vecs) != len(variants) {
			return fmt.Errorf("embed variants as code: got %d vectors for %d variants", len(vecs), len(variants))
		}
		codeVecs = vecs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	queries := make([]annQuery, 0, 2*len(variants))
	for i := range variants {
		queries = append(queries,
			annQuery{variant: i, space: spaceText, vector: textVecs[i]},
			annQuery{variant: i, space: spaceCode, vector: codeVecs[i]},
		)
	}
	return queries, nil
}

func (s *Searcher) collection(sp space) string {
	if sp == spaceText {
		return s.cfg.TextCollection
	}
	return s.cfg.CodeCollection
}

// retrieve runs all queries concurrently and merges their hits in query order.
// Results are collected by this goroutine alone. When ctx expires the outstanding
// queries are abandoned and whatever has arrived is merged.
func (s *Searcher) retrieve(ctx context.Context, queries []annQuery, params fetchParams) (*retrieval, error) {
	// Buffered so abandoned goroutines never block on send
	results := make(chan annResult, len(queries))
	for slot, q := range queries {
		go func() {
			hits, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]storage.Hit, error) {
				hits, err := s.store.Query(ctx, s.collection(q.space), storage.QueryRequest{
					Vector:         q.vector,
					Limit:          params.limit,
					Filter:         params.filter,
					ScoreThreshold: params.threshold,
				})
				switch {
				case errors.Is(err, storage.ErrCollectionNotFound):
					// Nothing indexed into this space yet
					return nil, nil
				case errors.Is(err, storage.ErrDimensionMismatch):
					return nil, retry.Permanent(err)
				}
				return hits, err
			})
			results <- annResult{slot: slot, hits: hits, err: err}
		}()
	}

	r := &retrieval{pool: newPool(), issued: len(queries)}
	slots := make([]*annResult, len(queries))
	received := 0

collect:
	for received < len(queries) {
		select {
		case res := <-results:
			received++
			slots[res.slot] = &res
		case <-ctx.Done():
			r.degraded = true
			break collect
		}
	}

	for slot, res := range slots {
		q := queries[slot]
		if res == nil {
			r.failed++
			continue
		}
		if res.err != nil {
			r.failed++
			s.logger.Warn("vector query failed",
				slog.Int("variant", q.variant),
				slog.String("space", q.space.String()),
				slog.Any("error", res.err))
			continue
		}
		for _, hit := range res.hits {
			r.pool.add(hit, q.space)
		}
	}

	if r.pool.dropped > 0 {
		s.logger.Debug("dropped hits without code", slog.Int("count", r.pool.dropped))
	}

	switch {
	case r.issued > 0 && r.failed == r.issued && !r.degraded:
		return nil, fmt.Errorf("%w: all %d vector queries failed", ErrUpstream, r.issued)
	case r.degraded && len(r.pool.candidates) == 0:
		return nil, fmt.Errorf("%w: no candidates before deadline: %v", ErrUpstream, ctx.Err())
	case r.degraded:
		s.logger.Warn("search deadline reached, ranking partial candidates",
			slog.Int("received", received),
			slog.Int("issued", r.issued),
			slog.Int("candidates", len(r.pool.candidates)))
	}
	return r, nil
}
