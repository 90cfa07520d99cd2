package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine similarity
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dimension int
	points    map[string]Point
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (m *MemoryStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrDimensionMismatch, name, c.dimension, dimension)
		}
		return nil
	}
	m.collections[name] = &memCollection{dimension: dimension, points: make(map[string]Point)}
	return nil
}

func (m *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err := validatePoints(points, c.dimension); err != nil {
		return err
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, req QueryRequest) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if len(req.Vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(req.Vector), c.dimension)
	}

	hits := make([]Hit, 0, len(c.points))
	for id, p := range c.points {
		if !req.Filter.Matches(&p.Record) {
			continue
		}
		score := cosineSimilarity(req.Vector, p.Vector)
		if belowThreshold(score, req.ScoreThreshold) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Record: p.Record})
	}
	return rankHits(hits, req.Limit), nil
}

// Count returns the number of points in a collection
func (m *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.points), nil
	}
	return 0, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
