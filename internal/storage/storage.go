package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/coderetrieve/pkg/types"
)

var (
	// ErrCollectionNotFound is returned when querying or writing a collection that doesn't exist
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch is returned when a vector's length differs from the collection dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidPoint is returned for points without an ID or vector
	ErrInvalidPoint = errors.New("invalid point")
	// ErrUnknownBackend is returned by Open for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Default collection names, one per embedding space
const (
	DefaultTextCollection = "code_chunks_text"
	DefaultCodeCollection = "code_chunks_code"
)

// VectorStore is a nearest-neighbour index over chunk payloads, organised in
// named collections. Each collection holds vectors from one embedding space.
type VectorStore interface {
	// EnsureCollection creates the collection if missing. An existing collection
	// with a different dimension yields ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or replaces points by ID
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query returns up to req.Limit hits ordered by descending cosine similarity
	Query(ctx context.Context, collection string, req QueryRequest) ([]Hit, error)

	// Count returns the number of points in a collection; a missing collection has none
	Count(ctx context.Context, collection string) (int, error)

	Close() error
}

// Point is a stored vector with its chunk payload
type Point struct {
	ID     string
	Vector []float32
	Record types.ChunkRecord
}

// QueryRequest describes one nearest-neighbour query
type QueryRequest struct {
	Vector         []float32
	Limit          int
	Filter         *Filter
	ScoreThreshold *float64 // Hits scoring below are omitted; nil disables
}

// Hit is one query result. Record is returned as stored and may be malformed.
type Hit struct {
	ID     string
	Score  float64
	Record types.ChunkRecord
}

// Match is an equality predicate on a payload field
type Match struct {
	Field string
	Value string
}

// Filter is a conjunction of equality predicates
type Filter struct {
	Must []Match
}

// NewFilter builds a filter from the given predicates, dropping those with an
// empty value. Returns nil when no predicate remains.
func NewFilter(matches ...Match) *Filter {
	var must []Match
	for _, m := range matches {
		if m.Field == "" || m.Value == "" {
			continue
		}
		must = append(must, m)
	}
	if len(must) == 0 {
		return nil
	}
	return &Filter{Must: must}
}

// Matches reports whether rec satisfies every predicate. A nil filter matches everything.
func (f *Filter) Matches(rec *types.ChunkRecord) bool {
	if f == nil {
		return true
	}
	for _, m := range f.Must {
		v, ok := rec.Field(m.Field)
		if !ok || v != m.Value {
			return false
		}
	}
	return true
}

// Value returns the value required for field, if any
func (f *Filter) Value(field string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, m := range f.Must {
		if m.Field == field {
			return m.Value, true
		}
	}
	return "", false
}

// Backend names
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config selects and configures a VectorStore backend
type Config struct {
	Backend string        `json:"backend" mapstructure:"backend"`
	Path    string        `json:"path" mapstructure:"path"`     // SQLite database file
	URL     string        `json:"url" mapstructure:"url"`       // Qdrant base URL
	APIKey  string        `json:"apiKey" mapstructure:"apiKey"` // Qdrant API key
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Open creates the configured VectorStore
func Open(cfg Config) (VectorStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendQdrant:
		return NewQdrantStore(cfg.URL, cfg.APIKey, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

func validatePoints(points []Point, dimension int) error {
	for i := range points {
		p := &points[i]
		if p.ID == "" || len(p.Vector) == 0 {
			return fmt.Errorf("%w: point %d has no id or vector", ErrInvalidPoint, i)
		}
		if dimension > 0 && len(p.Vector) != dimension {
			return fmt.Errorf("%w: point %s has %d, collection has %d", ErrDimensionMismatch, p.ID, len(p.Vector), dimension)
		}
	}
	return nil
}
