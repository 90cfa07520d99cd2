package searcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/coderetrieve/internal/query"
	"github.com/dshills/coderetrieve/internal/retry"
	"github.com/dshills/coderetrieve/internal/storage"
)

var (
	// ErrUpstream is returned when no retrieval could be completed: the embedding
	// client failed, every vector store query failed, or the request timed out
	// before any candidate arrived.
	ErrUpstream = errors.New("upstream retrieval failed")

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid searcher config")
)

// Weights are the fusion weights of the four base signals
type Weights struct {
	Text    float64 `json:"text" mapstructure:"text"`
	Code    float64 `json:"code" mapstructure:"code"`
	Lexical float64 `json:"lexical" mapstructure:"lexical"`
	BM25    float64 `json:"bm25" mapstructure:"bm25"`
}

// Boosts are post-fusion adjustments by match kind and symbol type
type Boosts struct {
	Docstring   float64 `json:"docstring" mapstructure:"docstring"`
	Function    float64 `json:"function" mapstructure:"function"`
	Signature   float64 `json:"signature" mapstructure:"signature"`
	CallPenalty float64 `json:"callPenalty" mapstructure:"callPenalty"`
}

// Config holds every tuning constant of the engine
type Config struct {
	// Per-query fetch limit = clamp(top_k * FetchMultiplier, FetchMin, FetchMax)
	FetchMultiplier int `json:"fetchMultiplier" mapstructure:"fetchMultiplier"`
	FetchMin        int `json:"fetchMin" mapstructure:"fetchMin"`
	FetchMax        int `json:"fetchMax" mapstructure:"fetchMax"`

	Weights Weights `json:"weights" mapstructure:"weights"`
	Boosts  Boosts  `json:"boosts" mapstructure:"boosts"`

	// DefaultMinScore applies when a request has no floor; nil means none
	DefaultMinScore *float64 `json:"defaultMinScore" mapstructure:"defaultMinScore"`
	// LenientFloorFactor scales the min score into the vector store's fetch threshold
	LenientFloorFactor float64 `json:"lenientFloorFactor" mapstructure:"lenientFloorFactor"`

	MaxVariants int `json:"maxVariants" mapstructure:"maxVariants"`
	DefaultTopK int `json:"defaultTopK" mapstructure:"defaultTopK"`
	MaxTopK     int `json:"maxTopK" mapstructure:"maxTopK"`

	// Timeout bounds one request; zero leaves only the caller's deadline
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	TextCollection string `json:"textCollection" mapstructure:"textCollection"`
	CodeCollection string `json:"codeCollection" mapstructure:"codeCollection"`

	// ScoreWorkers bounds parallel candidate scoring; zero uses GOMAXPROCS
	ScoreWorkers int `json:"scoreWorkers" mapstructure:"scoreWorkers"`

	Retry retry.Config `json:"retry" mapstructure:"retry"`
}

// Collection defaults
const (
	DefaultTextCollection = storage.DefaultTextCollection
	DefaultCodeCollection = storage.DefaultCodeCollection
)

// DefaultConfig returns the standard tuning
func DefaultConfig() Config {
	return Config{
		FetchMultiplier: 12,
		FetchMin:        30,
		FetchMax:        300,
		Weights: Weights{
			Text:    0.4,
			Code:    0.2,
			Lexical: 0.3,
			BM25:    0.1,
		},
		Boosts: Boosts{
			Docstring:   0.15,
			Function:    0.10 + 0.05,
			Signature:   0.12,
			CallPenalty: 0.05,
		},
		LenientFloorFactor: 0.8,
		MaxVariants:        query.MaxVariants,
		DefaultTopK:        10,
		MaxTopK:            100,
		Timeout:            10 * time.Second,
		TextCollection:     DefaultTextCollection,
		CodeCollection:     DefaultCodeCollection,
		Retry:              retry.DefaultConfig(),
	}
}

// Validate checks ranges and internal consistency
func (c *Config) Validate() error {
	switch {
	case c.FetchMultiplier <= 0:
		return fmt.Errorf("%w: fetchMultiplier must be positive", ErrInvalidConfig)
	case c.FetchMin <= 0 || c.FetchMax < c.FetchMin:
		return fmt.Errorf("%w: need 0 < fetchMin <= fetchMax, got %d and %d", ErrInvalidConfig, c.FetchMin, c.FetchMax)
	case c.Weights.Text < 0 || c.Weights.Code < 0 || c.Weights.Lexical < 0 || c.Weights.BM25 < 0:
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidConfig)
	case c.Weights.Text+c.Weights.Code+c.Weights.Lexical+c.Weights.BM25 == 0:
		return fmt.Errorf("%w: weights must not all be zero", ErrInvalidConfig)
	case c.Weights.Code+c.Weights.Lexical == 0:
		return fmt.Errorf("%w: code and lexical weights must not both be zero", ErrInvalidConfig)
	case c.Boosts.Docstring < 0 || c.Boosts.Function < 0 || c.Boosts.Signature < 0 || c.Boosts.CallPenalty < 0:
		return fmt.Errorf("%w: boosts must be non-negative", ErrInvalidConfig)
	case c.DefaultMinScore != nil && (*c.DefaultMinScore < 0 || *c.DefaultMinScore > 1):
		return fmt.Errorf("%w: defaultMinScore must be in [0,1]", ErrInvalidConfig)
	case c.LenientFloorFactor <= 0 || c.LenientFloorFactor > 1:
		return fmt.Errorf("%w: lenientFloorFactor must be in (0,1]", ErrInvalidConfig)
	case c.MaxVariants < 1 || c.MaxVariants > query.MaxVariants:
		return fmt.Errorf("%w: maxVariants must be in [1,%d]", ErrInvalidConfig, query.MaxVariants)
	case c.DefaultTopK <= 0 || c.MaxTopK < c.DefaultTopK:
		return fmt.Errorf("%w: need 0 < defaultTopK <= maxTopK, got %d and %d", ErrInvalidConfig, c.DefaultTopK, c.MaxTopK)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	case c.TextCollection == "" || c.CodeCollection == "":
		return fmt.Errorf("%w: collection names are required", ErrInvalidConfig)
	case c.ScoreWorkers < 0:
		return fmt.Errorf("%w: scoreWorkers must not be negative", ErrInvalidConfig)
	}
	return nil
}

// topK resolves a requested result count against the defaults and cap
func (c *Config) topK(requested int) int {
	if requested <= 0 {
		return c.DefaultTopK
	}
	return min(requested, c.MaxTopK)
}

// fetchLimit is the per-query ANN limit for a given top_k
func (c *Config) fetchLimit(topK int) int {
	return max(c.FetchMin, min(topK*c.FetchMultiplier, c.FetchMax))
}

// minScore resolves a request's floor against the configured default
func (c *Config) minScore(requested *float64) *float64 {
	if requested != nil {
		return requested
	}
	return c.DefaultMinScore
}

// fetchThreshold is the lenient vector-store threshold derived from a floor
func (c *Config) fetchThreshold(floor *float64) *float64 {
	if floor == nil {
		return nil
	}
	t := *floor * c.LenientFloorFactor
	return &t
}
