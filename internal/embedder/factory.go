package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dshills/coderetrieve/internal/retry"
)

// Config holds embedder configuration
type Config struct {
	Provider  string        `json:"provider" mapstructure:"provider"` // jina, openai, local; empty detects from the environment
	APIKey    string        `json:"apiKey" mapstructure:"apiKey"`
	Model     string        `json:"model" mapstructure:"model"`
	BaseURL   string        `json:"baseURL" mapstructure:"baseURL"`
	Dimension int           `json:"dimension" mapstructure:"dimension"`
	CacheSize int           `json:"cacheSize" mapstructure:"cacheSize"` // LRU entries; 0 disables the cache
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	Retry     *retry.Config `json:"retry,omitempty" mapstructure:"retry"`
}

// DualConfig configures the text-space and code-space embedders
type DualConfig struct {
	Text      Config `json:"text" mapstructure:"text"`
	Code      Config `json:"code" mapstructure:"code"`
	BatchSize int    `json:"batchSize" mapstructure:"batchSize"`
}

// New creates an embedder with explicit configuration.
// An empty Provider falls back to DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := HTTPOptions{
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
		Retry:     cfg.Retry,
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}
	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache, opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache, opts)
	case ProviderLocal:
		return NewLocalProvider(cache, cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewDual creates the text and code embedders. If the code embedder cannot be
// built the text embedder is closed before returning.
func NewDual(cfg DualConfig) (*Dual, error) {
	text, err := New(cfg.Text)
	if err != nil {
		return nil, fmt.Errorf("text embedder: %w", err)
	}
	code, err := New(cfg.Code)
	if err != nil {
		_ = text.Close()
		return nil, fmt.Errorf("code embedder: %w", err)
	}
	dual := NewDualFrom(text, code)
	if cfg.BatchSize > 0 {
		dual.BatchSize = cfg.BatchSize
	}
	return dual, nil
}

// DetectProvider returns the provider that would be used based on current environment
// Priority:
// 1. CODERETRIEVE_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
