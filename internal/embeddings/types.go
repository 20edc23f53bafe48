package embeddings

import (
	"context"
	"time"
)

// Task tells the provider how a text will be used. Gemini embeds documents
// and queries into different subspaces; the HTTP provider ignores it.
type Task string

const (
	TaskDocument Task = "RETRIEVAL_DOCUMENT"
	TaskQuery    Task = "RETRIEVAL_QUERY"
)

// Config controls the embedding service behavior
type Config struct {
	// Provider is "http" (an /embeddings service) or "gemini"
	Provider string `mapstructure:"provider"`
	// BaseURL points to the service providing /embeddings when Provider is http
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	// Timeout for outbound calls
	Timeout time.Duration `mapstructure:"timeout"`
	// RedisAddr enables the shared cache when set
	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	// MaxLRU controls in-process LRU size
	MaxLRU int `mapstructure:"max_lru"`
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task Task) ([][]float32, error)
	Model() string
}
