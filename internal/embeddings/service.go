// Package embeddings turns post texts and retrieval queries into vectors,
// caching results in-process and optionally in Redis.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
)

const lruTTL = 30 * time.Minute

// Service provides embedding generation with caching
type Service struct {
	embedder Embedder
	cache    Cache
	lru      *LocalLRU
	ttl      time.Duration
	logger   *zap.Logger
}

// NewService wraps embedder with an LRU and an optional shared cache.
func NewService(embedder Embedder, cache Cache, cfg Config, logger *zap.Logger) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxLRU == 0 {
		cfg.MaxLRU = 2048
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		cache:    cache,
		lru:      NewLocalLRU(cfg.MaxLRU),
		ttl:      cfg.CacheTTL,
		logger:   logger,
	}
}

// NewEmbedder builds the provider named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg Config, logger *zap.Logger) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "http":
		return NewHTTPEmbedder(cfg, logger)
	case "gemini", "google":
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}

// Model returns the embedding model name.
func (s *Service) Model() string { return s.embedder.Model() }

// EmbedQuery embeds a retrieval query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embed(ctx, []string{text}, TaskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds texts for storage, one vector per text.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, TaskDocument)
}

func (s *Service) embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if s == nil {
		return nil, errors.New("embedding service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	model := s.embedder.Model()

	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		key := MakeKey(model, task, text)
		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			ometrics.EmbeddingCacheHits.WithLabelValues("lru").Inc()
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, lruTTL)
				ometrics.EmbeddingCacheHits.WithLabelValues("redis").Inc()
				continue
			}
		}
		ometrics.EmbeddingCacheMisses.Inc()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	start := time.Now()
	vecs, err := s.embedder.Embed(ctx, missing, task)
	if err != nil {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		s.logger.Warn("Embedding request failed",
			zap.String("model", model),
			zap.Int("texts", len(missing)),
			zap.Error(err),
		)
		return nil, err
	}
	ometrics.RecordEmbeddingMetrics(model, "ok", time.Since(start).Seconds())

	for i, vec := range vecs {
		results[missingIdx[i]] = vec
		key := MakeKey(model, task, missing[i])
		s.lru.Set(ctx, key, vec, lruTTL)
		if s.cache != nil {
			s.cache.Set(ctx, key, vec, s.ttl)
		}
	}
	return results, nil
}
