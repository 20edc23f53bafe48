// Package vectordb is a minimal Qdrant HTTP client for per-tenant post
// collections.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	ometrics "github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// New creates a client for the Qdrant instance described by cfg.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	base := cfg.Host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}
	return NewWithBaseURL(base, cfg, logger)
}

// NewWithBaseURL creates a client against an explicit base URL.
func NewWithBaseURL(base string, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		base:  strings.TrimRight(base, "/"),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectordb", logger),
		log:   logger,
	}
}

func (c *Client) collectionURL(collection string, parts ...string) string {
	u := c.base + "/collections/" + url.PathEscape(collection)
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

// do sends a JSON request and decodes the "result" field of the reply into out.
// A 404 is reported as ErrCollectionNotFound.
func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	ctx, span := tracing.StartHTTPSpan(ctx, method, u)
	defer span.End()

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCollectionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return json.Unmarshal(envelope.Result, out)
}

// CollectionInfo describes collection, or returns ErrCollectionNotFound.
func (c *Client) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	var r struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, c.collectionURL(collection), nil, &r); err != nil {
		return nil, err
	}
	return &CollectionInfo{Name: collection, VectorSize: r.Config.Params.Vectors.Size, PointsCount: r.PointsCount}, nil
}

// EnsureCollection creates collection with vectors of dim when it does not
// exist. An existing collection with another dimension yields a
// *DimensionMismatchError.
func (c *Client) EnsureCollection(ctx context.Context, collection string, dim int) error {
	info, err := c.CollectionInfo(ctx, collection)
	if err == nil {
		if info.VectorSize != 0 && info.VectorSize != dim {
			return &DimensionMismatchError{Collection: collection, ExpectedDimension: info.VectorSize, ReceivedDimension: dim}
		}
		return nil
	}
	if err != ErrCollectionNotFound {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": c.cfg.Distance},
	}
	if err := c.do(ctx, http.MethodPut, c.collectionURL(collection), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	c.log.Info("Created vector collection", zap.String("collection", collection), zap.Int("dim", dim))
	return nil
}

// Upsert inserts or updates points, waiting for the write to be applied.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if err := c.do(ctx, http.MethodPut, c.collectionURL(collection, "points")+"?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search returns the limit nearest points to vec, best first. A missing
// collection yields no hits.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	start := time.Now()
	body := map[string]any{
		"query":        vec,
		"limit":        limit,
		"with_payload": true,
	}
	if c.cfg.Threshold > 0 {
		body["score_threshold"] = c.cfg.Threshold
	}
	if f := filter.qdrant(); f != nil {
		body["filter"] = f
	}

	var result struct {
		Points []qdrantPoint `json:"points"`
	}
	err := c.do(ctx, http.MethodPost, c.collectionURL(collection, "points", "query"), body, &result)
	switch {
	case err == ErrCollectionNotFound:
		ometrics.RecordVectorSearchMetrics(collection, "missing", time.Since(start).Seconds())
		return nil, nil
	case err != nil:
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())

	out := make([]ScoredPoint, 0, len(result.Points))
	for _, p := range result.Points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		out = append(out, ScoredPoint{ID: fmt.Sprintf("%v", p.ID), Score: p.Score, Payload: payload})
	}
	return out, nil
}

// Count returns the exact number of points in collection; 0 if it is missing.
func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	var r struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, c.collectionURL(collection, "points", "count"), map[string]any{"exact": true}, &r)
	if err == ErrCollectionNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return r.Count, nil
}

// DeleteCollection drops collection. Deleting a missing collection succeeds.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	err := c.do(ctx, http.MethodDelete, c.collectionURL(collection), nil, nil)
	if err != nil && err != ErrCollectionNotFound {
		return fmt.Errorf("delete collection %s: %w", collection, err)
	}
	return nil
}

// Ping checks that Qdrant answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.base+"/collections", nil, nil)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsCircuitBreakerOpen reports whether calls to Qdrant are currently short-circuited.
func (c *Client) IsCircuitBreakerOpen() bool {
	return c.httpw.IsCircuitBreakerOpen()
}
