// Package retrieval is the semantic memory of a brand: scraped posts and
// earlier campaign insights stored per tenant in a vector collection.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/embeddings"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/textproc"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/vectordb"
)

// namespace for deterministic point IDs
var pointNamespace = uuid.MustParse("6f1c2a9e-3b1d-5c47-9a0e-8d2f4b6c7e10")

const dedupPrefixRunes = 100

// Gateway retrieves and stores tenant texts.
type Gateway struct {
	vectors   *vectordb.Client
	embedder  *embeddings.Service
	processor *textproc.Processor
	logger    *zap.Logger
}

// NewGateway wires a vector store and an embedding service.
func NewGateway(vectors *vectordb.Client, embedder *embeddings.Service, processor *textproc.Processor, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if processor == nil {
		processor = textproc.NewProcessor(textproc.DefaultChunkingConfig())
	}
	return &Gateway{vectors: vectors, embedder: embedder, processor: processor, logger: logger}
}

// Retrieve returns up to topK snippets relevant to query. It never fails:
// errors become a placeholder context.
func (g *Gateway) Retrieve(ctx context.Context, tenant, query string, topK int) Context {
	return g.RetrieveFiltered(ctx, tenant, query, topK, nil)
}

// RetrieveFiltered is Retrieve restricted to payloads matching filter.
func (g *Gateway) RetrieveFiltered(ctx context.Context, tenant, query string, topK int, filter vectordb.Filter) Context {
	collection := CollectionName(tenant)
	logger := g.logger.With(zap.String("tenant", tenant), zap.String("collection", collection))

	vec, err := g.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return g.failed(logger, err)
	}
	hits, err := g.vectors.Search(ctx, collection, vec, topK, filter)
	if err != nil {
		return g.failed(logger, err)
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		text := strings.TrimSpace(h.Text("text"))
		if text == "" {
			continue
		}
		platform := h.Text("platform")
		if platform == "" {
			platform = h.Text("type")
		}
		if platform == "" {
			platform = "unknown"
		}
		snippets = append(snippets, Snippet{
			Text:     text,
			Platform: platform,
			Rank:     len(snippets) + 1,
			Score:    h.Score,
			Metadata: h.Payload,
		})
	}
	if len(snippets) == 0 {
		metrics.RetrievalRequests.WithLabelValues("empty").Inc()
		return Context{Snippets: []Snippet{}, Placeholder: NoContentPlaceholder}
	}
	metrics.RetrievalRequests.WithLabelValues("hit").Inc()
	logger.Debug("Retrieved context", zap.Int("snippets", len(snippets)))
	return Context{Snippets: snippets}
}

func (g *Gateway) failed(logger *zap.Logger, err error) Context {
	metrics.RetrievalRequests.WithLabelValues("failed").Inc()
	logger.Warn("Context retrieval failed", zap.Error(err))
	return Context{Snippets: []Snippet{}, Placeholder: FailurePlaceholder, Err: err}
}

// Persist embeds text and stores it in the tenant collection with tags as
// payload. Identical tag sets and text map to the same point.
func (g *Gateway) Persist(ctx context.Context, tenant, text string, tags map[string]string) error {
	kind := tags["type"]
	if kind == "" {
		kind = "document"
	}
	err := g.persist(ctx, tenant, text, tags)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.PersistRequests.WithLabelValues(kind, status).Inc()
	return err
}

func (g *Gateway) persist(ctx context.Context, tenant, text string, tags map[string]string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("persist: empty text")
	}
	vecs, err := g.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	payload := map[string]any{"text": text, "tenant": tenant}
	keyParts := []string{"persist"}
	for _, k := range sortedTagKeys(tags) {
		payload[k] = tags[k]
		keyParts = append(keyParts, k+"="+tags[k])
	}
	keyParts = append(keyParts, text)

	point := vectordb.Point{ID: pointID(strings.Join(keyParts, "\x00")), Vector: vecs[0], Payload: payload}
	return g.store(ctx, tenant, []vectordb.Point{point})
}

// IngestReport summarizes an ingestion run.
type IngestReport struct {
	Tenant     string `json:"tenant"`
	Collection string `json:"collection"`
	Received   int    `json:"received"`
	Stored     int    `json:"stored"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
}

// IngestPosts cleans, chunks, embeds and stores scraped posts. Re-ingesting a
// post overwrites its earlier point instead of duplicating it.
func (g *Gateway) IngestPosts(ctx context.Context, tenant string, posts []textproc.Post) (IngestReport, error) {
	report := IngestReport{Tenant: tenant, Collection: CollectionName(tenant), Received: len(posts)}
	chunks, skipped := g.processor.Process(tenant, posts)
	report.Skipped = skipped
	if len(chunks) == 0 {
		return report, nil
	}

	seen := make(map[string]bool, len(chunks))
	var unique []textproc.Chunk
	var ids []string
	for _, c := range chunks {
		id := pointID(DedupKey(c.Metadata["platform"], c.Text))
		if seen[id] {
			report.Duplicates++
			continue
		}
		seen[id] = true
		unique = append(unique, c)
		ids = append(ids, id)
	}

	texts := make([]string, len(unique))
	for i, c := range unique {
		texts[i] = c.Text
	}
	vecs, err := g.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		metrics.PersistRequests.WithLabelValues("post", "error").Add(float64(len(unique)))
		return report, fmt.Errorf("embed posts: %w", err)
	}

	points := make([]vectordb.Point, len(unique))
	for i, c := range unique {
		payload := map[string]any{"text": c.Text, "tenant": tenant, "ingested_at": time.Now().UTC().Format(time.RFC3339)}
		for k, v := range c.Metadata {
			payload[k] = v
		}
		points[i] = vectordb.Point{ID: ids[i], Vector: vecs[i], Payload: payload}
	}
	if err := g.store(ctx, tenant, points); err != nil {
		metrics.PersistRequests.WithLabelValues("post", "error").Add(float64(len(points)))
		return report, err
	}
	metrics.PersistRequests.WithLabelValues("post", "ok").Add(float64(len(points)))
	report.Stored = len(points)

	g.logger.Info("Ingested posts",
		zap.String("tenant", tenant),
		zap.Int("received", report.Received),
		zap.Int("stored", report.Stored),
		zap.Int("skipped", report.Skipped),
		zap.Int("duplicates", report.Duplicates),
	)
	return report, nil
}

// store upserts points, creating the collection on first write. A collection
// built for another embedding size is recreated.
func (g *Gateway) store(ctx context.Context, tenant string, points []vectordb.Point) error {
	collection := CollectionName(tenant)
	dim := len(points[0].Vector)

	err := g.vectors.EnsureCollection(ctx, collection, dim)
	var mismatch *vectordb.DimensionMismatchError
	if errors.As(err, &mismatch) {
		g.logger.Warn("Recreating collection with incompatible dimension",
			zap.String("collection", collection),
			zap.Int("expected", mismatch.ExpectedDimension),
			zap.Int("received", mismatch.ReceivedDimension),
		)
		if err = g.vectors.DeleteCollection(ctx, collection); err == nil {
			err = g.vectors.EnsureCollection(ctx, collection, dim)
		}
	}
	if err != nil {
		return err
	}
	return g.vectors.Upsert(ctx, collection, points)
}

// Stats describes a tenant collection.
type Stats struct {
	Company    string `json:"company"`
	Collection string `json:"collection_name"`
	TotalPosts int    `json:"total_posts"`
}

// Stats counts the points stored for tenant.
func (g *Gateway) Stats(ctx context.Context, tenant string) (Stats, error) {
	collection := CollectionName(tenant)
	n, err := g.vectors.Count(ctx, collection)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Company: tenant, Collection: collection, TotalPosts: n}, nil
}

// DeleteTenant removes everything stored for tenant.
func (g *Gateway) DeleteTenant(ctx context.Context, tenant string) error {
	return g.vectors.DeleteCollection(ctx, CollectionName(tenant))
}

// DedupKey identifies a post by platform and its first 100 characters.
func DedupKey(platform, text string) string {
	if platform == "" {
		platform = "unknown"
	}
	r := []rune(text)
	if len(r) > dedupPrefixRunes {
		r = r[:dedupPrefixRunes]
	}
	return platform + ":" + string(r)
}

func pointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
