package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/interceptors"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

// HTTPEmbedder calls an embeddings service exposing POST /embeddings/.
type HTTPEmbedder struct {
	baseURL string
	model   string
	http    *circuitbreaker.HTTPWrapper
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// NewHTTPEmbedder builds an embedder for the service at cfg.BaseURL.
func NewHTTPEmbedder(cfg Config, logger *zap.Logger) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embeddings base_url is required for the http provider")
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	client := &http.Client{Timeout: cfg.Timeout, Transport: interceptors.NewWorkflowHTTPRoundTripper(nil)}
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   model,
		http:    circuitbreaker.NewHTTPWrapper(client, "embeddings-http", "embeddings", logger),
	}, nil
}

func (e *HTTPEmbedder) Model() string { return e.model }

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	url := e.baseURL + "/embeddings/"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	buf, err := json.Marshal(embedRequest{Texts: texts, Model: e.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d embeddings for %d texts", len(er.Embeddings), len(texts))
	}

	out := make([][]float32, len(er.Embeddings))
	for i, emb := range er.Embeddings {
		vec := make([]float32, len(emb))
		for j, f := range emb {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}
