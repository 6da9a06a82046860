// Package embedding provides an Embedder backed by any OpenAI-compatible
// embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veldt-io/vecstore/pkg/observability"
	"github.com/veldt-io/vecstore/pkg/vecstore"
)

// Config holds embedder settings.
type Config struct {
	// BaseURL is the API base (e.g. "https://api.openai.com/v1" or a
	// compatible local endpoint). Required.
	BaseURL string

	// APIKey authenticates against the endpoint. Optional for unsecured
	// local endpoints.
	APIKey string

	// Model is the embedding model name. Required.
	Model string
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// Ensure OpenAIEmbedder implements vecstore.Embedder at compile time.
var _ vecstore.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for the configured endpoint.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: embedding base URL is required", vecstore.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", vecstore.ErrConfiguration)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
	}, nil
}

// Embed converts a batch of texts into embedding vectors, one per input,
// in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.EmbeddingRequestsTotal.WithLabelValues(status).Inc()
		observability.EmbeddingLatency.Observe(time.Since(start).Seconds())
	}()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts))
	}

	// Order results by index; the API does not guarantee response order.
	vectors = make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range [0, %d)", d.Index, len(texts))
		}
		vectors[d.Index] = d.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("embedding response missing vector for input %d", i)
		}
	}
	return vectors, nil
}

// EmbedQuery converts a single query text into an embedding vector.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
