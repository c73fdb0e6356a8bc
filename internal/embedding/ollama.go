// Package embedding provides text embedders for the vector store.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "nomic-embed-text"
)

// Ollama embeds text through the Ollama /api/embed endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *api.Client
	logger  *slog.Logger
}

type OllamaConfig struct {
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base, err := url.Parse(cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", cfg.APIBase, err)
	}
	return &Ollama{
		baseURL: cfg.APIBase,
		model:   cfg.Model,
		client:  api.NewClient(base, &http.Client{Timeout: 60 * time.Second}),
		logger:  cfg.Logger,
	}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request. The result has the same length and
// order as the input.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	o.logger.Debug("embedded texts", "count", len(texts), "model", o.model, "latency", time.Since(start))
	return resp.Embeddings, nil
}
