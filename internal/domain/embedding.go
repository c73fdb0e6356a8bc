package domain

import "context"

// Embedder turns text into a vector. The same text must always produce the
// same vector for a given model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
