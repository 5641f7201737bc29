// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities. Embed is batch-first:
// callers hand over every text of a batch in one call so the external
// model is hit once per batch, never once per item.
type Embedder interface {
	// Embed converts texts into vector embeddings, one vector per input
	// text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// One embeds a single text through the batch interface.
func One(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmbedding
	}
	return vectors[0], nil
}
