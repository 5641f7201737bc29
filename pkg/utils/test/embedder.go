package testutils

import (
	"context"
	"fmt"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	// Embeddings maps input text to the vector Embed returns for it.
	Embeddings map[string][]float32

	// Default is returned for texts without an entry in Embeddings.
	Default []float32

	// FailOn causes Embed to return an error when any input text matches
	FailOn string

	// Calls counts Embed invocations, so tests can assert batching.
	Calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Default:    []float32{0.1, 0.2, 0.3},
	}
}

// Embed returns one vector per input text, in input order.
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls++

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if m.FailOn != "" && text == m.FailOn {
			return nil, fmt.Errorf("mock embedding failure for: %s", text)
		}

		if emb, ok := m.Embeddings[text]; ok {
			out = append(out, emb)
			continue
		}
		out = append(out, m.Default)
	}

	return out, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}
