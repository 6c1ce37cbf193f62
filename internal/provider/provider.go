// Package provider wraps the Genkit AI surface behind two small interfaces:
// Embedder for vector embeddings and Judge for structured LLM generation.
// Consumers depend on these interfaces so tests can substitute deterministic
// fakes without a Genkit registry.
package provider

import (
	"context"
	"errors"
)

// EmbeddingDimensions is the vector width used across the system.
// Gemini embedding models emit larger vectors; we request Matryoshka
// truncation to 768 so pgvector columns and the in-memory index agree.
const EmbeddingDimensions = 768

var (
	// ErrEmptyEmbedding is returned when the provider responds without
	// a usable vector.
	ErrEmptyEmbedding = errors.New("provider returned empty embedding")

	// ErrMalformedResponse is returned when an LLM response cannot be
	// parsed as the requested JSON structure, even after one repair
	// round trip.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Embedder produces embeddings for text. Implementations must be safe for
// concurrent use.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order. The result always has one entry
	// per input; entries for texts that could not be embedded are nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width this embedder produces.
	Dimensions() int
}

// Judge runs a prompt against an LLM and parses the reply into out, which
// must be a pointer to a JSON-unmarshalable value. Implementations must be
// safe for concurrent use.
type Judge interface {
	GenerateJSON(ctx context.Context, system, prompt string, out any) error
}
