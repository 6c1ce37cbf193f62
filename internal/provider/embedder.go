package provider

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/lorekeep/lorekeep/internal/log"
)

// GenkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface.
// A token-bucket limiter smooths request bursts against provider quotas;
// batch embedding falls back to per-item calls when the provider rejects
// the batch, so one bad input does not sink a whole indexing run.
type GenkitEmbedder struct {
	embedder ai.Embedder
	dims     int
	limiter  *rate.Limiter
	logger   log.Logger
}

// NewGenkitEmbedder wraps embedder. requestsPerSecond <= 0 disables
// rate limiting.
func NewGenkitEmbedder(embedder ai.Embedder, requestsPerSecond float64, logger log.Logger) *GenkitEmbedder {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitEmbedder{
		embedder: embedder,
		dims:     EmbeddingDimensions,
		limiter:  limiter,
		logger:   logger,
	}
}

// Dimensions returns the configured vector width.
func (e *GenkitEmbedder) Dimensions() int { return e.dims }

// Embed returns the embedding for text.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	dim := int32(e.dims)
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedBatch embeds texts in one provider call, falling back to sequential
// per-item embedding when the batch call fails. Items that still fail get a
// nil entry; the caller decides whether partial results are acceptable.
func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	dim := int32(e.dims)
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err == nil && len(resp.Embeddings) == len(texts) {
		out := make([][]float32, len(texts))
		for i, emb := range resp.Embeddings {
			out[i] = emb.Embedding
		}
		return out, nil
	}
	if err != nil {
		e.logger.Warn("batch embedding failed, retrying per item", "count", len(texts), "error", err)
	} else {
		e.logger.Warn("batch embedding returned wrong count, retrying per item",
			"want", len(texts), "got", len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		emb, embErr := e.Embed(ctx, t)
		if embErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("embedding item failed", "index", i, "error", embErr)
			continue
		}
		out[i] = emb
	}
	return out, nil
}

func (e *GenkitEmbedder) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for embedding rate limit: %w", err)
	}
	return nil
}
