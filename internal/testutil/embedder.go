package testutil

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder is a deterministic offline Embedder: each token hashes into a
// bucket of the vector, so related texts share buckets and identical texts
// embed identically. Good enough to exercise storage and ranking paths
// without a provider.
type HashEmbedder struct {
	Dims int
}

// Dimensions implements the embedder interface.
func (e HashEmbedder) Dimensions() int {
	if e.Dims <= 0 {
		return 768
	}
	return e.Dims
}

// Embed returns a unit-normalized bucket-count vector for text.
func (e HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := e.Dimensions()
	v := make([]float32, dims)

	start := 0
	flush := func(end int) {
		if end <= start {
			return
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(text[start:end]))
		v[h.Sum32()%uint32(dims)]++ //nolint:gosec // dims is a small positive constant
	}
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			flush(i)
			start = i + 1
		}
	}
	flush(len(text))

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

// EmbedBatch embeds each text independently.
func (e HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		emb, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
