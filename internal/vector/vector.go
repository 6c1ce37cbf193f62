// Package vector provides cosine-similarity search over chunk embeddings.
//
// The Index keeps embeddings in memory with metadata for filter pushdown:
// filters restrict the candidate set before ranking, so the top-K is never
// starved by similar-but-ineligible content. The pgvector-backed store in
// internal/store applies the same contract in SQL.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lorekeep/lorekeep/internal/knowledge"
)

var (
	// ErrDimensionMismatch is returned when an embedding's length differs
	// from the index dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrZeroVector is returned for all-zero embeddings, which carry no
	// direction and would make cosine similarity meaningless.
	ErrZeroVector = errors.New("zero-magnitude embedding")
)

// Hit is a single similarity-search result.
type Hit struct {
	ChunkID    string
	Similarity float64 // cosine similarity in [-1, 1]
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// is empty, zero-magnitude, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Index is an in-memory similarity index. Safe for concurrent use.
// Insertion order is preserved and breaks similarity ties, keeping result
// order stable across identical queries.
type Index struct {
	dims int

	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	chunk     knowledge.Chunk
	embedding []float32
}

// NewIndex creates an Index for embeddings of the given dimensionality.
func NewIndex(dims int) *Index {
	return &Index{dims: dims}
}

// Dimensions returns the configured embedding dimensionality.
func (idx *Index) Dimensions() int {
	return idx.dims
}

// Add inserts a chunk. Chunks with mismatched dimensionality or zero-vector
// embeddings are rejected; callers keep them lexical-only.
func (idx *Index) Add(c knowledge.Chunk) error {
	if len(c.Embedding) != idx.dims {
		return fmt.Errorf("chunk %s: %w (got %d, want %d)", c.ID, ErrDimensionMismatch, len(c.Embedding), idx.dims)
	}

	var norm float64
	for _, v := range c.Embedding {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return fmt.Errorf("chunk %s: %w", c.ID, ErrZeroVector)
	}

	idx.mu.Lock()
	idx.entries = append(idx.entries, entry{chunk: c, embedding: c.Embedding})
	idx.mu.Unlock()
	return nil
}

// Reset drops all entries.
func (idx *Index) Reset() {
	idx.mu.Lock()
	idx.entries = nil
	idx.mu.Unlock()
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search returns up to limit chunks by descending cosine similarity against
// the query embedding. Filters are applied before ranking. A query embedding
// of the wrong dimensionality yields empty results rather than an error so
// retrieval can degrade to the lexical path.
func (idx *Index) Search(ctx context.Context, query []float32, limit int, f knowledge.Filters) ([]Hit, error) {
	if limit <= 0 || len(query) != idx.dims {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, limit)
	for _, e := range idx.entries {
		if !f.IsZero() && !f.Match(e.chunk) {
			continue
		}
		hits = append(hits, Hit{ChunkID: e.chunk.ID, Similarity: Cosine(query, e.embedding)})
	}

	// Stable sort keeps insertion order for equal similarities.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
