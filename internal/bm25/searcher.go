package bm25

import (
	"context"
	"sort"
	"sync"

	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/text"
)

// Hit is a single keyword-search result.
type Hit struct {
	ChunkID string
	Score   float64
}

// Searcher scores a chunk set against queries using statistics from a
// corpus.Snapshot. Chunk term frequencies are computed once per Reindex, not
// per query. Safe for concurrent use.
type Searcher struct {
	params Params
	snap   *corpus.Snapshot

	mu     sync.RWMutex
	chunks []indexedChunk
}

type indexedChunk struct {
	id      string
	tf      map[string]int
	length  int
	filters knowledge.Chunk // retained for filter pushdown
}

// NewSearcher creates a Searcher reading statistics from snap.
func NewSearcher(snap *corpus.Snapshot, params Params) *Searcher {
	return &Searcher{params: params, snap: snap}
}

// Reindex replaces the indexed chunk set. Called after a statistics rebuild
// so term frequencies and statistics describe the same corpus.
func (s *Searcher) Reindex(chunks []knowledge.Chunk) {
	indexed := make([]indexedChunk, 0, len(chunks))
	for _, c := range chunks {
		terms := text.Tokenize(c.Text)
		if len(terms) == 0 {
			continue
		}
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		indexed = append(indexed, indexedChunk{id: c.ID, tf: tf, length: len(terms), filters: c})
	}

	s.mu.Lock()
	s.chunks = indexed
	s.mu.Unlock()
}

// Search returns the top limit chunks by BM25 score for the query terms,
// descending, zero-score chunks omitted. Ties keep index order (stable).
// Filter pushdown happens before scoring. An empty query returns nil.
func (s *Searcher) Search(ctx context.Context, queryTerms []string, limit int, f knowledge.Filters) ([]Hit, error) {
	if len(queryTerms) == 0 || limit <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := s.snap.Load()

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]Hit, 0, limit)
	for _, c := range s.chunks {
		if !f.IsZero() && !f.Match(c.filters) {
			continue
		}
		score := Score(queryTerms, c.tf, c.length, stats, s.params)
		if score > 0 {
			hits = append(hits, Hit{ChunkID: c.id, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
