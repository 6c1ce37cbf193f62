package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/lorekeep/lorekeep/internal/bm25"
	"github.com/lorekeep/lorekeep/internal/fusion"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/query"
	"github.com/lorekeep/lorekeep/internal/rerank"
	"github.com/lorekeep/lorekeep/internal/vector"
)

type stubKeyword struct {
	hits []bm25.Hit
	err  error
}

func (s *stubKeyword) Search(context.Context, []string, int, knowledge.Filters) ([]bm25.Hit, error) {
	return s.hits, s.err
}

type stubVector struct {
	hits []vector.Hit
	err  error
}

func (s *stubVector) Search(context.Context, []float32, int, knowledge.Filters) ([]vector.Hit, error) {
	return s.hits, s.err
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

type stubChunks struct {
	chunks map[string]knowledge.Chunk
	err    error
}

func (s *stubChunks) GetChunks(_ context.Context, ids []string) (map[string]knowledge.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]knowledge.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out[id] = c
		} else {
			out[id] = knowledge.Chunk{ID: id, Text: "text for " + id}
		}
	}
	return out, nil
}

func newPipeline(kw KeywordSearcher, vs VectorSearcher, emb Embedder) *Pipeline {
	return New(
		query.NewAnalyzer(nil, log.NewNop()),
		emb,
		kw,
		vs,
		&stubChunks{},
		fusion.NewEngine(fusion.DefaultConfig()),
		rerank.New(nil, log.NewNop()),
		Config{},
		log.NewNop(),
	)
}

func TestSearch_HybridMergesBothMethods(t *testing.T) {
	kw := &stubKeyword{hits: []bm25.Hit{{ChunkID: "lex", Score: 0.9}}}
	vs := &stubVector{hits: []vector.Hit{{ChunkID: "sem", Similarity: 0.8}}}
	p := newPipeline(kw, vs, &stubEmbedder{})

	resp, err := p.Search(t.Context(), Request{Query: "enterprise pricing plans"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Both single-method candidates survive the union with their own axis
	// normalized to 1.0: sem fuses at 0.7, lex at 0.3.
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].Chunk.ID != "sem" || resp.Results[1].Chunk.ID != "lex" {
		t.Errorf("order = %s, %s", resp.Results[0].Chunk.ID, resp.Results[1].Chunk.ID)
	}
	if len(resp.Degraded) != 0 {
		t.Errorf("unexpected degradation flags: %v", resp.Degraded)
	}
	if resp.Timings.TotalMs < 0 {
		t.Errorf("timings not recorded: %+v", resp.Timings)
	}
}

func TestSearch_VectorFailureDegrades(t *testing.T) {
	kw := &stubKeyword{hits: []bm25.Hit{{ChunkID: "lex", Score: 0.9}}}
	vs := &stubVector{err: errors.New("store unavailable")}
	p := newPipeline(kw, vs, &stubEmbedder{})

	resp, err := p.Search(t.Context(), Request{Query: "pricing"})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Chunk.ID != "lex" {
		t.Fatalf("surviving method's results lost: %+v", resp.Results)
	}
	if !hasFlag(resp.Degraded, DegradedVector) {
		t.Errorf("missing degradation flag, got %v", resp.Degraded)
	}
}

func TestSearch_EmbeddingFailureDegrades(t *testing.T) {
	kw := &stubKeyword{hits: []bm25.Hit{{ChunkID: "lex", Score: 0.9}}}
	vs := &stubVector{hits: []vector.Hit{{ChunkID: "sem", Similarity: 0.8}}}
	p := newPipeline(kw, vs, &stubEmbedder{err: errors.New("rate limited")})

	resp, err := p.Search(t.Context(), Request{Query: "pricing"})
	if err != nil {
		t.Fatalf("embedding failure must degrade, not error: %v", err)
	}
	if !hasFlag(resp.Degraded, DegradedVector) {
		t.Errorf("degraded = %v", resp.Degraded)
	}
}

func TestSearch_AllMethodsFailing(t *testing.T) {
	kw := &stubKeyword{err: errors.New("index down")}
	vs := &stubVector{err: errors.New("store down")}
	p := newPipeline(kw, vs, &stubEmbedder{})

	_, err := p.Search(t.Context(), Request{Query: "pricing"})
	if !errors.Is(err, ErrSearchFailed) {
		t.Errorf("err = %v, want ErrSearchFailed", err)
	}
}

func TestSearch_NoResults(t *testing.T) {
	p := newPipeline(&stubKeyword{}, &stubVector{}, &stubEmbedder{})

	_, err := p.Search(t.Context(), Request{Query: "completely unknown topic"})
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("err = %v, want ErrNoResults", err)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	p := newPipeline(&stubKeyword{}, &stubVector{}, &stubEmbedder{})

	_, err := p.Search(t.Context(), Request{Query: "  "})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestSearch_InvalidMode(t *testing.T) {
	p := newPipeline(&stubKeyword{}, &stubVector{}, &stubEmbedder{})

	if _, err := p.Search(t.Context(), Request{Query: "q", Mode: "fuzzy"}); err == nil {
		t.Error("unknown mode must be rejected")
	}
}

func TestSearch_KeywordMode(t *testing.T) {
	kw := &stubKeyword{hits: []bm25.Hit{{ChunkID: "lex", Score: 1}}}
	vs := &stubVector{hits: []vector.Hit{{ChunkID: "sem", Similarity: 1}}}
	emb := &stubEmbedder{err: errors.New("must not be called")}
	p := newPipeline(kw, vs, emb)

	resp, err := p.Search(t.Context(), Request{Query: "pricing", Mode: ModeKeyword})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Chunk.ID != "lex" {
		t.Errorf("keyword mode results = %+v", resp.Results)
	}
	if len(resp.Degraded) != 0 {
		t.Errorf("skipped method must not flag degradation: %v", resp.Degraded)
	}
}

func TestSearch_VectorMode(t *testing.T) {
	kw := &stubKeyword{hits: []bm25.Hit{{ChunkID: "lex", Score: 1}}}
	vs := &stubVector{hits: []vector.Hit{{ChunkID: "sem", Similarity: 1}}}
	p := newPipeline(kw, vs, &stubEmbedder{})

	resp, err := p.Search(t.Context(), Request{Query: "pricing", Mode: ModeVector})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Chunk.ID != "sem" {
		t.Errorf("vector mode results = %+v", resp.Results)
	}
}

func TestSearch_PerQueryWeightOverride(t *testing.T) {
	kw := &stubKeyword{hits: []bm25.Hit{{ChunkID: "lex", Score: 0.9}}}
	vs := &stubVector{hits: []vector.Hit{{ChunkID: "sem", Similarity: 0.8}}}
	p := newPipeline(kw, vs, &stubEmbedder{})

	// Flip the default weighting toward lexical for this query only.
	resp, err := p.Search(t.Context(), Request{
		Query:   "ACME-9000 part number",
		Weights: &fusion.Weights{Vector: 0.2, Keyword: 0.8},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Results[0].Chunk.ID != "lex" {
		t.Errorf("weight override ignored, top = %s", resp.Results[0].Chunk.ID)
	}
}

func TestSearch_LimitApplied(t *testing.T) {
	var hits []bm25.Hit
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		hits = append(hits, bm25.Hit{ChunkID: id, Score: float64(len(hits) + 1)})
	}
	p := newPipeline(&stubKeyword{hits: hits}, &stubVector{}, &stubEmbedder{})

	resp, err := p.Search(t.Context(), Request{Query: "pricing", Mode: ModeKeyword, Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("limit not applied: %d results", len(resp.Results))
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
