package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lorekeep/lorekeep/internal/fusion"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
)

// stubJudge returns a canned JSON reply, an error, or blocks until the
// context is canceled.
type stubJudge struct {
	reply string
	err   error
	block bool
}

func (s *stubJudge) GenerateJSON(ctx context.Context, _, _ string, out any) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.reply), out)
}

func candidates(ids ...string) []fusion.Candidate {
	out := make([]fusion.Candidate, len(ids))
	for i, id := range ids {
		out[i] = fusion.Candidate{
			Chunk: knowledge.Chunk{ID: id, Title: id, Text: "text for " + id},
			Fused: 1 - float64(i)*0.1, // already relevance-sorted
		}
	}
	return out
}

func ids(cands []fusion.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Chunk.ID
	}
	return out
}

func TestRerank_JudgeOrdering(t *testing.T) {
	judge := &stubJudge{reply: `[
		{"index": 0, "score": 3, "reason": "tangential"},
		{"index": 1, "score": 9, "reason": "direct answer"},
		{"index": 2, "score": 5, "reason": "related"}
	]`}
	r := New(judge, log.NewNop())

	got, usedLLM := r.Rerank(t.Context(), "enterprise pricing", candidates("a", "b", "c"), Options{})

	if !usedLLM {
		t.Fatal("judge path was not used")
	}
	want := []string{"b", "c", "a"}
	for i, id := range ids(got) {
		if id != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
	if got[0].RerankScore != 9 || got[0].RerankReason != "direct answer" {
		t.Errorf("top candidate carries %f %q", got[0].RerankScore, got[0].RerankReason)
	}
}

func TestRerank_MissingIndicesScoreZero(t *testing.T) {
	// Five candidates, judge scores only three of them.
	judge := &stubJudge{reply: `[
		{"index": 1, "score": 8, "reason": "good"},
		{"index": 3, "score": 6, "reason": "ok"},
		{"index": 0, "score": 4, "reason": "weak"}
	]`}
	r := New(judge, log.NewNop())

	got, usedLLM := r.Rerank(t.Context(), "q", candidates("a", "b", "c", "d", "e"), Options{})

	if !usedLLM {
		t.Fatal("judge path was not used")
	}
	if len(got) != 5 {
		t.Fatalf("partial judge output must not drop candidates, got %d", len(got))
	}
	want := []string{"b", "d", "a", "c", "e"} // unscored keep fusion order at 0
	for i, id := range ids(got) {
		if id != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
	for _, c := range got[3:] {
		if c.RerankScore != 0 {
			t.Errorf("unscored candidate %s has score %f", c.Chunk.ID, c.RerankScore)
		}
	}
}

func TestRerank_OutOfRangeRepliesIgnoredOrClamped(t *testing.T) {
	judge := &stubJudge{reply: `[
		{"index": 7, "score": 10, "reason": "bogus index"},
		{"index": -1, "score": 10, "reason": "bogus index"},
		{"index": 0, "score": 25, "reason": "inflated"},
		{"index": 1, "score": -5, "reason": "negative"}
	]`}
	r := New(judge, log.NewNop())

	got, _ := r.Rerank(t.Context(), "q", candidates("a", "b"), Options{})

	if got[0].Chunk.ID != "a" || got[0].RerankScore != 10 {
		t.Errorf("score not clamped to 10: %+v", got[0])
	}
	if got[1].RerankScore != 0 {
		t.Errorf("negative score not clamped to 0: %+v", got[1])
	}
}

func TestRerank_ErrorFallsBackToFusionOrder(t *testing.T) {
	judge := &stubJudge{err: errors.New("model unavailable")}
	r := New(judge, log.NewNop())

	got, usedLLM := r.Rerank(t.Context(), "q", candidates("a", "b", "c"), Options{})

	if usedLLM {
		t.Fatal("fallback path expected")
	}
	want := []string{"a", "b", "c"}
	for i, id := range ids(got) {
		if id != want[i] {
			t.Fatalf("fallback order = %v, want fusion order %v", ids(got), want)
		}
	}
}

func TestRerank_TimeoutFallsBackDeterministically(t *testing.T) {
	judge := &stubJudge{block: true}
	r := New(judge, log.NewNop())
	cands := candidates("a", "b", "c")

	start := time.Now()
	first, usedLLM := r.Rerank(t.Context(), "q", cands, Options{Timeout: 20 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rerank blocked for %v despite timeout", elapsed)
	}
	if usedLLM {
		t.Fatal("timed-out judge must not count as used")
	}

	for range 3 {
		again, _ := r.Rerank(t.Context(), "q", cands, Options{Timeout: 20 * time.Millisecond})
		for i := range again {
			if again[i].Chunk.ID != first[i].Chunk.ID {
				t.Fatalf("fallback not deterministic: %v vs %v", ids(again), ids(first))
			}
		}
	}
}

func TestRerank_FallbackVisualBoost(t *testing.T) {
	r := New(nil, log.NewNop())
	cands := []fusion.Candidate{
		{Chunk: knowledge.Chunk{ID: "plain"}, Fused: 1.0},
		{Chunk: knowledge.Chunk{ID: "chart", Visual: "chart"}, Fused: 0.9},
		{Chunk: knowledge.Chunk{ID: "weak"}, Fused: 0.4},
	}

	got, _ := r.Rerank(t.Context(), "show me the revenue chart", cands, Options{UseVisualContext: true})

	// 0.9 * 1.2 = 1.08 > 1.0: the visual chunk leads for a visual query.
	if got[0].Chunk.ID != "chart" {
		t.Errorf("top = %s, want visual chunk first", got[0].Chunk.ID)
	}

	// Without a visual query the fusion order holds.
	got, _ = r.Rerank(t.Context(), "revenue last year", cands, Options{UseVisualContext: true})
	if got[0].Chunk.ID != "plain" {
		t.Errorf("non-visual query reordered: top = %s", got[0].Chunk.ID)
	}
}

func TestRerank_LimitTruncates(t *testing.T) {
	r := New(nil, log.NewNop())

	got, _ := r.Rerank(t.Context(), "q", candidates("a", "b", "c", "d"), Options{Limit: 2})
	if len(got) != 2 {
		t.Errorf("limit not applied: %d results", len(got))
	}
}

func TestRerank_EmptyCandidates(t *testing.T) {
	r := New(&stubJudge{}, log.NewNop())
	if got, _ := r.Rerank(t.Context(), "q", nil, Options{}); got != nil {
		t.Errorf("want nil for empty input, got %v", got)
	}
}

func TestVisualQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"show me the architecture diagram", true},
		{"is there a pricing table", true},
		{"how do I reset my password", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := VisualQuery(tt.query); got != tt.want {
			t.Errorf("VisualQuery(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
