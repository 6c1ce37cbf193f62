package bm25

import (
	"testing"

	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/knowledge"
)

func buildStats(texts ...string) *corpus.Stats {
	chunks := make([]knowledge.Chunk, len(texts))
	for i, txt := range texts {
		chunks[i] = knowledge.Chunk{ID: string(rune('a' + i)), Text: txt}
	}
	return corpus.Build(chunks)
}

func TestIDF(t *testing.T) {
	stats := buildStats(
		"pricing plans enterprise",
		"pricing details",
		"vector embeddings",
	)

	// "pricing" appears in 2 of 3 chunks, "vector" in 1 of 3.
	rare := IDF(stats, "vector")
	common := IDF(stats, "pricing")

	if rare <= common {
		t.Errorf("IDF(rare)=%f must exceed IDF(common)=%f", rare, common)
	}
	if common <= 0 {
		t.Errorf("smoothed IDF must stay positive, got %f", common)
	}
	if got := IDF(stats, "absent"); got != 0 {
		t.Errorf("IDF of unseen term = %f, want 0", got)
	}
}

func TestScore_EdgeCases(t *testing.T) {
	stats := buildStats("alpha beta gamma")
	p := DefaultParams()

	tests := []struct {
		name    string
		query   []string
		tf      map[string]int
		length  int
		wantZero bool
	}{
		{"empty query", nil, map[string]int{"alpha": 1}, 3, true},
		{"empty chunk", []string{"alpha"}, nil, 0, true},
		{"unseen term", []string{"omega"}, map[string]int{"alpha": 1}, 3, true},
		{"matching term", []string{"alpha"}, map[string]int{"alpha": 1}, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.query, tt.tf, tt.length, stats, p)
			if got < 0 {
				t.Fatalf("score must be non-negative, got %f", got)
			}
			if (got == 0) != tt.wantZero {
				t.Errorf("score = %f, wantZero=%v", got, tt.wantZero)
			}
		})
	}
}

func TestScore_MonotonicInTermFrequency(t *testing.T) {
	stats := buildStats("alpha beta", "gamma delta", "alpha epsilon")
	p := DefaultParams()
	query := []string{"alpha"}

	prev := -1.0
	for tf := 1; tf <= 6; tf++ {
		got := Score(query, map[string]int{"alpha": tf}, 10, stats, p)
		if got <= prev {
			t.Fatalf("score not increasing: tf=%d score=%f prev=%f", tf, got, prev)
		}
		prev = got
	}
}

func TestScore_LengthNormalization(t *testing.T) {
	stats := buildStats("alpha beta gamma delta", "alpha one two")
	p := DefaultParams()
	query := []string{"alpha"}
	tf := map[string]int{"alpha": 1}

	short := Score(query, tf, 2, stats, p)
	long := Score(query, tf, 20, stats, p)
	if short <= long {
		t.Errorf("shorter chunk should outrank longer at equal tf: short=%f long=%f", short, long)
	}
}

// TestScoreText_FrequentTermBeatsAbsent covers the tokenize → stats → score
// round trip: a query holding the chunk's dominant term must outscore a query
// holding a term the chunk lacks.
func TestScoreText_FrequentTermBeatsAbsent(t *testing.T) {
	chunkText := "kubernetes kubernetes kubernetes deployment guide"
	stats := buildStats(chunkText, "billing invoice overview", "api reference manual")
	p := DefaultParams()

	present := ScoreText([]string{"kubernetes"}, chunkText, stats, p)
	absent := ScoreText([]string{"billing"}, chunkText, stats, p)

	if present <= absent {
		t.Errorf("dominant-term query %f must exceed absent-term query %f", present, absent)
	}
	if absent != 0 {
		t.Errorf("absent-term query must score 0, got %f", absent)
	}
}

func TestSearcher_Search(t *testing.T) {
	chunks := []knowledge.Chunk{
		{ID: "c1", Text: "pricing pricing enterprise plans", Category: knowledge.CategoryPricing, Approved: true, TechLevel: 2},
		{ID: "c2", Text: "pricing overview", Category: knowledge.CategoryPricing, Approved: true, TechLevel: 2},
		{ID: "c3", Text: "vector embeddings internals", Category: knowledge.CategoryTechnical, Approved: true, TechLevel: 8},
		{ID: "c4", Text: "draft pricing notes", Category: knowledge.CategoryPricing, Approved: false, TechLevel: 2},
	}

	var snap corpus.Snapshot
	snap.Publish(corpus.Build(chunks))
	s := NewSearcher(&snap, DefaultParams())
	s.Reindex(chunks)

	hits, err := s.Search(t.Context(), []string{"pricing"}, 10, knowledge.Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	if hits[0].ChunkID != "c1" {
		t.Errorf("top hit = %s, want c1 (highest tf)", hits[0].ChunkID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not descending at %d", i)
		}
	}
}

func TestSearcher_FilterPushdown(t *testing.T) {
	chunks := []knowledge.Chunk{
		{ID: "approved", Text: "pricing guide", Approved: true, Category: knowledge.CategoryPricing, TechLevel: 3},
		{ID: "draft", Text: "pricing guide", Approved: false, Category: knowledge.CategoryPricing, TechLevel: 3},
	}

	var snap corpus.Snapshot
	snap.Publish(corpus.Build(chunks))
	s := NewSearcher(&snap, DefaultParams())
	s.Reindex(chunks)

	hits, err := s.Search(t.Context(), []string{"pricing"}, 10, knowledge.Filters{ApprovedOnly: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "approved" {
		t.Errorf("filter pushdown failed: %+v", hits)
	}
}

func TestSearcher_EmptyQuery(t *testing.T) {
	var snap corpus.Snapshot
	s := NewSearcher(&snap, DefaultParams())

	hits, err := s.Search(t.Context(), nil, 5, knowledge.Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Errorf("empty query should yield nil hits, got %v", hits)
	}
}
