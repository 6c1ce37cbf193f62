package query

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
)

// stubJudge returns a canned JSON reply or an error.
type stubJudge struct {
	reply string
	err   error
	calls int
}

func (s *stubJudge) GenerateJSON(_ context.Context, _, _ string, out any) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.reply), out)
}

func TestAnalyze_HeuristicPricingFixture(t *testing.T) {
	a := NewAnalyzer(nil, log.NewNop())

	got := a.Analyze(t.Context(), "What is the pricing for enterprise plans?")

	if got.Intent != IntentPricing {
		t.Errorf("intent = %s, want %s", got.Intent, IntentPricing)
	}
	if got.PrimaryCategory != knowledge.CategoryPricing {
		t.Errorf("primary category = %s, want %s", got.PrimaryCategory, knowledge.CategoryPricing)
	}
	if got.Source != SourceHeuristic {
		t.Errorf("source = %s, want heuristic", got.Source)
	}
}

func TestAnalyze_HeuristicIntents(t *testing.T) {
	a := NewAnalyzer(nil, log.NewNop())

	tests := []struct {
		query      string
		wantIntent Intent
		wantCat    string
	}{
		{"How do I configure SSO for my team?", IntentHowTo, knowledge.CategoryHowTo},
		{"Basic plan vs Pro plan", IntentComparison, knowledge.CategoryProduct},
		{"The webhook endpoint returns a timeout error", IntentTechnical, knowledge.CategoryTroubleshoot},
		{"What is the refund policy?", IntentFactual, knowledge.CategoryProduct},
		{"tell me something", IntentOther, knowledge.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := a.Analyze(t.Context(), tt.query)
			if got.Intent != tt.wantIntent {
				t.Errorf("intent = %s, want %s", got.Intent, tt.wantIntent)
			}
			if got.PrimaryCategory != tt.wantCat {
				t.Errorf("category = %s, want %s", got.PrimaryCategory, tt.wantCat)
			}
		})
	}
}

func TestAnalyze_HeuristicIsDeterministic(t *testing.T) {
	a := NewAnalyzer(nil, log.NewNop())
	const q = "pgvector embedding error in the API"

	first := a.Analyze(t.Context(), q)
	for range 3 {
		if got := a.Analyze(t.Context(), q); got.Intent != first.Intent ||
			got.PrimaryCategory != first.PrimaryCategory || got.TechLevel != first.TechLevel {
			t.Fatalf("heuristic classification not stable: %+v vs %+v", got, first)
		}
	}
	if first.TechLevel < 8 {
		t.Errorf("expert jargon should raise tech level, got %d", first.TechLevel)
	}
}

func TestAnalyze_LLMPath(t *testing.T) {
	judge := &stubJudge{reply: `{
		"intent": "technical",
		"primary_category": "technical",
		"secondary_categories": ["troubleshooting", "technical", "bogus"],
		"entities": [{"name": "Webhooks", "type": "feature", "confidence": 1.7}],
		"technical_level": 14
	}`}
	a := NewAnalyzer(judge, log.NewNop())

	got := a.Analyze(t.Context(), "webhook retries keep failing")

	if got.Source != SourceLLM {
		t.Fatalf("source = %s, want llm", got.Source)
	}
	if got.Intent != IntentTechnical {
		t.Errorf("intent = %s", got.Intent)
	}
	// normalize must drop duplicates of the primary, reject unknown
	// categories, and clamp out-of-range values.
	if !slices.Equal(got.SecondaryCategories, []string{knowledge.CategoryTroubleshoot}) {
		t.Errorf("secondary = %v", got.SecondaryCategories)
	}
	if got.TechLevel != knowledge.MaxTechLevel {
		t.Errorf("tech level = %d, want clamped to %d", got.TechLevel, knowledge.MaxTechLevel)
	}
	if len(got.Entities) != 1 || got.Entities[0].Confidence != 1 {
		t.Errorf("entities = %+v", got.Entities)
	}
}

func TestAnalyze_LLMFailureFallsBack(t *testing.T) {
	judge := &stubJudge{err: errors.New("provider down")}
	a := NewAnalyzer(judge, log.NewNop())

	got := a.Analyze(t.Context(), "What is the pricing for enterprise plans?")

	if judge.calls == 0 {
		t.Fatal("llm path was never tried")
	}
	if got.Source != SourceHeuristic {
		t.Errorf("source = %s, want heuristic fallback", got.Source)
	}
	if got.Intent != IntentPricing {
		t.Errorf("fallback intent = %s, want %s", got.Intent, IntentPricing)
	}
}

func TestAnalyze_EmptyQuery(t *testing.T) {
	a := NewAnalyzer(&stubJudge{}, log.NewNop())

	got := a.Analyze(t.Context(), "   ")

	if got.Intent != IntentOther || got.PrimaryCategory != knowledge.CategoryGeneral {
		t.Errorf("empty query analysis = %+v", got)
	}
}

func TestExpand_SynonymsAndIdempotence(t *testing.T) {
	a := NewAnalyzer(nil, log.NewNop())

	first := a.Expand(t.Context(), "enterprise pricing plans", ExpandOptions{})
	if !slices.Contains(first, "cost") || !slices.Contains(first, "tier") {
		t.Fatalf("expected synonym terms in %v", first)
	}

	second := a.Expand(t.Context(), joinTerms(first), ExpandOptions{})
	slices.Sort(first)
	slices.Sort(second)
	if !slices.Equal(first, second) {
		t.Errorf("expansion not idempotent: %v then %v", first, second)
	}
}

func TestExpand_CapsAddedTerms(t *testing.T) {
	a := NewAnalyzer(nil, log.NewNop())

	base := a.Expand(t.Context(), "price plan install login delete", ExpandOptions{MaxTerms: 2})
	added := len(base) - 5
	if added > 2 {
		t.Errorf("added %d terms, cap was 2: %v", added, base)
	}
}

func TestExpand_SemanticTermsFiltered(t *testing.T) {
	judge := &stubJudge{reply: `{"terms": ["Invoices", "billing cycle", "refund", "refund"]}`}
	a := NewAnalyzer(judge, log.NewNop())

	got := a.Expand(t.Context(), "enterprise charges", ExpandOptions{Semantic: true})

	if !slices.Contains(got, "invoices") || !slices.Contains(got, "refund") {
		t.Errorf("expected normalized llm terms in %v", got)
	}
	// Multi-word suggestions are dropped, duplicates collapsed.
	for i, t1 := range got {
		for _, t2 := range got[i+1:] {
			if t1 == t2 {
				t.Fatalf("duplicate term %q in %v", t1, got)
			}
		}
	}
}

func TestExpand_EmptyQuery(t *testing.T) {
	a := NewAnalyzer(nil, log.NewNop())
	if got := a.Expand(t.Context(), "", ExpandOptions{}); got != nil {
		t.Errorf("want nil for empty query, got %v", got)
	}
}

func joinTerms(terms []string) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
