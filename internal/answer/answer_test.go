package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/retrieval"
)

type stubLLM struct {
	reply  string
	err    error
	prompt string
}

func (s *stubLLM) GenerateText(_ context.Context, _, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func results(ids ...string) []retrieval.Result {
	out := make([]retrieval.Result, len(ids))
	for i, id := range ids {
		out[i] = retrieval.Result{Chunk: knowledge.Chunk{
			ID:     id,
			Title:  "Doc " + id,
			Source: id + ".md",
			Text:   "content of " + id,
		}}
	}
	return out
}

func TestGenerate_CitationsFollowTheText(t *testing.T) {
	llm := &stubLLM{reply: "Enterprise costs $99 [2], with discounts for annual billing [1]. See also [2]."}
	g := NewGenerator(llm, log.NewNop())

	got, err := g.Generate(t.Context(), "what does enterprise cost", results("a", "b", "c"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Cited in first-use order, duplicates collapsed, uncited source c
	// absent.
	if len(got.Citations) != 2 {
		t.Fatalf("got %d citations, want 2: %+v", len(got.Citations), got.Citations)
	}
	if got.Citations[0].Index != 2 || got.Citations[0].ChunkID != "b" {
		t.Errorf("first citation = %+v", got.Citations[0])
	}
	if got.Citations[1].Index != 1 || got.Citations[1].ChunkID != "a" {
		t.Errorf("second citation = %+v", got.Citations[1])
	}

	// All sources were offered to the model.
	for _, want := range []string{"[1] Doc a (a.md)", "content of c", "what does enterprise cost"} {
		if !strings.Contains(llm.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerate_OutOfRangeMarkersIgnored(t *testing.T) {
	llm := &stubLLM{reply: "Answer [1] with a stray marker [9]."}
	g := NewGenerator(llm, log.NewNop())

	got, err := g.Generate(t.Context(), "q", results("a"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got.Citations) != 1 || got.Citations[0].Index != 1 {
		t.Errorf("citations = %+v", got.Citations)
	}
}

func TestGenerate_NoResults(t *testing.T) {
	g := NewGenerator(&stubLLM{reply: "x"}, log.NewNop())
	if _, err := g.Generate(t.Context(), "q", nil); !errors.Is(err, ErrNoContext) {
		t.Errorf("err = %v, want ErrNoContext", err)
	}
}

func TestGenerate_LLMFailure(t *testing.T) {
	g := NewGenerator(&stubLLM{err: errors.New("unavailable")}, log.NewNop())
	if _, err := g.Generate(t.Context(), "q", results("a")); err == nil {
		t.Error("provider failure must surface")
	}
}

func TestGenerate_ContextTruncated(t *testing.T) {
	llm := &stubLLM{reply: "ok [1]"}
	g := NewGenerator(llm, log.NewNop())

	many := results("a", "b", "c", "d", "e", "f", "g", "h")
	if _, err := g.Generate(t.Context(), "q", many); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(llm.prompt, "content of g") {
		t.Error("prompt includes results past the context cap")
	}
}
