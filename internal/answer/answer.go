// Package answer turns ranked retrieval results into a cited natural
// language answer. Deliberately thin: all ranking intelligence lives
// upstream, this stage only writes prose over the context it is given.
package answer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/retrieval"
)

// ErrNoContext is returned when there are no results to answer from.
var ErrNoContext = errors.New("no context to answer from")

// maxContextChunks bounds how many results feed the prompt.
const maxContextChunks = 6

// answerSystem primes the model for grounded answering.
const answerSystem = `You answer questions using ONLY the numbered sources provided.
Cite sources inline as [1], [2] and so on. If the sources do not answer the
question, say so instead of guessing.`

// answerPrompt lays out the sources and the question.
// Placeholders: (1) numbered sources, (2) the question.
const answerPrompt = `Sources:
%s
Question: %s

Answer with inline citations:`

// LLM is the text-generation surface the generator needs.
// *provider.GenkitJudge implements it.
type LLM interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

// Citation points an inline marker back at its chunk.
type Citation struct {
	Index   int    `json:"index"` // 1-based marker used in the text
	Title   string `json:"title"`
	Source  string `json:"source"`
	ChunkID string `json:"chunk_id"`
}

// Answer is a generated reply with the citations its text references.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// Generator produces answers from retrieval output.
type Generator struct {
	llm    LLM
	logger log.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(llm LLM, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{llm: llm, logger: logger}
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// Generate answers the question from the ranked results. Only sources the
// model actually cited appear in the citation list.
func (g *Generator) Generate(ctx context.Context, question string, results []retrieval.Result) (Answer, error) {
	if len(results) == 0 {
		return Answer{}, ErrNoContext
	}
	if len(results) > maxContextChunks {
		results = results[:maxContextChunks]
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, r.Chunk.Title, r.Chunk.Source, r.Chunk.Text)
	}

	text, err := g.llm.GenerateText(ctx, answerSystem, fmt.Sprintf(answerPrompt, sb.String(), question))
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, fmt.Errorf("model returned an empty answer")
	}

	return Answer{Text: text, Citations: citedSources(text, results)}, nil
}

// citedSources collects the citations whose markers appear in the text,
// in first-use order.
func citedSources(text string, results []retrieval.Result) []Citation {
	seen := make(map[int]bool)
	var out []Citation
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(results) || seen[n] {
			continue
		}
		seen[n] = true
		r := results[n-1]
		out = append(out, Citation{
			Index:   n,
			Title:   r.Chunk.Title,
			Source:  r.Chunk.Source,
			ChunkID: r.Chunk.ID,
		})
	}
	return out
}
