package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/provider"
)

// classifySystem primes the model for query classification.
const classifySystem = `You classify customer queries for a knowledge-base search system.
Reply with JSON only, no prose, no markdown fences.`

// classifyPrompt requests the full Analysis structure.
// %s placeholders: (1) intent list, (2) category list, (3) the query.
const classifyPrompt = `Classify the query below.

Fields:
- "intent": one of [%s]
- "primary_category": one of [%s]
- "secondary_categories": other relevant categories, most relevant first, may be empty
- "entities": array of {"name", "type", "confidence"} where type is one of
  "product", "feature", "company", "technology", "plan", "other" and confidence is 0-1
- "technical_level": 1 (non-technical reader) to 10 (expert engineer)

Query: %q

JSON:`

// classifier is one classification strategy. An error means "try the next
// strategy", so the chain below is the whole fallback policy.
type classifier struct {
	name string
	run  func(ctx context.Context, rawQuery string) (Analysis, error)
}

// Analyzer turns a raw query into an Analysis. Classification walks an
// ordered strategy list (LLM first, keyword heuristics last); the caller
// always receives a usable Analysis, never an error.
type Analyzer struct {
	judge      provider.Judge
	strategies []classifier
	logger     log.Logger
}

// NewAnalyzer creates an Analyzer. judge may be nil, which pins the analyzer
// to the heuristic path (useful for tests and degraded operation).
func NewAnalyzer(judge provider.Judge, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &Analyzer{judge: judge, logger: logger}

	if judge != nil {
		a.strategies = append(a.strategies, classifier{name: "llm", run: a.llmClassify})
	}
	// The heuristic never fails, so the chain always terminates with a
	// usable Analysis.
	a.strategies = append(a.strategies, classifier{name: "heuristic", run: func(_ context.Context, q string) (Analysis, error) {
		return HeuristicClassify(q), nil
	}})
	return a
}

// Analyze classifies rawQuery with the first strategy that succeeds.
// Strategy failures are logged as degradations, never surfaced as errors.
func (a *Analyzer) Analyze(ctx context.Context, rawQuery string) Analysis {
	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return Analysis{
			Intent:          IntentOther,
			PrimaryCategory: knowledge.CategoryGeneral,
			TechLevel:       knowledge.DefaultTechLevel,
			Source:          SourceHeuristic,
		}
	}

	for _, s := range a.strategies {
		analysis, err := s.run(ctx, rawQuery)
		if err == nil {
			return analysis
		}
		a.logger.Warn("query classification strategy failed", "strategy", s.name, "error", err)
	}
	// Unreachable while the heuristic strategy terminates the chain, but
	// the compiler cannot know that.
	return HeuristicClassify(rawQuery)
}

func (a *Analyzer) llmClassify(ctx context.Context, rawQuery string) (Analysis, error) {
	intents := make([]string, len(Intents))
	for i, in := range Intents {
		intents[i] = string(in)
	}
	prompt := fmt.Sprintf(classifyPrompt,
		strings.Join(intents, ", "),
		strings.Join(knowledge.Categories, ", "),
		rawQuery,
	)

	var analysis Analysis
	if err := a.judge.GenerateJSON(ctx, classifySystem, prompt, &analysis); err != nil {
		return Analysis{}, err
	}
	if analysis.Intent == "" && analysis.PrimaryCategory == "" {
		return Analysis{}, fmt.Errorf("classification reply carried no intent or category")
	}

	analysis.Source = SourceLLM
	analysis.normalize()
	return analysis, nil
}
