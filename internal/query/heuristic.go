package query

import (
	"strings"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/text"
)

// Keyword tables for the deterministic classifier. Phrases are matched
// against the lowercased query; single words against its token set.
var (
	pricingWords = []string{"price", "prices", "pricing", "cost", "costs", "plan", "plans", "subscription", "billing", "invoice", "discount", "fee", "fees", "trial", "upgrade"}
	howtoPhrases = []string{"how do i", "how to", "how can i", "step by step", "walk me through"}
	howtoWords   = []string{"setup", "install", "configure", "enable", "disable", "integrate", "migrate", "tutorial", "guide"}
	compPhrases  = []string{" vs ", " versus ", "difference between", "compared to", "compare "}
	techWords    = []string{"api", "sdk", "endpoint", "webhook", "oauth", "token", "error", "exception", "timeout", "latency", "schema", "query", "index", "deploy", "kubernetes", "docker", "ssl", "tls", "cli", "json", "yaml", "debug", "stacktrace", "regression"}
	troubleWords = []string{"error", "fail", "fails", "failed", "failing", "broken", "crash", "crashes", "fix", "issue", "problem", "wrong", "stuck", "cannot", "troubleshoot"}
	policyWords  = []string{"policy", "refund", "privacy", "gdpr", "terms", "sla", "compliance", "retention", "cancellation"}
	factPhrases  = []string{"what is", "what are", "who is", "when did", "where is", "does it", "is there"}

	// Jargon density shifts the technical-level estimate upward; these are
	// expert-register terms beyond the plain techWords list.
	expertWords = []string{"idempotent", "sharding", "replication", "consensus", "mutex", "goroutine", "pagination", "backpressure", "observability", "pgvector", "embedding", "embeddings", "vector", "bm25", "tokenizer"}
)

// HeuristicClassify is the deterministic fallback classifier. Same query in,
// same Analysis out; no network, no model.
func HeuristicClassify(rawQuery string) Analysis {
	lower := strings.ToLower(rawQuery)
	tokens := text.Tokenize(rawQuery)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	a := Analysis{
		Intent:    classifyIntent(lower, tokenSet),
		TechLevel: estimateTechLevel(tokenSet),
		Entities:  detectEntities(rawQuery),
		Source:    SourceHeuristic,
	}
	a.PrimaryCategory, a.SecondaryCategories = classifyCategories(a.Intent, tokenSet)
	a.normalize()
	return a
}

func classifyIntent(lower string, tokens map[string]bool) Intent {
	switch {
	case containsAnyPhrase(lower, compPhrases):
		return IntentComparison
	case containsAnyWord(tokens, pricingWords):
		return IntentPricing
	case containsAnyPhrase(lower, howtoPhrases) || containsAnyWord(tokens, howtoWords):
		return IntentHowTo
	case containsAnyWord(tokens, techWords):
		return IntentTechnical
	case containsAnyPhrase(lower, factPhrases):
		return IntentFactual
	default:
		return IntentOther
	}
}

// classifyCategories derives the primary category from intent, then collects
// secondary categories from remaining keyword signals.
func classifyCategories(intent Intent, tokens map[string]bool) (string, []string) {
	primary := knowledge.CategoryGeneral
	switch intent {
	case IntentPricing:
		primary = knowledge.CategoryPricing
	case IntentHowTo:
		primary = knowledge.CategoryHowTo
	case IntentTechnical:
		if containsAnyWord(tokens, troubleWords) {
			primary = knowledge.CategoryTroubleshoot
		} else {
			primary = knowledge.CategoryTechnical
		}
	case IntentComparison, IntentFactual:
		primary = knowledge.CategoryProduct
	}

	var secondary []string
	addIf := func(cat string, hit bool) {
		if hit && cat != primary {
			secondary = append(secondary, cat)
		}
	}
	addIf(knowledge.CategoryPricing, containsAnyWord(tokens, pricingWords))
	addIf(knowledge.CategoryTroubleshoot, containsAnyWord(tokens, troubleWords))
	addIf(knowledge.CategoryTechnical, containsAnyWord(tokens, techWords))
	addIf(knowledge.CategoryPolicy, containsAnyWord(tokens, policyWords))

	return primary, secondary
}

// estimateTechLevel maps jargon density onto the 1-10 scale around the
// default midpoint.
func estimateTechLevel(tokens map[string]bool) int {
	level := knowledge.DefaultTechLevel
	tech := countWords(tokens, techWords)
	expert := countWords(tokens, expertWords)

	switch {
	case expert >= 2:
		level = 9
	case expert == 1:
		level = 8
	case tech >= 3:
		level = 7
	case tech > 0:
		level = 6
	case countWords(tokens, pricingWords) > 0 || countWords(tokens, policyWords) > 0:
		level = 3
	}
	return level
}

// detectEntities pulls capitalized multi-word runs out of the query as
// low-confidence entity guesses. The LLM path does this properly; this is
// just enough signal for lexical weighting.
func detectEntities(rawQuery string) []Entity {
	var entities []Entity
	words := strings.Fields(rawQuery)
	for i := 0; i < len(words); i++ {
		w := strings.Trim(words[i], ".,!?\"'()")
		if !isCapitalized(w) || i == 0 {
			continue
		}
		name := w
		for i+1 < len(words) {
			next := strings.Trim(words[i+1], ".,!?\"'()")
			if !isCapitalized(next) {
				break
			}
			name += " " + next
			i++
		}
		entities = append(entities, Entity{Name: name, Type: "other", Confidence: 0.4})
	}
	return entities
}

func isCapitalized(w string) bool {
	return len(w) > 1 && w[0] >= 'A' && w[0] <= 'Z'
}

func containsAnyPhrase(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func containsAnyWord(tokens map[string]bool, words []string) bool {
	return countWords(tokens, words) > 0
}

func countWords(tokens map[string]bool, words []string) int {
	n := 0
	for _, w := range words {
		if tokens[w] {
			n++
		}
	}
	return n
}
