package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/lorekeep/lorekeep/internal/text"
)

// DefaultMaxExpansionTerms caps how many terms expansion may add to a query.
const DefaultMaxExpansionTerms = 8

// expandSystem primes the model for term expansion.
const expandSystem = `You expand search queries for a knowledge-base search system.
Reply with JSON only, no prose, no markdown fences.`

// expandPrompt requests related search terms.
// Placeholders: (1) max terms, (2) the query.
const expandPrompt = `Suggest up to %d single-word search terms closely related to the query below.
Terms must be lowercase single words that a knowledge-base article on this topic would contain.
Reply as {"terms": ["...", ...]}.

Query: %q`

// synonymGroups are closed equivalence classes for keyword expansion.
// Expansion adds the remaining members of any group a query term belongs to,
// so expanding an already-expanded query is a no-op.
var synonymGroups = [][]string{
	{"price", "prices", "pricing", "cost", "costs"},
	{"plan", "plans", "tier", "subscription"},
	{"install", "setup", "installation"},
	{"configure", "configuration", "config"},
	{"error", "errors", "failure", "fault"},
	{"cancel", "cancellation"},
	{"docs", "documentation"},
	{"login", "signin", "authentication"},
	{"delete", "remove", "removal"},
	{"upgrade", "upgrading"},
}

var synonymIndex = buildSynonymIndex()

func buildSynonymIndex() map[string][]string {
	idx := make(map[string][]string)
	for _, group := range synonymGroups {
		for _, term := range group {
			for _, other := range group {
				if other != term {
					idx[term] = append(idx[term], other)
				}
			}
		}
	}
	return idx
}

// ExpandOptions tunes query expansion.
type ExpandOptions struct {
	// MaxTerms caps added terms; 0 means DefaultMaxExpansionTerms.
	MaxTerms int

	// Semantic enables LLM-suggested terms on top of the synonym table.
	Semantic bool
}

// Expand returns the query's tokens plus related terms, original tokens
// first. Keyword expansion walks closed synonym groups, so re-expanding the
// result is a no-op; the added-term count never exceeds the cap even with
// semantic expansion on.
func (a *Analyzer) Expand(ctx context.Context, rawQuery string, opts ExpandOptions) []string {
	base := text.Tokenize(rawQuery)
	if len(base) == 0 {
		return nil
	}

	maxTerms := opts.MaxTerms
	if maxTerms <= 0 {
		maxTerms = DefaultMaxExpansionTerms
	}

	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+maxTerms)
	for _, t := range base {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	added := 0
	for _, t := range base {
		for _, syn := range synonymIndex[t] {
			if added >= maxTerms {
				return out
			}
			if !seen[syn] {
				seen[syn] = true
				out = append(out, syn)
				added++
			}
		}
	}

	if opts.Semantic && a.judge != nil && added < maxTerms {
		for _, t := range a.llmExpand(ctx, rawQuery, maxTerms-added) {
			if added >= maxTerms {
				break
			}
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
				added++
			}
		}
	}
	return out
}

// llmExpand asks the model for related terms. Failures degrade to no
// expansion; the synonym-table terms already collected still apply.
func (a *Analyzer) llmExpand(ctx context.Context, rawQuery string, maxTerms int) []string {
	var reply struct {
		Terms []string `json:"terms"`
	}
	prompt := fmt.Sprintf(expandPrompt, maxTerms, rawQuery)
	if err := a.judge.GenerateJSON(ctx, expandSystem, prompt, &reply); err != nil {
		a.logger.Warn("llm expansion failed, keeping keyword expansion only", "error", err)
		return nil
	}

	terms := make([]string, 0, len(reply.Terms))
	for _, t := range reply.Terms {
		t = strings.ToLower(strings.TrimSpace(t))
		// Only single normalized tokens; the model sometimes replies with
		// phrases despite instructions.
		tokens := text.Tokenize(t)
		if len(tokens) != 1 {
			continue
		}
		if !slices.Contains(terms, tokens[0]) {
			terms = append(terms, tokens[0])
		}
	}
	return terms
}
