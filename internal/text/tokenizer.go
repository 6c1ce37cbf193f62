// Package text provides query and chunk tokenization for lexical scoring.
//
// Tokenization is intentionally simple and deterministic: lowercase,
// alphanumeric runs only, stopwords removed, terms shorter than two runes
// dropped. Both the corpus statistics builder and the BM25 scorer must use
// the same tokenizer or document frequencies drift from scoring reality.
package text

import (
	"strings"
	"unicode"
)

// MinTermLength is the shortest term kept after normalization.
const MinTermLength = 2

// Tokenize splits text into an ordered sequence of normalized terms.
// The order is preserved so per-chunk term frequency positions stay stable.
// Empty input yields a nil slice.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < MinTermLength {
			continue
		}
		if stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}

	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermFrequencies returns the term → occurrence count map for text.
func TermFrequencies(text string) map[string]int {
	terms := Tokenize(text)
	if len(terms) == 0 {
		return nil
	}

	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return tf
}

// stopwords is the English stopword list applied during tokenization.
// Kept small on purpose: over-aggressive filtering hurts entity-heavy
// queries where "IT", "AI" style tokens carry signal after lowercasing.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "this": true, "these": true, "those": true,
	"they": true, "them": true, "their": true, "there": true, "then": true,
	"but": true, "not": true, "can": true, "do": true, "does": true, "did": true,
	"have": true, "had": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "how": true, "why": true, "you": true,
	"your": true, "we": true, "our": true, "me": true, "my": true, "so": true,
	"if": true, "into": true, "about": true, "than": true, "too": true,
	"very": true, "just": true, "also": true, "any": true, "all": true,
	"each": true, "other": true, "some": true, "such": true, "no": true,
	"nor": true, "only": true, "own": true, "same": true, "more": true,
	"most": true, "over": true, "under": true, "again": true, "once": true,
	"here": true, "both": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "up": true, "down": true, "out": true,
	"off": true, "being": true, "been": true, "am": true, "would": true,
	"should": true, "could": true, "ought": true, "im": true, "ive": true,
	"dont": true, "doesnt": true, "isnt": true, "arent": true, "wasnt": true,
}

// IsStopword reports whether term is filtered by Tokenize. The term must
// already be lowercase.
func IsStopword(term string) bool {
	return stopwords[term]
}
