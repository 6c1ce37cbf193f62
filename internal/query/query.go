// Package query analyzes raw user queries into structured intent, category,
// entity, and technical-level signals that steer retrieval. Classification
// prefers an LLM and falls back to deterministic keyword heuristics, so a
// provider outage degrades quality but never blocks a search.
package query

import (
	"slices"

	"github.com/lorekeep/lorekeep/internal/knowledge"
)

// Intent is the coarse purpose of a query.
type Intent string

const (
	IntentFactual    Intent = "factual"
	IntentTechnical  Intent = "technical"
	IntentComparison Intent = "comparison"
	IntentHowTo      Intent = "how-to"
	IntentPricing    Intent = "pricing"
	IntentOther      Intent = "other"
)

// Intents lists every valid intent.
var Intents = []Intent{
	IntentFactual, IntentTechnical, IntentComparison,
	IntentHowTo, IntentPricing, IntentOther,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	return slices.Contains(Intents, i)
}

// Classification source values recorded on an Analysis.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Entity is a named thing detected in the query.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the structured reading of one query. It is ephemeral: computed
// per request and never persisted. Every Analysis carries a usable intent and
// primary category, whichever classification path produced it.
type Analysis struct {
	Intent              Intent   `json:"intent"`
	PrimaryCategory     string   `json:"primary_category"`
	SecondaryCategories []string `json:"secondary_categories"`
	Entities            []Entity `json:"entities"`
	TechLevel           int      `json:"technical_level"`
	ExpansionTerms      []string `json:"expansion_terms,omitempty"`

	// Source records which classifier produced the analysis.
	Source string `json:"source"`
}

// normalize clamps fields into their valid domains. Unknown categories map to
// general rather than failing; an LLM that invents taxonomy entries should
// not sink the query.
func (a *Analysis) normalize() {
	if !a.Intent.Valid() {
		a.Intent = IntentOther
	}
	if !knowledge.ValidCategory(a.PrimaryCategory) {
		a.PrimaryCategory = knowledge.CategoryGeneral
	}

	secondary := a.SecondaryCategories[:0]
	for _, c := range a.SecondaryCategories {
		if knowledge.ValidCategory(c) && c != a.PrimaryCategory && !slices.Contains(secondary, c) {
			secondary = append(secondary, c)
		}
	}
	a.SecondaryCategories = secondary

	if a.TechLevel < 1 {
		a.TechLevel = knowledge.DefaultTechLevel
	}
	if a.TechLevel > knowledge.MaxTechLevel {
		a.TechLevel = knowledge.MaxTechLevel
	}

	entities := a.Entities[:0]
	for _, e := range a.Entities {
		if e.Name == "" {
			continue
		}
		if e.Confidence < 0 {
			e.Confidence = 0
		}
		if e.Confidence > 1 {
			e.Confidence = 1
		}
		entities = append(entities, e)
	}
	a.Entities = entities
}
