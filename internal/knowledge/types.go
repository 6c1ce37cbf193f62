package knowledge

import (
	"slices"
	"time"
)

// Category values form a closed taxonomy assigned at ingestion time.
// Retrieval only reads them; the list lives here so query analysis and
// fusion boosting agree on spelling.
const (
	CategoryProduct      = "product"
	CategoryPricing      = "pricing"
	CategoryTechnical    = "technical"
	CategoryHowTo        = "how-to"
	CategoryTroubleshoot = "troubleshooting"
	CategoryPolicy       = "policy"
	CategoryGeneral      = "general"
)

// Categories lists every known category in stable order.
var Categories = []string{
	CategoryProduct,
	CategoryPricing,
	CategoryTechnical,
	CategoryHowTo,
	CategoryTroubleshoot,
	CategoryPolicy,
	CategoryGeneral,
}

// ValidCategory reports whether c is part of the taxonomy.
func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// Technical-level bounds. Documents and queries are rated 1 (introductory)
// through 10 (expert); 5 is the assumption when nothing signals otherwise.
const (
	MinTechLevel     = 1
	MaxTechLevel     = 10
	DefaultTechLevel = 5
)

// Document is a logical source unit, owned by the ingestion pipeline.
// Retrieval reads it and never mutates anything except the approval flag
// (which is what triggers a corpus statistics rebuild).
type Document struct {
	ID        string
	Title     string
	Source    string
	Category  string
	TechLevel int // 1 (intro) to 10 (expert)
	Approved  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]string
}

// Chunk is a ~500-token segment of a document sized for embedding.
//
// Text is the raw segment; Prepared is the context-enriched form (title and
// source prefixed) that was actually embedded. Embedding may be empty for
// chunks whose embedding failed or whose dimensionality no longer matches the
// configured model; such chunks stay eligible for lexical search but are
// excluded from vector search.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Prepared   string
	Embedding  []float32

	// Structured-content flags and optional visual descriptor
	// ("chart", "diagram", "table", "screenshot" or empty).
	HasTable bool
	HasCode  bool
	Visual   string

	// Denormalized document fields used for filter pushdown and boosting.
	Title     string
	Source    string
	Category  string
	TechLevel int
	Approved  bool

	CreatedAt time.Time
}

// Filters restricts a candidate set before ranking. Zero values mean
// unrestricted. Technical-level bounds are inclusive; 0 disables a bound.
type Filters struct {
	Category     string
	MinTechLevel int
	MaxTechLevel int
	ApprovedOnly bool
}

// Match reports whether the chunk passes the filters. Used by in-memory
// search paths; the SQL store applies the same predicate in WHERE clauses.
func (f Filters) Match(c Chunk) bool {
	if f.ApprovedOnly && !c.Approved {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.MinTechLevel > 0 && c.TechLevel < f.MinTechLevel {
		return false
	}
	if f.MaxTechLevel > 0 && c.TechLevel > f.MaxTechLevel {
		return false
	}
	return true
}

// IsZero reports whether no restriction is set.
func (f Filters) IsZero() bool {
	return f == Filters{}
}
