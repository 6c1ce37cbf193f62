// Package fusion merges lexical and vector candidate sets into one ranked
// list. Scores are normalized per axis, combined by configurable weights,
// then refined with bounded category boosts and technical-level demotion
// derived from query analysis. Boosts refine base relevance; they are sized
// so they can reorder near-ties but never overturn a clear relevance gap.
package fusion

import (
	"math"
	"sort"

	"github.com/lorekeep/lorekeep/internal/bm25"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/query"
	"github.com/lorekeep/lorekeep/internal/vector"
)

// Default axis weights. Vector similarity leads because embeddings catch
// paraphrase; the lexical axis keeps exact identifiers competitive.
const (
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3
)

// Default boost and demotion factors.
const (
	DefaultPrimaryBoost   = 1.15
	DefaultSecondaryBoost = 1.05
	DefaultLevelDemotion  = 0.85
	DefaultLevelRange     = 2
)

// Weights sets the per-axis multipliers for the combined score. They need
// not sum to 1; larger totals just scale every candidate equally.
type Weights struct {
	Vector  float64
	Keyword float64
}

// DefaultWeights returns the 0.7 vector / 0.3 keyword split.
func DefaultWeights() Weights {
	return Weights{Vector: DefaultVectorWeight, Keyword: DefaultKeywordWeight}
}

// Config tunes boosting and demotion.
type Config struct {
	// PrimaryBoost multiplies candidates whose category matches the
	// query's primary category. Must be >= 1.
	PrimaryBoost float64

	// SecondaryBoost multiplies secondary-category matches. Must be >= 1
	// and <= PrimaryBoost.
	SecondaryBoost float64

	// LevelDemotion multiplies candidates outside the acceptable
	// technical-level window. Must be in (0, 1].
	LevelDemotion float64

	// LevelRange widens the acceptable window to
	// [queryLevel-LevelRange, queryLevel+LevelRange].
	LevelRange int

	// StrictLevel excludes out-of-window candidates instead of demoting.
	StrictLevel bool
}

// DefaultConfig returns the standard boost and demotion factors.
func DefaultConfig() Config {
	return Config{
		PrimaryBoost:   DefaultPrimaryBoost,
		SecondaryBoost: DefaultSecondaryBoost,
		LevelDemotion:  DefaultLevelDemotion,
		LevelRange:     DefaultLevelRange,
	}
}

// Candidate is a chunk with its scores across the pipeline. Fusion fills
// everything except the rerank fields, which the reranker sets later.
type Candidate struct {
	Chunk knowledge.Chunk

	// Raw scores as reported by each search method; 0 when the method
	// did not return the chunk.
	BM25Score   float64
	VectorScore float64

	// Min-max normalized scores in [0, 1].
	NormBM25   float64
	NormVector float64

	// Fused is the weighted, boosted combined score.
	Fused float64

	// Rerank fields, set by the reranker stage.
	RerankScore  float64
	RerankReason string

	// Per-axis ranks (0-based) for stable tie-breaking. -1 when the
	// method did not return the chunk.
	VectorRank  int
	KeywordRank int
}

// Engine fuses candidate sets under a fixed Config.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine, falling back to defaults for unset or
// out-of-range Config fields.
func NewEngine(cfg Config) *Engine {
	if cfg.PrimaryBoost < 1 {
		cfg.PrimaryBoost = DefaultPrimaryBoost
	}
	if cfg.SecondaryBoost < 1 || cfg.SecondaryBoost > cfg.PrimaryBoost {
		cfg.SecondaryBoost = min(DefaultSecondaryBoost, cfg.PrimaryBoost)
	}
	if cfg.LevelDemotion <= 0 || cfg.LevelDemotion > 1 {
		cfg.LevelDemotion = DefaultLevelDemotion
	}
	if cfg.LevelRange <= 0 {
		cfg.LevelRange = DefaultLevelRange
	}
	return &Engine{cfg: cfg}
}

// Fuse merges the two candidate sets into one list ordered by fused score
// descending. chunks supplies metadata for boosting; candidates missing from
// it are kept with zero-value metadata rather than dropped. Either hit slice
// may be empty (a degraded or single-method search); the union semantics
// make that just a one-axis ranking.
func (e *Engine) Fuse(analysis query.Analysis, keywordHits []bm25.Hit, vectorHits []vector.Hit, chunks map[string]knowledge.Chunk, w Weights) []Candidate {
	if w.Vector == 0 && w.Keyword == 0 {
		w = DefaultWeights()
	}

	byID := make(map[string]*Candidate, len(keywordHits)+len(vectorHits))
	order := make([]string, 0, len(keywordHits)+len(vectorHits))

	get := func(id string) *Candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &Candidate{Chunk: chunks[id], VectorRank: -1, KeywordRank: -1}
		if c.Chunk.ID == "" {
			c.Chunk.ID = id
		}
		byID[id] = c
		order = append(order, id)
		return c
	}

	// Vector hits first so insertion order encodes the primary tie-break.
	for rank, h := range vectorHits {
		c := get(h.ChunkID)
		c.VectorScore = h.Similarity
		c.VectorRank = rank
	}
	for rank, h := range keywordHits {
		c := get(h.ChunkID)
		c.BM25Score = h.Score
		c.KeywordRank = rank
	}
	if len(order) == 0 {
		return nil
	}

	normalizeVector(byID, vectorHits)
	normalizeKeyword(byID, keywordHits)

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.Fused = w.Vector*c.NormVector + w.Keyword*c.NormBM25
		c.Fused *= e.categoryBoost(analysis, c.Chunk)

		if !e.levelAcceptable(analysis, c.Chunk) {
			if e.cfg.StrictLevel {
				continue
			}
			c.Fused *= e.cfg.LevelDemotion
		}
		out = append(out, *c)
	}

	// Stable sort on fused score; ties resolve by vector rank, then
	// keyword rank, preserved from insertion order above.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Fused > out[j].Fused })
	return out
}

// categoryBoost returns the multiplier for a category match. At most one
// boost applies; primary wins over secondary.
func (e *Engine) categoryBoost(analysis query.Analysis, c knowledge.Chunk) float64 {
	if c.Category == "" {
		return 1
	}
	if c.Category == analysis.PrimaryCategory {
		return e.cfg.PrimaryBoost
	}
	for _, cat := range analysis.SecondaryCategories {
		if c.Category == cat {
			return e.cfg.SecondaryBoost
		}
	}
	return 1
}

// levelAcceptable reports whether the chunk's technical level falls inside
// the query's window. Chunks without a level (0) always pass.
func (e *Engine) levelAcceptable(analysis query.Analysis, c knowledge.Chunk) bool {
	if c.TechLevel == 0 || analysis.TechLevel == 0 {
		return true
	}
	diff := c.TechLevel - analysis.TechLevel
	if diff < 0 {
		diff = -diff
	}
	return diff <= e.cfg.LevelRange
}

// normalizeVector min-max normalizes the vector axis. A single-candidate or
// constant axis normalizes to 1.0 so a method that returned exactly one
// strong match still contributes weight instead of zeroing out.
func normalizeVector(byID map[string]*Candidate, hits []vector.Hit) {
	if len(hits) == 0 {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		lo = math.Min(lo, h.Similarity)
		hi = math.Max(hi, h.Similarity)
	}
	for _, h := range hits {
		byID[h.ChunkID].NormVector = minMax(h.Similarity, lo, hi)
	}
}

func normalizeKeyword(byID map[string]*Candidate, hits []bm25.Hit) {
	if len(hits) == 0 {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		lo = math.Min(lo, h.Score)
		hi = math.Max(hi, h.Score)
	}
	for _, h := range hits {
		byID[h.ChunkID].NormBM25 = minMax(h.Score, lo, hi)
	}
}

func minMax(v, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}
