// Package retrieval orchestrates the search pipeline: analyze the query,
// fan out lexical and vector search in parallel, fuse the candidate sets,
// rerank, and shape the response. Partial failures degrade the result and
// are flagged; only total failure or an empty candidate set surfaces as an
// error.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lorekeep/lorekeep/internal/bm25"
	"github.com/lorekeep/lorekeep/internal/fusion"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/query"
	"github.com/lorekeep/lorekeep/internal/rerank"
	"github.com/lorekeep/lorekeep/internal/text"
	"github.com/lorekeep/lorekeep/internal/vector"
)

// Mode selects which search methods run.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeHybrid || m == ModeVector || m == ModeKeyword
}

// Degradation flags recorded on a Response.
const (
	DegradedVector  = "vector-search"
	DegradedKeyword = "keyword-search"
	DegradedRerank  = "rerank"
)

var (
	// ErrNoResults is the typed empty outcome: the pipeline ran but no
	// candidate survived retrieval and filtering.
	ErrNoResults = errors.New("no results found")

	// ErrEmptyQuery rejects blank queries before any work happens.
	ErrEmptyQuery = errors.New("empty query")

	// ErrSearchFailed means every attempted search method failed, so
	// there is nothing to degrade to.
	ErrSearchFailed = errors.New("all search methods failed")
)

// DefaultLimit is the result count when a request does not set one.
const DefaultLimit = 10

// candidateMultiplier oversamples each search method relative to the
// requested limit so fusion and reranking have enough to work with.
const (
	candidateMultiplier = 3
	maxCandidates       = 50
)

// KeywordSearcher is the lexical search method.
type KeywordSearcher interface {
	Search(ctx context.Context, queryTerms []string, limit int, f knowledge.Filters) ([]bm25.Hit, error)
}

// VectorSearcher is the semantic search method.
type VectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, limit int, f knowledge.Filters) ([]vector.Hit, error)
}

// Embedder produces the query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSource resolves candidate IDs to full chunks for response shaping
// and metadata-aware boosting.
type ChunkSource interface {
	GetChunks(ctx context.Context, ids []string) (map[string]knowledge.Chunk, error)
}

// Request is one search invocation.
type Request struct {
	Query   string
	Mode    Mode // empty means hybrid
	Limit   int  // 0 means DefaultLimit
	Filters knowledge.Filters

	// Weights overrides the fusion weights for this query only.
	Weights *fusion.Weights

	// Expand adds related terms to the lexical query.
	Expand bool
}

// Result is one ranked chunk.
type Result struct {
	Chunk       knowledge.Chunk `json:"chunk"`
	Score       float64         `json:"score"`
	BM25Score   float64         `json:"bm25_score"`
	VectorScore float64         `json:"vector_score"`
	FusedScore  float64         `json:"fused_score"`
	Explanation string          `json:"explanation,omitempty"`
}

// Timings records per-stage latency in milliseconds.
type Timings struct {
	RetrievalMs int64 `json:"retrieval_ms"`
	RerankingMs int64 `json:"reranking_ms"`
	TotalMs     int64 `json:"total_ms"`
}

// Response is the pipeline output. Degraded lists the stages that fell back
// or failed while the pipeline still produced results.
type Response struct {
	Results  []Result       `json:"results"`
	Analysis query.Analysis `json:"analysis"`
	Timings  Timings        `json:"timings"`
	Degraded []string       `json:"degraded,omitempty"`
	Reranked bool           `json:"reranked"`
}

// Config tunes the pipeline.
type Config struct {
	Weights       fusion.Weights
	RerankTimeout time.Duration
	RerankEnabled bool

	// MaxExpansionTerms caps expanded lexical queries; 0 uses the
	// analyzer default.
	MaxExpansionTerms int
}

// Pipeline wires the stages together. All dependencies are injected; any of
// embedder or the searchers may be nil to disable that path permanently
// (the corresponding mode then degrades or errors).
type Pipeline struct {
	analyzer *query.Analyzer
	embedder Embedder
	keyword  KeywordSearcher
	vectors  VectorSearcher
	chunks   ChunkSource
	fuser    *fusion.Engine
	reranker *rerank.Reranker
	cfg      Config
	logger   log.Logger
}

// New creates a Pipeline.
func New(
	analyzer *query.Analyzer,
	embedder Embedder,
	keyword KeywordSearcher,
	vectors VectorSearcher,
	chunks ChunkSource,
	fuser *fusion.Engine,
	reranker *rerank.Reranker,
	cfg Config,
	logger log.Logger,
) *Pipeline {
	if cfg.Weights.Vector == 0 && cfg.Weights.Keyword == 0 {
		cfg.Weights = fusion.DefaultWeights()
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = rerank.DefaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		analyzer: analyzer,
		embedder: embedder,
		keyword:  keyword,
		vectors:  vectors,
		chunks:   chunks,
		fuser:    fuser,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs the full pipeline for one request.
func (p *Pipeline) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("unknown search mode %q", req.Mode)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	analysis := p.analyzer.Analyze(ctx, req.Query)

	terms := p.queryTerms(ctx, req)
	keywordHits, vectorHits, degraded, err := p.retrieve(ctx, req, terms)
	if err != nil {
		return nil, err
	}
	retrievalMs := time.Since(start).Milliseconds()

	chunkMap, err := p.resolveChunks(ctx, keywordHits, vectorHits)
	if err != nil {
		return nil, fmt.Errorf("resolving candidate chunks: %w", err)
	}

	weights := p.cfg.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}
	fused := p.fuser.Fuse(analysis, keywordHits, vectorHits, chunkMap, weights)
	if len(fused) == 0 {
		return nil, ErrNoResults
	}

	rerankStart := time.Now()
	ranked, usedLLM := fused, false
	if p.cfg.RerankEnabled && p.reranker != nil {
		ranked, usedLLM = p.reranker.Rerank(ctx, req.Query, fused, rerank.Options{
			Limit:            req.Limit,
			Timeout:          p.cfg.RerankTimeout,
			UseVisualContext: true,
		})
		if !usedLLM {
			degraded = append(degraded, DegradedRerank)
		}
	} else if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}
	rerankMs := time.Since(rerankStart).Milliseconds()

	resp := &Response{
		Results:  buildResults(ranked, usedLLM),
		Analysis: analysis,
		Degraded: degraded,
		Reranked: usedLLM,
		Timings: Timings{
			RetrievalMs: retrievalMs,
			RerankingMs: rerankMs,
			TotalMs:     time.Since(start).Milliseconds(),
		},
	}

	p.logger.Info("search completed",
		"query_intent", analysis.Intent,
		"mode", req.Mode,
		"results", len(resp.Results),
		"degraded", resp.Degraded,
		"total_ms", resp.Timings.TotalMs,
	)
	return resp, nil
}

// queryTerms tokenizes the query, optionally expanded with related terms.
func (p *Pipeline) queryTerms(ctx context.Context, req Request) []string {
	if req.Expand {
		return p.analyzer.Expand(ctx, req.Query, query.ExpandOptions{
			MaxTerms: p.cfg.MaxExpansionTerms,
			Semantic: true,
		})
	}
	return text.Tokenize(req.Query)
}

// retrieve fans out the enabled search methods concurrently and joins them.
// A method failure empties that candidate set and records a degradation
// flag; retrieve only errors when every attempted method failed.
func (p *Pipeline) retrieve(ctx context.Context, req Request, terms []string) ([]bm25.Hit, []vector.Hit, []string, error) {
	limit := req.Limit * candidateMultiplier
	if limit > maxCandidates {
		limit = maxCandidates
	}

	runKeyword := req.Mode != ModeVector && p.keyword != nil
	runVector := req.Mode != ModeKeyword && p.vectors != nil && p.embedder != nil

	var (
		keywordHits []bm25.Hit
		vectorHits  []vector.Hit
		keywordErr  error
		vectorErr   error
	)

	// Goroutines report failure through the captured error variables, not
	// group errors: one method failing must not cancel its sibling.
	g, gctx := errgroup.WithContext(ctx)
	if runKeyword {
		g.Go(func() error {
			keywordHits, keywordErr = p.keyword.Search(gctx, terms, limit, req.Filters)
			return nil
		})
	}
	if runVector {
		g.Go(func() error {
			embedding, err := p.embedder.Embed(gctx, req.Query)
			if err != nil {
				vectorErr = fmt.Errorf("embedding query: %w", err)
				return nil
			}
			vectorHits, vectorErr = p.vectors.Search(gctx, embedding, limit, req.Filters)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	var degraded []string
	if keywordErr != nil {
		p.logger.Warn("keyword search failed, degrading", "error", keywordErr)
		degraded = append(degraded, DegradedKeyword)
		keywordHits = nil
	}
	if vectorErr != nil {
		p.logger.Warn("vector search failed, degrading", "error", vectorErr)
		degraded = append(degraded, DegradedVector)
		vectorHits = nil
	}

	attempted := 0
	failed := 0
	if runKeyword {
		attempted++
		if keywordErr != nil {
			failed++
		}
	}
	if runVector {
		attempted++
		if vectorErr != nil {
			failed++
		}
	}
	if attempted == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no search method available for mode %q", ErrSearchFailed, req.Mode)
	}
	if failed == attempted {
		return nil, nil, nil, fmt.Errorf("%w: keyword=%v vector=%v", ErrSearchFailed, keywordErr, vectorErr)
	}
	return keywordHits, vectorHits, degraded, nil
}

// resolveChunks fetches metadata for every candidate ID once.
func (p *Pipeline) resolveChunks(ctx context.Context, keywordHits []bm25.Hit, vectorHits []vector.Hit) (map[string]knowledge.Chunk, error) {
	ids := make([]string, 0, len(keywordHits)+len(vectorHits))
	for _, h := range vectorHits {
		ids = append(ids, h.ChunkID)
	}
	for _, h := range keywordHits {
		if !slices.Contains(ids, h.ChunkID) {
			ids = append(ids, h.ChunkID)
		}
	}
	if len(ids) == 0 {
		return map[string]knowledge.Chunk{}, nil
	}
	return p.chunks.GetChunks(ctx, ids)
}

func buildResults(ranked []fusion.Candidate, usedLLM bool) []Result {
	out := make([]Result, len(ranked))
	for i, c := range ranked {
		score := c.Fused
		if usedLLM {
			score = c.RerankScore
		}
		out[i] = Result{
			Chunk:       c.Chunk,
			Score:       score,
			BM25Score:   c.BM25Score,
			VectorScore: c.VectorScore,
			FusedScore:  c.Fused,
			Explanation: c.RerankReason,
		}
	}
	return out
}
