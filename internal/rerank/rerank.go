// Package rerank re-orders fused candidates with an LLM relevance judge.
// The judge call is the one stage in the pipeline with its own hard timeout;
// on timeout, provider error, or malformed output the reranker falls back to
// the deterministic fusion order so a slow model degrades ranking quality,
// never availability.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lorekeep/lorekeep/internal/fusion"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/provider"
	"github.com/lorekeep/lorekeep/internal/text"
)

// DefaultTimeout bounds the judge call.
const DefaultTimeout = 5 * time.Second

// maxCandidateChars truncates each candidate's text in the judge prompt so a
// large batch stays inside the model's context window.
const maxCandidateChars = 600

// visualBoost multiplies fallback scores of visual candidates when the query
// asks for visual content.
const visualBoost = 1.2

// visualWords mark a query as visually oriented.
var visualWords = []string{"chart", "charts", "diagram", "diagrams", "graph", "graphs", "image", "images", "screenshot", "screenshots", "picture", "pictures", "table", "tables", "visual"}

// judgeSystem primes the model for relevance judging.
const judgeSystem = `You judge how well knowledge-base passages answer a query.
Reply with JSON only, no prose, no markdown fences.`

// judgePrompt requests per-candidate relevance scores.
// Placeholders: (1) the query, (2) the numbered candidate list.
const judgePrompt = `Score each passage below for how well it answers the query.
Reply as a JSON array of {"index": <passage number>, "score": <0-10>, "reason": "<one short sentence>"}.
Score every passage exactly once.

Query: %q

Passages:
%s`

// judgment is one entry of the judge's reply.
type judgment struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Options tunes one rerank call.
type Options struct {
	// Limit truncates the output; 0 keeps every candidate.
	Limit int

	// Timeout bounds the judge call; 0 means DefaultTimeout.
	Timeout time.Duration

	// UseVisualContext enables the visual-content heuristic in the
	// fallback ordering.
	UseVisualContext bool
}

// Reranker orders candidates by judged relevance.
type Reranker struct {
	judge  provider.Judge
	logger log.Logger
}

// New creates a Reranker. judge may be nil, which pins every call to the
// deterministic fallback.
func New(judge provider.Judge, logger log.Logger) *Reranker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Reranker{judge: judge, logger: logger}
}

// Rerank returns candidates ordered by judged relevance, truncated to
// opts.Limit. The boolean reports whether the LLM ordering was used; false
// means the deterministic fallback ran. Rerank never returns an error:
// every failure mode degrades to the fallback.
func (r *Reranker) Rerank(ctx context.Context, rawQuery string, candidates []fusion.Candidate, opts Options) ([]fusion.Candidate, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if r.judge != nil {
		judgeCtx, cancel := context.WithTimeout(ctx, timeout)
		ranked, err := r.judgeOrder(judgeCtx, rawQuery, candidates)
		cancel()
		if err == nil {
			return truncate(ranked, opts.Limit), true
		}
		r.logger.Warn("rerank judge failed, using fallback order", "error", err, "candidates", len(candidates))
	}

	return truncate(r.fallbackOrder(rawQuery, candidates, opts), opts.Limit), false
}

// judgeOrder runs the batched judge prompt and sorts by its scores.
// Candidates the reply skipped score 0 rather than failing the batch.
func (r *Reranker) judgeOrder(ctx context.Context, rawQuery string, candidates []fusion.Candidate) ([]fusion.Candidate, error) {
	var sb strings.Builder
	for i, c := range candidates {
		body := c.Chunk.Text
		if len(body) > maxCandidateChars {
			body = body[:maxCandidateChars] + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i, c.Chunk.Title, body)
	}

	var judgments []judgment
	prompt := fmt.Sprintf(judgePrompt, rawQuery, sb.String())
	if err := r.judge.GenerateJSON(ctx, judgeSystem, prompt, &judgments); err != nil {
		return nil, err
	}

	out := make([]fusion.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = 0
		out[i].RerankReason = ""
	}
	for _, j := range judgments {
		if j.Index < 0 || j.Index >= len(out) {
			continue
		}
		score := j.Score
		if score < 0 {
			score = 0
		}
		if score > 10 {
			score = 10
		}
		out[j.Index].RerankScore = score
		out[j.Index].RerankReason = j.Reason
	}

	// Stable: equal judge scores keep the fusion order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	return out, nil
}

// fallbackOrder keeps the fusion order, lifting visual candidates when the
// query asks for visual content. Same inputs always give the same order.
func (r *Reranker) fallbackOrder(rawQuery string, candidates []fusion.Candidate, opts Options) []fusion.Candidate {
	out := make([]fusion.Candidate, len(candidates))
	copy(out, candidates)

	if !opts.UseVisualContext || !VisualQuery(rawQuery) {
		return out
	}

	boosted := func(c fusion.Candidate) float64 {
		if c.Chunk.Visual != "" || c.Chunk.HasTable {
			return c.Fused * visualBoost
		}
		return c.Fused
	}
	sort.SliceStable(out, func(i, j int) bool { return boosted(out[i]) > boosted(out[j]) })
	return out
}

// VisualQuery reports whether the query asks for visual content.
func VisualQuery(rawQuery string) bool {
	for _, tok := range text.Tokenize(rawQuery) {
		for _, w := range visualWords {
			if tok == w {
				return true
			}
		}
	}
	return false
}

func truncate(candidates []fusion.Candidate, limit int) []fusion.Candidate {
	if limit > 0 && len(candidates) > limit {
		return candidates[:limit]
	}
	return candidates
}
