// Package bm25 implements Okapi BM25 lexical scoring over corpus statistics.
package bm25

import (
	"math"

	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/text"
)

// Default Okapi BM25 parameters. k1 controls term-frequency saturation,
// b controls document-length normalization.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Params carries the tunable BM25 constants.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns the standard k1=1.2, b=0.75 parameterization.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// IDF returns the smoothed inverse document frequency of term:
// ln((N - df + 0.5)/(df + 0.5) + 1). The +1 keeps the value non-negative
// for terms appearing in most of the corpus. Terms absent from the corpus
// (df = 0) still get a finite IDF; Score skips them anyway because their
// term frequency in any chunk is what matters.
func IDF(stats *corpus.Stats, term string) float64 {
	df := stats.DocFreq[term]
	if stats.ChunkCount == 0 || df == 0 {
		return 0
	}
	n := float64(stats.ChunkCount)
	return math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// Score computes the BM25 score of a chunk (given as its term-frequency map
// and token length) against the query terms. Empty query or empty chunk
// scores 0. The result is always >= 0.
func Score(queryTerms []string, chunkTF map[string]int, chunkLen int, stats *corpus.Stats, p Params) float64 {
	if len(queryTerms) == 0 || chunkLen == 0 || stats == nil || stats.ChunkCount == 0 {
		return 0
	}

	avg := stats.AvgChunkLen
	if avg == 0 {
		avg = float64(chunkLen)
	}

	var score float64
	for _, term := range queryTerms {
		tf := chunkTF[term]
		if tf == 0 {
			continue
		}
		idf := IDF(stats, term)
		if idf == 0 {
			// Term never seen at statistics-build time; contributes
			// nothing rather than dividing by a stale df.
			continue
		}
		tfF := float64(tf)
		norm := 1 - p.B + p.B*(float64(chunkLen)/avg)
		score += idf * (tfF * (p.K1 + 1)) / (tfF + p.K1*norm)
	}
	return score
}

// ScoreText is a convenience wrapper that tokenizes the chunk text before
// scoring. Prefer a Searcher for repeated queries over the same chunk set.
func ScoreText(queryTerms []string, chunkText string, stats *corpus.Stats, p Params) float64 {
	terms := text.Tokenize(chunkText)
	if len(terms) == 0 {
		return 0
	}
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return Score(queryTerms, tf, len(terms), stats, p)
}
