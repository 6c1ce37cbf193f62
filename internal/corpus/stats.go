// Package corpus maintains global corpus statistics for lexical scoring.
//
// Statistics are always rebuilt from the full chunk set, never patched
// incrementally: BM25's IDF term is sensitive to corpus-wide drift, and
// concurrent document approvals would skew incremental counts. Queries read
// through a Snapshot that is swapped atomically on rebuild, so a query in
// flight always sees one consistent statistics version.
package corpus

import (
	"sync/atomic"
	"time"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/text"
)

// Stats is an immutable aggregate over all indexed chunks. Do not mutate a
// Stats after publishing it through a Snapshot.
type Stats struct {
	// ChunkCount is the number of chunks the statistics were built from.
	ChunkCount int

	// DocFreq maps a term to the number of distinct chunks containing it.
	DocFreq map[string]int

	// TermFreq maps a term to its total occurrence count across the corpus.
	TermFreq map[string]int

	// AvgChunkLen is the mean chunk length in tokens.
	AvgChunkLen float64

	// BuiltAt records when the rebuild ran.
	BuiltAt time.Time

	// Version increases monotonically across rebuilds within a process.
	Version int64
}

// version feeds Stats.Version across Build calls.
var version atomic.Int64

// SetVersionFloor raises the rebuild version counter to at least v. Called
// at startup with the last persisted version so rebuilds after a restart
// keep increasing instead of colliding with stored snapshots.
func SetVersionFloor(v int64) {
	for {
		cur := version.Load()
		if cur >= v || version.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Build computes fresh statistics over the given chunks. Chunks are
// tokenized with the same tokenizer the BM25 scorer uses. An empty chunk set
// yields usable zero-valued statistics, not nil.
func Build(chunks []knowledge.Chunk) *Stats {
	s := &Stats{
		DocFreq:  make(map[string]int),
		TermFreq: make(map[string]int),
		BuiltAt:  time.Now(),
		Version:  version.Add(1),
	}

	var totalLen int
	for _, c := range chunks {
		terms := text.Tokenize(c.Text)
		totalLen += len(terms)

		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			s.TermFreq[t]++
			if !seen[t] {
				seen[t] = true
				s.DocFreq[t]++
			}
		}
	}

	s.ChunkCount = len(chunks)
	if s.ChunkCount > 0 {
		s.AvgChunkLen = float64(totalLen) / float64(s.ChunkCount)
	}
	return s
}

// Snapshot holds the current Stats behind an atomic pointer.
// Readers never block; a rebuild publishes by a single pointer swap.
// The zero Snapshot is ready to use and serves empty statistics.
type Snapshot struct {
	ptr atomic.Pointer[Stats]
}

// Load returns the current statistics. Never nil: before the first rebuild
// it returns empty statistics, under which every term scores zero.
func (s *Snapshot) Load() *Stats {
	if st := s.ptr.Load(); st != nil {
		return st
	}
	return &Stats{DocFreq: map[string]int{}, TermFreq: map[string]int{}}
}

// Publish swaps in newly built statistics. Safe to call concurrently with
// Load; in-flight readers keep the version they already loaded.
func (s *Snapshot) Publish(st *Stats) {
	if st == nil {
		return
	}
	s.ptr.Store(st)
}
