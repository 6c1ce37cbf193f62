package corpus

import (
	"sync"
	"testing"

	"github.com/lorekeep/lorekeep/internal/knowledge"
)

func chunk(id, content string) knowledge.Chunk {
	return knowledge.Chunk{ID: id, Text: content}
}

func TestBuild(t *testing.T) {
	chunks := []knowledge.Chunk{
		chunk("c1", "vector search engine"),
		chunk("c2", "keyword search ranking"),
		chunk("c3", "search search search"),
	}

	s := Build(chunks)

	if s.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", s.ChunkCount)
	}

	// "search" occurs in all three chunks, five times in total.
	if s.DocFreq["search"] != 3 {
		t.Errorf("DocFreq[search] = %d, want 3", s.DocFreq["search"])
	}
	if s.TermFreq["search"] != 5 {
		t.Errorf("TermFreq[search] = %d, want 5", s.TermFreq["search"])
	}

	// "vector" occurs once in one chunk.
	if s.DocFreq["vector"] != 1 {
		t.Errorf("DocFreq[vector] = %d, want 1", s.DocFreq["vector"])
	}

	// Lengths: 3 + 3 + 3 = 9 tokens over 3 chunks.
	if s.AvgChunkLen != 3.0 {
		t.Errorf("AvgChunkLen = %f, want 3.0", s.AvgChunkLen)
	}
}

func TestBuild_Empty(t *testing.T) {
	s := Build(nil)

	if s == nil {
		t.Fatal("Build(nil) returned nil")
	}
	if s.ChunkCount != 0 || s.AvgChunkLen != 0 {
		t.Errorf("empty build: count=%d avg=%f, want zeros", s.ChunkCount, s.AvgChunkLen)
	}
	if s.DocFreq == nil || s.TermFreq == nil {
		t.Error("maps must be non-nil even for empty corpus")
	}
}

func TestBuild_VersionMonotonic(t *testing.T) {
	a := Build(nil)
	b := Build(nil)
	if b.Version <= a.Version {
		t.Errorf("versions not monotonic: %d then %d", a.Version, b.Version)
	}
}

func TestSnapshot_ZeroValueUsable(t *testing.T) {
	var snap Snapshot

	s := snap.Load()
	if s == nil {
		t.Fatal("Load on zero Snapshot returned nil")
	}
	if s.DocFreq["anything"] != 0 {
		t.Error("empty snapshot must report zero document frequency")
	}
}

func TestSnapshot_PublishSwap(t *testing.T) {
	var snap Snapshot

	first := Build([]knowledge.Chunk{chunk("c1", "alpha beta")})
	snap.Publish(first)
	if got := snap.Load(); got != first {
		t.Error("Load did not return published stats")
	}

	second := Build([]knowledge.Chunk{chunk("c1", "alpha"), chunk("c2", "beta")})
	snap.Publish(second)
	if got := snap.Load(); got != second {
		t.Error("Load did not observe swap")
	}

	// Publishing nil must not clobber current stats.
	snap.Publish(nil)
	if got := snap.Load(); got != second {
		t.Error("Publish(nil) replaced current stats")
	}
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	var snap Snapshot
	snap.Publish(Build([]knowledge.Chunk{chunk("c1", "gamma delta")}))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s := snap.Load()
				if s == nil {
					t.Error("Load returned nil under concurrency")
					return
				}
			}
		}()
	}
	for range 50 {
		snap.Publish(Build([]knowledge.Chunk{chunk("c1", "gamma")}))
	}
	wg.Wait()
}
