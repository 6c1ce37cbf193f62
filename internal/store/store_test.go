package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/store"
	"github.com/lorekeep/lorekeep/internal/testutil"
)

// embed wraps the deterministic test embedder for fixture chunks.
func embed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := testutil.HashEmbedder{}.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("embedding fixture: %v", err)
	}
	return v
}

func setup(t *testing.T) *store.Store {
	t.Helper()
	db := testutil.SetupPostgres(t)
	s, err := store.New(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return s
}

// seedDocument inserts a document with the given chunks and returns its ID.
func seedDocument(t *testing.T, s *store.Store, doc knowledge.Document, chunks []knowledge.Chunk) string {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateDocument(ctx, &doc); err != nil {
		t.Fatalf("creating document: %v", err)
	}
	if err := s.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("replacing chunks: %v", err)
	}
	return doc.ID
}

func TestDocumentLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := knowledge.Document{
		Title:    "Enterprise pricing",
		Source:   "pricing.md",
		Category: knowledge.CategoryPricing,
		Metadata: map[string]string{"owner": "docs-team"},
	}
	if err := s.CreateDocument(ctx, &doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.ID == "" || doc.CreatedAt.IsZero() {
		t.Fatalf("generated fields not filled: %+v", doc)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Approved {
		t.Error("new documents must start unapproved")
	}
	if got.Metadata["owner"] != "docs-team" {
		t.Errorf("metadata round trip lost: %+v", got.Metadata)
	}

	if err := s.ApproveDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ApproveDocument: %v", err)
	}
	got, err = s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument after approve: %v", err)
	}
	if !got.Approved {
		t.Error("approval flag not persisted")
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestChunksRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	docID := seedDocument(t, s,
		knowledge.Document{Title: "Guide", Category: knowledge.CategoryHowTo, TechLevel: 4},
		[]knowledge.Chunk{
			{Ordinal: 0, Text: "first part", Prepared: "Guide: first part", Embedding: embed(t, "first part")},
			{Ordinal: 1, Text: "second part with a table", HasTable: true, Visual: "table"},
		})

	chunks, err := s.GetChunksForSearch(ctx, knowledge.Filters{})
	if err != nil {
		t.Fatalf("GetChunksForSearch: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].DocumentID != docID || chunks[0].Title != "Guide" || chunks[0].TechLevel != 4 {
		t.Errorf("document metadata not denormalized: %+v", chunks[0])
	}
	if len(chunks[0].Embedding) != 768 {
		t.Errorf("embedding round trip: got %d dims", len(chunks[0].Embedding))
	}
	if chunks[1].Embedding != nil {
		t.Errorf("NULL embedding must scan as nil, got %d dims", len(chunks[1].Embedding))
	}
	if !chunks[1].HasTable || chunks[1].Visual != "table" {
		t.Errorf("content flags lost: %+v", chunks[1])
	}

	byID, err := s.GetChunks(ctx, []string{chunks[0].ID, "00000000-0000-0000-0000-000000000000"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(byID) != 1 {
		t.Errorf("unknown IDs must be absent, got %d entries", len(byID))
	}
}

func TestSearchEmbedding(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	seedDocument(t, s,
		knowledge.Document{Title: "Pricing", Category: knowledge.CategoryPricing},
		[]knowledge.Chunk{
			{Ordinal: 0, Text: "enterprise pricing tiers", Embedding: embed(t, "enterprise pricing tiers")},
			{Ordinal: 1, Text: "lexical only chunk"},
		})
	techID := seedDocument(t, s,
		knowledge.Document{Title: "Internals", Category: knowledge.CategoryTechnical, TechLevel: 9},
		[]knowledge.Chunk{
			{Ordinal: 0, Text: "vector index internals", Embedding: embed(t, "vector index internals")},
		})

	hits, err := s.SearchEmbedding(ctx, embed(t, "enterprise pricing tiers"), 10, knowledge.Filters{})
	if err != nil {
		t.Fatalf("SearchEmbedding: %v", err)
	}
	// The NULL-embedding chunk must be excluded, the rest ranked by
	// descending similarity with the exact match first.
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Similarity < 0.99 {
		t.Errorf("exact match similarity = %f", hits[0].Similarity)
	}
	if hits[1].Similarity > hits[0].Similarity {
		t.Error("hits not descending")
	}

	// Category pushdown keeps only the technical document's chunk.
	hits, err = s.SearchEmbedding(ctx, embed(t, "vector index internals"), 10,
		knowledge.Filters{Category: knowledge.CategoryTechnical})
	if err != nil {
		t.Fatalf("filtered SearchEmbedding: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("filter pushdown failed: %d hits", len(hits))
	}
	chunks, err := s.GetChunks(ctx, []string{hits[0].ChunkID})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if chunks[hits[0].ChunkID].DocumentID != techID {
		t.Errorf("filtered hit belongs to wrong document")
	}
}

func TestStatsPersistence(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	if _, err := s.LoadStats(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LoadStats on empty table err = %v, want ErrNotFound", err)
	}

	built := corpus.Build([]knowledge.Chunk{
		{ID: "a", Text: "pricing plans enterprise"},
		{ID: "b", Text: "pricing overview"},
	})
	if err := s.SaveStats(ctx, built); err != nil {
		t.Fatalf("SaveStats: %v", err)
	}

	got, err := s.LoadStats(ctx)
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if got.Version != built.Version || got.ChunkCount != 2 {
		t.Errorf("loaded %+v, want version %d with 2 chunks", got, built.Version)
	}
	if got.DocFreq["pricing"] != 2 || got.TermFreq["pricing"] != 2 {
		t.Errorf("frequency maps lost: df=%d tf=%d", got.DocFreq["pricing"], got.TermFreq["pricing"])
	}
	if got.AvgChunkLen != built.AvgChunkLen {
		t.Errorf("avg chunk len %f != %f", got.AvgChunkLen, built.AvgChunkLen)
	}
}
