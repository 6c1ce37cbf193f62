package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/lorekeep/lorekeep/internal/bm25"
	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/provider"
	"github.com/lorekeep/lorekeep/internal/store"
	"github.com/lorekeep/lorekeep/internal/vector"
)

// Store is the persistence surface the indexer needs. *store.Store
// implements it; tests substitute fakes.
type Store interface {
	CreateDocument(ctx context.Context, doc *knowledge.Document) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []knowledge.Chunk) error
	ApproveDocument(ctx context.Context, id string) error
	GetChunksForSearch(ctx context.Context, f knowledge.Filters) ([]knowledge.Chunk, error)
	SaveStats(ctx context.Context, st *corpus.Stats) error
}

var _ Store = (*store.Store)(nil)

// Indexer ingests documents and keeps the in-process indexes consistent
// with the approved corpus.
type Indexer struct {
	store    Store
	embedder provider.Embedder
	chunker  Chunker
	snapshot *corpus.Snapshot
	keyword  *bm25.Searcher
	vectors  *vector.Index
	logger   log.Logger
}

// NewIndexer creates an Indexer. snapshot, keyword, and vectors may be nil
// for one-shot CLI ingestion where no in-process index is being served.
func NewIndexer(
	st Store,
	embedder provider.Embedder,
	chunker Chunker,
	snapshot *corpus.Snapshot,
	keyword *bm25.Searcher,
	vectors *vector.Index,
	logger log.Logger,
) *Indexer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{
		store:    st,
		embedder: embedder,
		chunker:  chunker,
		snapshot: snapshot,
		keyword:  keyword,
		vectors:  vectors,
		logger:   logger,
	}
}

// Index chunks, embeds, and stores a document's content. Chunks whose
// embedding fails are stored without one and stay lexical-only; embedding
// the prepared text rather than the raw body keeps document context in the
// vector.
func (ix *Indexer) Index(ctx context.Context, doc *knowledge.Document, content string) error {
	if doc.ID == "" {
		if err := ix.store.CreateDocument(ctx, doc); err != nil {
			return err
		}
	}

	chunks := ix.chunker.Split(*doc, content)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s: no indexable content", doc.ID)
	}

	prepared := make([]string, len(chunks))
	for i, c := range chunks {
		prepared[i] = c.Prepared
	}
	embeddings, err := ix.embedder.EmbedBatch(ctx, prepared)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", doc.ID, err)
	}

	embedded := 0
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		if i < len(embeddings) && len(embeddings[i]) == ix.embedder.Dimensions() {
			chunks[i].Embedding = embeddings[i]
			embedded++
		}
	}
	if embedded < len(chunks) {
		ix.logger.Warn("some chunks stored without embeddings",
			"document_id", doc.ID, "embedded", embedded, "total", len(chunks))
	}

	if err := ix.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return err
	}
	ix.logger.Info("indexed document", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}

// Approve marks a document approved and rebuilds the corpus statistics and
// indexes over the new approved set.
func (ix *Indexer) Approve(ctx context.Context, documentID string) error {
	if err := ix.store.ApproveDocument(ctx, documentID); err != nil {
		return err
	}
	return ix.Rebuild(ctx)
}

// Rebuild recomputes corpus statistics from scratch over the approved
// corpus, persists the snapshot, and refreshes the in-process indexes.
// Readers keep the statistics version they already loaded; the swap is one
// atomic pointer store.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	chunks, err := ix.store.GetChunksForSearch(ctx, knowledge.Filters{ApprovedOnly: true})
	if err != nil {
		return fmt.Errorf("loading approved corpus: %w", err)
	}

	stats := corpus.Build(chunks)
	if err := ix.store.SaveStats(ctx, stats); err != nil {
		return fmt.Errorf("persisting statistics: %w", err)
	}

	if ix.snapshot != nil {
		ix.snapshot.Publish(stats)
	}
	if ix.keyword != nil {
		ix.keyword.Reindex(chunks)
	}
	if ix.vectors != nil {
		ix.vectors.Reset()
		skipped := 0
		for _, c := range chunks {
			if len(c.Embedding) == 0 {
				continue
			}
			if err := ix.vectors.Add(c); err != nil {
				if !errors.Is(err, vector.ErrDimensionMismatch) && !errors.Is(err, vector.ErrZeroVector) {
					return fmt.Errorf("rebuilding vector index: %w", err)
				}
				skipped++
			}
		}
		if skipped > 0 {
			ix.logger.Warn("chunks excluded from vector index", "count", skipped)
		}
	}

	ix.logger.Info("corpus rebuilt",
		"version", stats.Version, "chunks", stats.ChunkCount, "avg_len", stats.AvgChunkLen)
	return nil
}
