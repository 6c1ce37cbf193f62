// Package store persists documents, chunks, and corpus statistics in
// PostgreSQL with pgvector. It is the system of record the in-process
// indexes are rebuilt from.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// chunkCols is the standard SELECT column list for scanChunks. Document
// metadata is denormalized into every chunk for filter pushdown and boosting.
const chunkCols = `c.id::text, c.document_id::text, c.ordinal, c.body, c.prepared, c.embedding,
	c.has_table, c.has_code, c.visual, c.created_at,
	d.title, d.source, d.category, d.tech_level, d.approved`

// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateDocument inserts a document and fills in its generated ID and
// timestamps. New documents start unapproved; approval is a separate step
// that triggers the statistics rebuild.
func (s *Store) CreateDocument(ctx context.Context, doc *knowledge.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling document metadata: %w", err)
	}
	if doc.Category == "" {
		doc.Category = knowledge.CategoryGeneral
	}
	if doc.TechLevel == 0 {
		doc.TechLevel = knowledge.DefaultTechLevel
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO documents (title, source, category, tech_level, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at, updated_at`,
		doc.Title, doc.Source, doc.Category, doc.TechLevel, metadata,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// GetDocument fetches one document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (knowledge.Document, error) {
	var (
		doc      knowledge.Document
		metadata []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, title, source, category, tech_level, approved, metadata, created_at, updated_at
		FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Source, &doc.Category, &doc.TechLevel,
		&doc.Approved, &metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return knowledge.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("fetching document %s: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return knowledge.Document{}, fmt.Errorf("unmarshaling document metadata: %w", err)
		}
	}
	return doc, nil
}

// ApproveDocument flips the approval flag. The caller triggers the corpus
// statistics rebuild after a successful approval.
func (s *Store) ApproveDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET approved = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("approving document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document; its chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceChunks swaps a document's chunk set atomically. Used by the
// indexer after re-chunking or re-embedding a document.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []knowledge.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rolling back chunk replacement", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	for _, c := range chunks {
		var embedding *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			embedding = &v
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (document_id, ordinal, body, prepared, embedding, has_table, has_code, visual)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			documentID, c.Ordinal, c.Text, c.Prepared, embedding, c.HasTable, c.HasCode, c.Visual,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replacement: %w", err)
	}
	s.logger.Debug("replaced document chunks", "document_id", documentID, "count", len(chunks))
	return nil
}

// GetChunks resolves IDs to chunks. IDs without a row are simply absent from
// the result; the caller treats them as evicted.
func (s *Store) GetChunks(ctx context.Context, ids []string) (map[string]knowledge.Chunk, error) {
	if len(ids) == 0 {
		return map[string]knowledge.Chunk{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkCols+`
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks: %w", err)
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string]knowledge.Chunk, len(chunks))
	for _, c := range chunks {
		out[c.ID] = c
	}
	return out, nil
}

// GetChunksForSearch returns every chunk passing the filters, with document
// metadata attached. The lexical index and corpus statistics are rebuilt
// from this set.
func (s *Store) GetChunksForSearch(ctx context.Context, f knowledge.Filters) ([]knowledge.Chunk, error) {
	where, args := filterClauses(f, nil)
	sql := `
		SELECT ` + chunkCols + `
		FROM chunks c JOIN documents d ON d.id = c.document_id` + where + `
		ORDER BY c.created_at, c.ordinal`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks for search: %w", err)
	}
	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]knowledge.Chunk, error) {
	defer rows.Close()

	var out []knowledge.Chunk
	for rows.Next() {
		var (
			c         knowledge.Chunk
			embedding *pgvector.Vector
			createdAt time.Time
		)
		err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.Prepared, &embedding,
			&c.HasTable, &c.HasCode, &c.Visual, &createdAt,
			&c.Title, &c.Source, &c.Category, &c.TechLevel, &c.Approved)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if embedding != nil {
			c.Embedding = embedding.Slice()
		}
		c.CreatedAt = createdAt
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return out, nil
}
