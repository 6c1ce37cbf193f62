package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/vector"
)

// SearchEmbedding runs cosine similarity search in SQL. Filters become WHERE
// clauses so ineligible chunks never occupy top-K slots; chunks without an
// embedding are excluded here but remain reachable lexically. Ties hold
// insertion order via the created_at/ordinal sort keys.
func (s *Store) SearchEmbedding(ctx context.Context, queryEmbedding []float32, limit int, f knowledge.Filters) ([]vector.Hit, error) {
	if limit <= 0 || len(queryEmbedding) == 0 {
		return nil, nil
	}

	where, args := filterClauses(f, []any{pgvector.NewVector(queryEmbedding)})
	cond := "c.embedding IS NOT NULL"
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}

	sql := `
		SELECT c.id::text, 1 - (c.embedding <=> $1) AS similarity
		FROM chunks c JOIN documents d ON d.id = c.document_id` + where + `
		ORDER BY c.embedding <=> $1, c.created_at, c.ordinal
		LIMIT ` + strconv.Itoa(limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []vector.Hit
	for rows.Next() {
		var h vector.Hit
		if err := rows.Scan(&h.ChunkID, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return hits, nil
}

// Vectors returns a view satisfying the retrieval pipeline's vector-search
// interface.
func (s *Store) Vectors() VectorView {
	return VectorView{s: s}
}

// VectorView adapts Store.SearchEmbedding to the pipeline's Search name.
type VectorView struct {
	s *Store
}

// Search implements the pipeline's VectorSearcher.
func (v VectorView) Search(ctx context.Context, queryEmbedding []float32, limit int, f knowledge.Filters) ([]vector.Hit, error) {
	return v.s.SearchEmbedding(ctx, queryEmbedding, limit, f)
}

// filterClauses renders Filters as a WHERE fragment. args seeds the
// positional parameters already consumed by the caller's query.
func filterClauses(f knowledge.Filters, args []any) (string, []any) {
	var conds []string
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ApprovedOnly {
		conds = append(conds, "d.approved = TRUE")
	}
	if f.Category != "" {
		add("d.category = $%d", f.Category)
	}
	if f.MinTechLevel > 0 {
		add("d.tech_level >= $%d", f.MinTechLevel)
	}
	if f.MaxTechLevel > 0 {
		add("d.tech_level <= $%d", f.MaxTechLevel)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
