package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep/internal/corpus"
)

// SaveStats persists a statistics snapshot under its version. Older versions
// are pruned so the table holds only the current snapshot and its immediate
// predecessor (kept for post-incident inspection).
func (s *Store) SaveStats(ctx context.Context, st *corpus.Stats) error {
	if st == nil {
		return fmt.Errorf("nil statistics snapshot")
	}

	docFreq, err := json.Marshal(st.DocFreq)
	if err != nil {
		return fmt.Errorf("marshaling document frequencies: %w", err)
	}
	termFreq, err := json.Marshal(st.TermFreq)
	if err != nil {
		return fmt.Errorf("marshaling term frequencies: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rolling back statistics save", "error", rbErr)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO corpus_statistics (version, chunk_count, avg_chunk_len, doc_freq, term_freq, built_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (version) DO NOTHING`,
		st.Version, st.ChunkCount, st.AvgChunkLen, docFreq, termFreq, st.BuiltAt)
	if err != nil {
		return fmt.Errorf("inserting statistics: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM corpus_statistics
		WHERE version NOT IN (SELECT version FROM corpus_statistics ORDER BY version DESC LIMIT 2)`)
	if err != nil {
		return fmt.Errorf("pruning old statistics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing statistics: %w", err)
	}
	s.logger.Debug("saved corpus statistics", "version", st.Version, "chunks", st.ChunkCount)
	return nil
}

// LoadStats returns the newest persisted snapshot, or ErrNotFound when no
// rebuild has ever run.
func (s *Store) LoadStats(ctx context.Context) (*corpus.Stats, error) {
	var (
		st       corpus.Stats
		docFreq  []byte
		termFreq []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT version, chunk_count, avg_chunk_len, doc_freq, term_freq, built_at
		FROM corpus_statistics ORDER BY version DESC LIMIT 1`,
	).Scan(&st.Version, &st.ChunkCount, &st.AvgChunkLen, &docFreq, &termFreq, &st.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("corpus statistics: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading corpus statistics: %w", err)
	}

	if err := json.Unmarshal(docFreq, &st.DocFreq); err != nil {
		return nil, fmt.Errorf("unmarshaling document frequencies: %w", err)
	}
	if err := json.Unmarshal(termFreq, &st.TermFreq); err != nil {
		return nil, fmt.Errorf("unmarshaling term frequencies: %w", err)
	}
	return &st, nil
}
