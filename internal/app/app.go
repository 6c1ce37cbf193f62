// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the database
// pool, the Genkit instance, the serving indexes, and the search pipeline
// built over them. Setup constructs it in dependency order; Close releases
// resources in reverse.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/bm25"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/ingest"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/provider"
	"github.com/lorekeep/lorekeep/internal/retrieval"
	"github.com/lorekeep/lorekeep/internal/store"
	"github.com/lorekeep/lorekeep/internal/vector"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Core services
	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool
	Store    *store.Store
	Embedder *provider.GenkitEmbedder
	Judge    *provider.GenkitJudge

	// Serving indexes, rebuilt by the Indexer over the approved corpus
	Snapshot *corpus.Snapshot
	Keyword  *bm25.Searcher
	Vectors  *vector.Index

	// Pipeline stages. Pipeline searches the in-memory vector index kept
	// fresh by the Indexer; StorePipeline pushes vector search down to
	// pgvector, which one-shot CLI invocations use.
	Indexer       *ingest.Indexer
	Pipeline      *retrieval.Pipeline
	StorePipeline *retrieval.Pipeline
	Answerer      *answer.Generator

	// Cleanup functions, run in reverse registration order by Close.
	cleanups []func()
}

// onClose registers a cleanup to run during Close.
func (a *App) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	return nil
}
