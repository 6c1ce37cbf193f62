package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/db"
	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/bm25"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/fusion"
	"github.com/lorekeep/lorekeep/internal/ingest"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/observability"
	"github.com/lorekeep/lorekeep/internal/provider"
	"github.com/lorekeep/lorekeep/internal/query"
	"github.com/lorekeep/lorekeep/internal/rerank"
	"github.com/lorekeep/lorekeep/internal/retrieval"
	"github.com/lorekeep/lorekeep/internal/store"
	"github.com/lorekeep/lorekeep/internal/vector"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first: Genkit's TracerProvider must be wired before Init.
	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			AgentHost:   cfg.Tracing.AgentHost,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.onClose(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("shutting down tracer provider", "error", err)
			}
		})
	}

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.onClose(pool.Close)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	aiEmbedder := provideAIEmbedder(g, cfg)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = provider.NewGenkitEmbedder(aiEmbedder, cfg.Retrieval.EmbedRateLimit, logger)
	a.Judge = provider.NewGenkitJudge(g, cfg.FullModelName(), logger)

	st, err := store.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	a.Store = st

	a.Snapshot = &corpus.Snapshot{}
	a.Keyword = bm25.NewSearcher(a.Snapshot, bm25.DefaultParams())
	a.Vectors = vector.NewIndex(provider.EmbeddingDimensions)

	// Seed from the persisted statistics so the version counter keeps
	// increasing across restarts.
	if persisted, err := st.LoadStats(ctx); err == nil {
		corpus.SetVersionFloor(persisted.Version)
		a.Snapshot.Publish(persisted)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading corpus statistics: %w", err)
	}

	a.Indexer = ingest.NewIndexer(
		st,
		a.Embedder,
		ingest.Chunker{TargetTokens: ingest.DefaultChunkTokens},
		a.Snapshot,
		a.Keyword,
		a.Vectors,
		logger,
	)
	if err := a.Indexer.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("initial index build: %w", err)
	}

	analyzer := query.NewAnalyzer(a.Judge, logger)
	fuser := fusion.NewEngine(fusion.Config{
		PrimaryBoost:   cfg.Retrieval.PrimaryBoost,
		SecondaryBoost: cfg.Retrieval.SecondaryBoost,
		LevelDemotion:  cfg.Retrieval.LevelDemotion,
		LevelRange:     cfg.Retrieval.LevelRange,
	})
	reranker := rerank.New(a.Judge, logger)
	pipelineCfg := retrieval.Config{
		Weights: fusion.Weights{
			Vector:  cfg.Retrieval.VectorWeight,
			Keyword: cfg.Retrieval.KeywordWeight,
		},
		RerankTimeout:     time.Duration(cfg.Retrieval.RerankTimeoutMs) * time.Millisecond,
		RerankEnabled:     cfg.Retrieval.RerankEnabled,
		MaxExpansionTerms: cfg.Retrieval.MaxExpansionTerms,
	}

	a.Pipeline = retrieval.New(
		analyzer, a.Embedder, a.Keyword, a.Vectors, st, fuser, reranker, pipelineCfg, logger)
	a.StorePipeline = retrieval.New(
		analyzer, a.Embedder, a.Keyword, st.Vectors(), st, fuser, reranker, pipelineCfg, logger)

	a.Answerer = answer.NewGenerator(a.Judge, logger)

	return a, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models and embedders need
		// explicit registration.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideAIEmbedder looks up the embedder registered by the provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideAIEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
