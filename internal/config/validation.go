package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and API key validation. Keys are read by the Genkit
	// plugins directly from the environment; we only check presence here.
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: ollama_host must be an http(s) URL, got %q", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q is not one of: gemini, ollama, openai", ErrInvalidProvider, c.Provider)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "lorekeep_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 4. Server validation
	if c.ServerAddr == "" || !strings.Contains(c.ServerAddr, ":") {
		return fmt.Errorf("%w: %q must be host:port or :port", ErrInvalidServerAddr, c.ServerAddr)
	}

	// 5. Ranking tunables validation
	return c.Retrieval.validate()
}

func (r *RetrievalConfig) validate() error {
	if r.VectorWeight <= 0 || r.VectorWeight > 1 {
		return fmt.Errorf("%w: vector_weight must be in (0, 1], got %.3f", ErrInvalidWeights, r.VectorWeight)
	}
	if r.KeywordWeight <= 0 || r.KeywordWeight > 1 {
		return fmt.Errorf("%w: keyword_weight must be in (0, 1], got %.3f", ErrInvalidWeights, r.KeywordWeight)
	}

	// Boosts must stay close to 1.0: they exist to reorder near-ties, a
	// factor of 2 would overturn clear relevance gaps.
	if r.PrimaryBoost < 1.0 || r.PrimaryBoost > 1.5 {
		return fmt.Errorf("%w: primary_boost must be in [1.0, 1.5], got %.3f", ErrInvalidBoost, r.PrimaryBoost)
	}
	if r.SecondaryBoost < 1.0 || r.SecondaryBoost > r.PrimaryBoost {
		return fmt.Errorf("%w: secondary_boost must be in [1.0, primary_boost], got %.3f", ErrInvalidBoost, r.SecondaryBoost)
	}
	if r.LevelDemotion <= 0 || r.LevelDemotion > 1.0 {
		return fmt.Errorf("%w: level_demotion must be in (0, 1], got %.3f", ErrInvalidBoost, r.LevelDemotion)
	}
	if r.LevelRange < 0 || r.LevelRange > 9 {
		return fmt.Errorf("%w: level_range must be between 0 and 9, got %d", ErrInvalidBoost, r.LevelRange)
	}

	if r.RerankTimeoutMs < 100 || r.RerankTimeoutMs > 60000 {
		return fmt.Errorf("%w: rerank_timeout_ms must be between 100 and 60000, got %d",
			ErrInvalidRerankTimeout, r.RerankTimeoutMs)
	}

	if r.MaxExpansionTerms < 1 || r.MaxExpansionTerms > 32 {
		return fmt.Errorf("%w: max_expansion_terms must be between 1 and 32, got %d",
			ErrInvalidWeights, r.MaxExpansionTerms)
	}
	if r.EmbedRateLimit < 0 {
		return fmt.Errorf("%w: embed_rate_limit cannot be negative, got %.2f",
			ErrInvalidWeights, r.EmbedRateLimit)
	}
	return nil
}
