// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lorekeep/config.yaml or ./config.yaml)
//  3. Default values
//
// Security: sensitive data (the database password) is never logged; the
// config directory uses 0750 permissions.
//
// Error handling uses sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidWeights indicates the fusion weights are out of range.
	ErrInvalidWeights = errors.New("invalid fusion weights")

	// ErrInvalidBoost indicates a ranking boost factor is out of range.
	ErrInvalidBoost = errors.New("invalid boost factor")

	// ErrInvalidRerankTimeout indicates the rerank timeout is out of range.
	ErrInvalidRerankTimeout = errors.New("invalid rerank timeout")

	// ErrInvalidServerAddr indicates the HTTP listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 outputs 3072 dimensions by default, but supports
// truncation to 768 via OutputDimensionality (Matryoshka Representation
// Learning). The pgvector schema uses 768 dimensions.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// RetrievalConfig holds the hybrid ranking tunables. Every value has a
// working default; they exist so operators can reweight the pipeline
// without a rebuild.
type RetrievalConfig struct {
	// VectorWeight and KeywordWeight blend the normalized semantic and
	// lexical scores. They must each fall in (0, 1].
	VectorWeight  float64 `mapstructure:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `mapstructure:"keyword_weight" json:"keyword_weight"`

	// PrimaryBoost and SecondaryBoost multiply scores of chunks whose
	// category matches the query's detected categories. Bounded so they
	// reorder near-ties without overturning clear relevance gaps.
	PrimaryBoost   float64 `mapstructure:"primary_boost" json:"primary_boost"`
	SecondaryBoost float64 `mapstructure:"secondary_boost" json:"secondary_boost"`

	// LevelDemotion multiplies scores of chunks outside the acceptable
	// technical-level window; LevelRange is the window half-width.
	LevelDemotion float64 `mapstructure:"level_demotion" json:"level_demotion"`
	LevelRange    int     `mapstructure:"level_range" json:"level_range"`

	// RerankEnabled toggles the LLM reranking stage; RerankTimeoutMs
	// bounds how long it may run before the deterministic fallback.
	RerankEnabled   bool `mapstructure:"rerank_enabled" json:"rerank_enabled"`
	RerankTimeoutMs int  `mapstructure:"rerank_timeout_ms" json:"rerank_timeout_ms"`

	// MaxExpansionTerms caps query expansion output.
	MaxExpansionTerms int `mapstructure:"max_expansion_terms" json:"max_expansion_terms"`

	// EmbedRateLimit caps embedding API calls per second (0 = unlimited).
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit" json:"embed_rate_limit"`
}

// TracingConfig holds OTLP trace export configuration.
type TracingConfig struct {
	// Enabled toggles trace export entirely.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// AgentHost is the OTLP/HTTP collector endpoint (default: localhost:4318).
	AgentHost string `mapstructure:"agent_host" json:"agent_host"`
	// Environment is the deployment environment tag (default: dev).
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the service name on exported spans.
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update
// MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName     string `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration (serve mode only)
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
	// RateLimitRPS caps requests per second per client IP (serve mode).
	RateLimitRPS float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`

	// Ranking pipeline tunables
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`

	// Trace export
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lorekeep")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* values.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on bad values, before anything connects anywhere.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "lorekeep")
	viper.SetDefault("postgres_password", "lorekeep_dev_password")
	viper.SetDefault("postgres_db_name", "lorekeep")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("server_addr", ":8080")
	viper.SetDefault("rate_limit_rps", 10)

	// Ranking defaults
	viper.SetDefault("retrieval.vector_weight", 0.7)
	viper.SetDefault("retrieval.keyword_weight", 0.3)
	viper.SetDefault("retrieval.primary_boost", 1.15)
	viper.SetDefault("retrieval.secondary_boost", 1.05)
	viper.SetDefault("retrieval.level_demotion", 0.85)
	viper.SetDefault("retrieval.level_range", 2)
	viper.SetDefault("retrieval.rerank_enabled", true)
	viper.SetDefault("retrieval.rerank_timeout_ms", 5000)
	viper.SetDefault("retrieval.max_expansion_terms", 8)
	viper.SetDefault("retrieval.embed_rate_limit", 5)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "lorekeep")
}

// bindEnvVariables binds environment variables explicitly.
// Provider API keys are read directly by the Genkit plugins
// (GEMINI_API_KEY, OPENAI_API_KEY), not via Viper; Validate() checks their
// presence based on the selected provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "LOREKEEP_PROVIDER")
	mustBind("model_name", "LOREKEEP_MODEL_NAME")
	mustBind("embedder_model", "LOREKEEP_EMBEDDER_MODEL")
	mustBind("ollama_host", "LOREKEEP_OLLAMA_HOST")
	mustBind("server_addr", "LOREKEEP_SERVER_ADDR")
	mustBind("tracing.enabled", "LOREKEEP_TRACING_ENABLED")
	mustBind("tracing.agent_host", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching: "****" leaks
// passwords containing "*", "[REDACTED]" leaks ones containing its letters.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked to prevent substring
// matching; longer ones show the first and last 2 characters for debug
// utility. This defends against accidental logging of real secrets, not
// against compromised logs. If logs leak, rotate the secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. Masked fields: PostgresPassword. When adding new sensitive
// fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// FullEmbedderName returns the provider-qualified embedder name for Genkit.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.EmbedderModel
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.EmbedderModel
	default:
		return ProviderGoogleAI + "/" + c.EmbedderModel
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
