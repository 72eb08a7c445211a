package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "reqgraph/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI            string
	Neo4jUser           string
	Neo4jPassword       string
	Neo4jDatabase       string
	Neo4jMaxPoolSize    int
	Neo4jTimeoutSeconds int

	// Store retry policy
	StoreMaxRetries     int
	StoreRetryInitialMS int

	// AI
	LiteLLMURL     string
	ModelID        string
	EmbeddingModel string
	LLMAPIKey      string

	// Vector index (empty DatabaseURL keeps passages in memory)
	DatabaseURL  string
	EmbeddingDim int

	// Embedding cache (empty RedisURL disables it)
	RedisURL               string
	EmbeddingCacheTTLHours int

	// Retrieval (empty RetrievalRelTypes follows every relationship type)
	RetrievalMaxDepth  int
	RetrievalMaxNodes  int
	RetrievalRelTypes  []string
	RetrievalDirection string
	VectorTopK         int
	EvidenceLimit      int
	ResolverThreshold  float64

	// Ingestion (empty IngestRoot refuses local paths sent over HTTP)
	PredicateAliasesFile string
	ExtractWindow        int
	ExtractStep          int
	ExtractConcurrency   int
	IngestRoot           string

	// Object storage
	S3Region   string
	S3Endpoint string

	// Tracing (empty OTLPEndpoint prints spans to stdout when enabled)
	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		Neo4jURI:               getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:              getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:          getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:          getEnv("NEO4J_DATABASE", ""),
		Neo4jMaxPoolSize:       getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		Neo4jTimeoutSeconds:    getEnvInt("NEO4J_TIMEOUT_SECONDS", 10),
		StoreMaxRetries:        getEnvInt("STORE_MAX_RETRIES", 5),
		StoreRetryInitialMS:    getEnvInt("STORE_RETRY_INITIAL_MS", 100),
		LiteLLMURL:             getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:                getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		EmbeddingModel:         getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMAPIKey:              getEnv("LLM_API_KEY", ""),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		EmbeddingDim:           getEnvInt("EMBEDDING_DIM", 1536),
		RedisURL:               getEnv("REDIS_URL", ""),
		EmbeddingCacheTTLHours: getEnvInt("EMBEDDING_CACHE_TTL_HOURS", 24*7),
		RetrievalMaxDepth:      getEnvInt("RETRIEVAL_MAX_DEPTH", 2),
		RetrievalMaxNodes:      getEnvInt("RETRIEVAL_MAX_NODES", 20),
		RetrievalRelTypes:      getEnvList("RETRIEVAL_REL_TYPES"),
		RetrievalDirection:     getEnv("RETRIEVAL_DIRECTION", "both"),
		VectorTopK:             getEnvInt("VECTOR_TOP_K", 5),
		EvidenceLimit:          getEnvInt("EVIDENCE_LIMIT", 20),
		ResolverThreshold:      getEnvFloat("RESOLVER_THRESHOLD", 0.5),
		PredicateAliasesFile:   getEnv("PREDICATE_ALIASES_FILE", ""),
		ExtractWindow:          getEnvInt("EXTRACT_WINDOW", 4),
		ExtractStep:            getEnvInt("EXTRACT_STEP", 3),
		ExtractConcurrency:     getEnvInt("EXTRACT_CONCURRENCY", 4),
		IngestRoot:             getEnv("INGEST_ROOT", ""),
		S3Region:               getEnv("S3_REGION", ""),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		OtelEnabled:            getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:           getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelInsecure:           getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		OtelSampleRatio:        getEnvFloat("OTEL_SAMPLER_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"NEO4J_URI", c.Neo4jURI},
		{"NEO4J_USER", c.Neo4jUser},
		{"NEO4J_PASSWORD", c.Neo4jPassword},
		{"LITELLM_URL", c.LiteLLMURL},
		{"MODEL_ID", c.ModelID},
		{"EMBEDDING_MODEL", c.EmbeddingModel},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperrors.NewConfigMissingRequired(r.field)
		}
	}

	if c.RetrievalMaxDepth < 0 {
		return apperrors.NewConfigValidationFailed("RETRIEVAL_MAX_DEPTH", "must not be negative")
	}
	if c.RetrievalMaxNodes <= 0 {
		return apperrors.NewConfigValidationFailed("RETRIEVAL_MAX_NODES", "must be positive")
	}
	switch c.RetrievalDirection {
	case "both", "out", "outgoing", "in", "incoming":
	default:
		return apperrors.NewConfigValidationFailed("RETRIEVAL_DIRECTION", "must be both, out or in")
	}
	if c.ResolverThreshold <= 0 || c.ResolverThreshold > 1 {
		return apperrors.NewConfigValidationFailed("RESOLVER_THRESHOLD", "must be in (0, 1]")
	}
	if c.ExtractWindow <= 0 || c.ExtractStep <= 0 {
		return apperrors.NewConfigValidationFailed("EXTRACT_WINDOW", "window and step must be positive")
	}
	if c.OtelSampleRatio < 0 || c.OtelSampleRatio > 1 {
		return apperrors.NewConfigValidationFailed("OTEL_SAMPLER_RATIO", "must be in [0, 1]")
	}
	if c.DatabaseURL != "" && c.EmbeddingDim <= 0 {
		return apperrors.NewConfigValidationFailed("EMBEDDING_DIM", "must be positive when DATABASE_URL is set")
	}
	// LLM API key, Redis and S3 settings are optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Neo4jTimeout returns the connect timeout as a duration
func (c *Config) Neo4jTimeout() time.Duration {
	return time.Duration(c.Neo4jTimeoutSeconds) * time.Second
}

// StoreRetryInitial returns the first backoff interval for store retries
func (c *Config) StoreRetryInitial() time.Duration {
	return time.Duration(c.StoreRetryInitialMS) * time.Millisecond
}

// EmbeddingCacheTTL returns how long cached embeddings are kept
func (c *Config) EmbeddingCacheTTL() time.Duration {
	return time.Duration(c.EmbeddingCacheTTLHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
