package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "reqgraph/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RETRIEVAL_MAX_DEPTH", "")
	t.Setenv("RETRIEVAL_MAX_NODES", "")
	t.Setenv("RESOLVER_THRESHOLD", "")
	t.Setenv("RETRIEVAL_REL_TYPES", "")
	t.Setenv("RETRIEVAL_DIRECTION", "")
	t.Setenv("INGEST_ROOT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.RetrievalMaxDepth)
	assert.Equal(t, 20, cfg.RetrievalMaxNodes)
	assert.Equal(t, 0.5, cfg.ResolverThreshold)
	assert.Empty(t, cfg.RetrievalRelTypes)
	assert.Equal(t, "both", cfg.RetrievalDirection)
	assert.Empty(t, cfg.IngestRoot)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RETRIEVAL_MAX_DEPTH", "3")
	t.Setenv("VECTOR_TOP_K", "7")
	t.Setenv("RESOLVER_THRESHOLD", "0.75")
	t.Setenv("EXTRACT_WINDOW", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.RetrievalMaxDepth)
	assert.Equal(t, 7, cfg.VectorTopK)
	assert.Equal(t, 0.75, cfg.ResolverThreshold)
	assert.Equal(t, 4, cfg.ExtractWindow, "unparseable values fall back to the default")
}

func TestLoad_RetrievalAndIngest(t *testing.T) {
	t.Setenv("RETRIEVAL_REL_TYPES", " SATISFY, ,verified_by ")
	t.Setenv("RETRIEVAL_DIRECTION", "out")
	t.Setenv("INGEST_ROOT", "/srv/models")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"SATISFY", "verified_by"}, cfg.RetrievalRelTypes)
	assert.Equal(t, "out", cfg.RetrievalDirection)
	assert.Equal(t, "/srv/models", cfg.IngestRoot)
}

func TestLoad_Tracing(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SAMPLER_RATIO", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.OtelInsecure)
	assert.Equal(t, 1.0, cfg.OtelSampleRatio)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Neo4jURI:           "bolt://localhost:7687",
			Neo4jUser:          "neo4j",
			Neo4jPassword:      "password",
			LiteLLMURL:         "http://localhost:4000",
			ModelID:            "model",
			EmbeddingModel:     "embed",
			RetrievalMaxDepth:  2,
			RetrievalMaxNodes:  20,
			RetrievalDirection: "both",
			ResolverThreshold:  0.5,
			ExtractWindow:      4,
			ExtractStep:        3,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		errType apperrors.ErrorType
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing uri", mutate: func(c *Config) { c.Neo4jURI = "" }, errType: apperrors.ErrorTypeConfig},
		{name: "zero max nodes", mutate: func(c *Config) { c.RetrievalMaxNodes = 0 }, errType: apperrors.ErrorTypeConfig},
		{name: "unknown direction", mutate: func(c *Config) { c.RetrievalDirection = "sideways" }, errType: apperrors.ErrorTypeConfig},
		{name: "threshold above one", mutate: func(c *Config) { c.ResolverThreshold = 1.5 }, errType: apperrors.ErrorTypeConfig},
		{name: "sample ratio above one", mutate: func(c *Config) { c.OtelSampleRatio = 2 }, errType: apperrors.ErrorTypeConfig},
		{name: "pgvector without dim", mutate: func(c *Config) {
			c.DatabaseURL = "postgres://localhost/kg"
			c.EmbeddingDim = 0
		}, errType: apperrors.ErrorTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errType == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, tt.errType))
		})
	}
}
