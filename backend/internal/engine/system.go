package engine

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reqgraph/backend/internal/adapter"
	"reqgraph/backend/internal/extract"
	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/source"
	"reqgraph/backend/internal/triples"
	"reqgraph/backend/internal/vector"
	"reqgraph/backend/pkg/config"
	"reqgraph/backend/pkg/logger"
)

// System is the fully wired set of components built from configuration.
type System struct {
	Store    graph.Store
	Index    vector.Index
	LLM      *adapter.LLMAdapter
	Embedder adapter.Embedder
	Engine   *Engine
	Ingestor *Ingestor
	Opener   *source.Opener

	redis *redis.Client
}

// Open connects to Neo4j and, when configured, Postgres and Redis, and
// wires the engine and ingestor on top. Neo4j must be reachable; a
// failing Postgres or Redis is fatal too since the operator asked for it.
func Open(ctx context.Context, cfg *config.Config) (*System, error) {
	log := logger.Get()

	repo, err := graph.Connect(ctx, graph.ConnectConfig{
		URI:         cfg.Neo4jURI,
		User:        cfg.Neo4jUser,
		Password:    cfg.Neo4jPassword,
		Database:    cfg.Neo4jDatabase,
		MaxPoolSize: cfg.Neo4jMaxPoolSize,
		Timeout:     cfg.Neo4jTimeout(),

		MaxTries:      uint(cfg.StoreMaxRetries),
		RetryInterval: cfg.StoreRetryInitial(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}
	repo.EnsureSchema(ctx)

	store := graph.NewRetryingStore(repo, graph.RetryPolicy{
		MaxTries:        uint(cfg.StoreMaxRetries),
		InitialInterval: cfg.StoreRetryInitial(),
		MaxInterval:     graph.DefaultRetryPolicy.MaxInterval,
	})
	sys := &System{
		Store:  store,
		LLM:    adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.LLMAPIKey, cfg.ModelID, cfg.EmbeddingModel),
		Opener: source.NewOpener(cfg.S3Region, cfg.S3Endpoint),
	}
	sys.Embedder = sys.LLM

	if cfg.DatabaseURL != "" {
		pg, err := vector.ConnectPg(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
		if err != nil {
			sys.Close(ctx)
			return nil, err
		}
		sys.Index = pg
		log.Info("Using pgvector passage index", zap.Int("dim", cfg.EmbeddingDim))
	} else {
		sys.Index = vector.NewMemoryIndex()
		log.Warn("DATABASE_URL not set, passages are kept in memory")
	}

	if cfg.RedisURL != "" {
		client, err := adapter.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			sys.Close(ctx)
			return nil, err
		}
		sys.redis = client
		sys.Embedder = adapter.NewCachedEmbedder(sys.LLM, client, sys.LLM.EmbeddingModel(), cfg.EmbeddingCacheTTL())
		log.Info("Embedding cache enabled", zap.Duration("ttl", cfg.EmbeddingCacheTTL()))
	}

	predicates, err := triples.LoadPredicateMap(cfg.PredicateAliasesFile)
	if err != nil {
		sys.Close(ctx)
		return nil, err
	}

	sys.Engine = New(store, sys.Index, sys.LLM, sys.Embedder,
		WithOptions(Options{
			MaxDepth:      cfg.RetrievalMaxDepth,
			MaxNodes:      cfg.RetrievalMaxNodes,
			TopK:          cfg.VectorTopK,
			EvidenceLimit: cfg.EvidenceLimit,
		}),
		WithResolverThreshold(cfg.ResolverThreshold),
		WithTraversal(cfg.RetrievalRelTypes, graph.ParseDirection(cfg.RetrievalDirection)),
	)
	sys.Ingestor = NewIngestor(store,
		WithNormalizer(triples.NewNormalizer(predicates)),
		WithPassageIndex(sys.Index, sys.Embedder),
		WithExtractor(extract.NewExtractor(sys.LLM,
			extract.WithWindow(cfg.ExtractWindow, cfg.ExtractStep),
			extract.WithConcurrency(cfg.ExtractConcurrency),
		)),
	)
	return sys, nil
}

// Close releases every connection the system holds.
func (s *System) Close(ctx context.Context) {
	log := logger.Get()
	if s.Index != nil {
		s.Index.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(ctx); err != nil {
			log.Warn("Failed to close graph store", zap.Error(err))
		}
	}
}
