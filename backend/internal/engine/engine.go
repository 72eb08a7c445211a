package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reqgraph/backend/internal/adapter"
	"reqgraph/backend/internal/extract"
	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/rank"
	"reqgraph/backend/internal/resolve"
	"reqgraph/backend/internal/retrieve"
	"reqgraph/backend/internal/vector"
	"reqgraph/backend/pkg/logger"
)

const tracerName = "reqgraph/engine"

// Options bounds a retrieval.
type Options struct {
	MaxDepth      int
	MaxNodes      int
	TopK          int
	EvidenceLimit int
}

// DefaultOptions mirrors the configuration defaults.
var DefaultOptions = Options{MaxDepth: 2, MaxNodes: 20, TopK: 5, EvidenceLimit: 20}

// Engine answers questions from the graph and the passage index.
type Engine struct {
	store      graph.Store
	index      vector.Index
	llm        adapter.Completer
	embedder   adapter.Embedder
	recognizer *extract.Recognizer
	resolver   *resolve.Resolver
	retriever  *retrieve.Retriever
	opts       Options
	tracer     trace.Tracer
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions sets the retrieval bounds. Zero fields keep their defaults.
func WithOptions(o Options) Option {
	return func(e *Engine) {
		if o.MaxDepth > 0 {
			e.opts.MaxDepth = o.MaxDepth
		}
		if o.MaxNodes > 0 {
			e.opts.MaxNodes = o.MaxNodes
		}
		if o.TopK > 0 {
			e.opts.TopK = o.TopK
		}
		if o.EvidenceLimit != 0 {
			e.opts.EvidenceLimit = o.EvidenceLimit
		}
	}
}

// WithResolverThreshold overrides the fuzzy match threshold.
func WithResolverThreshold(t float64) Option {
	return func(e *Engine) {
		e.resolver = resolve.NewResolver(e.store, resolve.WithThreshold(t))
	}
}

// WithTraversal limits graph expansion to the given relationship types
// (empty means all) followed in direction d.
func WithTraversal(relTypes []string, d graph.Direction) Option {
	return func(e *Engine) {
		e.retriever = retrieve.NewRetriever(e.store,
			retrieve.WithRelTypes(relTypes...),
			retrieve.WithDirection(d),
		)
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates an engine. index and embedder may be nil, in which case
// retrieval uses the graph alone.
func New(store graph.Store, index vector.Index, llm adapter.Completer, embedder adapter.Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		index:      index,
		llm:        llm,
		embedder:   embedder,
		recognizer: extract.NewRecognizer(llm),
		resolver:   resolve.NewResolver(store),
		retriever:  retrieve.NewRetriever(store),
		opts:       DefaultOptions,
		tracer:     otel.Tracer(tracerName),
		logger:     logger.Get(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieval is everything gathered for one question.
type Retrieval struct {
	RequestID   string               `json:"request_id"`
	Question    string               `json:"question"`
	Mentions    []string             `json:"mentions"`
	Resolutions []resolve.Resolution `json:"resolutions"`
	Subgraph    *graph.Subgraph      `json:"subgraph"`
	Hits        []vector.Hit         `json:"hits"`
	Evidence    []rank.EvidenceItem  `json:"evidence"`
	Context     string               `json:"context"`
}

// Answer is a generated answer with the retrieval behind it.
type Answer struct {
	*Retrieval
	Answer string `json:"answer"`
}

// Retrieve runs the graph path (mentions, resolution, expansion) and the
// vector path (embedding, search) concurrently and ranks the union. A
// question with no resolvable mentions still gets vector evidence. Store and
// embedding failures are returned.
func (e *Engine) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	requestID := uuid.NewString()
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Retrieve", trace.WithAttributes(
		attribute.String("request.id", requestID),
	))
	defer span.End()

	r := &Retrieval{
		RequestID: requestID,
		Question:  question,
		Subgraph:  graph.NewSubgraph(),
		Hits:      []vector.Hit{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.graphPath(gctx, r)
	})
	g.Go(func() error {
		hits, err := e.vectorPath(gctx, question)
		if err != nil {
			return err
		}
		r.Hits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		e.logger.Error("Retrieval failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	r.Evidence = rank.Rank(r.Subgraph, r.Hits, e.opts.EvidenceLimit)
	r.Context = rank.FormatContext(r.Evidence)

	span.SetAttributes(
		attribute.Int("retrieval.mentions", len(r.Mentions)),
		attribute.Int("retrieval.nodes", len(r.Subgraph.Nodes)),
		attribute.Int("retrieval.hits", len(r.Hits)),
		attribute.Int("retrieval.evidence", len(r.Evidence)),
	)
	e.logger.Info("Retrieval completed",
		zap.String("request_id", requestID),
		zap.Strings("mentions", r.Mentions),
		zap.Int("nodes", len(r.Subgraph.Nodes)),
		zap.Int("relationships", len(r.Subgraph.Relationships)),
		zap.Int("hits", len(r.Hits)),
		zap.Duration("duration", time.Since(start)),
	)
	return r, nil
}

func (e *Engine) graphPath(ctx context.Context, r *Retrieval) error {
	ctx, span := e.tracer.Start(ctx, "engine.graphPath")
	defer span.End()

	mentions, err := e.recognizer.Mentions(ctx, r.Question)
	if err != nil {
		return err
	}
	r.Mentions = mentions
	if len(mentions) == 0 {
		return nil
	}

	resolutions, err := e.resolver.Resolve(ctx, mentions)
	if err != nil {
		return err
	}
	r.Resolutions = resolutions

	seeds := resolve.SeedIDs(resolutions)
	span.SetAttributes(attribute.Int("graph.seeds", len(seeds)))
	if len(seeds) == 0 {
		return nil
	}
	sg, err := e.retriever.Expand(ctx, seeds, e.opts.MaxDepth, e.opts.MaxNodes)
	if err != nil {
		return err
	}
	r.Subgraph = sg
	return nil
}

func (e *Engine) vectorPath(ctx context.Context, question string) ([]vector.Hit, error) {
	if e.index == nil || e.embedder == nil {
		return []vector.Hit{}, nil
	}
	ctx, span := e.tracer.Start(ctx, "engine.vectorPath")
	defer span.End()

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	hits, err := e.index.Search(ctx, vec, e.opts.TopK)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []vector.Hit{}
	}
	span.SetAttributes(attribute.Int("vector.hits", len(hits)))
	return hits, nil
}

// Answer retrieves evidence for the question and asks the LLM to answer
// from it.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Answer")
	defer span.End()

	r, err := e.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	text, err := e.llm.Complete(ctx, extract.AnswerPrompt(question, r.Context))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer generation failed")
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	e.logger.Info("Answer generated", zap.String("request_id", r.RequestID), zap.Int("evidence", len(r.Evidence)))
	return &Answer{Retrieval: r, Answer: text}, nil
}

// Stats reports graph and passage counts.
func (e *Engine) Stats(ctx context.Context) (graph.Stats, int, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return graph.Stats{}, 0, err
	}
	if e.index == nil {
		return st, 0, nil
	}
	n, err := e.index.Count(ctx)
	if err != nil {
		return graph.Stats{}, 0, err
	}
	return st, n, nil
}
