package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reqgraph/backend/internal/adapter"
	"reqgraph/backend/internal/document"
	"reqgraph/backend/internal/extract"
	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/model"
	"reqgraph/backend/internal/triples"
	"reqgraph/backend/internal/vector"
	"reqgraph/backend/pkg/logger"
)

// embedBatchSize caps the number of passages sent per embedding request.
const embedBatchSize = 64

// IngestReport summarises one ingestion.
type IngestReport struct {
	Source   string             `json:"source,omitempty"`
	Counts   graph.UpsertCounts `json:"counts"`
	Skipped  int                `json:"skipped"`
	Warnings []string           `json:"warnings,omitempty"`
	Triples  int                `json:"triples"`
	Passages int                `json:"passages"`
}

// Ingestor writes models, triples and documents into the graph and the
// passage index.
type Ingestor struct {
	store      graph.Store
	index      vector.Index
	embedder   adapter.Embedder
	normalizer *triples.Normalizer
	parser     *model.Parser
	extractor  *extract.Extractor
	logger     *zap.Logger
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithPassageIndex enables passage indexing for documents.
func WithPassageIndex(index vector.Index, embedder adapter.Embedder) IngestOption {
	return func(in *Ingestor) {
		in.index = index
		in.embedder = embedder
	}
}

// WithExtractor enables triple extraction from documents.
func WithExtractor(ex *extract.Extractor) IngestOption {
	return func(in *Ingestor) {
		in.extractor = ex
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *triples.Normalizer) IngestOption {
	return func(in *Ingestor) {
		in.normalizer = n
	}
}

// NewIngestor creates an ingestor writing to store.
func NewIngestor(store graph.Store, opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		store:      store,
		normalizer: triples.NewNormalizer(nil),
		parser:     model.NewParser(),
		logger:     logger.Get(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// IngestModel parses a structured model document and upserts its graph.
// Dangling references are reported as warnings. A document that cannot be
// parsed at all is returned as an error and nothing is written.
func (in *Ingestor) IngestModel(ctx context.Context, source string, doc []byte) (*IngestReport, error) {
	res, err := in.parser.Parse(doc)
	if err != nil {
		return nil, err
	}
	counts, err := in.store.Upsert(ctx, res.Nodes, res.Relationships)
	if err != nil {
		return nil, fmt.Errorf("failed to store model %s: %w", source, err)
	}
	report := &IngestReport{
		Source:   source,
		Counts:   counts,
		Skipped:  len(res.Warnings),
		Warnings: res.WarningMessages(),
	}
	in.logger.Info("Model ingested",
		zap.String("source", source),
		zap.Int("elements", len(res.Elements)),
		zap.Int("nodes_created", counts.NodesCreated),
		zap.Int("relationships_created", counts.RelationshipsCreated),
		zap.Int("warnings", len(res.Warnings)),
	)
	return report, nil
}

// IngestTriples normalizes triples and upserts them. Malformed triples are
// skipped and reported.
func (in *Ingestor) IngestTriples(ctx context.Context, ts []triples.Triple) (*IngestReport, error) {
	res := in.normalizer.Normalize(ts)
	report := &IngestReport{Skipped: res.SkippedCount(), Triples: len(ts)}
	for _, s := range res.Skipped {
		report.Warnings = append(report.Warnings, s.Error())
	}
	if len(res.Nodes) == 0 {
		return report, nil
	}
	counts, err := in.store.Upsert(ctx, res.Nodes, res.Relationships)
	if err != nil {
		return nil, fmt.Errorf("failed to store triples: %w", err)
	}
	report.Counts = counts
	in.logger.Info("Triples ingested",
		zap.Int("triples", len(ts)),
		zap.Int("skipped", report.Skipped),
		zap.Int("nodes_created", counts.NodesCreated),
		zap.Int("relationships_created", counts.RelationshipsCreated),
	)
	return report, nil
}

// IngestDocument indexes the document's passages and, when extractTriples is
// set, extracts triples from it and ingests them. Either step is skipped when
// the ingestor was built without its dependency.
func (in *Ingestor) IngestDocument(ctx context.Context, doc *document.Document, extractTriples bool) (*IngestReport, error) {
	report := &IngestReport{Source: doc.Source}

	if in.index != nil && in.embedder != nil {
		n, err := in.indexPassages(ctx, doc.Passages())
		if err != nil {
			return nil, err
		}
		report.Passages = n
	}

	if extractTriples && in.extractor != nil {
		ex, err := in.extractor.Extract(ctx, doc.Source, doc.Paragraphs)
		if err != nil {
			return nil, err
		}
		tr, err := in.IngestTriples(ctx, ex.Triples)
		if err != nil {
			return nil, err
		}
		report.Counts = tr.Counts
		report.Triples = tr.Triples
		report.Skipped = tr.Skipped + ex.Unparsed
		report.Warnings = tr.Warnings
		if ex.Unparsed > 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%d extraction windows could not be parsed", ex.Unparsed))
		}
	}

	in.logger.Info("Document ingested",
		zap.String("source", doc.Source),
		zap.Int("paragraphs", len(doc.Paragraphs)),
		zap.Int("passages", report.Passages),
		zap.Int("triples", report.Triples),
	)
	return report, nil
}

func (in *Ingestor) indexPassages(ctx context.Context, passages []vector.Passage) (int, error) {
	for start := 0; start < len(passages); start += embedBatchSize {
		chunk := passages[start:min(start+embedBatchSize, len(passages))]
		texts := make([]string, len(chunk))
		for i, p := range chunk {
			texts[i] = p.Text
		}
		vecs, err := in.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed passages: %w", err)
		}
		entries := make([]vector.Entry, len(chunk))
		for i, p := range chunk {
			entries[i] = vector.Entry{Passage: p, Vector: vecs[i]}
		}
		if err := in.index.Upsert(ctx, entries); err != nil {
			return 0, err
		}
	}
	return len(passages), nil
}
