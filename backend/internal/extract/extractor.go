package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reqgraph/backend/internal/adapter"
	"reqgraph/backend/internal/triples"
	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// Defaults for the sliding window.
const (
	DefaultWindow      = 4
	DefaultStep        = 3
	DefaultConcurrency = 4
)

// Extractor asks an LLM for triples over overlapping windows of paragraphs.
type Extractor struct {
	llm         adapter.Completer
	window      int
	step        int
	concurrency int
	logger      *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWindow sets the window size and step. Non-positive values keep the
// defaults.
func WithWindow(window, step int) Option {
	return func(e *Extractor) {
		if window > 0 {
			e.window = window
		}
		if step > 0 {
			e.step = step
		}
	}
}

// WithConcurrency bounds the number of LLM calls in flight.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExtractor creates an extractor.
func NewExtractor(llm adapter.Completer, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         llm,
		window:      DefaultWindow,
		step:        DefaultStep,
		concurrency: DefaultConcurrency,
		logger:      logger.Get(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extraction is the outcome of extracting one document.
type Extraction struct {
	Triples []triples.Triple `json:"triples"`
	Windows int              `json:"windows"`
	// Unparsed counts windows whose reply could not be read as triples.
	Unparsed int `json:"unparsed"`
}

// Span is a half-open paragraph range.
type Span struct {
	Start, End int
}

// Windows splits n paragraphs into spans of size window every step
// paragraphs. Paragraphs past the last full window form one final shorter
// span, so no paragraph is left out.
func Windows(n, window, step int) []Span {
	if n <= 0 || window <= 0 || step <= 0 {
		return nil
	}
	var spans []Span
	start := 0
	for ; start+window <= n; start += step {
		spans = append(spans, Span{start, start + window})
	}
	covered := 0
	if len(spans) > 0 {
		covered = spans[len(spans)-1].End
	}
	if covered < n {
		spans = append(spans, Span{min(start, covered), n})
	}
	return spans
}

// Extract runs the LLM over every window and returns the triples in window
// order, each tagged with source. Replies that are not valid JSON are
// repaired when possible and skipped otherwise. LLM failures abort the run.
func (e *Extractor) Extract(ctx context.Context, source string, paragraphs []string) (*Extraction, error) {
	spans := Windows(len(paragraphs), e.window, e.step)
	results := make([][]triples.Triple, len(spans))
	parsed := make([]bool, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, span := range spans {
		g.Go(func() error {
			reply, err := e.llm.Complete(gctx, buildTriplePrompt(paragraphs[span.Start:span.End]))
			if err != nil {
				return fmt.Errorf("window %d of %s: %w", i+1, source, err)
			}
			ts, err := ParseTriples(reply)
			if err != nil {
				e.logger.Warn("Skipping unparseable extraction reply",
					zap.String("source", source),
					zap.Int("window", i+1),
					zap.Error(err),
				)
				return nil
			}
			for j := range ts {
				if ts[j].Source == "" {
					ts[j].Source = source
				}
			}
			results[i], parsed[i] = ts, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Extraction{Windows: len(spans), Triples: []triples.Triple{}}
	for i, ts := range results {
		if !parsed[i] {
			out.Unparsed++
		}
		out.Triples = append(out.Triples, ts...)
	}
	e.logger.Info("Triples extracted",
		zap.String("source", source),
		zap.Int("windows", out.Windows),
		zap.Int("unparsed", out.Unparsed),
		zap.Int("triples", len(out.Triples)),
	)
	return out, nil
}

// ParseTriples reads an LLM reply as a triple document. Code fences are
// stripped and malformed JSON is repaired before decoding.
func ParseTriples(reply string) ([]triples.Triple, error) {
	body := stripFences(reply)
	if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
		return nil, apperrors.NewParseError("extraction reply", "no JSON found", nil)
	}
	if ts, err := triples.DecodeBytes([]byte(body)); err == nil {
		return ts, nil
	}
	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return nil, fmt.Errorf("json repair failed: %w", err)
	}
	return triples.DecodeBytes([]byte(repaired))
}

// stripFences removes a surrounding markdown code fence and any prose
// before the first JSON delimiter. Text with no delimiter is returned as is.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "{["); i > 0 {
		s = s[i:]
	}
	return s
}
