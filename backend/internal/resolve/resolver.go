package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reqgraph/backend/internal/graph"
	"reqgraph/backend/pkg/logger"
)

// SimilarityThreshold is the lowest fuzzy score accepted as a match.
const SimilarityThreshold = 0.5

// Method records how a mention was resolved.
type Method string

const (
	MethodExact      Method = "exact"
	MethodFuzzy      Method = "fuzzy"
	MethodUnresolved Method = "unresolved"
)

// Resolution maps one mention to a graph node, or to nothing.
type Resolution struct {
	Mention string       `json:"mention"`
	NodeID  graph.NodeID `json:"node_id,omitempty"`
	Score   float64      `json:"score"`
	Method  Method       `json:"method"`
}

// Resolved reports whether the mention matched a node.
func (r Resolution) Resolved() bool {
	return r.Method != MethodUnresolved && r.NodeID != ""
}

// Resolver matches free-text mentions to existing node ids.
type Resolver struct {
	store     graph.Store
	threshold float64
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold overrides SimilarityThreshold. Values outside (0, 1] are
// ignored.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		if t > 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// NewResolver creates a resolver reading from store.
func NewResolver(store graph.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		threshold: SimilarityThreshold,
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns one resolution per mention, in input order.
//
// A mention whose canonical id exists is an exact match with score 1. Other
// mentions are compared against every node name; the best Dice score at or
// above the threshold wins, with ties going to the smaller id. Anything else
// is unresolved. Mentions are independent of each other.
func (r *Resolver) Resolve(ctx context.Context, mentions []string) ([]Resolution, error) {
	out := make([]Resolution, len(mentions))
	var lookup []graph.NodeID
	for i, m := range mentions {
		out[i] = Resolution{Mention: m, Method: MethodUnresolved}
		if id := graph.CanonicalID(m); id != "" {
			lookup = append(lookup, id)
		}
	}
	if len(lookup) == 0 {
		return out, nil
	}

	found, err := r.store.Lookup(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to look up mentions: %w", err)
	}
	exists := make(map[graph.NodeID]bool, len(found))
	for _, n := range found {
		exists[n.ID] = true
	}

	pending := 0
	for i, m := range mentions {
		if id := graph.CanonicalID(m); exists[id] {
			out[i].NodeID, out[i].Score, out[i].Method = id, 1, MethodExact
		} else if id != "" {
			pending++
		}
	}
	if pending == 0 {
		return out, nil
	}

	names, err := r.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list node names: %w", err)
	}
	candidates := make([]candidate, 0, len(names))
	for _, n := range names {
		name := n.Name
		if name == "" {
			name = string(n.ID)
		}
		candidates = append(candidates, candidate{id: n.ID, grams: bigrams(name)})
	}

	for i, m := range mentions {
		if out[i].Method != MethodUnresolved || graph.CanonicalID(m) == "" {
			continue
		}
		id, score := best(bigrams(m), candidates)
		if id == "" || score < r.threshold {
			r.logger.Debug("Mention unresolved", zap.String("mention", m), zap.Float64("best_score", score))
			continue
		}
		out[i].NodeID, out[i].Score, out[i].Method = id, score, MethodFuzzy
	}
	return out, nil
}

// SeedIDs returns the distinct resolved node ids in resolution order.
func SeedIDs(rs []Resolution) []graph.NodeID {
	seen := make(map[graph.NodeID]bool, len(rs))
	var ids []graph.NodeID
	for _, r := range rs {
		if !r.Resolved() || seen[r.NodeID] {
			continue
		}
		seen[r.NodeID] = true
		ids = append(ids, r.NodeID)
	}
	return ids
}

type candidate struct {
	id    graph.NodeID
	grams map[string]int
}

func best(grams map[string]int, candidates []candidate) (graph.NodeID, float64) {
	var (
		bestID    graph.NodeID
		bestScore float64
	)
	for _, c := range candidates {
		s := dice(grams, c.grams)
		if s > bestScore || (s == bestScore && s > 0 && c.id < bestID) {
			bestID, bestScore = c.id, s
		}
	}
	return bestID, bestScore
}

// Similarity is the Sørensen–Dice coefficient of the character bigrams of a
// and b after normalization (case folded, punctuation and spacing
// collapsed). It is symmetric and lies in [0, 1].
func Similarity(a, b string) float64 {
	return dice(bigrams(a), bigrams(b))
}

func normalize(s string) string {
	return strings.ReplaceAll(string(graph.CanonicalID(s)), "_", " ")
}

// bigrams returns the multiset of adjacent rune pairs of the normalized
// text. Single-rune text is its own gram so it can still match exactly.
func bigrams(s string) map[string]int {
	runes := []rune(normalize(s))
	grams := map[string]int{}
	if len(runes) == 1 {
		grams[string(runes)]++
		return grams
	}
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

func dice(a, b map[string]int) float64 {
	var na, nb, common int
	for g, ca := range a {
		na += ca
		if cb, ok := b[g]; ok {
			common += min(ca, cb)
		}
	}
	for _, cb := range b {
		nb += cb
	}
	if na+nb == 0 {
		return 0
	}
	return 2 * float64(common) / float64(na+nb)
}
