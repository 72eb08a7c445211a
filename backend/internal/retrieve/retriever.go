package retrieve

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"reqgraph/backend/internal/graph"
	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// Retriever expands seed nodes into a bounded neighbourhood subgraph.
type Retriever struct {
	store     graph.Store
	relTypes  []string
	direction graph.Direction
	logger    *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithRelTypes restricts expansion to the given relationship types.
func WithRelTypes(types ...string) Option {
	return func(r *Retriever) {
		r.relTypes = append([]string(nil), types...)
	}
}

// WithDirection restricts which relationship direction is followed.
func WithDirection(d graph.Direction) Option {
	return func(r *Retriever) {
		r.direction = d
	}
}

// NewRetriever creates a retriever reading from store.
func NewRetriever(store graph.Store, opts ...Option) *Retriever {
	r := &Retriever{store: store, direction: graph.Both, logger: logger.Get()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Expand walks the graph breadth-first from every seed at once and returns
// the nodes within maxDepth hops, capped at maxNodes, together with the
// relationships among them.
//
// Each depth level is one batched neighbour query. Seeds are visited in
// sorted order and neighbours in relationship order, so the same graph and
// inputs always give the same subgraph. Nodes are expanded at most once.
// The returned subgraph records each node's depth.
func (r *Retriever) Expand(ctx context.Context, seeds []graph.NodeID, maxDepth, maxNodes int) (*graph.Subgraph, error) {
	sg := graph.NewSubgraph()
	if len(seeds) == 0 || maxNodes <= 0 {
		return sg, nil
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	sorted := append([]graph.NodeID(nil), seeds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	found, err := r.store.Lookup(ctx, sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to load seeds: %w", err)
	}
	byID := make(map[graph.NodeID]graph.Node, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}

	var frontier []graph.NodeID
	var candidates []graph.Relationship
	for _, id := range sorted {
		n, ok := byID[id]
		if !ok || len(sg.Nodes) >= maxNodes {
			continue
		}
		if sg.AddNode(n) {
			sg.Depth[id] = 0
			frontier = append(frontier, id)
		}
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0 && len(sg.Nodes) < maxNodes; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewContextCancelled("expand", err)
		}
		level, err := r.store.Query(ctx, graph.NeighborQuery{
			NodeIDs:   frontier,
			RelTypes:  r.relTypes,
			Direction: r.direction,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to expand depth %d: %w", depth, err)
		}

		var next []graph.NodeID
		for _, rel := range level.Relationships {
			candidates = append(candidates, rel)
			for _, id := range []graph.NodeID{rel.Source, rel.Target} {
				if sg.HasNode(id) || len(sg.Nodes) >= maxNodes {
					continue
				}
				n, ok := level.Node(id)
				if !ok {
					continue
				}
				sg.AddNode(n)
				sg.Depth[id] = depth
				next = append(next, id)
			}
		}
		frontier = next
	}

	// Keep relationships whose endpoints both made it in.
	for _, rel := range candidates {
		if sg.HasNode(rel.Source) && sg.HasNode(rel.Target) {
			sg.AddRelationship(rel)
		}
	}

	r.logger.Debug("Subgraph expanded",
		zap.Int("seeds", len(seeds)),
		zap.Int("nodes", len(sg.Nodes)),
		zap.Int("relationships", len(sg.Relationships)),
		zap.Int("max_depth", maxDepth),
	)
	return sg, nil
}
