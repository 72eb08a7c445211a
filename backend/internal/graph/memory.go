package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// MemoryStore is an in-process Store. It backs tests and runs where no Neo4j
// instance is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*Node
	rels   map[RelKey]*Relationship
	out    map[NodeID][]RelKey
	in     map[NodeID][]RelKey
	closed bool
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[NodeID]*Node),
		rels:   make(map[RelKey]*Relationship),
		out:    make(map[NodeID][]RelKey),
		in:     make(map[NodeID][]RelKey),
		logger: logger.Get(),
	}
}

// Upsert implements Store. The batch is validated before anything is written,
// so a rejected batch leaves the store untouched.
func (m *MemoryStore) Upsert(ctx context.Context, nodes []Node, rels []Relationship) (UpsertCounts, error) {
	var counts UpsertCounts
	if err := ctx.Err(); err != nil {
		return counts, apperrors.NewContextCancelled("upsert", err)
	}
	b, err := prepareBatch(nodes, rels)
	if err != nil {
		return counts, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return counts, apperrors.NewStoreClosed("upsert")
	}

	inBatch := make(map[NodeID]struct{}, len(b.nodes))
	for _, n := range b.nodes {
		inBatch[n.ID] = struct{}{}
	}
	for _, r := range b.rels {
		for _, end := range []NodeID{r.Source, r.Target} {
			if _, ok := inBatch[end]; ok {
				continue
			}
			if _, ok := m.nodes[end]; !ok {
				return counts, apperrors.NewStoreConstraint("upsert",
					fmt.Sprintf("relationship %s references unknown node %q", r.Key(), end), nil)
			}
		}
	}

	for _, n := range b.nodes {
		existing, ok := m.nodes[n.ID]
		if !ok {
			stored := Node{ID: n.ID, Label: n.Label, Properties: copyProps(n.Properties)}
			m.nodes[n.ID] = &stored
			counts.NodesCreated++
			continue
		}
		existing.Label = n.Label
		for k, v := range n.Properties {
			existing.Properties[k] = v
		}
		counts.NodesMerged++
	}

	for _, r := range b.rels {
		key := r.Key()
		existing, ok := m.rels[key]
		if !ok {
			stored := Relationship{Source: r.Source, Type: r.Type, Target: r.Target, Properties: copyProps(r.Properties)}
			m.rels[key] = &stored
			m.out[r.Source] = append(m.out[r.Source], key)
			m.in[r.Target] = append(m.in[r.Target], key)
			counts.RelationshipsCreated++
			continue
		}
		for k, v := range r.Properties {
			existing.Properties[k] = v
		}
		counts.RelationshipsMerged++
	}

	m.logger.Debug("Graph batch upserted",
		zap.Int("nodes_created", counts.NodesCreated),
		zap.Int("nodes_merged", counts.NodesMerged),
		zap.Int("relationships_created", counts.RelationshipsCreated),
		zap.Int("relationships_merged", counts.RelationshipsMerged),
	)
	return counts, nil
}

// Query implements Store. Anchors come back in request order; each anchor's
// relationships are ordered by type, then by the neighbour's id.
func (m *MemoryStore) Query(ctx context.Context, q NeighborQuery) (*Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("query", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, apperrors.NewStoreClosed("query")
	}

	match := relTypeFilter(q.RelTypes)
	sg := NewSubgraph()
	for _, id := range uniqueIDs(q.NodeIDs) {
		anchor, ok := m.nodes[id]
		if !ok {
			continue
		}
		sg.AddNode(cloneNode(*anchor))

		var keys []RelKey
		if q.Direction != Incoming {
			keys = append(keys, m.out[id]...)
		}
		if q.Direction != Outgoing {
			keys = append(keys, m.in[id]...)
		}
		other := func(k RelKey) NodeID {
			if k.Source == id {
				return k.Target
			}
			return k.Source
		}
		sort.SliceStable(keys, func(i, j int) bool {
			if keys[i].Type != keys[j].Type {
				return keys[i].Type < keys[j].Type
			}
			return other(keys[i]) < other(keys[j])
		})

		for _, k := range keys {
			if !match(k.Type) {
				continue
			}
			if q.Limit > 0 && len(sg.Relationships) >= q.Limit {
				return sg, nil
			}
			if n, ok := m.nodes[other(k)]; ok {
				sg.AddNode(cloneNode(*n))
			}
			r := m.rels[k]
			sg.AddRelationship(Relationship{Source: r.Source, Type: r.Type, Target: r.Target, Properties: copyProps(r.Properties)})
		}
	}
	return sg, nil
}

// Lookup implements Store.
func (m *MemoryStore) Lookup(ctx context.Context, ids []NodeID) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("lookup", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, apperrors.NewStoreClosed("lookup")
	}

	out := make([]Node, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if n, ok := m.nodes[id]; ok {
			out = append(out, cloneNode(*n))
		}
	}
	return out, nil
}

// Names implements Store. Results are sorted by id.
func (m *MemoryStore) Names(ctx context.Context) ([]NodeName, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("names", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, apperrors.NewStoreClosed("names")
	}

	out := make([]NodeName, 0, len(m.nodes))
	for id, n := range m.nodes {
		out = append(out, NodeName{ID: id, Name: n.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Nodes: len(m.nodes), Relationships: len(m.rels)}, nil
}

// Close implements Store. Later calls fail with a non-retryable StoreClosed.
func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func cloneNode(n Node) Node {
	return Node{ID: n.ID, Label: n.Label, Properties: copyProps(n.Properties)}
}
