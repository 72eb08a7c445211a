package graph

import (
	"context"
	"fmt"
	"sort"

	apperrors "reqgraph/backend/pkg/errors"
)

// Store is a property graph backend with idempotent upsert semantics.
//
// Upsert merges nodes on their id and relationships on (source, type,
// target). Properties missing from a write are kept; a property present in
// both the stored node and the write takes the written value. Relationships
// must reference nodes that are either in the same batch or already stored.
//
// Errors that wrap *errors.ErrStoreUnavailable are the only retryable ones.
type Store interface {
	Upsert(ctx context.Context, nodes []Node, rels []Relationship) (UpsertCounts, error)
	Query(ctx context.Context, q NeighborQuery) (*Subgraph, error)
	Lookup(ctx context.Context, ids []NodeID) ([]Node, error)
	Names(ctx context.Context) ([]NodeName, error)
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}

// batch is an upsert input with duplicates merged and keys checked.
type batch struct {
	nodes []Node
	rels  []Relationship
}

// prepareBatch collapses duplicate nodes and relationships (later property
// values win) and rejects records without a usable key. The "id" and "label"
// node properties are reserved for the key and type and are dropped.
func prepareBatch(nodes []Node, rels []Relationship) (*batch, error) {
	b := &batch{}
	nodeIdx := make(map[NodeID]int, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, apperrors.NewStoreConstraint("upsert", "node without id", nil)
		}
		props := ScalarProperties(n.Properties)
		delete(props, "id")
		delete(props, "label")
		if i, ok := nodeIdx[n.ID]; ok {
			for k, v := range props {
				b.nodes[i].Properties[k] = v
			}
			if n.Label != "" {
				b.nodes[i].Label = n.Label
			}
			continue
		}
		label := n.Label
		if label == "" {
			label = DefaultLabel
		}
		nodeIdx[n.ID] = len(b.nodes)
		b.nodes = append(b.nodes, Node{ID: n.ID, Label: label, Properties: props})
	}

	relIdx := make(map[RelKey]int, len(rels))
	for _, r := range rels {
		if r.Source == "" || r.Target == "" || r.Type == "" {
			return nil, apperrors.NewStoreConstraint("upsert", fmt.Sprintf("relationship %s has an empty key field", r.Key()), nil)
		}
		props := ScalarProperties(r.Properties)
		if i, ok := relIdx[r.Key()]; ok {
			for k, v := range props {
				b.rels[i].Properties[k] = v
			}
			continue
		}
		relIdx[r.Key()] = len(b.rels)
		b.rels = append(b.rels, Relationship{Source: r.Source, Type: r.Type, Target: r.Target, Properties: props})
	}
	return b, nil
}

// relTypeFilter returns a membership test for NeighborQuery.RelTypes.
func relTypeFilter(types []string) func(string) bool {
	if len(types) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[CanonicalRelType(t)] = struct{}{}
	}
	return func(t string) bool {
		_, ok := set[t]
		return ok
	}
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []NodeID) []NodeID {
	seen := make(map[NodeID]struct{}, len(ids))
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sortRelationships orders relationships by (type, source, target).
func sortRelationships(rels []Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
}
