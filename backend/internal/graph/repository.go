package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// Repository is the Neo4j implementation of Store. Every node carries the
// shared :Node label (unique on id) plus its type label; the authoritative
// type is the label property. Each call opens its own session from the
// driver's connection pool.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// EnsureSchema creates the id uniqueness constraint. Failures are logged and
// ignored so read-only credentials still work.
func (r *Repository) EnsureSchema(ctx context.Context) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX node_name IF NOT EXISTS FOR (n:Node) ON (n.name)`,
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			r.logger.Warn("Neo4j schema init failed (continuing)", zap.Error(err))
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

// Reset deletes every node the store manages together with its
// relationships.
func (r *Repository) Reset(ctx context.Context) (int, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Node) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return 0, classifyError("reset", err)
	}
	r.logger.Info("Graph reset", zap.Int("nodes_deleted", deleted.(int)))
	return deleted.(int), nil
}

// Upsert implements Store. The whole batch runs in one write transaction, so
// a rejected relationship rolls back the nodes written with it.
func (r *Repository) Upsert(ctx context.Context, nodes []Node, rels []Relationship) (UpsertCounts, error) {
	var counts UpsertCounts
	b, err := prepareBatch(nodes, rels)
	if err != nil {
		return counts, err
	}
	if len(b.nodes) == 0 && len(b.rels) == 0 {
		return counts, nil
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		counts = UpsertCounts{}

		for _, group := range groupNodesByLabel(b.nodes) {
			query := fmt.Sprintf(`
				UNWIND $nodes AS n
				MERGE (x:Node {id: n.id})
				SET x += n.props, x.label = n.label, x:%s
			`, quoteIdentifier(group.label))

			rows := make([]map[string]any, 0, len(group.nodes))
			for _, n := range group.nodes {
				rows = append(rows, map[string]any{"id": string(n.ID), "label": n.Label, "props": n.Properties})
			}
			res, err := tx.Run(ctx, query, map[string]any{"nodes": rows})
			if err != nil {
				return nil, err
			}
			summary, err := res.Consume(ctx)
			if err != nil {
				return nil, err
			}
			created := summary.Counters().NodesCreated()
			counts.NodesCreated += created
			counts.NodesMerged += len(group.nodes) - created
		}

		for _, group := range groupRelationshipsByType(b.rels) {
			query := fmt.Sprintf(`
				UNWIND $rels AS r
				MATCH (a:Node {id: r.source})
				MATCH (b:Node {id: r.target})
				MERGE (a)-[e:%s]->(b)
				SET e += r.props
				RETURN count(e) AS matched
			`, quoteIdentifier(group.relType))

			rows := make([]map[string]any, 0, len(group.rels))
			for _, rel := range group.rels {
				rows = append(rows, map[string]any{"source": string(rel.Source), "target": string(rel.Target), "props": rel.Properties})
			}
			res, err := tx.Run(ctx, query, map[string]any{"rels": rows})
			if err != nil {
				return nil, err
			}
			record, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			if matched := getIntFromRecord(record, "matched"); matched < len(group.rels) {
				return nil, apperrors.NewStoreConstraint("upsert",
					fmt.Sprintf("%d %s relationship(s) reference unknown nodes", len(group.rels)-matched, group.relType), nil)
			}
			summary, err := res.Consume(ctx)
			if err != nil {
				return nil, err
			}
			created := summary.Counters().RelationshipsCreated()
			counts.RelationshipsCreated += created
			counts.RelationshipsMerged += len(group.rels) - created
		}
		return nil, nil
	})
	if err != nil {
		return UpsertCounts{}, classifyError("upsert", err)
	}

	r.logger.Info("Graph batch upserted",
		zap.Int("nodes_created", counts.NodesCreated),
		zap.Int("nodes_merged", counts.NodesMerged),
		zap.Int("relationships_created", counts.RelationshipsCreated),
		zap.Int("relationships_merged", counts.RelationshipsMerged),
	)
	return counts, nil
}

// Query implements Store.
func (r *Repository) Query(ctx context.Context, q NeighborQuery) (*Subgraph, error) {
	ids := uniqueIDs(q.NodeIDs)
	sg := NewSubgraph()
	if len(ids) == 0 {
		return sg, nil
	}

	pattern := "(a)-[rel]-(b:Node)"
	switch q.Direction {
	case Outgoing:
		pattern = "(a)-[rel]->(b:Node)"
	case Incoming:
		pattern = "(a)<-[rel]-(b:Node)"
	}
	types := make([]string, 0, len(q.RelTypes))
	for _, t := range q.RelTypes {
		types = append(types, CanonicalRelType(t))
	}

	query := fmt.Sprintf(`
		UNWIND range(0, size($ids) - 1) AS i
		MATCH (a:Node {id: $ids[i]})
		OPTIONAL MATCH %s
		WHERE size($types) = 0 OR type(rel) IN $types
		RETURN i,
		       a.id AS anchor_id, a.label AS anchor_label, properties(a) AS anchor_props,
		       type(rel) AS rel_type, startNode(rel).id AS rel_source, endNode(rel).id AS rel_target,
		       properties(rel) AS rel_props,
		       b.id AS other_id, b.label AS other_label, properties(b) AS other_props
		ORDER BY i, rel_type, other_id
	`, pattern)

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"ids": nodeIDStrings(ids), "types": types})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classifyError("query", err)
	}

	for _, record := range records.([]*neo4j.Record) {
		if anchor, ok := nodeFromRecord(record, "anchor_"); ok {
			sg.AddNode(anchor)
		}
		rel, ok := relationshipFromRecord(record)
		if !ok {
			continue
		}
		if q.Limit > 0 && len(sg.Relationships) >= q.Limit {
			break
		}
		if other, ok := nodeFromRecord(record, "other_"); ok {
			sg.AddNode(other)
		}
		sg.AddRelationship(rel)
	}
	return sg, nil
}

// Lookup implements Store.
func (r *Repository) Lookup(ctx context.Context, ids []NodeID) ([]Node, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []Node{}, nil
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND range(0, size($ids) - 1) AS i
			MATCH (n:Node {id: $ids[i]})
			RETURN n.id AS id, n.label AS label, properties(n) AS props
			ORDER BY i
		`, map[string]any{"ids": nodeIDStrings(ids)})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classifyError("lookup", err)
	}

	out := make([]Node, 0, len(ids))
	for _, record := range records.([]*neo4j.Record) {
		if n, ok := nodeFromRecord(record, ""); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Names implements Store.
func (r *Repository) Names(ctx context.Context) ([]NodeName, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Node)
			RETURN n.id AS id, coalesce(n.name, n.id) AS name
			ORDER BY id
		`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classifyError("list names", err)
	}

	list := records.([]*neo4j.Record)
	out := make([]NodeName, 0, len(list))
	for _, record := range list {
		out = append(out, NodeName{
			ID:   NodeID(getStringFromRecord(record, "id")),
			Name: getStringFromRecord(record, "name"),
		})
	}
	return out, nil
}

// Stats implements Store.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	record, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Node)
			WITH count(n) AS nodes
			OPTIONAL MATCH (:Node)-[rel]->(:Node)
			RETURN nodes, count(rel) AS relationships
		`, nil)
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return Stats{}, classifyError("stats", err)
	}

	rec := record.(*neo4j.Record)
	return Stats{
		Nodes:         getIntFromRecord(rec, "nodes"),
		Relationships: getIntFromRecord(rec, "relationships"),
	}, nil
}

type labelGroup struct {
	label string
	nodes []Node
}

func groupNodesByLabel(nodes []Node) []labelGroup {
	idx := map[string]int{}
	var groups []labelGroup
	for _, n := range nodes {
		i, ok := idx[n.Label]
		if !ok {
			i = len(groups)
			idx[n.Label] = i
			groups = append(groups, labelGroup{label: n.Label})
		}
		groups[i].nodes = append(groups[i].nodes, n)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
	return groups
}

type typeGroup struct {
	relType string
	rels    []Relationship
}

func groupRelationshipsByType(rels []Relationship) []typeGroup {
	idx := map[string]int{}
	var groups []typeGroup
	for _, rel := range rels {
		t := strings.TrimSpace(rel.Type)
		i, ok := idx[t]
		if !ok {
			i = len(groups)
			idx[t] = i
			groups = append(groups, typeGroup{relType: t})
		}
		groups[i].rels = append(groups[i].rels, rel)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].relType < groups[j].relType })
	return groups
}
