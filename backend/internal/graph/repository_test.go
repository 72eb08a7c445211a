package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "reqgraph/backend/pkg/errors"
)

// The Repository tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.
func createTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	if os.Getenv("NEO4J_URI") == "" {
		t.Skip("NEO4J_URI not set")
	}

	ctx := context.Background()
	repo, err := Connect(ctx, ConnectConfig{
		URI:      os.Getenv("NEO4J_URI"),
		User:     getEnvOrDefault("NEO4J_USER", "neo4j"),
		Password: getEnvOrDefault("NEO4J_PASSWORD", "password"),
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Skipf("Neo4j not reachable: %v", err)
	}
	repo.EnsureSchema(ctx)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

func cleanupPrefix(t *testing.T, repo *Repository, prefix string) {
	t.Cleanup(func() {
		ctx := context.Background()
		session := repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (n:Node) WHERE n.id STARTS WITH $prefix DETACH DELETE n", map[string]any{"prefix": prefix})
	})
}

func prefixed(prefix string) ([]Node, []Relationship) {
	nodes := doorNodes()
	for i := range nodes {
		nodes[i].ID = NodeID(prefix) + nodes[i].ID
	}
	rels := doorRels()
	for i := range rels {
		rels[i].Source = NodeID(prefix) + rels[i].Source
		rels[i].Target = NodeID(prefix) + rels[i].Target
	}
	return nodes, rels
}

func TestRepository_UpsertIsIdempotent(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	prefix := "test_" + time.Now().Format("20060102150405") + "_"
	cleanupPrefix(t, repo, prefix)

	nodes, rels := prefixed(prefix)
	first, err := repo.Upsert(ctx, nodes, rels)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NodesCreated)
	assert.Equal(t, 2, first.RelationshipsCreated)

	before, err := repo.Stats(ctx)
	require.NoError(t, err)

	second, err := repo.Upsert(ctx, nodes, rels)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created())

	after, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRepository_QueryAndLookup(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	prefix := "test_q_" + time.Now().Format("20060102150405") + "_"
	cleanupPrefix(t, repo, prefix)

	nodes, rels := prefixed(prefix)
	_, err := repo.Upsert(ctx, nodes, rels)
	require.NoError(t, err)

	sensor := NodeID(prefix + "door_sensor")
	sg, err := repo.Query(ctx, NeighborQuery{NodeIDs: []NodeID{sensor}})
	require.NoError(t, err)
	require.NoError(t, sg.Validate())
	assert.Len(t, sg.Nodes, 3)
	assert.Len(t, sg.Relationships, 2)

	sg, err = repo.Query(ctx, NeighborQuery{NodeIDs: []NodeID{sensor}, RelTypes: []string{"triggers"}, Direction: Outgoing})
	require.NoError(t, err)
	require.Len(t, sg.Relationships, 1)
	assert.Equal(t, "TRIGGERS", sg.Relationships[0].Type)

	found, err := repo.Lookup(ctx, []NodeID{sensor, "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Door Sensor", found[0].Name())
	assert.Equal(t, "Component", found[0].Label)
}

func TestRepository_RejectsDanglingRelationship(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	prefix := "test_d_" + time.Now().Format("20060102150405") + "_"
	cleanupPrefix(t, repo, prefix)

	_, err := repo.Upsert(ctx,
		[]Node{{ID: NodeID(prefix + "a")}},
		[]Relationship{{Source: NodeID(prefix + "a"), Type: "LINKS", Target: NodeID(prefix + "missing")}},
	)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStoreConstraint))

	found, err := repo.Lookup(ctx, []NodeID{NodeID(prefix + "a")})
	require.NoError(t, err)
	assert.Empty(t, found, "transaction must roll back")
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
