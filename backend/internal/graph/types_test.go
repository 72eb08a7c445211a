package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubgraph_AddDeduplicates(t *testing.T) {
	sg := NewSubgraph()
	assert.True(t, sg.AddNode(Node{ID: "a"}))
	assert.False(t, sg.AddNode(Node{ID: "a", Label: "Other"}))
	assert.True(t, sg.AddNode(Node{ID: "b"}))

	rel := Relationship{Source: "a", Type: "LINKS", Target: "b"}
	assert.True(t, sg.AddRelationship(rel))
	assert.False(t, sg.AddRelationship(rel))

	assert.Len(t, sg.Nodes, 2)
	assert.Len(t, sg.Relationships, 1)
	assert.True(t, sg.HasNode("b"))
	assert.False(t, sg.HasNode("c"))
	require.NoError(t, sg.Validate())
}

func TestSubgraph_ValidateClosure(t *testing.T) {
	sg := &Subgraph{
		Nodes:         []Node{{ID: "a"}},
		Relationships: []Relationship{{Source: "a", Type: "LINKS", Target: "b"}},
	}
	assert.ErrorContains(t, sg.Validate(), "target not in subgraph")

	dup := &Subgraph{Nodes: []Node{{ID: "a"}, {ID: "a"}}}
	assert.ErrorContains(t, dup.Validate(), "duplicate node")
}

func TestSubgraph_LiteralIsIndexedLazily(t *testing.T) {
	sg := &Subgraph{Nodes: []Node{{ID: "a", Properties: map[string]any{"name": "Alpha"}}}}
	n, ok := sg.Node("a")
	require.True(t, ok)
	assert.Equal(t, "Alpha", n.Name())
	assert.False(t, sg.AddNode(Node{ID: "a"}))
}

func TestUpsertCounts(t *testing.T) {
	c := UpsertCounts{NodesCreated: 2, RelationshipsMerged: 1}.Add(UpsertCounts{NodesMerged: 3, RelationshipsCreated: 4})
	assert.Equal(t, 6, c.Created())
	assert.Equal(t, 4, c.Merged())
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, Outgoing, ParseDirection("out"))
	assert.Equal(t, Incoming, ParseDirection("incoming"))
	assert.Equal(t, Both, ParseDirection(""))
	assert.Equal(t, "both", Both.String())
}
