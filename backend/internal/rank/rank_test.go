package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/vector"
)

func doorSubgraph() *graph.Subgraph {
	sg := graph.NewSubgraph()
	sg.AddNode(graph.Node{ID: "door_controller", Label: "Component", Properties: map[string]any{
		"name": "Door Controller", "description": "Opens and closes the door",
	}})
	sg.AddNode(graph.Node{ID: "door_sensor", Label: "Sensor", Properties: map[string]any{"name": "Door Sensor"}})
	sg.AddRelationship(graph.Relationship{Source: "door_controller", Type: "MONITORS", Target: "door_sensor"})
	sg.Depth["door_controller"] = 0
	sg.Depth["door_sensor"] = 1
	return sg
}

func TestRank_GraphWinsTies(t *testing.T) {
	sg := graph.NewSubgraph()
	sg.AddNode(graph.Node{ID: "door_controller", Properties: map[string]any{"name": "Door Controller"}})
	sg.Depth["door_controller"] = 0

	items := Rank(sg, []vector.Hit{{Passage: vector.Passage{ID: "p1", Text: "The controller opens the door."}, Score: 0.4}}, 0)
	require.Len(t, items, 2)
	assert.Equal(t, SourceGraph, items[0].Source)
	assert.Equal(t, SourceVector, items[1].Source)
	assert.Equal(t, 1.0, items[0].Score)
	assert.Equal(t, 1.0, items[1].Score)
	assert.Equal(t, 0.4, items[1].RawScore)
}

func TestRank_ScoresAndText(t *testing.T) {
	items := Rank(doorSubgraph(), nil, 0)
	require.Len(t, items, 3)

	assert.Equal(t, "Door Controller [Component]: Opens and closes the door", items[0].Text)
	assert.Equal(t, 1.0, items[0].Score)

	// The sensor node and the relationship are both at depth 1.
	assert.Equal(t, "Door Sensor [Sensor]", items[1].Text)
	assert.Equal(t, 0.0, items[1].Score)
	assert.Equal(t, 0.5, items[1].RawScore)
	assert.Equal(t, "Door Controller -[MONITORS]-> Door Sensor", items[2].Text)
	assert.Equal(t, &graph.RelKey{Source: "door_controller", Type: "MONITORS", Target: "door_sensor"}, items[2].Relationship)
}

func TestRank_MixedOrderAndLimit(t *testing.T) {
	hits := []vector.Hit{
		{Passage: vector.Passage{ID: "p1", Text: "a"}, Score: 0.9},
		{Passage: vector.Passage{ID: "p2", Text: "b"}, Score: 0.3},
		{Passage: vector.Passage{ID: "p3", Text: "c"}, Score: 0.6},
	}
	items := Rank(doorSubgraph(), hits, 0)
	require.Len(t, items, 6)

	var order []string
	for _, it := range items {
		if it.Source == SourceVector {
			order = append(order, it.PassageID)
		} else if it.NodeID != "" {
			order = append(order, string(it.NodeID))
		} else {
			order = append(order, "rel")
		}
	}
	assert.Equal(t, []string{"door_controller", "p1", "p3", "door_sensor", "rel", "p2"}, order)
	assert.InDelta(t, 0.5, items[2].Score, 1e-9)

	assert.Len(t, Rank(doorSubgraph(), hits, 2), 2)
	assert.Len(t, Rank(doorSubgraph(), hits, -1), 6)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil, nil, 5))
	assert.Empty(t, Rank(graph.NewSubgraph(), nil, 5))
}

func TestRank_Deterministic(t *testing.T) {
	hits := []vector.Hit{{Passage: vector.Passage{ID: "p1"}, Score: 0.5}, {Passage: vector.Passage{ID: "p2"}, Score: 0.5}}
	assert.Equal(t, Rank(doorSubgraph(), hits, 0), Rank(doorSubgraph(), hits, 0))
}

func TestFormatContext(t *testing.T) {
	out := FormatContext([]EvidenceItem{
		{Source: SourceGraph, Text: "Door Controller -[MONITORS]-> Door Sensor"},
		{Source: SourceVector, Text: "The sensor reports position."},
	})
	assert.Equal(t, "[1] (graph) Door Controller -[MONITORS]-> Door Sensor\n[2] (vector) The sensor reports position.", out)
	assert.Equal(t, "No relevant context was found.", FormatContext(nil))
}
