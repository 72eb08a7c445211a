package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqgraph/backend/internal/document"
	"reqgraph/backend/internal/extract"
	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/triples"
	"reqgraph/backend/internal/vector"
	apperrors "reqgraph/backend/pkg/errors"
)

const doorModel = `<?xml version="1.0" encoding="UTF-8"?>
<xmi:XMI xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI" xmlns:trufun="http://www.trufun.net/uml">
  <contents xmi:type="trufun:TDiagram" xmi:id="d1" name="Door Requirements" stereotype="SysmlRequirementDiagram">
    <nodes xmi:type="trufun:TClassNode" xmi:id="r1" name="Door Opening" stereotype="requirement" satisfiedBy="b1"/>
    <nodes xmi:type="trufun:TClassNode" xmi:id="b1" name="Door Controller" stereotype="block" verifiedBy="t9"/>
  </contents>
</xmi:XMI>`

func TestIngestModel(t *testing.T) {
	store := graph.NewMemoryStore()
	in := NewIngestor(store)

	report, err := in.IngestModel(context.Background(), "door.xmi", []byte(doorModel))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Counts.NodesCreated)
	assert.Equal(t, 3, report.Counts.RelationshipsCreated)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], `"t9"`)

	again, err := in.IngestModel(context.Background(), "door.xmi", []byte(doorModel))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Counts.Created(), "re-ingesting a model creates nothing")

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{Nodes: 3, Relationships: 3}, st)
}

func TestIngestModel_Malformed(t *testing.T) {
	store := graph.NewMemoryStore()
	_, err := NewIngestor(store).IngestModel(context.Background(), "bad.xmi", []byte("<xmi:XMI"))
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeParse))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Nodes)
}

func TestIngestTriples_DuplicatesCollapse(t *testing.T) {
	store := graph.NewMemoryStore()
	in := NewIngestor(store)
	ts := []triples.Triple{
		{Subject: "Door Controller", Predicate: "monitors", Object: "Door Sensor"},
		{Subject: "door controller", Predicate: "Monitors", Object: "door sensor"},
		{Subject: "", Predicate: "monitors", Object: "Door Sensor"},
	}

	report, err := in.IngestTriples(context.Background(), ts)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Triples)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Warnings, 1)
	assert.Equal(t, 2, report.Counts.NodesCreated)
	assert.Equal(t, 1, report.Counts.RelationshipsCreated)

	again, err := in.IngestTriples(context.Background(), ts)
	require.NoError(t, err)
	assert.Zero(t, again.Counts.Created())

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{Nodes: 2, Relationships: 1}, st)
}

func TestIngestTriples_StoreError(t *testing.T) {
	store := graph.NewMemoryStore()
	require.NoError(t, store.Close(context.Background()))

	_, err := NewIngestor(store).IngestTriples(context.Background(), []triples.Triple{
		{Subject: "a", Predicate: "p", Object: "b"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStoreUnavailable))
}

func TestIngestDocument(t *testing.T) {
	store := graph.NewMemoryStore()
	idx := vector.NewMemoryIndex()
	llm := &fakeLLM{answer: `{"triples": [{"subject": "Door Controller", "predicate": "monitors", "object": "Door Sensor"}]}`}
	in := NewIngestor(store,
		WithPassageIndex(idx, keywordEmbedder{}),
		WithExtractor(extract.NewExtractor(llm)),
	)
	doc := document.LoadText("door.txt", "The door controller monitors the door sensor.\n\nThe sensor reports every 10 ms.")

	report, err := in.IngestDocument(context.Background(), doc, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Passages)
	assert.Equal(t, 1, report.Triples)
	assert.Equal(t, 2, report.Counts.NodesCreated)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	report, err = in.IngestDocument(context.Background(), doc, false)
	require.NoError(t, err)
	assert.Zero(t, report.Triples)
	n, err = idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "passage ids are stable across runs")
}

func TestIngestDocument_WithoutIndex(t *testing.T) {
	in := NewIngestor(graph.NewMemoryStore())
	report, err := in.IngestDocument(context.Background(), document.LoadText("a.txt", "One.\n\nTwo."), true)
	require.NoError(t, err)
	assert.Zero(t, report.Passages)
	assert.Zero(t, report.Triples)
}
