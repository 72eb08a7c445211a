package graph

import (
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getMapFromRecord(record *neo4j.Record, key string) map[string]any {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	if m, ok := val.(map[string]any); ok {
		return m
	}
	return nil
}

// nodeFromRecord rebuilds a Node from the id, label and properties columns
// sharing a prefix. The bookkeeping keys stored on every node are stripped
// from the property map.
func nodeFromRecord(record *neo4j.Record, prefix string) (Node, bool) {
	id := getStringFromRecord(record, prefix+"id")
	if id == "" {
		return Node{}, false
	}
	label := getStringFromRecord(record, prefix+"label")
	if label == "" {
		label = DefaultLabel
	}
	props := make(map[string]any)
	for k, v := range getMapFromRecord(record, prefix+"props") {
		if k == "id" || k == "label" {
			continue
		}
		if s, ok := Scalar(v); ok {
			props[k] = s
		}
	}
	return Node{ID: NodeID(id), Label: label, Properties: props}, true
}

func relationshipFromRecord(record *neo4j.Record) (Relationship, bool) {
	relType := getStringFromRecord(record, "rel_type")
	source := getStringFromRecord(record, "rel_source")
	target := getStringFromRecord(record, "rel_target")
	if relType == "" || source == "" || target == "" {
		return Relationship{}, false
	}
	return Relationship{
		Source:     NodeID(source),
		Type:       relType,
		Target:     NodeID(target),
		Properties: ScalarProperties(getMapFromRecord(record, "rel_props")),
	}, true
}

// quoteIdentifier backtick-quotes a label or relationship type for Cypher.
func quoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func nodeIDStrings(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
