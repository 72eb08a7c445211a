package rank

import (
	"fmt"
	"sort"
	"strings"

	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/vector"
)

// Source tells where an evidence item came from.
type Source string

const (
	SourceGraph  Source = "graph"
	SourceVector Source = "vector"
)

// EvidenceItem is one ranked piece of context for answering a question.
type EvidenceItem struct {
	Source   Source  `json:"source"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	RawScore float64 `json:"raw_score"`

	NodeID       graph.NodeID  `json:"node_id,omitempty"`
	Relationship *graph.RelKey `json:"relationship,omitempty"`
	PassageID    string        `json:"passage_id,omitempty"`
	Depth        int           `json:"depth,omitempty"`

	order int
}

// Rank merges a retrieved subgraph and vector hits into one ordered list.
//
// Graph items score 1/(1+depth); vector items keep their similarity. Each
// source is min-max normalized to [0, 1] on its own, and a source whose
// scores are all equal (including one item) normalizes to 1. Items are
// ordered by normalized score, then graph before vector, then discovery
// order. A limit of zero or less keeps everything.
func Rank(sg *graph.Subgraph, hits []vector.Hit, limit int) []EvidenceItem {
	graphItems := graphEvidence(sg)
	vectorItems := make([]EvidenceItem, 0, len(hits))
	for _, h := range hits {
		vectorItems = append(vectorItems, EvidenceItem{
			Source:    SourceVector,
			Text:      h.Passage.Text,
			RawScore:  h.Score,
			PassageID: h.Passage.ID,
		})
	}
	normalize(graphItems)
	normalize(vectorItems)

	items := append(graphItems, vectorItems...)
	for i := range items {
		items[i].order = i
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Source != b.Source {
			return a.Source == SourceGraph
		}
		return a.order < b.order
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func graphEvidence(sg *graph.Subgraph) []EvidenceItem {
	if sg.Empty() {
		return nil
	}
	items := make([]EvidenceItem, 0, len(sg.Nodes)+len(sg.Relationships))
	for _, n := range sg.Nodes {
		d := sg.Depth[n.ID]
		items = append(items, EvidenceItem{
			Source:   SourceGraph,
			Text:     describeNode(n),
			RawScore: depthScore(d),
			NodeID:   n.ID,
			Depth:    d,
		})
	}
	for _, r := range sg.Relationships {
		d := max(sg.Depth[r.Source], sg.Depth[r.Target])
		key := r.Key()
		items = append(items, EvidenceItem{
			Source:       SourceGraph,
			Text:         describeRelationship(sg, r),
			RawScore:     depthScore(d),
			Relationship: &key,
			Depth:        d,
		})
	}
	return items
}

func depthScore(depth int) float64 {
	return 1 / (1 + float64(depth))
}

func normalize(items []EvidenceItem) {
	if len(items) == 0 {
		return
	}
	lo, hi := items[0].RawScore, items[0].RawScore
	for _, it := range items[1:] {
		lo = min(lo, it.RawScore)
		hi = max(hi, it.RawScore)
	}
	for i := range items {
		if hi == lo {
			items[i].Score = 1
			continue
		}
		items[i].Score = (items[i].RawScore - lo) / (hi - lo)
	}
}

// describeNode renders "Name [Label]: text".
func describeNode(n graph.Node) string {
	var b strings.Builder
	b.WriteString(n.Name())
	if n.Label != "" {
		fmt.Fprintf(&b, " [%s]", n.Label)
	}
	for _, key := range []string{"text", "description", "documentation"} {
		if v, ok := n.Properties[key].(string); ok && v != "" {
			b.WriteString(": ")
			b.WriteString(v)
			break
		}
	}
	return b.String()
}

// describeRelationship renders "Source -[TYPE]-> Target" using node names.
func describeRelationship(sg *graph.Subgraph, r graph.Relationship) string {
	name := func(id graph.NodeID) string {
		if n, ok := sg.Node(id); ok {
			return n.Name()
		}
		return string(id)
	}
	return fmt.Sprintf("%s -[%s]-> %s", name(r.Source), r.Type, name(r.Target))
}

// FormatContext renders ranked evidence as a numbered block for a prompt.
func FormatContext(items []EvidenceItem) string {
	if len(items) == 0 {
		return "No relevant context was found."
	}
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, it.Source, it.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
