package triples

import (
	"fmt"

	"go.uber.org/zap"

	"reqgraph/backend/internal/graph"
	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// Triple is one extracted (subject, predicate, object) fact.
type Triple struct {
	Subject     string  `json:"subject"`
	Predicate   string  `json:"predicate"`
	Object      string  `json:"object"`
	SubjectType string  `json:"subject_type,omitempty"`
	ObjectType  string  `json:"object_type,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Source      string  `json:"source,omitempty"`
}

func (t Triple) String() string {
	return fmt.Sprintf("(%q, %q, %q)", t.Subject, t.Predicate, t.Object)
}

// Result holds the canonical graph elements produced from a batch of triples.
type Result struct {
	Nodes         []graph.Node
	Relationships []graph.Relationship
	Skipped       []*apperrors.ErrValidation
}

// SkippedCount returns how many triples were discarded.
func (r Result) SkippedCount() int {
	return len(r.Skipped)
}

// Normalizer turns triples into nodes and relationships. It is deterministic:
// the same input always yields the same ids, keys and order.
type Normalizer struct {
	predicates *PredicateMap
	logger     *zap.Logger
}

// NewNormalizer creates a normalizer using the given predicate table, or the
// built-in one when nil.
func NewNormalizer(predicates *PredicateMap) *Normalizer {
	if predicates == nil {
		predicates = DefaultPredicateMap()
	}
	return &Normalizer{predicates: predicates, logger: logger.Get()}
}

// Normalize converts triples into graph elements. Node ids come from
// graph.CanonicalID; the first spelling seen in the batch becomes the display
// name. Duplicate nodes and relationships collapse, later property values
// winning. Triples with an empty part are skipped and reported, never
// returned as an error.
func (n *Normalizer) Normalize(ts []Triple) Result {
	res := Result{}
	nodeIdx := make(map[graph.NodeID]int)
	relIdx := make(map[graph.RelKey]int)

	addNode := func(text, typ string) graph.NodeID {
		id := graph.CanonicalID(text)
		label := graph.DefaultLabel
		if typ != "" {
			label = graph.CanonicalLabel(typ)
		}
		if i, ok := nodeIdx[id]; ok {
			if res.Nodes[i].Label == graph.DefaultLabel {
				res.Nodes[i].Label = label
			}
			return id
		}
		nodeIdx[id] = len(res.Nodes)
		res.Nodes = append(res.Nodes, graph.Node{
			ID:         id,
			Label:      label,
			Properties: map[string]any{"name": graph.DisplayName(text)},
		})
		return id
	}

	for i, t := range ts {
		item := fmt.Sprintf("triple #%d %s", i, t)
		relType := n.predicates.RelType(t.Predicate)
		switch {
		case graph.CanonicalID(t.Subject) == "":
			res.Skipped = append(res.Skipped, apperrors.NewValidationError(item, "empty subject"))
			continue
		case relType == "":
			res.Skipped = append(res.Skipped, apperrors.NewValidationError(item, "empty predicate"))
			continue
		case graph.CanonicalID(t.Object) == "":
			res.Skipped = append(res.Skipped, apperrors.NewValidationError(item, "empty object"))
			continue
		}

		src := addNode(t.Subject, t.SubjectType)
		dst := addNode(t.Object, t.ObjectType)

		props := map[string]any{"predicate": graph.DisplayName(t.Predicate)}
		if t.Confidence > 0 {
			props["confidence"] = t.Confidence
		}
		if t.Source != "" {
			props["source"] = t.Source
		}

		rel := graph.Relationship{Source: src, Type: relType, Target: dst, Properties: props}
		if j, ok := relIdx[rel.Key()]; ok {
			for k, v := range props {
				res.Relationships[j].Properties[k] = v
			}
			continue
		}
		relIdx[rel.Key()] = len(res.Relationships)
		res.Relationships = append(res.Relationships, rel)
	}

	if len(res.Skipped) > 0 {
		n.logger.Warn("Skipped malformed triples",
			zap.Int("skipped", len(res.Skipped)),
			zap.Int("total", len(ts)),
		)
	}
	n.logger.Debug("Triples normalized",
		zap.Int("nodes", len(res.Nodes)),
		zap.Int("relationships", len(res.Relationships)),
	)
	return res
}
