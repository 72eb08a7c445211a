package graph

import (
	"fmt"
)

// ============================================================================
// Graph Elements
// ============================================================================

// NodeID is the canonical key of a node. See CanonicalID.
type NodeID string

// Node is a typed entity with scalar properties. Properties["name"] holds the
// display name with its original casing.
type Node struct {
	ID         NodeID         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Name returns the display name, falling back to the id.
func (n Node) Name() string {
	if name, ok := n.Properties["name"].(string); ok && name != "" {
		return name
	}
	return string(n.ID)
}

// Relationship is a typed directed edge. (Source, Type, Target) is unique.
type Relationship struct {
	Source     NodeID         `json:"source"`
	Type       string         `json:"type"`
	Target     NodeID         `json:"target"`
	Properties map[string]any `json:"properties,omitempty"`
}

// RelKey identifies a relationship.
type RelKey struct {
	Source NodeID
	Type   string
	Target NodeID
}

// Key returns the merge key of the relationship.
func (r Relationship) Key() RelKey {
	return RelKey{Source: r.Source, Type: r.Type, Target: r.Target}
}

func (k RelKey) String() string {
	return fmt.Sprintf("(%s)-[%s]->(%s)", k.Source, k.Type, k.Target)
}

// NodeName pairs a node id with its display name.
type NodeName struct {
	ID   NodeID `json:"id"`
	Name string `json:"name"`
}

// UpsertCounts reports what an upsert did. Merged counts records that already
// existed and had their properties merged.
type UpsertCounts struct {
	NodesCreated         int `json:"nodes_created"`
	NodesMerged          int `json:"nodes_merged"`
	RelationshipsCreated int `json:"relationships_created"`
	RelationshipsMerged  int `json:"relationships_merged"`
}

// Created returns the number of new records.
func (c UpsertCounts) Created() int {
	return c.NodesCreated + c.RelationshipsCreated
}

// Merged returns the number of records that already existed.
func (c UpsertCounts) Merged() int {
	return c.NodesMerged + c.RelationshipsMerged
}

// Add accumulates another batch's counts.
func (c UpsertCounts) Add(o UpsertCounts) UpsertCounts {
	return UpsertCounts{
		NodesCreated:         c.NodesCreated + o.NodesCreated,
		NodesMerged:          c.NodesMerged + o.NodesMerged,
		RelationshipsCreated: c.RelationshipsCreated + o.RelationshipsCreated,
		RelationshipsMerged:  c.RelationshipsMerged + o.RelationshipsMerged,
	}
}

// Stats is a record count of the whole store.
type Stats struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
}

// ============================================================================
// Queries
// ============================================================================

// Direction restricts which relationships a neighbour query follows.
type Direction int

const (
	Both Direction = iota
	Outgoing
	Incoming
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return "both"
	}
}

// ParseDirection maps "out", "in" and anything else to a Direction.
func ParseDirection(s string) Direction {
	switch s {
	case "out", "outgoing":
		return Outgoing
	case "in", "incoming":
		return Incoming
	default:
		return Both
	}
}

// NeighborQuery asks for the direct neighbours of a set of anchor nodes.
// An empty RelTypes matches every relationship type. Limit caps the number of
// relationships returned; zero or less means no cap.
type NeighborQuery struct {
	NodeIDs   []NodeID
	RelTypes  []string
	Direction Direction
	Limit     int
}

// ============================================================================
// Subgraph
// ============================================================================

// Subgraph is a set of nodes and the relationships between them. Nodes keep
// their discovery order. Depth, when set, maps each node to its hop distance
// from the nearest seed.
type Subgraph struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
	Depth         map[NodeID]int `json:"depth,omitempty"`

	nodeIdx map[NodeID]int
	relIdx  map[RelKey]int
}

// NewSubgraph returns an empty subgraph.
func NewSubgraph() *Subgraph {
	return &Subgraph{
		Nodes:         []Node{},
		Relationships: []Relationship{},
		Depth:         map[NodeID]int{},
	}
}

func (s *Subgraph) index() {
	if s.nodeIdx != nil {
		return
	}
	s.nodeIdx = make(map[NodeID]int, len(s.Nodes))
	for i, n := range s.Nodes {
		s.nodeIdx[n.ID] = i
	}
	s.relIdx = make(map[RelKey]int, len(s.Relationships))
	for i, r := range s.Relationships {
		s.relIdx[r.Key()] = i
	}
}

// AddNode appends n unless a node with the same id is present. It reports
// whether the node was added.
func (s *Subgraph) AddNode(n Node) bool {
	s.index()
	if _, ok := s.nodeIdx[n.ID]; ok {
		return false
	}
	s.nodeIdx[n.ID] = len(s.Nodes)
	s.Nodes = append(s.Nodes, n)
	return true
}

// AddRelationship appends r unless its key is present.
func (s *Subgraph) AddRelationship(r Relationship) bool {
	s.index()
	if _, ok := s.relIdx[r.Key()]; ok {
		return false
	}
	s.relIdx[r.Key()] = len(s.Relationships)
	s.Relationships = append(s.Relationships, r)
	return true
}

// HasNode reports whether id is in the node set.
func (s *Subgraph) HasNode(id NodeID) bool {
	s.index()
	_, ok := s.nodeIdx[id]
	return ok
}

// Node returns the node with the given id.
func (s *Subgraph) Node(id NodeID) (Node, bool) {
	s.index()
	i, ok := s.nodeIdx[id]
	if !ok {
		return Node{}, false
	}
	return s.Nodes[i], true
}

// Empty reports whether the subgraph has no nodes.
func (s *Subgraph) Empty() bool {
	return s == nil || len(s.Nodes) == 0
}

// Validate checks closure and uniqueness: every relationship endpoint is a
// member of the node set and nothing appears twice.
func (s *Subgraph) Validate() error {
	ids := make(map[NodeID]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("duplicate node %q", n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	keys := make(map[RelKey]struct{}, len(s.Relationships))
	for _, r := range s.Relationships {
		if _, dup := keys[r.Key()]; dup {
			return fmt.Errorf("duplicate relationship %s", r.Key())
		}
		keys[r.Key()] = struct{}{}
		if _, ok := ids[r.Source]; !ok {
			return fmt.Errorf("relationship %s: source not in subgraph", r.Key())
		}
		if _, ok := ids[r.Target]; !ok {
			return fmt.Errorf("relationship %s: target not in subgraph", r.Key())
		}
	}
	return nil
}
