package model

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"reqgraph/backend/internal/graph"
	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// Element is one parsed model element before conversion to a graph node.
type Element struct {
	XMIID      string            `json:"xmi_id,omitempty"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Diagram    string            `json:"diagram,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	References []Reference       `json:"references,omitempty"`

	node   *xmlNode
	nodeID graph.NodeID
}

// Reference is a typed link from an element to another element id.
type Reference struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Result is the outcome of parsing one model document.
type Result struct {
	Elements      []Element                  `json:"elements"`
	Nodes         []graph.Node               `json:"nodes"`
	Relationships []graph.Relationship       `json:"relationships"`
	Warnings      []*apperrors.ErrValidation `json:"-"`
}

// WarningMessages returns the warnings as strings.
func (r *Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// Parser converts SysML/XMI model documents into graph elements.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{logger: logger.Get()}
}

// Parse is NewParser().Parse.
func Parse(doc []byte) (*Result, error) {
	return NewParser().Parse(doc)
}

// ParseReader reads r fully and parses it.
func (p *Parser) ParseReader(r io.Reader) (*Result, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return p.Parse(doc)
}

// pendingRef is a reference collected in the first pass. Each end is either
// an element-bearing XML node or an xmi:id still to be resolved.
type pendingRef struct {
	kind     string
	from     *xmlNode
	fromID   string
	to       *xmlNode
	toID     string
	props    map[string]any
	location string
}

type parseState struct {
	byID     map[string]*xmlNode
	elements []*Element
	elemOf   map[*xmlNode]*Element
	refs     []pendingRef
	warnings []*apperrors.ErrValidation
}

// Parse converts a model document into nodes and relationships.
//
// It works in two passes. The first indexes every element by xmi:id and
// collects graph elements and raw references; the second resolves the
// references against the index, so element order in the document does not
// matter. References that point nowhere are dropped and reported as
// warnings. A document that is not well-formed XMI, or holds no element the
// parser recognizes, is a ParseError.
func (p *Parser) Parse(doc []byte) (*Result, error) {
	root, err := decodeXMI(doc)
	if err != nil {
		return nil, err
	}

	st := &parseState{
		byID:   make(map[string]*xmlNode),
		elemOf: make(map[*xmlNode]*Element),
	}

	// Pass 1: index ids, collect elements and references.
	root.walk(func(n *xmlNode) {
		if id := n.xmiAttr("id"); id != "" {
			st.byID[id] = n
		}
	})
	p.collect(st, root, nil, "")
	if len(st.elements) == 0 {
		return nil, apperrors.NewParseError("model", "no elements of a known diagram or element schema", nil)
	}

	// Pass 2: resolve.
	res := &Result{}
	p.assignIDs(st)
	relIdx := map[graph.RelKey]int{}
	for _, ref := range st.refs {
		from := st.resolve(ref.from, ref.fromID)
		to := st.resolve(ref.to, ref.toID)
		if from == nil || to == nil {
			missing := ref.toID
			if from == nil {
				missing = ref.fromID
			}
			st.warn(ref.location, fmt.Sprintf("dangling %s reference to %q", ref.kind, missing))
			continue
		}
		if ref.kind == kindContains && from == to {
			continue
		}

		target := to.XMIID
		if target == "" {
			target = string(to.nodeID)
		}
		from.References = append(from.References, Reference{Kind: ref.kind, Target: target})

		relType := graph.CanonicalRelType(ref.kind)
		if relType == "" {
			relType = graph.CanonicalRelType("relatedTo")
		}
		rel := graph.Relationship{Source: from.nodeID, Type: relType, Target: to.nodeID, Properties: ref.props}
		if i, ok := relIdx[rel.Key()]; ok {
			for k, v := range ref.props {
				res.Relationships[i].Properties[k] = v
			}
			continue
		}
		if rel.Properties == nil {
			rel.Properties = map[string]any{}
		}
		relIdx[rel.Key()] = len(res.Relationships)
		res.Relationships = append(res.Relationships, rel)
	}

	res.Nodes = buildNodes(st.elements)
	res.Elements = make([]Element, 0, len(st.elements))
	for _, e := range st.elements {
		res.Elements = append(res.Elements, *e)
	}
	res.Warnings = st.warnings

	for _, w := range res.Warnings {
		p.logger.Warn("Model reference dropped", zap.String("detail", w.Error()))
	}
	p.logger.Info("Model parsed",
		zap.Int("elements", len(res.Elements)),
		zap.Int("nodes", len(res.Nodes)),
		zap.Int("relationships", len(res.Relationships)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

const kindContains = "contains"

// collect walks the tree recording graph elements. owner is the nearest
// enclosing graph element, diagram the nearest enclosing diagram name.
func (p *Parser) collect(st *parseState, n *xmlNode, owner *xmlNode, diagram string) {
	switch n.tag() {
	case "connections":
		p.collectConnection(st, n)
		return
	case "contents":
		if kind := diagramKind(n); kind != "" {
			e := st.addElement(n, TypeDiagram, diagram)
			e.Attributes["diagram_kind"] = kind
			if owner != nil {
				st.contain(owner, n)
			}
			p.collectAttributeRefs(st, n)
			for _, c := range n.Children {
				p.collect(st, c, n, e.Name)
			}
			return
		}
		if looksLikeDiagram(n) {
			st.warn(location(n), "unknown diagram kind "+strings.TrimSpace(n.xmiAttr("type")+" "+n.attr("stereotype")))
		} else if t := elementType(n); t != "" {
			owner = p.addNodeElement(st, n, t, owner, diagram)
		}
	case "nodes":
		if !isVisual(n) {
			t := elementType(n)
			if t == "" && nameOf(n) != "" {
				t = TypeModelElement
			}
			if t != "" {
				owner = p.addNodeElement(st, n, t, owner, diagram)
			}
		}
	}
	for _, c := range n.Children {
		p.collect(st, c, owner, diagram)
	}
}

func (p *Parser) addNodeElement(st *parseState, n *xmlNode, typ string, owner *xmlNode, diagram string) *xmlNode {
	if nameOf(n) == "" && n.xmiAttr("id") == "" {
		return owner
	}
	st.addElement(n, typ, diagram)
	if owner != nil {
		st.contain(owner, n)
	}
	p.collectAttributeRefs(st, n)
	return n
}

func (p *Parser) collectConnection(st *parseState, n *xmlNode) {
	source, target := n.attr("source"), n.attr("target")
	if source == "" || target == "" {
		st.warn(location(n), "connection without source or target")
		return
	}
	props := map[string]any{}
	if name := labelOf(n); name != "" {
		props["name"] = name
	}
	if guard := subLabel(n, "Guard"); guard != "" {
		props["guard"] = guard
	}
	st.refs = append(st.refs, pendingRef{
		kind:     connectionKind(n),
		fromID:   refID(source),
		toID:     refID(target),
		props:    props,
		location: location(n),
	})
}

func (p *Parser) collectAttributeRefs(st *parseState, n *xmlNode) {
	for _, ra := range referenceAttributes {
		for _, id := range strings.Fields(n.attr(ra.attr)) {
			st.refs = append(st.refs, pendingRef{
				kind:     ra.kind,
				from:     n,
				toID:     refID(id),
				location: location(n),
			})
		}
	}
	if owner := refID(n.attr("owner")); owner != "" {
		st.refs = append(st.refs, pendingRef{
			kind:     kindContains,
			fromID:   owner,
			to:       n,
			location: location(n),
		})
	}
}

func (st *parseState) addElement(n *xmlNode, typ, diagram string) *Element {
	e := &Element{
		XMIID:      n.xmiAttr("id"),
		Type:       typ,
		Name:       nameOf(n),
		Attributes: attributesOf(n),
		node:       n,
	}
	if typ != TypeDiagram {
		e.Diagram = diagram
	}
	st.elements = append(st.elements, e)
	st.elemOf[n] = e
	return e
}

func (st *parseState) contain(owner, child *xmlNode) {
	st.refs = append(st.refs, pendingRef{kind: kindContains, from: owner, to: child, location: location(child)})
}

func (st *parseState) warn(item, reason string) {
	st.warnings = append(st.warnings, apperrors.NewValidationError(item, reason))
}

// resolve finds the element for a node or id. Ids of presentation nodes
// resolve to their nearest enclosing element; any other id that is not an
// element (a connection, an unknown diagram) resolves to nothing.
func (st *parseState) resolve(n *xmlNode, id string) *Element {
	if n == nil {
		n = st.byID[id]
	}
	for ; n != nil; n = n.parent {
		if e, ok := st.elemOf[n]; ok {
			return e
		}
		if !isPresentation(n) {
			return nil
		}
	}
	return nil
}

// isPresentation reports whether n only draws part of its enclosing element:
// a shape, a label or a compartment row. Element nodes are found through
// elemOf before this is asked.
func isPresentation(n *xmlNode) bool {
	switch n.tag() {
	case "nodes", "subLabels", "stereotypeNodes":
		return true
	}
	return false
}

// assignIDs derives node ids. Named elements are keyed by name, so elements
// sharing a name across diagrams become one node; diagrams get a prefix so
// they never merge with the elements they show.
func (p *Parser) assignIDs(st *parseState) {
	for _, e := range st.elements {
		switch {
		case e.Type == TypeDiagram:
			name := e.Name
			if name == "" {
				name = e.XMIID
			}
			e.nodeID = graph.CanonicalID("diagram " + name)
		case e.Name != "":
			e.nodeID = graph.CanonicalID(e.Name)
		}
		if e.nodeID == "" {
			e.nodeID = graph.CanonicalID(e.Type + " " + e.XMIID)
		}
	}
}

// buildNodes merges elements sharing a node id. Later properties win; a
// specific type replaces the generic ModelElement type.
func buildNodes(elements []*Element) []graph.Node {
	var nodes []graph.Node
	idx := map[graph.NodeID]int{}
	for _, e := range elements {
		props := map[string]any{"element_type": e.Type}
		if e.Name != "" {
			props["name"] = graph.DisplayName(e.Name)
		}
		if e.XMIID != "" {
			props["xmi_id"] = e.XMIID
		}
		if e.Diagram != "" {
			props["diagram"] = e.Diagram
		}
		for k, v := range e.Attributes {
			props[k] = v
		}

		if i, ok := idx[e.nodeID]; ok {
			existing := &nodes[i]
			if existing.Label == graph.CanonicalLabel(TypeModelElement) && e.Type != TypeModelElement {
				existing.Label = graph.CanonicalLabel(e.Type)
			} else {
				props["element_type"] = existing.Properties["element_type"]
			}
			for k, v := range props {
				existing.Properties[k] = v
			}
			continue
		}
		idx[e.nodeID] = len(nodes)
		nodes = append(nodes, graph.Node{ID: e.nodeID, Label: graph.CanonicalLabel(e.Type), Properties: props})
	}
	return nodes
}

// nameOf returns an element's name: the name attribute, else the Name
// sub-label some tools write instead.
func nameOf(n *xmlNode) string {
	if name := strings.TrimSpace(n.attr("name")); name != "" {
		return graph.DisplayName(name)
	}
	return graph.DisplayName(subLabel(n, "Name"))
}

// labelOf returns a connection's display label.
func labelOf(n *xmlNode) string {
	return nameOf(n)
}

func subLabel(n *xmlNode, alias string) string {
	for _, c := range n.Children {
		if c.tag() == "subLabels" && c.attr("alias") == alias {
			return strings.TrimSpace(c.attr("name"))
		}
	}
	return ""
}

// attributesOf copies the descriptive attributes of n, the text of
// documentation children and "key: value" property compartment rows.
func attributesOf(n *xmlNode) map[string]string {
	attrs := map[string]string{}
	for _, a := range descriptiveAttributes {
		if v := strings.TrimSpace(n.attr(a)); v != "" {
			attrs[propertyKey(a)] = v
		}
	}
	for _, c := range n.Children {
		if key, ok := descriptiveChildren[c.tag()]; ok {
			text := strings.TrimSpace(c.Text)
			if text == "" {
				text = strings.TrimSpace(c.attr("body"))
			}
			if text != "" {
				attrs[key] = text
			}
		}
		if c.tag() == "nodes" && c.attr("type") == "stereotype_properties" {
			for _, row := range c.Children {
				if row.attr("type") != "ListCompartmentChild" {
					continue
				}
				key, value, ok := strings.Cut(row.attr("name"), ":")
				key, value = strings.TrimSpace(key), strings.TrimSpace(value)
				if !ok || key == "" || value == "" {
					continue
				}
				if k := propertyKey(key); k != "" {
					attrs[k] = value
				}
			}
		}
	}
	return attrs
}

// propertyKey turns an attribute or compartment key into a property name.
func propertyKey(key string) string {
	k := string(graph.CanonicalID(key))
	if r, ok := reservedProperties[k]; ok {
		return r
	}
	return k
}

// refID strips a document prefix from a reference ("other.xmi#id" -> "id").
func refID(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "#"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

func location(n *xmlNode) string {
	desc := n.tag()
	if id := n.xmiAttr("id"); id != "" {
		desc += " " + id
	}
	if name := nameOf(n); name != "" {
		desc += fmt.Sprintf(" %q", name)
	}
	return desc
}
