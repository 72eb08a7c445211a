package model

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"

	apperrors "reqgraph/backend/pkg/errors"
)

// xmlNode is a generic XML element. Model files mix dozens of tool-specific
// element kinds, so they are decoded into a plain tree and interpreted by
// attribute rather than bound to fixed structs.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []*xmlNode `xml:",any"`

	parent *xmlNode
}

// attr returns an attribute without namespace.
func (n *xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// xmiAttr returns an attribute in the XMI namespace, such as xmi:id.
func (n *xmlNode) xmiAttr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local && isXMINamespace(a.Name.Space) {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) tag() string {
	return n.XMLName.Local
}

// xmiType returns xmi:type without its tool prefix ("trufun:TUseCaseNode"
// becomes "TUseCaseNode").
func (n *xmlNode) xmiType() string {
	t := n.xmiAttr("type")
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}
	return t
}

func (n *xmlNode) stereotype() string {
	return stripStereotype(n.attr("stereotype"))
}

func stripStereotype(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<<")
	s = strings.TrimSuffix(s, ">>")
	s = strings.TrimPrefix(s, "«")
	s = strings.TrimSuffix(s, "»")
	return strings.TrimSpace(s)
}

func isXMINamespace(space string) bool {
	return space != "" && strings.Contains(strings.ToLower(space), "xmi")
}

// walk visits n and its descendants in document order.
func (n *xmlNode) walk(fn func(*xmlNode)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

// decodeXMI reads a model document into a tree and checks that it is XMI.
func decodeXMI(doc []byte) (*xmlNode, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, apperrors.NewParseError("model", "empty document", nil)
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.CharsetReader = charset.NewReaderLabel

	root := &xmlNode{}
	if err := dec.Decode(root); err != nil {
		return nil, apperrors.NewParseError("model", "document is not well-formed XML", err)
	}
	if !isXMIRoot(root) {
		return nil, apperrors.NewParseError("model",
			"unknown element schema: root <"+root.tag()+"> is not an XMI document", nil)
	}

	var link func(n *xmlNode)
	link = func(n *xmlNode) {
		for _, c := range n.Children {
			c.parent = n
			link(c)
		}
	}
	link(root)
	return root, nil
}

func isXMIRoot(root *xmlNode) bool {
	if root.tag() == "XMI" || isXMINamespace(root.XMLName.Space) {
		return true
	}
	for _, a := range root.Attrs {
		if a.Name.Space == "xmlns" && strings.EqualFold(a.Name.Local, "xmi") {
			return true
		}
	}
	return root.xmiAttr("version") != ""
}
