package triples

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "reqgraph/backend/pkg/errors"
)

// File is the on-disk and over-the-wire triple document.
type File struct {
	Triples []Triple `json:"triples"`
}

// wireTriple accepts both the flat form and the head/relation/tail form
// written by the extraction prompt.
type wireTriple struct {
	Subject     string  `json:"subject"`
	Predicate   string  `json:"predicate"`
	Object      string  `json:"object"`
	SubjectType string  `json:"subject_type"`
	ObjectType  string  `json:"object_type"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`

	Head     *wireEntity   `json:"head"`
	Relation *wireRelation `json:"relation"`
	Tail     *wireEntity   `json:"tail"`
}

type wireEntity struct {
	Label      string         `json:"label"`
	ID         any            `json:"id"`
	Properties map[string]any `json:"properties"`
}

// text prefers the name property and falls back to a string id.
func (e *wireEntity) text() string {
	if e == nil {
		return ""
	}
	if name, ok := e.Properties["name"].(string); ok && strings.TrimSpace(name) != "" {
		return name
	}
	if id, ok := e.ID.(string); ok {
		return id
	}
	return ""
}

type wireRelation struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

func (w wireTriple) triple() Triple {
	t := Triple{
		Subject:     w.Subject,
		Predicate:   w.Predicate,
		Object:      w.Object,
		SubjectType: w.SubjectType,
		ObjectType:  w.ObjectType,
		Confidence:  w.Confidence,
		Source:      w.Source,
	}
	if w.Head != nil && t.Subject == "" {
		t.Subject = w.Head.text()
		t.SubjectType = w.Head.Label
	}
	if w.Tail != nil && t.Object == "" {
		t.Object = w.Tail.text()
		t.ObjectType = w.Tail.Label
	}
	if w.Relation != nil && t.Predicate == "" {
		t.Predicate = w.Relation.Type
		if c, ok := w.Relation.Properties["confidence"].(float64); ok && t.Confidence == 0 {
			t.Confidence = c
		}
		if s, ok := w.Relation.Properties["source"].(string); ok && t.Source == "" {
			t.Source = s
		}
	}
	return t
}

// Decode reads a triple document: either {"triples": [...]} or a bare array.
// Entries that are not objects decode to empty triples, which the normalizer
// then skips and counts. A document that is not JSON is a ParseError.
func Decode(r io.Reader) ([]Triple, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read triples: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte) ([]Triple, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, apperrors.NewParseError("triples", "empty document", nil)
	}

	var raw []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, apperrors.NewParseError("triples", "invalid JSON array", err)
		}
	} else {
		var doc struct {
			Triples []json.RawMessage `json:"triples"`
		}
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return nil, apperrors.NewParseError("triples", "invalid JSON document", err)
		}
		raw = doc.Triples
	}

	out := make([]Triple, 0, len(raw))
	for _, item := range raw {
		var w wireTriple
		if err := json.Unmarshal(item, &w); err != nil {
			out = append(out, Triple{})
			continue
		}
		out = append(out, w.triple())
	}
	return out, nil
}

// Encode writes triples as an indented {"triples": [...]} document.
func Encode(w io.Writer, ts []Triple) error {
	if ts == nil {
		ts = []Triple{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(File{Triples: ts})
}
