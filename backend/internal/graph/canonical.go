package graph

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// Canonical Keys
// ============================================================================

var (
	nonWordRun    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	nonIDRun      = regexp.MustCompile(`[^\p{L}\p{N}+#]+`)
	camelBoundary = regexp.MustCompile(`([\p{Ll}\p{N}])(\p{Lu})`)
)

// CanonicalID derives the stable node key for a piece of entity text: trimmed,
// lower-cased, and with every run of characters other than letters, digits,
// '+' and '#' collapsed to a single underscore. "Door Controller" and
// " door  controller " both map to "door_controller" while "C++", "C#" and
// "C" stay distinct. An empty result means the text has no usable identifier.
func CanonicalID(text string) NodeID {
	s := strings.ToLower(strings.TrimSpace(text))
	s = nonIDRun.ReplaceAllString(s, "_")
	return NodeID(strings.Trim(s, "_"))
}

// DisplayName trims text and collapses internal whitespace, keeping case.
func DisplayName(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CanonicalRelType maps predicate text to an upper snake case relationship
// type: "monitors" becomes MONITORS, "allocatedTo" becomes ALLOCATED_TO and
// "is part of" becomes IS_PART_OF.
func CanonicalRelType(text string) string {
	s := camelBoundary.ReplaceAllString(strings.TrimSpace(text), "${1}_${2}")
	s = nonWordRun.ReplaceAllString(s, "_")
	s = strings.ToUpper(strings.Trim(s, "_"))
	if s == "" {
		return ""
	}
	if r, _ := utf8.DecodeRuneInString(s); unicode.IsDigit(r) {
		s = "_" + s
	}
	return s
}

// DefaultLabel is used for nodes whose type is unknown.
const DefaultLabel = "Entity"

// CanonicalLabel maps type text to a PascalCase node label ("use case" becomes
// UseCase). Empty input yields DefaultLabel.
func CanonicalLabel(text string) string {
	s := camelBoundary.ReplaceAllString(strings.TrimSpace(text), "${1}_${2}")
	var b strings.Builder
	for _, word := range nonWordRun.Split(s, -1) {
		if word == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(word[size:])
	}
	if b.Len() == 0 {
		return DefaultLabel
	}
	return b.String()
}

// Scalar coerces a property value to one of the scalar types the graph
// stores (string, int64, float64, bool). Other values are rejected.
func Scalar(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return nil, false
	}
}

// ScalarProperties copies props keeping only scalar values.
func ScalarProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == "" {
			continue
		}
		if s, ok := Scalar(v); ok {
			out[k] = s
		}
	}
	return out
}
