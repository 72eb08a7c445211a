package triples

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"reqgraph/backend/internal/graph"
)

//go:embed aliases.yaml
var defaultAliases []byte

// PredicateMap is the fixed predicate normalization table. Alias keys are
// stored in canonical relationship-type form so spelling variants collapse.
type PredicateMap struct {
	aliases map[string]string
}

// DefaultPredicateMap returns the built-in alias table.
func DefaultPredicateMap() *PredicateMap {
	m, err := ParsePredicateMap(defaultAliases)
	if err != nil {
		panic(fmt.Sprintf("embedded predicate aliases: %v", err))
	}
	return m
}

// ParsePredicateMap reads a YAML document mapping canonical types to alias
// lists.
func ParsePredicateMap(data []byte) (*PredicateMap, error) {
	var doc map[string][]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse predicate aliases: %w", err)
	}
	m := &PredicateMap{aliases: make(map[string]string)}
	m.merge(doc)
	return m, nil
}

// LoadPredicateMap returns the built-in table overlaid with the aliases in
// path. An empty path returns the built-in table.
func LoadPredicateMap(path string) (*PredicateMap, error) {
	m := DefaultPredicateMap()
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predicate aliases: %w", err)
	}
	var doc map[string][]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse predicate aliases %s: %w", path, err)
	}
	m.merge(doc)
	return m, nil
}

func (m *PredicateMap) merge(doc map[string][]string) {
	// Sorted so overlapping aliases resolve the same way on every load.
	canon := make([]string, 0, len(doc))
	for k := range doc {
		canon = append(canon, k)
	}
	sort.Strings(canon)

	for _, k := range canon {
		target := graph.CanonicalRelType(k)
		if target == "" {
			continue
		}
		m.aliases[target] = target
		for _, alias := range doc[k] {
			if key := graph.CanonicalRelType(alias); key != "" {
				m.aliases[key] = target
			}
		}
	}
}

// RelType maps predicate text to its relationship type. Unknown predicates
// fall back to graph.CanonicalRelType. An empty result means the predicate
// has no usable type.
func (m *PredicateMap) RelType(predicate string) string {
	key := graph.CanonicalRelType(predicate)
	if key == "" {
		return ""
	}
	if m != nil {
		if t, ok := m.aliases[key]; ok {
			return t
		}
	}
	return key
}

// Len returns the number of known aliases, canonical types included.
func (m *PredicateMap) Len() int {
	return len(m.aliases)
}
