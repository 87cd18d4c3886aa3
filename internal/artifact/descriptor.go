package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrDescriptor marks a malformed descriptor document.
var ErrDescriptor = errors.New("invalid artifact descriptor")

// Subtree is one record of a component: a root-relative directory and the
// patterns used to select from it.
type Subtree struct {
	Path            string
	DefaultPatterns bool
	Include         []string
	Exclude         []string
	ForceInclude    []string
	Optional        bool
}

// Descriptor maps component names to their subtree records, in document
// order.
type Descriptor struct {
	components map[string][]Subtree
}

// Component returns the records of name. A component that is not described
// has no records.
func (d *Descriptor) Component(name string) []Subtree {
	if d == nil {
		return nil
	}
	return d.components[name]
}

// Components lists the described component names, sorted.
func (d *Descriptor) Components() []string {
	names := make([]string, 0, len(d.components))
	for n := range d.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadDescriptor reads a descriptor, choosing the format from the file
// extension: .toml, .yaml/.yml or .json/.jsonc.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOMLDescriptor(data)
	case ".yaml", ".yml":
		return ParseYAMLDescriptor(data)
	case ".json", ".jsonc":
		return ParseYAMLDescriptor(jsonc.ToJSON(data))
	default:
		return nil, fmt.Errorf("%w: unknown descriptor format %q", ErrDescriptor, filepath.Ext(path))
	}
}

// ParseTOMLDescriptor decodes a TOML descriptor. Subtree order is taken from
// the key order in the document.
func ParseTOMLDescriptor(data []byte) (*Descriptor, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDescriptor, err)
	}

	order := map[string][]string{}
	for _, k := range md.Keys() {
		if len(k) == 3 && k[0] == "components" {
			order[k[1]] = append(order[k[1]], k[2])
		}
	}

	comps, err := componentsTable(raw["components"])
	if err != nil {
		return nil, err
	}
	d := &Descriptor{components: map[string][]Subtree{}}
	for name, v := range comps {
		table, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: component %q is not a table", ErrDescriptor, name)
		}
		keys := orderedKeys(order[name], table)
		for _, rel := range keys {
			st, err := subtreeFromMap(name, rel, table[rel])
			if err != nil {
				return nil, err
			}
			d.components[name] = append(d.components[name], st)
		}
	}
	return d, nil
}

// ParseYAMLDescriptor decodes a YAML (or plain JSON) descriptor, keeping
// mapping order.
func ParseYAMLDescriptor(data []byte) (*Descriptor, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDescriptor, err)
	}
	d := &Descriptor{components: map[string][]Subtree{}}
	if len(doc.Content) == 0 {
		return d, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrDescriptor)
	}
	comps := mappingValue(root, "components")
	if comps == nil || isNull(comps) {
		return d, nil
	}
	if comps.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: components is not a mapping", ErrDescriptor)
	}
	for i := 0; i+1 < len(comps.Content); i += 2 {
		name, body := comps.Content[i].Value, comps.Content[i+1]
		if isNull(body) {
			continue
		}
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: component %q is not a mapping", ErrDescriptor, name)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			rel := body.Content[j].Value
			var rec any
			if err := body.Content[j+1].Decode(&rec); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrDescriptor, name, rel, err)
			}
			st, err := subtreeFromMap(name, rel, rec)
			if err != nil {
				return nil, err
			}
			d.components[name] = append(d.components[name], st)
		}
	}
	return d, nil
}

func componentsTable(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: components is not a table", ErrDescriptor)
	}
	return m, nil
}

// orderedKeys returns the keys of table following order, then any keys the
// order did not mention, sorted.
func orderedKeys(order []string, table map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for _, k := range order {
		if _, ok := table[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range table {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func subtreeFromMap(component, rel string, v any) (Subtree, error) {
	st := Subtree{Path: rel, DefaultPatterns: true}
	if v == nil {
		return st, nil
	}
	rec, ok := v.(map[string]any)
	if !ok {
		return st, fmt.Errorf("%w: %s.%s is not a table", ErrDescriptor, component, rel)
	}
	var err error
	where := component + "." + rel
	if st.DefaultPatterns, err = boolField(rec, "default_patterns", true, where); err != nil {
		return st, err
	}
	if st.Optional, err = boolField(rec, "optional", false, where); err != nil {
		return st, err
	}
	if st.Include, err = listField(rec, "include", where); err != nil {
		return st, err
	}
	if st.Exclude, err = listField(rec, "exclude", where); err != nil {
		return st, err
	}
	if st.ForceInclude, err = listField(rec, "force_include", where); err != nil {
		return st, err
	}
	return st, nil
}

func boolField(rec map[string]any, key string, def bool, where string) (bool, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("%w: %s.%s must be a boolean", ErrDescriptor, where, key)
	}
	return b, nil
}

// listField accepts a single string or a list of strings.
func listField(rec map[string]any, key, where string) ([]string, error) {
	switch v := rec[key].(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s must only contain strings", ErrDescriptor, where, key)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return append([]string(nil), v...), nil
	default:
		return nil, fmt.Errorf("%w: %s.%s must be a string or a list of strings", ErrDescriptor, where, key)
	}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
