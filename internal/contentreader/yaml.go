package contentreader

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLReader reads descriptor documents written as YAML mappings. Nested
// mappings become child nodes in document order.
type YAMLReader struct{}

// Read implements Reader.
func (YAMLReader) Read(r io.Reader, name string) (*Node, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return newNode(name), nil
		}
		return nil, fmt.Errorf("decode yaml descriptor %q: %w", name, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	return fromYAML(name, root)
}

func fromYAML(name string, m *yaml.Node) (*Node, error) {
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yaml descriptor %q: line %d: expected a mapping", name, m.Line)
	}
	n := newNode(name)
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		if val.Kind == yaml.AliasNode {
			val = val.Alias
		}
		if val.Kind == yaml.MappingNode {
			child, err := fromYAML(key, val)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
			continue
		}
		var v any
		if err := val.Decode(&v); err != nil {
			return nil, fmt.Errorf("yaml descriptor %q: line %d: %w", name, val.Line, err)
		}
		if err := n.set(key, v); err != nil {
			return nil, err
		}
	}
	return n, nil
}
