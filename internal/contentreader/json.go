package contentreader

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
)

// JSONReader reads descriptor documents written as JSON objects. Nested
// objects become child nodes, ordered by name.
type JSONReader struct{}

// Read implements Reader.
func (JSONReader) Read(r io.Reader, name string) (*Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json descriptor %q: %w", name, err)
	}
	return fromJSON(name, doc)
}

func fromJSON(name string, doc map[string]any) (*Node, error) {
	n := newNode(name)
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		switch v := doc[key].(type) {
		case map[string]any:
			child, err := fromJSON(key, v)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		default:
			if err := n.set(key, jsonScalar(v)); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func jsonScalar(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonScalar(item)
		}
		return out
	}
	return v
}
