// Package contentreader parses descriptor files shipped with a unit into
// content trees, and keeps the registry of readers by file extension.
package contentreader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Keys with special meaning in descriptor documents.
const (
	PrimaryTypeKey = "jcr:primaryType"
	MixinTypesKey  = "jcr:mixinTypes"
)

// Node is one node of a parsed content tree.
//
// Property values are string, bool, int64, float64, time.Time or []string.
type Node struct {
	Name       string
	Type       string
	Mixins     []string
	Properties map[string]any
	Children   []*Node
}

// Reader parses a descriptor document into a content tree rooted at a node
// named name.
type Reader interface {
	Read(r io.Reader, name string) (*Node, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(r io.Reader, name string) (*Node, error)

// Read calls f.
func (f ReaderFunc) Read(r io.Reader, name string) (*Node, error) { return f(r, name) }

// NodeName derives the root node name of a descriptor file: its base name
// without extension.
func NodeName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Walk visits n and its descendants depth first, parents before children.
// The path handed to fn is built by joining node names below parent.
func Walk(parent string, n *Node, fn func(path string, n *Node) error) error {
	p := strings.TrimSuffix(parent, "/") + "/" + n.Name
	if err := fn(p, n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := Walk(p, c, fn); err != nil {
			return err
		}
	}
	return nil
}

func newNode(name string) *Node {
	return &Node{Name: name, Properties: make(map[string]any)}
}

// set assigns a decoded value, routing the special keys.
func (n *Node) set(key string, raw any) error {
	switch key {
	case PrimaryTypeKey:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%s of %q must be a string", PrimaryTypeKey, n.Name)
		}
		n.Type = s
		return nil
	case MixinTypesKey:
		v, err := propertyValue(raw)
		if err != nil {
			return fmt.Errorf("%s of %q: %w", MixinTypesKey, n.Name, err)
		}
		switch m := v.(type) {
		case string:
			n.Mixins = []string{m}
		case []string:
			n.Mixins = m
		default:
			return fmt.Errorf("%s of %q must be a string list", MixinTypesKey, n.Name)
		}
		return nil
	}
	v, err := propertyValue(raw)
	if err != nil {
		return fmt.Errorf("property %q of %q: %w", key, n.Name, err)
	}
	n.Properties[key] = v
	return nil
}

func propertyValue(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string, bool, int64, float64, time.Time:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("nested value in list")
			}
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", raw)
}
