package repository

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Node types and mixins understood by the repository.
const (
	NodeTypeUnstructured = "nt:unstructured"
	NodeTypeFolder       = "nt:folder"
	NodeTypeFile         = "nt:file"
	MixinLockable        = "mix:lockable"
)

// RootPath is the path of the root node.
const RootPath = "/"

// ValidatePath checks that p is absolute and already clean.
func ValidatePath(p string) error {
	if p == "" || !strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return pathError(ErrInvalidPath, p)
	}
	return nil
}

// Parent returns the parent path of p. The root is its own parent.
func Parent(p string) string {
	return path.Dir(p)
}

// Name returns the last segment of p.
func Name(p string) string {
	if p == RootPath {
		return ""
	}
	return path.Base(p)
}

// IsDescendant reports whether p lies strictly below ancestor.
func IsDescendant(p, ancestor string) bool {
	if ancestor == RootPath {
		return p != RootPath
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// ancestors returns the strict ancestors of p, nearest first.
func ancestors(p string) []string {
	var out []string
	for p != RootPath {
		p = Parent(p)
		out = append(out, p)
	}
	return out
}

// EnsurePath creates every missing node along p with the given node type,
// saving after each creation so that concurrent creators see a consistent tree.
func EnsurePath(ctx context.Context, s Session, p, nodeType string) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	if p == RootPath {
		return nil
	}
	current := RootPath
	for _, segment := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		current = path.Join(current, segment)
		exists, err := s.ItemExists(ctx, current)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.AddNode(ctx, current, nodeType); err != nil {
			return err
		}
		if err := s.Save(ctx); err != nil {
			if !errors.Is(err, ErrItemExists) {
				return err
			}
			// Another session created it first.
			s.Refresh(false)
		}
	}
	return nil
}
