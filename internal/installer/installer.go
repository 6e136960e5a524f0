// Package installer copies the content declared in a unit manifest into the
// repository and removes it again.
package installer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/contentloader/internal/contentreader"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/unit"
)

// ReaderSource resolves content readers by extension.
type ReaderSource interface {
	ReaderFor(ext string) (contentreader.Reader, bool)
}

// ContentInstaller implements loader.Installer.
//
// For each manifest entry, a directory's children (or a single file) are
// placed below the entry's target. Directories become folders, files with
// an extension listed in the entry's descriptors are parsed by the matching
// reader into node trees, and all other files become file nodes.
type ContentInstaller struct {
	readers ReaderSource
	logger  *slog.Logger
}

// New creates an installer.
func New(readers ReaderSource, logger *slog.Logger) *ContentInstaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentInstaller{readers: readers, logger: logger}
}

var _ loader.Installer = (*ContentInstaller)(nil)

// install tracks one installation run.
type install struct {
	ctx     context.Context
	session repository.Session
	entry   unit.ContentEntry
	created []string
}

func (in *install) record(p string) {
	if in.entry.RemoveOnUninstall() {
		in.created = append(in.created, p)
	}
}

// InstallContent stages and saves the unit's content. Nothing is written
// when a required reader is missing.
func (c *ContentInstaller) InstallContent(ctx context.Context, session repository.Session, u *unit.Unit) (*loader.InstallResult, error) {
	if u.Manifest == nil || len(u.Manifest.Content) == 0 {
		return &loader.InstallResult{}, nil
	}
	if err := c.checkReaders(u); err != nil {
		return nil, err
	}

	var created []string
	for _, entry := range u.Manifest.Content {
		in := &install{ctx: ctx, session: session, entry: entry}
		if err := c.installEntry(in, u); err != nil {
			return nil, err
		}
		created = append(created, in.created...)
	}
	if err := session.Save(ctx); err != nil {
		return nil, err
	}
	return &loader.InstallResult{CreatedPaths: created}, nil
}

// checkReaders fails with ErrReaderUnavailable when any descriptor file of
// the unit has no reader.
func (c *ContentInstaller) checkReaders(u *unit.Unit) error {
	for _, entry := range u.Manifest.Content {
		if len(entry.Descriptors) == 0 {
			continue
		}
		src := filepath.Join(u.Dir, entry.Path)
		var missing string
		err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			ext := contentreader.Normalize(filepath.Ext(p))
			if isDescriptor(entry, ext) {
				if _, ok := c.readers.ReaderFor(ext); !ok {
					missing = ext
					return fs.SkipAll
				}
			}
			return nil
		})
		if err != nil {
			return contentError(err, "scan unit content", u, src)
		}
		if missing != "" {
			return loader.ErrReaderUnavailable.WithContext("extension", missing).WithContext("unit", u.SymbolicName)
		}
	}
	return nil
}

func (c *ContentInstaller) installEntry(in *install, u *unit.Unit) error {
	src := filepath.Join(u.Dir, in.entry.Path)
	info, err := os.Stat(src)
	if err != nil {
		return contentError(err, "read content path", u, src)
	}
	target := normalizePath(in.entry.Target)
	if err := c.ensureTarget(in, target); err != nil {
		return err
	}
	if !info.IsDir() {
		return c.installFile(in, src, target)
	}
	return c.installDir(in, src, target)
}

// ensureTarget creates target and missing ancestors as folders, recording
// what it creates.
func (c *ContentInstaller) ensureTarget(in *install, target string) error {
	var missing []string
	for p := target; p != repository.RootPath; p = repository.Parent(p) {
		ok, err := in.session.ItemExists(in.ctx, p)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		missing = append(missing, p)
	}
	slices.Reverse(missing)
	for _, p := range missing {
		if err := in.session.AddNode(in.ctx, p, repository.NodeTypeFolder); err != nil {
			return err
		}
		in.record(p)
	}
	return nil
}

func (c *ContentInstaller) installDir(in *install, dir, parent string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryContent, "read content directory").
			WithContext("path", dir).Build()
	}
	for _, e := range entries {
		src := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if err := c.installFile(in, src, parent); err != nil {
				return err
			}
			continue
		}
		p := childPath(parent, e.Name())
		exists, err := in.session.ItemExists(in.ctx, p)
		if err != nil {
			return err
		}
		if !exists {
			if err := in.session.AddNode(in.ctx, p, repository.NodeTypeFolder); err != nil {
				return err
			}
			in.record(p)
		}
		if err := c.installDir(in, src, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *ContentInstaller) installFile(in *install, src, parent string) error {
	ext := contentreader.Normalize(filepath.Ext(src))
	if isDescriptor(in.entry, ext) {
		return c.installDescriptor(in, src, ext, parent)
	}

	p := childPath(parent, filepath.Base(src))
	if skip, err := c.prepare(in, p); err != nil || skip {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.WrapError(err, errors.CategoryContent, "read content file").
			WithContext("path", src).Build()
	}
	if err := in.session.AddNode(in.ctx, p, repository.NodeTypeFile); err != nil {
		return err
	}
	in.record(p)
	props := fileProperties(filepath.Base(src), data)
	for _, name := range sortedNames(props) {
		if err := in.session.SetProperty(in.ctx, p, name, props[name]); err != nil {
			return err
		}
	}
	return nil
}

func (c *ContentInstaller) installDescriptor(in *install, src, ext, parent string) error {
	reader, ok := c.readers.ReaderFor(ext)
	if !ok {
		return loader.ErrReaderUnavailable.WithContext("extension", ext)
	}
	f, err := os.Open(filepath.Clean(src))
	if err != nil {
		return errors.WrapError(err, errors.CategoryContent, "open descriptor").
			WithContext("path", src).Build()
	}
	defer func() {
		_ = f.Close()
	}()

	tree, err := reader.Read(f, contentreader.NodeName(src))
	if err != nil {
		return errors.WrapError(err, errors.CategoryContent, "parse descriptor").
			WithContext("path", src).WithContext("reader", ext).Build()
	}
	return c.installNode(in, parent, tree)
}

func (c *ContentInstaller) installNode(in *install, parent string, n *contentreader.Node) error {
	p := childPath(parent, n.Name)
	exists, err := in.session.ItemExists(in.ctx, p)
	if err != nil {
		return err
	}
	switch {
	case exists && !in.entry.Overwrite:
		c.logger.Debug("Keeping existing node", logfields.Path(p))
	default:
		if exists {
			if err := in.session.RemoveNode(in.ctx, p); err != nil {
				return err
			}
		}
		nodeType := n.Type
		if nodeType == "" {
			nodeType = repository.NodeTypeUnstructured
		}
		if err := in.session.AddNode(in.ctx, p, nodeType); err != nil {
			return err
		}
		in.record(p)
		for _, m := range n.Mixins {
			if err := in.session.AddMixin(in.ctx, p, m); err != nil {
				return err
			}
		}
		for _, name := range sortedNames(n.Properties) {
			v, err := toValue(n.Properties[name])
			if err != nil {
				return errors.WrapError(err, errors.CategoryContent, "convert property").
					WithContext("path", p).WithContext("property", name).Build()
			}
			if err := in.session.SetProperty(in.ctx, p, name, v); err != nil {
				return err
			}
		}
	}
	for _, child := range n.Children {
		if err := c.installNode(in, p, child); err != nil {
			return err
		}
	}
	return nil
}

// prepare reports whether an existing node at p is kept. With overwrite the
// node is removed so it can be recreated.
func (c *ContentInstaller) prepare(in *install, p string) (bool, error) {
	exists, err := in.session.ItemExists(in.ctx, p)
	if err != nil || !exists {
		return false, err
	}
	if !in.entry.Overwrite {
		c.logger.Debug("Keeping existing node", logfields.Path(p))
		return true, nil
	}
	return false, in.session.RemoveNode(in.ctx, p)
}

// RemoveContent removes paths in reverse creation order. Paths that are
// already gone are skipped.
func (c *ContentInstaller) RemoveContent(ctx context.Context, session repository.Session, u *unit.Unit, paths []string) error {
	removed := 0
	for _, p := range slices.Backward(paths) {
		exists, err := session.ItemExists(ctx, p)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := session.RemoveNode(ctx, p); err != nil && !stderrors.Is(err, repository.ErrItemNotFound) {
			return err
		}
		removed++
	}
	if err := session.Save(ctx); err != nil {
		return err
	}
	c.logger.Debug("Removed unit content", logfields.Unit(u.SymbolicName), logfields.Count(removed))
	return nil
}

func isDescriptor(entry unit.ContentEntry, ext string) bool {
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(entry.Descriptors, func(d string) bool {
		return contentreader.Normalize(d) == ext
	})
}

func childPath(parent, name string) string {
	name = norm.NFC.String(name)
	if parent == repository.RootPath {
		return "/" + name
	}
	return parent + "/" + name
}

func normalizePath(p string) string {
	return norm.NFC.String(p)
}

func toValue(v any) (repository.Value, error) {
	switch t := v.(type) {
	case string:
		return repository.StringValue(t), nil
	case bool:
		return repository.BoolValue(t), nil
	case int64:
		return repository.StringValue(strconv.FormatInt(t, 10)), nil
	case float64:
		return repository.StringValue(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case time.Time:
		return repository.DateValue(t), nil
	case []string:
		return repository.StringsValue(t), nil
	}
	return repository.Value{}, fmt.Errorf("unsupported property type %T", v)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func contentError(err error, msg string, u *unit.Unit, p string) error {
	return errors.WrapError(err, errors.CategoryContent, msg).
		WithContext("unit", u.SymbolicName).WithContext("path", p).Build()
}
