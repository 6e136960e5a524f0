package unit

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

// Catalog discovers units as subdirectories of a root directory, each
// holding a unit.yaml manifest. Scan compares the directory against the
// last known state and reports differences to listeners:
//
//   - a new unit: Installed, then Resolved
//   - a changed manifest or content file: Updated, then Resolved
//   - a vanished unit: Uninstalled
type Catalog struct {
	dir    string
	filter *Filter
	logger *slog.Logger

	scanMu sync.Mutex // one scan at a time, so events stay ordered

	mu        sync.RWMutex
	units     map[string]*Unit
	prints    map[string]string
	nextID    int64
	listeners []Listener
}

// NewCatalog returns an empty catalog over dir. Call Scan to populate it.
func NewCatalog(dir string, filter *Filter, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:    dir,
		filter: filter,
		logger: logger,
		units:  make(map[string]*Unit),
		prints: make(map[string]string),
		nextID: 1,
	}
}

// Dir returns the watched root directory.
func (c *Catalog) Dir() string { return c.dir }

// AddListener subscribes l to lifecycle events.
func (c *Catalog) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener unsubscribes l.
func (c *Catalog) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
}

// Units returns the known units ordered by id.
func (c *Catalog) Units() []*Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Unit, 0, len(c.units))
	for _, u := range c.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the unit with the given symbolic name.
func (c *Catalog) Lookup(name string) (*Unit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.units[name]
	return u, ok
}

type scanned struct {
	dir      string
	manifest *Manifest
	print    string
}

// Scan reads the root directory and dispatches events for every change
// since the previous scan. Units with an unreadable manifest keep their last
// known state.
func (c *Catalog) Scan(ctx context.Context) error {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "read unit directory").
			WithContext("dir", c.dir).Build()
	}

	found := make(map[string]scanned)
	keep := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(c.dir, e.Name())
		s, err := c.scanDir(dir)
		if err != nil {
			c.logger.Warn("Ignoring unit directory with invalid manifest",
				logfields.Path(dir), logfields.Error(err))
			if name, ok := c.nameForDir(dir); ok {
				keep[name] = true
			}
			continue
		}
		if s == nil {
			continue
		}
		name := s.manifest.Name
		if ok, reason := c.filter.Include(name); !ok {
			c.logger.Debug("Unit filtered out", logfields.Unit(name), slog.String("reason", reason))
			continue
		}
		if prev, dup := found[name]; dup {
			c.logger.Warn("Duplicate unit name, keeping first directory",
				logfields.Unit(name), logfields.Path(prev.dir), slog.String("duplicate", dir))
			continue
		}
		found[name] = *s
	}

	events, listeners := c.apply(found, keep)
	for _, ev := range events {
		c.logger.Debug("Unit event", logfields.Unit(ev.Unit.SymbolicName), logfields.Event(ev.Kind.String()))
		for _, l := range listeners {
			l.UnitChanged(ctx, ev)
		}
	}
	return nil
}

func (c *Catalog) apply(found map[string]scanned, keep map[string]bool) ([]Event, []Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []Event
	for _, name := range sortedKeys(found) {
		s := found[name]
		prev, known := c.units[name]
		switch {
		case !known:
			u := &Unit{
				ID:           c.nextID,
				SymbolicName: name,
				Version:      s.manifest.Version,
				State:        StateInstalled,
				Dir:          s.dir,
				Manifest:     s.manifest,
			}
			c.nextID++
			events = append(events,
				Event{Kind: EventInstalled, Unit: u},
				Event{Kind: EventResolved, Unit: u.withState(StateResolved)})
			c.units[name] = u.withState(StateResolved)
		case c.prints[name] != s.print:
			u := &Unit{
				ID:           prev.ID,
				SymbolicName: name,
				Version:      s.manifest.Version,
				State:        StateInstalled,
				Dir:          s.dir,
				Manifest:     s.manifest,
			}
			events = append(events,
				Event{Kind: EventUpdated, Unit: u},
				Event{Kind: EventResolved, Unit: u.withState(StateResolved)})
			c.units[name] = u.withState(StateResolved)
		default:
			continue
		}
		c.prints[name] = s.print
	}

	var gone []string
	for name := range c.units {
		if _, ok := found[name]; !ok && !keep[name] {
			gone = append(gone, name)
		}
	}
	sort.Strings(gone)
	for _, name := range gone {
		events = append(events, Event{Kind: EventUninstalled, Unit: c.units[name].withState(StateUninstalled)})
		delete(c.units, name)
		delete(c.prints, name)
	}
	return events, slices.Clone(c.listeners)
}

func (c *Catalog) nameForDir(dir string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, u := range c.units {
		if u.Dir == dir {
			return name, true
		}
	}
	return "", false
}

// scanDir reads one unit directory. It returns nil for directories without
// a manifest.
func (c *Catalog) scanDir(dir string) (*scanned, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	fp, err := fingerprint(dir, raw)
	if err != nil {
		return nil, err
	}
	return &scanned{dir: dir, manifest: m, print: fp}, nil
}

// fingerprint hashes the manifest together with a listing of every file
// below dir (relative path, size and modification time).
func fingerprint(dir string, manifest []byte) (string, error) {
	var listing strings.Builder
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		fmt.Fprintf(&listing, "%s\t%d\t%d\n", filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", dir, err)
	}
	return mdfp.CalculateFingerprintFromParts(string(manifest), listing.String()), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
