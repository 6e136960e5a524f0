package contentreader

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

// Listener is told when a reader becomes available.
type Listener interface {
	ReaderAdded(extension string)
}

// Registry maps file extensions to readers. Readers may come and go at
// runtime; a single Listener is notified on every registration.
type Registry struct {
	mu       sync.RWMutex
	readers  map[string]Reader
	listener Listener
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{readers: make(map[string]Reader), logger: logger}
}

// NewDefaultRegistry returns a registry with the built-in readers, except
// those whose extension is listed in disabled.
func NewDefaultRegistry(logger *slog.Logger, disabled []string) *Registry {
	reg := NewRegistry(logger)
	off := make(map[string]bool, len(disabled))
	for _, ext := range disabled {
		off[Normalize(ext)] = true
	}
	builtin := map[string]Reader{
		".json": JSONReader{},
		".yaml": YAMLReader{},
		".yml":  YAMLReader{},
		".md":   MarkdownReader{},
	}
	for ext, r := range builtin {
		if !off[ext] {
			reg.Register(ext, r)
		}
	}
	return reg
}

// Normalize lowercases ext and ensures a leading dot.
func Normalize(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Register adds or replaces the reader for ext and notifies the listener.
// The listener runs outside the registry lock.
func (g *Registry) Register(ext string, r Reader) {
	ext = Normalize(ext)
	g.mu.Lock()
	g.readers[ext] = r
	l := g.listener
	g.mu.Unlock()

	g.logger.Info("Content reader registered", logfields.Reader(ext))
	if l != nil {
		l.ReaderAdded(ext)
	}
}

// Unregister removes the reader for ext.
func (g *Registry) Unregister(ext string) {
	ext = Normalize(ext)
	g.mu.Lock()
	_, ok := g.readers[ext]
	delete(g.readers, ext)
	g.mu.Unlock()
	if ok {
		g.logger.Info("Content reader unregistered", logfields.Reader(ext))
	}
}

// ReaderFor returns the reader registered for ext.
func (g *Registry) ReaderFor(ext string) (Reader, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.readers[Normalize(ext)]
	return r, ok
}

// HasReaderFor reports whether a reader is registered for ext.
func (g *Registry) HasReaderFor(ext string) bool {
	_, ok := g.ReaderFor(ext)
	return ok
}

// Extensions returns the registered extensions, sorted.
func (g *Registry) Extensions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.readers))
	for ext := range g.readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// SetListener installs l, replacing any previous listener.
func (g *Registry) SetListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listener = l
}

// RemoveListener detaches the listener.
func (g *Registry) RemoveListener() {
	g.SetListener(nil)
}

// Supports reports whether every extension in exts has a reader.
func (g *Registry) Supports(exts ...string) bool {
	return !slices.ContainsFunc(exts, func(ext string) bool { return !g.HasReaderFor(ext) })
}
