// Package loader installs the content shipped with units into the shared
// repository and removes it again, coordinating with other instances through
// per-unit records and advisory locks.
//
// The Listener turns unit lifecycle events into Engine calls. The Engine
// runs one registration under the record lock held through a StateStore and
// delegates the actual content work to an Installer. Units whose content
// needs a reader that is not registered yet are deferred and retried when a
// reader appears.
package loader

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/metrics"
	"git.home.luguber.info/inful/contentloader/internal/observability"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/unit"
	"git.home.luguber.info/inful/contentloader/internal/util/sets"
)

// Listener reacts to unit lifecycle events. Every entry point runs inside
// one critical section, so events for different units never interleave
// within a process.
type Listener struct {
	repo     repository.Repository
	engine   *Engine
	runtime  Runtime
	readers  ReaderRegistry
	recorder metrics.Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	updated sets.Set[string]
	active  bool
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerRecorder injects a metrics recorder for unit events.
func WithListenerRecorder(r metrics.Recorder) ListenerOption {
	return func(l *Listener) { l.recorder = r }
}

// WithListenerLogger sets the logger.
func WithListenerLogger(lg *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = lg }
}

// NewListener creates a listener. runtime and readers may be nil when the
// caller dispatches events and retries itself.
func NewListener(repo repository.Repository, engine *Engine, runtime Runtime, readers ReaderRegistry, opts ...ListenerOption) *Listener {
	l := &Listener{
		repo:     repo,
		engine:   engine,
		runtime:  runtime,
		readers:  readers,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		updated:  sets.New[string](),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Engine returns the registration engine.
func (l *Listener) Engine() *Engine { return l.engine }

// Activate ensures the record root exists, subscribes to the reader
// registry and the unit runtime, then registers every unit the runtime
// already knows that can carry content.
func (l *Listener) Activate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	session, err := l.repo.Login(ctx)
	if err != nil {
		return err
	}
	defer l.logout(session)

	if err := l.engine.Store().EnsureRootPath(ctx, session); err != nil {
		return err
	}

	if l.readers != nil {
		l.readers.SetListener(l)
	}
	if l.runtime == nil {
		l.active = true
		return nil
	}
	l.runtime.AddListener(l)
	l.active = true

	ignored := 0
	for _, u := range l.runtime.Units() {
		if u.State == unit.StateInstalled || u.State == unit.StateUninstalled {
			ignored++
			continue
		}
		if err := l.engine.RegisterUnit(ctx, session, u, false); err != nil {
			l.logger.ErrorContext(ctx, "Failed to register unit on activation",
				logfields.Unit(u.SymbolicName), logfields.UnitID(u.ID), logfields.Error(err))
		}
		session.Refresh(false)
	}
	l.logger.Info("Content loader activated",
		logfields.InstanceID(l.engine.Store().InstanceID()), slog.Int("ignored_units", ignored))
	return nil
}

// Deactivate detaches from the runtime and the reader registry and forgets
// deferred units.
func (l *Listener) Deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	if l.readers != nil {
		l.readers.RemoveListener()
	}
	if l.runtime != nil {
		l.runtime.RemoveListener(l)
	}
	l.engine.Dispose()
	l.updated = sets.New[string]()
	l.active = false
	l.logger.Info("Content loader deactivated")
}

// UnitChanged handles one lifecycle event. Failures are logged, never
// returned.
func (l *Listener) UnitChanged(ctx context.Context, ev unit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := ev.Unit
	l.recorder.IncUnitEvent(ev.Kind.String())
	switch ev.Kind {
	case unit.EventResolved:
		isUpdate := l.updated.Delete(u.SymbolicName)
		l.withSession(ctx, u, "register", func(ctx context.Context, s repository.Session) error {
			return l.engine.RegisterUnit(ctx, s, u, isUpdate)
		})
	case unit.EventUpdated:
		l.updated.Add(u.SymbolicName)
	case unit.EventUninstalled:
		l.withSession(ctx, u, "unregister", func(ctx context.Context, s repository.Session) error {
			return l.engine.UnregisterUnit(ctx, s, u)
		})
	}
}

// ReaderAdded retries deferred units when a content reader registers.
func (l *Listener) ReaderAdded(extension string) {
	l.logger.Debug("Content reader added, retrying deferred units", logfields.Reader(extension))
	l.RetryDeferred(context.Background())
}

// RetryDeferred retries deferred units. It is also driven by the periodic
// sweep.
func (l *Listener) RetryDeferred(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.engine.Deferred()) == 0 {
		return
	}
	ctx = observability.WithOperation(ctx, "retry-deferred")
	session, err := l.repo.Login(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to open session for deferred retry", logfields.Error(err))
		return
	}
	defer l.logout(session)
	l.engine.RetryDelayedUnits(ctx, session)
}

// PendingUpdates returns names that saw Updated without a following
// Resolved yet.
func (l *Listener) PendingUpdates() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sets.Sorted(l.updated)
}

func (l *Listener) withSession(ctx context.Context, u *unit.Unit, op string, fn func(context.Context, repository.Session) error) {
	ctx = observability.WithOperation(observability.WithUnit(ctx, u.SymbolicName), op)
	session, err := l.repo.Login(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to open repository session", logfields.Error(err))
		return
	}
	defer l.logout(session)
	if err := fn(ctx, session); err != nil {
		l.logger.ErrorContext(ctx, "Content "+op+" failed", logfields.UnitID(u.ID), logfields.Error(err))
	}
}

func (l *Listener) logout(s repository.Session) {
	if err := s.Logout(); err != nil {
		l.logger.Error("Failed to close repository session",
			logfields.SessionID(s.ID()), logfields.Error(err))
	}
}
