package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/metrics"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/unit"
	"git.home.luguber.info/inful/contentloader/internal/util/sets"
)

// UnitLookup finds the current snapshot of a unit by symbolic name.
type UnitLookup interface {
	Lookup(name string) (*unit.Unit, bool)
}

// Engine loads and unloads unit content under the record lock, and keeps
// the set of units deferred for a missing content reader.
type Engine struct {
	store     *StateStore
	installer Installer
	units     UnitLookup
	recorder  metrics.Recorder
	observers []Observer
	logger    *slog.Logger

	mu       sync.Mutex
	deferred sets.Set[string]
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithObserver adds an observer of content events.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine wires an engine.
func NewEngine(store *StateStore, installer Installer, units UnitLookup, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		installer: installer,
		units:     units,
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
		deferred:  sets.New[string](),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the state store.
func (e *Engine) Store() *StateStore { return e.store }

// RegisterUnit installs the content of u unless it is already loaded and
// this is not an update. Contention and missing readers are not errors: the
// unit is skipped or deferred.
func (e *Engine) RegisterUnit(ctx context.Context, session repository.Session, u *unit.Unit, isUpdate bool) error {
	start := time.Now()
	name := u.SymbolicName
	log := e.logger.With(logfields.Unit(name), logfields.UnitID(u.ID))

	rec, err := e.store.AcquireRecord(ctx, session, name, true)
	if err != nil {
		e.recorder.ObserveRegistration(metrics.OutcomeFailed, time.Since(start))
		return unitError(err, "acquire content record", u)
	}
	if rec == nil {
		log.DebugContext(ctx, "Content record unavailable, leaving unit to its lock holder")
		e.recorder.ObserveRegistration(metrics.OutcomeContended, time.Since(start))
		return nil
	}

	if rec.Loaded && !isUpdate {
		log.DebugContext(ctx, "Content already loaded")
		e.undefer(name)
		_ = e.store.ReleaseRecord(ctx, session, name, false, nil)
		e.recorder.ObserveRegistration(metrics.OutcomeSkipped, time.Since(start))
		return nil
	}

	res, err := e.installer.InstallContent(ctx, session, u)
	if err != nil {
		session.Refresh(false)
		_ = e.store.ReleaseRecord(ctx, session, name, false, nil)
		if stderrors.Is(err, ErrReaderUnavailable) {
			log.InfoContext(ctx, "Deferring unit until a content reader is available", logfields.Error(err))
			e.deferUnit(name)
			e.recorder.ObserveRegistration(metrics.OutcomeDeferred, time.Since(start))
			e.emit(ctx, EventContentDeferred, u, nil, err)
			return nil
		}
		e.recorder.ObserveRegistration(metrics.OutcomeFailed, time.Since(start))
		e.emit(ctx, EventContentFailed, u, nil, err)
		return unitError(err, "install content", u)
	}

	e.undefer(name)
	var created []string
	if res != nil {
		created = res.CreatedPaths
	}
	undo := func(ctx context.Context) error {
		if len(created) == 0 {
			return nil
		}
		return e.installer.RemoveContent(ctx, session, u, created)
	}
	if err := e.store.ReleaseLoaded(ctx, session, name, created, undo); err != nil {
		e.recorder.ObserveRegistration(metrics.OutcomeFailed, time.Since(start))
		e.emit(ctx, EventContentFailed, u, created, err)
		return unitError(err, "persist content record", u)
	}
	log.InfoContext(ctx, "Content loaded", logfields.Count(len(created)), logfields.Duration(time.Since(start)))
	e.recorder.ObserveRegistration(metrics.OutcomeLoaded, time.Since(start))
	e.emit(ctx, EventContentLoaded, u, created, nil)
	return nil
}

// UnregisterUnit rolls back the content of u if this instance can lock its
// record, and marks the record uninstalled.
func (e *Engine) UnregisterUnit(ctx context.Context, session repository.Session, u *unit.Unit) error {
	start := time.Now()
	name := u.SymbolicName
	log := e.logger.With(logfields.Unit(name), logfields.UnitID(u.ID))
	e.undefer(name)

	rec, err := e.store.AcquireRecord(ctx, session, name, false)
	if err != nil {
		e.recorder.ObserveUnregistration(metrics.OutcomeFailed, time.Since(start))
		return unitError(err, "acquire content record", u)
	}
	if rec == nil {
		log.DebugContext(ctx, "No content record to unregister")
		e.recorder.ObserveUnregistration(metrics.OutcomeAbsent, time.Since(start))
		return nil
	}

	if rec.Loaded {
		if err := e.installer.RemoveContent(ctx, session, u, rec.UninstallPaths); err != nil {
			log.ErrorContext(ctx, "Failed to remove content", logfields.Error(err))
			session.Refresh(false)
		}
	}
	e.store.MarkUninstalled(ctx, session, name)
	_ = e.store.ReleaseRecord(ctx, session, name, false, nil)

	log.InfoContext(ctx, "Content unloaded", logfields.Count(len(rec.UninstallPaths)), logfields.Duration(time.Since(start)))
	e.recorder.ObserveUnregistration(metrics.OutcomeUnloaded, time.Since(start))
	e.emit(ctx, EventContentUnloaded, u, rec.UninstallPaths, nil)
	return nil
}

// RetryDelayedUnits registers every deferred unit again. Units that are
// gone, or no longer in a state that can carry content, are dropped.
func (e *Engine) RetryDelayedUnits(ctx context.Context, session repository.Session) {
	for _, name := range e.Deferred() {
		if ctx.Err() != nil {
			return
		}
		u, ok := e.units.Lookup(name)
		if !ok || u.State == unit.StateInstalled || u.State == unit.StateUninstalled {
			e.logger.DebugContext(ctx, "Dropping deferred unit", logfields.Unit(name))
			e.undefer(name)
			continue
		}
		if err := e.retryOne(ctx, session, u); err != nil {
			e.logger.ErrorContext(ctx, "Retry of deferred unit failed", logfields.Unit(name), logfields.Error(err))
		}
		session.Refresh(false)
	}
}

func (e *Engine) retryOne(ctx context.Context, session repository.Session, u *unit.Unit) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while retrying unit %s: %v", u.SymbolicName, rec)
		}
	}()
	return e.RegisterUnit(ctx, session, u, false)
}

// Deferred returns the deferred unit names, sorted.
func (e *Engine) Deferred() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sets.Sorted(e.deferred)
}

// IsDeferred reports whether name waits for a reader.
func (e *Engine) IsDeferred(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deferred.Has(name)
}

// Dispose forgets all deferred units.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deferred = sets.New[string]()
	e.recorder.SetDeferredUnits(0)
}

func (e *Engine) deferUnit(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deferred.Add(name)
	e.recorder.SetDeferredUnits(e.deferred.Len())
}

func (e *Engine) undefer(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deferred.Delete(name) {
		e.recorder.SetDeferredUnits(e.deferred.Len())
	}
}

func (e *Engine) emit(ctx context.Context, kind string, u *unit.Unit, paths []string, err error) {
	if len(e.observers) == 0 {
		return
	}
	ev := ContentEvent{
		Kind:       kind,
		Unit:       u.SymbolicName,
		UnitID:     u.ID,
		InstanceID: e.store.InstanceID(),
		Paths:      slices.Clone(paths),
		At:         e.store.now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	for _, o := range e.observers {
		o.ContentChanged(ctx, ev)
	}
}

func unitError(err error, op string, u *unit.Unit) error {
	if ce, ok := errors.AsClassified(err); ok {
		return ce.WithContext("unit", u.SymbolicName).WithContext("op", op)
	}
	return errors.WrapError(err, errors.CategoryContent, op+" failed").
		WithContext("unit", u.SymbolicName).Build()
}
