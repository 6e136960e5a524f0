package loader

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentloader/internal/contentreader"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/retry"
	"git.home.luguber.info/inful/contentloader/internal/unit"
)

var testTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// fakeInstaller creates a fixed list of nodes.
type fakeInstaller struct {
	mu       sync.Mutex
	paths    []string
	err      error
	panics   bool
	installs int
	removed  [][]string
}

func (f *fakeInstaller) InstallContent(ctx context.Context, s repository.Session, _ *unit.Unit) (*InstallResult, error) {
	f.mu.Lock()
	f.installs++
	err, panics := f.err, f.panics
	f.mu.Unlock()
	if panics {
		panic("installer exploded")
	}
	if err != nil {
		return nil, err
	}
	var created []string
	for _, p := range f.paths {
		exists, err := s.ItemExists(ctx, p)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if err := s.AddNode(ctx, p, repository.NodeTypeFolder); err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return &InstallResult{CreatedPaths: created}, nil
}

func (f *fakeInstaller) RemoveContent(ctx context.Context, s repository.Session, _ *unit.Unit, paths []string) error {
	f.mu.Lock()
	f.removed = append(f.removed, paths)
	f.mu.Unlock()
	for i := len(paths) - 1; i >= 0; i-- {
		exists, err := s.ItemExists(ctx, paths[i])
		if err != nil {
			return err
		}
		if exists {
			if err := s.RemoveNode(ctx, paths[i]); err != nil {
				return err
			}
		}
	}
	return s.Save(ctx)
}

func (f *fakeInstaller) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeInstaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs
}

type fakeRuntime struct {
	mu        sync.Mutex
	units     map[string]*unit.Unit
	listeners []unit.Listener
}

func newFakeRuntime(units ...*unit.Unit) *fakeRuntime {
	r := &fakeRuntime{units: map[string]*unit.Unit{}}
	for _, u := range units {
		r.units[u.SymbolicName] = u
	}
	return r
}

func (r *fakeRuntime) Units() []*unit.Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*unit.Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	return out
}

func (r *fakeRuntime) Lookup(name string) (*unit.Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[name]
	return u, ok
}

func (r *fakeRuntime) AddListener(l unit.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *fakeRuntime) RemoveListener(l unit.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *fakeRuntime) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.units, name)
}

type fakeReaders struct {
	listener contentreader.Listener
}

func (f *fakeReaders) SetListener(l contentreader.Listener) { f.listener = l }
func (f *fakeReaders) RemoveListener()                      { f.listener = nil }

type eventLog struct {
	mu     sync.Mutex
	events []ContentEvent
}

func (e *eventLog) ContentChanged(_ context.Context, ev ContentEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	repo      *repository.SQLiteRepository
	store     *StateStore
	installer *fakeInstaller
	runtime   *fakeRuntime
	events    *eventLog
	engine    *Engine
}

func resolved(name string, id int64) *unit.Unit {
	return &unit.Unit{ID: id, SymbolicName: name, Version: "1.0", State: unit.StateResolved}
}

func newFixture(t *testing.T, units ...*unit.Unit) *fixture {
	t.Helper()
	repo, err := repository.NewSQLiteRepository(":memory:", repository.Options{InstanceID: "instance-a"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{
		repo:      repo,
		store:     NewStateStore("", "instance-a", WithClock(func() time.Time { return testTime })),
		installer: &fakeInstaller{paths: []string{"/a", "/a/b"}},
		runtime:   newFakeRuntime(units...),
		events:    &eventLog{},
	}
	f.engine = NewEngine(f.store, f.installer, f.runtime, WithObserver(f.events))
	return f
}

func (f *fixture) login(t *testing.T) repository.Session {
	t.Helper()
	s, err := f.repo.Login(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Logout() })
	return s
}

func (f *fixture) record(t *testing.T, name string) *Record {
	t.Helper()
	rec, err := f.store.Lookup(t.Context(), f.login(t), name)
	require.NoError(t, err)
	return rec
}

func (f *fixture) exists(t *testing.T, p string) bool {
	t.Helper()
	ok, err := f.login(t).ItemExists(t.Context(), p)
	require.NoError(t, err)
	return ok
}

func TestRegisterUnitLoadsContentOnce(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	s := f.login(t)

	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	assert.Equal(t, 1, f.installer.count(), "second registration is a no-op")

	rec := f.record(t, "alpha")
	require.NotNil(t, rec)
	assert.Equal(t, DefaultRootPath+"/alpha", rec.Path)
	assert.True(t, rec.Loaded)
	assert.Equal(t, "instance-a", rec.LoadedBy)
	require.NotNil(t, rec.LoadTime)
	assert.True(t, testTime.Equal(*rec.LoadTime))
	assert.Equal(t, []string{"/a", "/a/b"}, rec.UninstallPaths)
	assert.False(t, rec.Locked, "record lock is released after registration")
	assert.True(t, f.exists(t, "/a/b"))
	assert.Equal(t, []string{EventContentLoaded}, f.events.kinds())
}

func TestRegisterUnregisterRegister(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	s := f.login(t)

	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	require.NoError(t, f.engine.UnregisterUnit(ctx, s, alpha))

	rec := f.record(t, "alpha")
	require.NotNil(t, rec)
	assert.False(t, rec.Loaded)
	assert.Equal(t, "instance-a", rec.UnloadedBy)
	assert.NotNil(t, rec.UnloadTime)
	assert.Nil(t, rec.LoadTime)
	assert.Empty(t, rec.LoadedBy)
	assert.Empty(t, rec.UninstallPaths)
	assert.False(t, f.exists(t, "/a"))
	assert.Equal(t, [][]string{{"/a", "/a/b"}}, f.installer.removed)

	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	rec = f.record(t, "alpha")
	assert.True(t, rec.Loaded)
	assert.Equal(t, []string{"/a", "/a/b"}, rec.UninstallPaths)
	assert.Nil(t, rec.UnloadTime)
	assert.Empty(t, rec.UnloadedBy)
	assert.True(t, f.exists(t, "/a/b"))
	assert.Equal(t, []string{EventContentLoaded, EventContentUnloaded, EventContentLoaded}, f.events.kinds())
}

func TestRegisterSkipsRecordLockedElsewhere(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)

	holder := f.login(t)
	held, err := f.store.AcquireRecord(ctx, holder, "alpha", true)
	require.NoError(t, err)
	require.NotNil(t, held)

	s := f.login(t)
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	assert.Zero(t, f.installer.count())
	assert.False(t, f.engine.IsDeferred("alpha"))
	assert.Empty(t, f.events.kinds())

	rec := f.record(t, "alpha")
	assert.False(t, rec.Loaded)
	assert.True(t, rec.Locked)
	assert.False(t, f.exists(t, "/a"))

	// Unregistration while locked elsewhere leaves the record alone too.
	require.NoError(t, f.engine.UnregisterUnit(ctx, s, alpha))
	assert.Nil(t, f.record(t, "alpha").UnloadTime)

	require.NoError(t, f.store.ReleaseRecord(ctx, holder, "alpha", false, nil))
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	assert.True(t, f.record(t, "alpha").Loaded)
}

func TestUnregisterWithoutRecordIsNoop(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)

	require.NoError(t, f.engine.UnregisterUnit(ctx, f.login(t), alpha))
	assert.Nil(t, f.record(t, "alpha"))
	assert.False(t, f.exists(t, DefaultRootPath+"/alpha"))
	assert.Empty(t, f.installer.removed)
	assert.Empty(t, f.events.kinds())
}

func TestUpdateReloadsContent(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	s := f.login(t)

	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	f.installer.paths = []string{"/a", "/a/b", "/c"}
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, true))

	assert.Equal(t, 2, f.installer.count())
	assert.Equal(t, []string{"/c"}, f.record(t, "alpha").UninstallPaths, "paths come from the latest install")
}

func TestMissingReaderDefersUnit(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	s := f.login(t)
	f.installer.setErr(ErrReaderUnavailable.WithContext("extension", ".xml"))

	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	assert.True(t, f.engine.IsDeferred("alpha"))
	assert.Equal(t, []string{"alpha"}, f.engine.Deferred())

	rec := f.record(t, "alpha")
	require.NotNil(t, rec, "the record is created before installing")
	assert.False(t, rec.Loaded)
	assert.False(t, rec.Locked)
	assert.False(t, s.HasPendingChanges())

	// Still no reader: the unit stays deferred.
	f.engine.RetryDelayedUnits(ctx, s)
	assert.True(t, f.engine.IsDeferred("alpha"))
	assert.Equal(t, 2, f.installer.count())

	f.installer.setErr(nil)
	f.engine.RetryDelayedUnits(ctx, s)
	assert.False(t, f.engine.IsDeferred("alpha"))
	assert.True(t, f.record(t, "alpha").Loaded)
	assert.Equal(t, []string{EventContentDeferred, EventContentDeferred, EventContentLoaded}, f.events.kinds())
}

func TestRetryDropsUnitsThatCannotCarryContent(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	beta := resolved("beta", 2)
	f := newFixture(t, alpha, beta)
	s := f.login(t)
	f.installer.setErr(ErrReaderUnavailable)

	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	require.NoError(t, f.engine.RegisterUnit(ctx, s, beta, false))
	require.Equal(t, []string{"alpha", "beta"}, f.engine.Deferred())

	f.runtime.remove("alpha")
	f.runtime.units["beta"] = &unit.Unit{ID: 2, SymbolicName: "beta", State: unit.StateInstalled}

	f.engine.RetryDelayedUnits(ctx, s)
	assert.Empty(t, f.engine.Deferred())
	assert.Equal(t, 2, f.installer.count(), "dropped units are not retried")
}

func TestRetryRecoversFromPanics(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	s := f.login(t)
	f.installer.setErr(ErrReaderUnavailable)
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))

	f.installer.mu.Lock()
	f.installer.panics = true
	f.installer.mu.Unlock()

	assert.NotPanics(t, func() { f.engine.RetryDelayedUnits(ctx, s) })
	assert.True(t, f.engine.IsDeferred("alpha"))
}

func TestInstallFailureIsReported(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	s := f.login(t)
	boom := stderrors.New("disk full")
	f.installer.setErr(boom)

	err := f.engine.RegisterUnit(ctx, s, alpha, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.engine.IsDeferred("alpha"))

	rec := f.record(t, "alpha")
	assert.False(t, rec.Loaded)
	assert.False(t, rec.Locked)
	assert.Equal(t, []string{EventContentFailed}, f.events.kinds())
	assert.Equal(t, "instance-a", f.events.events[0].InstanceID)
	assert.Contains(t, f.events.events[0].Error, "disk full")
}

// racingSession lets another session create the record between the
// existence check and the create.
type racingSession struct {
	repository.Session
	rival  repository.Session
	target string
	raced  bool
}

func (r *racingSession) AddNode(ctx context.Context, p, nodeType string) error {
	if p == r.target && !r.raced {
		r.raced = true
		if err := r.rival.AddNode(ctx, p, repository.NodeTypeUnstructured); err != nil {
			return err
		}
		if err := r.rival.AddMixin(ctx, p, repository.MixinLockable); err != nil {
			return err
		}
		if err := r.rival.Save(ctx); err != nil {
			return err
		}
	}
	return r.Session.AddNode(ctx, p, nodeType)
}

func TestConcurrentRecordCreationIsTolerated(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)

	s := &racingSession{
		Session: f.login(t),
		rival:   f.login(t),
		target:  f.store.RecordPath("alpha"),
	}
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	assert.True(t, s.raced)
	assert.True(t, f.record(t, "alpha").Loaded)
	assert.Equal(t, 1, f.installer.count())
}

// recordSaveFailer fails the saves that write the loaded state of record.
type recordSaveFailer struct {
	repository.Session
	record   string
	err      error
	failures int
	armed    bool
	attempts int
}

func (r *recordSaveFailer) SetProperty(ctx context.Context, p, name string, v repository.Value) error {
	if p == r.record && name == PropContentLoaded {
		r.armed = true
	}
	return r.Session.SetProperty(ctx, p, name, v)
}

func (r *recordSaveFailer) Save(ctx context.Context) error {
	armed := r.armed
	r.armed = false
	if armed {
		r.attempts++
		if r.failures > 0 {
			r.failures--
			return r.err
		}
	}
	return r.Session.Save(ctx)
}

func TestRecordWriteFailureRemovesInstalledContent(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	boom := stderrors.New("write rejected")

	s := &recordSaveFailer{
		Session:  f.login(t),
		record:   f.store.RecordPath("alpha"),
		err:      boom,
		failures: 1,
	}
	err := f.engine.RegisterUnit(ctx, s, alpha, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.attempts)

	assert.Equal(t, [][]string{{"/a", "/a/b"}}, f.installer.removed)
	assert.False(t, f.exists(t, "/a"))
	rec := f.record(t, "alpha")
	assert.False(t, rec.Loaded)
	assert.False(t, rec.Locked)
	assert.Equal(t, []string{EventContentFailed}, f.events.kinds())

	// The next registration starts from a clean slate.
	require.NoError(t, f.engine.RegisterUnit(ctx, f.login(t), alpha, false))
	assert.True(t, f.record(t, "alpha").Loaded)
	assert.True(t, f.exists(t, "/a/b"))
}

func TestRecordWriteRetriesWhileRepositoryBusy(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	f.store.persist = retry.NewPolicy(string(retry.BackoffFixed), time.Millisecond, time.Millisecond, 3)

	s := &recordSaveFailer{
		Session:  f.login(t),
		record:   f.store.RecordPath("alpha"),
		err:      repository.ErrBusy.WithContext("path", "/"),
		failures: 2,
	}
	require.NoError(t, f.engine.RegisterUnit(ctx, s, alpha, false))
	assert.Equal(t, 3, s.attempts)
	assert.Empty(t, f.installer.removed)

	rec := f.record(t, "alpha")
	assert.True(t, rec.Loaded)
	assert.False(t, rec.Locked)
	assert.Equal(t, []string{"/a", "/a/b"}, rec.UninstallPaths)
	assert.Equal(t, []string{EventContentLoaded}, f.events.kinds())
}

func TestRecordRaceBetweenRepositoriesSharingAFile(t *testing.T) {
	ctx := t.Context()
	dbPath := filepath.Join(t.TempDir(), "content.db")

	instances := []string{"instance-a", "instance-b"}
	repos := make([]*repository.SQLiteRepository, len(instances))
	stores := make([]*StateStore, len(instances))
	for i, id := range instances {
		repo, err := repository.NewSQLiteRepository(dbPath, repository.Options{InstanceID: id})
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		repos[i] = repo
		stores[i] = NewStateStore("", id, WithClock(func() time.Time { return testTime }))
	}

	const rounds = 25
	for round := range rounds {
		sessions := make([]repository.Session, len(repos))
		for i, repo := range repos {
			s, err := repo.Login(ctx)
			require.NoError(t, err)
			sessions[i] = s
		}

		records := make([]*Record, len(repos))
		errs := make([]error, len(repos))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := range repos {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				records[i], errs[i] = stores[i].AcquireRecord(ctx, sessions[i], "alpha", true)
			}()
		}
		close(start)
		wg.Wait()

		acquired := 0
		for i := range repos {
			require.NoError(t, errs[i], "round %d, %s", round, instances[i])
			if records[i] != nil {
				acquired++
				assert.True(t, records[i].Locked)
			}
		}
		assert.Equal(t, 1, acquired, "round %d", round)

		for i, s := range sessions {
			if records[i] != nil {
				require.NoError(t, stores[i].ReleaseRecord(ctx, s, "alpha", false, nil))
			}
			require.NoError(t, s.Logout())
		}
	}
}

func TestListenerUpdateThenResolvedReloads(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	l := NewListener(f.repo, f.engine, f.runtime, nil)

	l.UnitChanged(ctx, unit.Event{Kind: unit.EventResolved, Unit: alpha})
	assert.Equal(t, 1, f.installer.count())

	// Resolved without a preceding Updated does not reload.
	l.UnitChanged(ctx, unit.Event{Kind: unit.EventResolved, Unit: alpha})
	assert.Equal(t, 1, f.installer.count())

	l.UnitChanged(ctx, unit.Event{Kind: unit.EventUpdated, Unit: alpha})
	assert.Equal(t, []string{"alpha"}, l.PendingUpdates())
	l.UnitChanged(ctx, unit.Event{Kind: unit.EventResolved, Unit: alpha})
	assert.Equal(t, 2, f.installer.count())
	assert.Empty(t, l.PendingUpdates())

	l.UnitChanged(ctx, unit.Event{Kind: unit.EventUninstalled, Unit: alpha})
	assert.False(t, f.record(t, "alpha").Loaded)
	assert.False(t, f.exists(t, "/a"))

	// Installed and Unresolved are ignored.
	l.UnitChanged(ctx, unit.Event{Kind: unit.EventInstalled, Unit: alpha})
	l.UnitChanged(ctx, unit.Event{Kind: unit.EventUnresolved, Unit: alpha})
	assert.Equal(t, 2, f.installer.count())
}

func TestListenerActivateSweepsKnownUnits(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	beta := &unit.Unit{ID: 2, SymbolicName: "beta", State: unit.StateInstalled}
	f := newFixture(t, alpha, beta)
	readers := &fakeReaders{}
	l := NewListener(f.repo, f.engine, f.runtime, readers)

	require.NoError(t, l.Activate(ctx))
	assert.True(t, f.exists(t, DefaultRootPath))
	assert.Same(t, l, readers.listener)
	assert.Len(t, f.runtime.listeners, 1)
	assert.True(t, f.record(t, "alpha").Loaded)
	assert.Nil(t, f.record(t, "beta"), "installed units are not swept")

	l.Deactivate()
	assert.Nil(t, readers.listener)
	assert.Empty(t, f.runtime.listeners)
	l.Deactivate()
}

func TestListenerRetriesDeferredWhenReaderAppears(t *testing.T) {
	ctx := t.Context()
	alpha := resolved("alpha", 1)
	f := newFixture(t, alpha)
	readers := &fakeReaders{}
	l := NewListener(f.repo, f.engine, f.runtime, readers)
	f.installer.setErr(ErrReaderUnavailable)

	require.NoError(t, l.Activate(ctx))
	require.True(t, f.engine.IsDeferred("alpha"))

	f.installer.setErr(nil)
	readers.listener.ReaderAdded(".xml")
	assert.False(t, f.engine.IsDeferred("alpha"))
	assert.True(t, f.record(t, "alpha").Loaded)

	f.installer.setErr(ErrReaderUnavailable)
	l.UnitChanged(ctx, unit.Event{Kind: unit.EventUpdated, Unit: alpha})
	l.UnitChanged(ctx, unit.Event{Kind: unit.EventResolved, Unit: alpha})
	require.True(t, f.engine.IsDeferred("alpha"))

	l.Deactivate()
	assert.Empty(t, f.engine.Deferred(), "deactivation forgets deferred units")
}

func TestStateStoreRecords(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, resolved("alpha", 1), resolved("beta", 2))
	s := f.login(t)

	recs, err := f.store.Records(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, recs, "no root yet")

	for _, u := range f.runtime.Units() {
		require.NoError(t, f.engine.RegisterUnit(ctx, s, u, false))
	}
	recs, err = f.store.Records(ctx, s)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "alpha", recs[0].UnitName)
	assert.Equal(t, "beta", recs[1].UnitName)
}

func TestStateStoreCustomRoot(t *testing.T) {
	s := NewStateStore("/etc/loader/", "id")
	assert.Equal(t, "/etc/loader", s.RootPath())
	assert.Equal(t, "/etc/loader/x", s.RecordPath("x"))
	assert.Equal(t, DefaultRootPath, NewStateStore("", "id").RootPath())
}
