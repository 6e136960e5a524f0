package loader

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/metrics"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/retry"
)

// DefaultRootPath is the repository path below which one record per unit is
// kept.
const DefaultRootPath = "/var/contentloader/bundle-content"

// Record properties.
const (
	PropContentLoaded  = "content-loaded"
	PropLoadTime       = "content-load-time"
	PropLoadedBy       = "content-loaded-by"
	PropUnloadTime     = "content-unload-time"
	PropUnloadedBy     = "content-unloaded-by"
	PropUninstallPaths = "uninstall-paths"
)

// Record is the persisted content state of one unit.
type Record struct {
	UnitName       string     `json:"unit"`
	Path           string     `json:"path"`
	Loaded         bool       `json:"loaded"`
	LoadTime       *time.Time `json:"load_time,omitempty"`
	LoadedBy       string     `json:"loaded_by,omitempty"`
	UnloadTime     *time.Time `json:"unload_time,omitempty"`
	UnloadedBy     string     `json:"unloaded_by,omitempty"`
	UninstallPaths []string   `json:"uninstall_paths,omitempty"`
	Locked         bool       `json:"locked"`
}

// StateStore keeps unit records in the repository and coordinates access to
// them through advisory locks.
type StateStore struct {
	root       string
	instanceID string
	now        func() time.Time
	recorder   metrics.Recorder
	persist    retry.Policy
	logger     *slog.Logger
}

// StoreOption configures a StateStore.
type StoreOption func(*StateStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *StateStore) { s.now = now }
}

// WithStoreRecorder injects a metrics recorder for lock release failures.
func WithStoreRecorder(r metrics.Recorder) StoreOption {
	return func(s *StateStore) { s.recorder = r }
}

// WithPersistRetry sets the policy for saving a loaded record when the
// repository is busy.
func WithPersistRetry(p retry.Policy) StoreOption {
	return func(s *StateStore) { s.persist = p }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *StateStore) { s.logger = l }
}

// NewStateStore creates a store rooted at root; an empty root selects
// DefaultRootPath. instanceID is stamped into load and unload bookkeeping.
func NewStateStore(root, instanceID string, opts ...StoreOption) *StateStore {
	if root == "" {
		root = DefaultRootPath
	}
	s := &StateStore{
		root:       strings.TrimSuffix(root, "/"),
		instanceID: instanceID,
		now:        time.Now,
		recorder:   metrics.NoopRecorder{},
		persist:    retry.NewPolicy(string(retry.BackoffLinear), 100*time.Millisecond, time.Second, 3),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RootPath returns the record root.
func (s *StateStore) RootPath() string { return s.root }

// InstanceID returns the identity written into records.
func (s *StateStore) InstanceID() string { return s.instanceID }

// RecordPath returns the repository path of the record for unitName.
func (s *StateStore) RecordPath(unitName string) string {
	return s.root + "/" + unitName
}

// EnsureRootPath creates the record root as a chain of folders if needed.
func (s *StateStore) EnsureRootPath(ctx context.Context, session repository.Session) error {
	return repository.EnsurePath(ctx, session, s.root, repository.NodeTypeFolder)
}

// AcquireRecord locks and reads the record of unitName. It returns nil with
// no error (Absent) when there is no record and create is false, or when
// the record is locked by anyone, including a lock race lost just now.
func (s *StateStore) AcquireRecord(ctx context.Context, session repository.Session, unitName string, create bool) (*Record, error) {
	p := s.RecordPath(unitName)
	exists, err := session.ItemExists(ctx, p)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !create {
			return nil, nil
		}
		if err := s.createRecord(ctx, session, p); err != nil {
			s.logger.WarnContext(ctx, "Could not create content record, re-reading",
				logfields.Unit(unitName), logfields.Path(p), logfields.Error(err))
			session.Refresh(false)
			if exists, rerr := session.ItemExists(ctx, p); rerr != nil {
				return nil, rerr
			} else if !exists {
				return nil, err
			}
		}
	}

	lm := session.LockManager()
	locked, err := lm.IsLocked(ctx, p)
	if err != nil {
		return nil, err
	}
	if locked {
		s.logger.DebugContext(ctx, "Content record is locked, skipping", logfields.Unit(unitName))
		return nil, nil
	}
	_, err = lm.Lock(ctx, p, repository.LockOptions{
		Deep:          false,
		SessionScoped: true,
		Timeout:       repository.TimeoutUnbounded,
	})
	if stderrors.Is(err, repository.ErrLocked) {
		s.logger.DebugContext(ctx, "Lost lock race for content record", logfields.Unit(unitName))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := s.read(ctx, session, unitName)
	if err != nil {
		s.unlock(ctx, session, unitName)
		return nil, err
	}
	rec.Locked = true
	return rec, nil
}

func (s *StateStore) createRecord(ctx context.Context, session repository.Session, p string) error {
	if err := s.EnsureRootPath(ctx, session); err != nil {
		return err
	}
	if err := session.AddNode(ctx, p, repository.NodeTypeUnstructured); err != nil {
		return err
	}
	if err := session.AddMixin(ctx, p, repository.MixinLockable); err != nil {
		return err
	}
	return session.Save(ctx)
}

// ReleaseRecord persists a successful load when loaded is true, then
// releases the record lock whatever happened before. With loaded false no
// state is written.
func (s *StateStore) ReleaseRecord(ctx context.Context, session repository.Session, unitName string, loaded bool, createdPaths []string) error {
	if !loaded {
		s.unlock(ctx, session, unitName)
		return nil
	}
	return s.ReleaseLoaded(ctx, session, unitName, createdPaths, nil)
}

// ReleaseLoaded persists a successful load and releases the record lock.
// Saving is retried while the repository is busy. If it still fails, undo
// runs before the lock is released so that content is never left installed
// behind a record that says otherwise.
func (s *StateStore) ReleaseLoaded(ctx context.Context, session repository.Session, unitName string, createdPaths []string, undo func(context.Context) error) error {
	err := s.persist.Do(ctx, func(ctx context.Context) error {
		werr := s.writeLoaded(ctx, session, unitName, createdPaths)
		if werr != nil {
			session.Refresh(false)
		}
		return werr
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist content record",
			logfields.Unit(unitName), logfields.Error(err))
		if undo != nil {
			if uerr := undo(ctx); uerr != nil {
				s.logger.ErrorContext(ctx, "Failed to remove content after record write failure",
					logfields.Unit(unitName), logfields.Error(uerr))
				session.Refresh(false)
			}
		}
	}
	s.unlock(ctx, session, unitName)
	return err
}

func (s *StateStore) writeLoaded(ctx context.Context, session repository.Session, unitName string, createdPaths []string) error {
	p := s.RecordPath(unitName)
	sets := []struct {
		name  string
		value repository.Value
	}{
		{PropContentLoaded, repository.BoolValue(true)},
		{PropLoadTime, repository.DateValue(s.now())},
		{PropLoadedBy, repository.StringValue(s.instanceID)},
	}
	for _, kv := range sets {
		if err := session.SetProperty(ctx, p, kv.name, kv.value); err != nil {
			return err
		}
	}
	for _, name := range []string{PropUnloadTime, PropUnloadedBy} {
		if err := session.RemoveProperty(ctx, p, name); err != nil {
			return err
		}
	}
	if len(createdPaths) > 0 {
		if err := session.SetProperty(ctx, p, PropUninstallPaths, repository.StringsValue(createdPaths)); err != nil {
			return err
		}
	}
	return session.Save(ctx)
}

// MarkUninstalled records that the unit's content is gone. Failures are
// logged and swallowed.
func (s *StateStore) MarkUninstalled(ctx context.Context, session repository.Session, unitName string) {
	p := s.RecordPath(unitName)
	exists, err := session.ItemExists(ctx, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to check content record", logfields.Unit(unitName), logfields.Error(err))
		return
	}
	if !exists {
		return
	}
	if err := s.writeUnloaded(ctx, session, p); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark content as uninstalled", logfields.Unit(unitName), logfields.Error(err))
		session.Refresh(false)
	}
}

func (s *StateStore) writeUnloaded(ctx context.Context, session repository.Session, p string) error {
	if err := session.SetProperty(ctx, p, PropContentLoaded, repository.BoolValue(false)); err != nil {
		return err
	}
	if err := session.SetProperty(ctx, p, PropUnloadTime, repository.DateValue(s.now())); err != nil {
		return err
	}
	if err := session.SetProperty(ctx, p, PropUnloadedBy, repository.StringValue(s.instanceID)); err != nil {
		return err
	}
	for _, name := range []string{PropLoadTime, PropLoadedBy, PropUninstallPaths} {
		if err := session.RemoveProperty(ctx, p, name); err != nil {
			return err
		}
	}
	return session.Save(ctx)
}

func (s *StateStore) unlock(ctx context.Context, session repository.Session, unitName string) {
	if err := session.LockManager().Unlock(ctx, s.RecordPath(unitName)); err != nil {
		s.recorder.IncLockReleaseFailure()
		s.logger.ErrorContext(ctx, "Failed to release content record lock",
			logfields.Unit(unitName), logfields.Error(err))
	}
}

// Lookup reads the record of unitName without locking it. It returns nil if
// there is none.
func (s *StateStore) Lookup(ctx context.Context, session repository.Session, unitName string) (*Record, error) {
	p := s.RecordPath(unitName)
	exists, err := session.ItemExists(ctx, p)
	if err != nil || !exists {
		return nil, err
	}
	rec, err := s.read(ctx, session, unitName)
	if err != nil {
		return nil, err
	}
	if rec.Locked, err = session.LockManager().IsLocked(ctx, p); err != nil {
		return nil, err
	}
	return rec, nil
}

// Records returns every record below the root, sorted by unit name.
func (s *StateStore) Records(ctx context.Context, session repository.Session) ([]*Record, error) {
	exists, err := session.ItemExists(ctx, s.root)
	if err != nil || !exists {
		return nil, err
	}
	children, err := session.Children(ctx, s.root)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(children))
	for _, c := range children {
		rec, err := s.Lookup(ctx, session, repository.Name(c))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *StateStore) read(ctx context.Context, session repository.Session, unitName string) (*Record, error) {
	p := s.RecordPath(unitName)
	props, err := session.Properties(ctx, p)
	if err != nil {
		return nil, err
	}
	rec := &Record{UnitName: unitName, Path: p}
	if v, ok := props[PropContentLoaded]; ok {
		rec.Loaded = v.Bool()
	}
	if v, ok := props[PropLoadTime]; ok {
		t := v.Date()
		rec.LoadTime = &t
	}
	if v, ok := props[PropLoadedBy]; ok {
		rec.LoadedBy = v.String()
	}
	if v, ok := props[PropUnloadTime]; ok {
		t := v.Date()
		rec.UnloadTime = &t
	}
	if v, ok := props[PropUnloadedBy]; ok {
		rec.UnloadedBy = v.String()
	}
	if v, ok := props[PropUninstallPaths]; ok {
		rec.UninstallPaths = v.Strings()
	}
	return rec, nil
}
