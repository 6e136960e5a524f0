// Package daemon runs a content loader instance: it discovers units on disk,
// keeps their content registered in the shared repository, retries deferred
// units periodically and serves status and metrics over HTTP.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/contentloader/internal/config"
	"git.home.luguber.info/inful/contentloader/internal/contentreader"
	"git.home.luguber.info/inful/contentloader/internal/eventstore"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/installer"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/metrics"
	"git.home.luguber.info/inful/contentloader/internal/notify"
	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/unit"
	"git.home.luguber.info/inful/contentloader/internal/version"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const sweepJobName = "retry-deferred"

// Daemon owns every component of a running instance.
type Daemon struct {
	cfg        *config.Config
	instanceID string
	logger     *slog.Logger
	status     atomic.Value // Status
	startTime  time.Time
	mu         sync.Mutex
	closed     bool

	repo      *repository.SQLiteRepository
	readers   *contentreader.Registry
	catalog   *unit.Catalog
	store     *loader.StateStore
	engine    *loader.Engine
	listener  *loader.Listener
	scheduler *Scheduler
	registry  *prom.Registry

	audit     *eventstore.SQLiteStore
	history   *eventstore.UnitHistoryProjection
	publisher notify.Publisher
	notifier  *notify.Observer
}

// New builds every component from cfg without starting anything besides
// the NATS connection when notify is enabled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{cfg: cfg, logger: logger, publisher: notify.NoopPublisher{}}
	d.status.Store(StatusStopped)

	instanceID, err := cfg.ResolveInstanceID()
	if err != nil {
		return nil, err
	}
	d.instanceID = instanceID

	if err := ensureParentDir(cfg.Repository.Path); err != nil {
		return nil, err
	}
	d.repo, err = repository.NewSQLiteRepository(cfg.Repository.Path, repository.Options{
		InstanceID: instanceID,
		LockLease:  cfg.Repository.LockLease.Std(),
		Logger:     logger,
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRepository, "failed to open repository").
			WithContext("path", cfg.Repository.Path).Build()
	}

	d.registry = prom.NewRegistry()
	d.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(d.registry)

	filter, err := unit.NewFilter(cfg.Units.Include, cfg.Units.Exclude)
	if err != nil {
		d.closeStores()
		return nil, err
	}
	d.readers = contentreader.NewDefaultRegistry(logger, cfg.Readers.Disabled)
	d.catalog = unit.NewCatalog(cfg.Units.Dir, filter, logger)

	engineOpts := []loader.EngineOption{loader.WithRecorder(recorder), loader.WithLogger(logger)}
	if cfg.Audit.Enabled {
		if err := d.openAudit(); err != nil {
			d.closeStores()
			return nil, err
		}
		engineOpts = append(engineOpts, loader.WithObserver(eventstore.NewAuditObserver(d.audit, d.history, logger)))
	}
	if cfg.Notify.Enabled {
		p, err := notify.NewNATSPublisher(ctx, &cfg.Notify, logger)
		if err != nil {
			logger.Warn("Content events will not be published", logfields.Error(err))
		} else {
			d.publisher = p
			d.notifier = notify.NewObserver(p, cfg.Notify.Timeout.Std(), logger).
				WithRetry(cfg.Notify.RetryPolicy()).
				WithQueueSize(cfg.Notify.QueueSize)
			engineOpts = append(engineOpts, loader.WithObserver(d.notifier))
		}
	}

	d.store = loader.NewStateStore(cfg.Repository.RootPath, instanceID,
		loader.WithStoreRecorder(recorder), loader.WithStoreLogger(logger))
	d.engine = loader.NewEngine(d.store, installer.New(d.readers, logger), d.catalog, engineOpts...)
	d.listener = loader.NewListener(d.repo, d.engine, d.catalog, d.readers,
		loader.WithListenerRecorder(recorder), loader.WithListenerLogger(logger))

	d.scheduler, err = NewScheduler(logger)
	if err != nil {
		d.closeStores()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) openAudit() error {
	if err := ensureParentDir(d.cfg.Audit.Path); err != nil {
		return err
	}
	store, err := eventstore.NewSQLiteStore(d.cfg.Audit.Path)
	if err != nil {
		return err
	}
	d.audit = store
	d.history = eventstore.NewUnitHistoryProjection(store, d.cfg.Audit.HistorySize)
	return nil
}

// Start brings the instance up: it clears locks left by an earlier run of
// this instance, activates the listener, scans the unit directory and
// starts the retry sweep. It returns once the initial scan is processed.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.GetStatus(); s != StatusStopped || d.closed {
		return errors.DaemonError("daemon cannot be started").WithContext("status", string(s)).Build()
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	d.logger.Info("Starting content loader",
		logfields.InstanceID(d.instanceID),
		slog.String("version", version.Version),
		slog.String("root_path", d.store.RootPath()))

	if n, err := d.repo.ReleaseInstanceLocks(ctx, d.instanceID); err != nil {
		d.logger.Warn("Failed to release stale locks", logfields.Error(err))
	} else if n > 0 {
		d.logger.Info("Released stale locks from a previous run", logfields.Count(n))
	}

	if d.history != nil {
		if err := d.history.Rebuild(ctx); err != nil {
			d.logger.Warn("Failed to rebuild unit history", logfields.Error(err))
		}
	}

	if err := d.listener.Activate(ctx); err != nil {
		d.status.Store(StatusError)
		return errors.WrapError(err, errors.CategoryDaemon, "failed to activate content loader").Build()
	}
	if err := d.catalog.Scan(ctx); err != nil {
		d.listener.Deactivate()
		d.status.Store(StatusError)
		return err
	}

	if err := d.scheduleSweep(ctx); err != nil {
		d.listener.Deactivate()
		d.status.Store(StatusError)
		return err
	}
	d.scheduler.Start(ctx)

	d.status.Store(StatusRunning)
	d.logger.Info("Content loader started",
		slog.Int("units", len(d.catalog.Units())),
		slog.Int("deferred", len(d.engine.Deferred())))
	return nil
}

func (d *Daemon) scheduleSweep(ctx context.Context) error {
	sweep := func() {
		d.listener.RetryDeferred(context.WithoutCancel(ctx))
	}
	var err error
	if expr := d.cfg.Retry.Schedule; expr != "" {
		_, err = d.scheduler.ScheduleCron(sweepJobName, expr, sweep)
	} else {
		_, err = d.scheduler.ScheduleEvery(sweepJobName, d.cfg.Retry.SweepInterval.Std(), sweep)
	}
	return err
}

// Run starts the daemon, then runs the unit watcher and the HTTP server
// until ctx is done, and finally stops everything.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		_ = d.Stop(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.cfg.Units.Watch {
		w, err := unit.NewWatcher(d.catalog, d.cfg.Units.Debounce.Std(), d.logger)
		if err != nil {
			d.logger.Error("Unit watcher unavailable", logfields.Error(err))
		} else {
			g.Go(func() error {
				if err := w.Run(gctx); err != nil {
					d.logger.Error("Unit watcher stopped", logfields.Error(err))
				}
				return nil
			})
		}
	}
	if d.cfg.HTTP.Addr != "" {
		srv := NewHTTPServer(d.cfg.HTTP.Addr, d.Handler(), d.logger)
		if err := srv.Listen(); err != nil {
			_ = d.Stop(context.Background())
			return err
		}
		g.Go(srv.Serve)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Stop stops the sweep, detaches the listener and closes every store. A
// stopped daemon cannot be started again.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.GetStatus() == StatusStopping {
		return nil
	}
	d.status.Store(StatusStopping)
	d.logger.Info("Stopping content loader")

	if err := d.scheduler.Stop(ctx); err != nil {
		d.logger.Error("Failed to stop scheduler", logfields.Error(err))
	}
	d.listener.Deactivate()
	if d.notifier != nil {
		drain := d.cfg.Notify.Timeout.Std()
		if drain <= 0 {
			drain = 5 * time.Second
		}
		drainCtx, cancel := context.WithTimeout(ctx, drain)
		err := d.notifier.Close(drainCtx)
		cancel()
		if err != nil {
			d.logger.Warn("Content events still queued at shutdown were not published", logfields.Error(err))
		}
	}
	if err := d.publisher.Close(); err != nil {
		d.logger.Error("Failed to close publisher", logfields.Error(err))
	}
	d.closeStores()
	d.closed = true

	d.status.Store(StatusStopped)
	d.logger.Info("Content loader stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return nil
}

func (d *Daemon) closeStores() {
	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			d.logger.Error("Failed to close audit store", logfields.Error(err))
		}
	}
	if d.repo != nil {
		if err := d.repo.Close(); err != nil {
			d.logger.Error("Failed to close repository", logfields.Error(err))
		}
	}
}

// GetStatus returns the current daemon status
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// InstanceID returns the id this instance writes into records and locks.
func (d *Daemon) InstanceID() string { return d.instanceID }

// Listener returns the lifecycle listener.
func (d *Daemon) Listener() *loader.Listener { return d.listener }

// Readers returns the content reader registry. Registering a reader
// retries deferred units.
func (d *Daemon) Readers() *contentreader.Registry { return d.readers }

// Catalog returns the unit catalog.
func (d *Daemon) Catalog() *unit.Catalog { return d.catalog }

func ensureParentDir(p string) error {
	if p == ":memory:" {
		return nil
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to create data directory").
			WithContext("path", dir).Build()
	}
	return nil
}
