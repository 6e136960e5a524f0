package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

// Options configures a SQLiteRepository.
type Options struct {
	// InstanceID identifies the cluster member owning locks taken through
	// this repository handle.
	InstanceID string
	// LockLease caps the lifetime of every lock. Zero means locks only end
	// through Unlock, Logout or ForceUnlock.
	LockLease time.Duration
	// BusyTimeout bounds how long a write waits for another handle on the
	// same file to release the database. Zero selects five seconds.
	BusyTimeout time.Duration
	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger *slog.Logger
}

// SQLiteRepository implements Repository on top of SQLite. Several processes
// may share one database file; each acts as a cluster instance.
type SQLiteRepository struct {
	db         *sql.DB
	mu         sync.Mutex // serializes write transactions within the process
	instanceID string
	lease      time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteRepository opens (and if needed initializes) a repository.
// Use ":memory:" for a private in-memory store, or a file path for a store
// shared between processes.
func NewSQLiteRepository(dbPath string, opts Options) (*SQLiteRepository, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	dsn := dbPath
	if dbPath != ":memory:" {
		// Immediate transactions take the write lock up front, so concurrent
		// writers queue on busy_timeout instead of failing a lock upgrade.
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
			dbPath, opts.BusyTimeout.Milliseconds())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and avoids
	// SQLITE_BUSY between goroutines of the same process.
	db.SetMaxOpenConns(1)

	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := &SQLiteRepository{
		db:         db,
		instanceID: opts.InstanceID,
		lease:      opts.LockLease,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if err := repo.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		node_type TEXT NOT NULL,
		mixins TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);
	CREATE TABLE IF NOT EXISTS properties (
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		kind INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (path, name)
	);
	CREATE TABLE IF NOT EXISTS locks (
		path TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		deep INTEGER NOT NULL,
		session_scoped INTEGER NOT NULL,
		acquired_at INTEGER NOT NULL,
		expires_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_locks_session ON locks(session_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return err
	}
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO nodes (path, parent, node_type, mixins, created_at) VALUES (?, ?, ?, '', ?)",
		RootPath, "", NodeTypeUnstructured, r.now().UnixNano(),
	)
	return err
}

// InstanceID returns the instance identity stamped on locks.
func (r *SQLiteRepository) InstanceID() string { return r.instanceID }

// Login opens a new session.
func (r *SQLiteRepository) Login(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &sqliteSession{
		repo:    r,
		id:      uuid.NewString(),
		pending: newChanges(),
	}
	r.logger.Debug("Session opened", logfields.SessionID(s.id))
	return s, nil
}

// Locks returns all live locks.
func (r *SQLiteRepository) Locks(ctx context.Context) ([]Lock, error) {
	locks, err := r.queryLocks(ctx, r.db, "SELECT "+lockColumns+" FROM locks ORDER BY path")
	if err != nil {
		return nil, storageError(err, "query locks", RootPath)
	}
	now := r.now()
	live := locks[:0]
	for _, l := range locks {
		if l.Live(now) {
			live = append(live, l)
		}
	}
	return live, nil
}

// ForceUnlock removes any lock on path regardless of holder. It is an
// administrative escape hatch for locks left by a crashed instance.
func (r *SQLiteRepository) ForceUnlock(ctx context.Context, path string) (bool, error) {
	if err := ValidatePath(path); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.db.ExecContext(ctx, "DELETE FROM locks WHERE path = ?", path)
	if err != nil {
		return false, storageError(err, "force unlock", path)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReleaseInstanceLocks drops every lock held by sessions of instanceID.
// Called at startup, it recovers from a crash of the same instance.
func (r *SQLiteRepository) ReleaseInstanceLocks(ctx context.Context, instanceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.db.ExecContext(ctx, "DELETE FROM locks WHERE instance_id = ?", instanceID)
	if err != nil {
		return 0, storageError(err, "release instance locks", RootPath)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) expiry(timeout time.Duration, now time.Time) *time.Time {
	if timeout == TimeoutUnbounded {
		timeout = 0
	}
	if r.lease > 0 && (timeout <= 0 || timeout > r.lease) {
		timeout = r.lease
	}
	if timeout <= 0 {
		return nil
	}
	t := now.Add(timeout)
	return &t
}

// node returns the stored type and mixins of path.
func (r *SQLiteRepository) node(ctx context.Context, q querier, path string) (string, []string, bool, error) {
	var nodeType, mixins string
	err := q.QueryRowContext(ctx, "SELECT node_type, mixins FROM nodes WHERE path = ?", path).Scan(&nodeType, &mixins)
	if err == sql.ErrNoRows {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, storageError(err, "query node", path)
	}
	return nodeType, splitMixins(mixins), true, nil
}

func (r *SQLiteRepository) children(ctx context.Context, q querier, parent string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT path FROM nodes WHERE parent = ? ORDER BY path", parent)
	if err != nil {
		return nil, storageError(err, "query children", parent)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, storageError(err, "scan children", parent)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "iterate children", parent)
	}
	return out, nil
}

func (r *SQLiteRepository) properties(ctx context.Context, q querier, path string) (map[string]Value, error) {
	rows, err := q.QueryContext(ctx, "SELECT name, kind, value FROM properties WHERE path = ?", path)
	if err != nil {
		return nil, storageError(err, "query properties", path)
	}
	defer rows.Close()

	props := make(map[string]Value)
	for rows.Next() {
		var (
			name string
			kind int
			raw  string
		)
		if err := rows.Scan(&name, &kind, &raw); err != nil {
			return nil, storageError(err, "scan property", path)
		}
		v, err := decodeValue(ValueKind(kind), raw)
		if err != nil {
			return nil, storageError(err, "decode property "+name, path)
		}
		props[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "iterate properties", path)
	}
	return props, nil
}

const lockColumns = "path, session_id, instance_id, owner, deep, session_scoped, acquired_at, expires_at"

func (r *SQLiteRepository) queryLocks(ctx context.Context, q querier, query string, args ...any) ([]Lock, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []Lock
	for rows.Next() {
		var (
			l             Lock
			deep, scoped  int
			acquired      int64
			expires       sql.NullInt64
		)
		if err := rows.Scan(&l.Path, &l.SessionID, &l.InstanceID, &l.Owner, &deep, &scoped, &acquired, &expires); err != nil {
			return nil, err
		}
		l.Deep = deep != 0
		l.SessionScoped = scoped != 0
		l.AcquiredAt = time.Unix(0, acquired)
		if expires.Valid {
			t := time.Unix(0, expires.Int64)
			l.ExpiresAt = &t
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// locksAffecting returns locks on path or its ancestors, and with
// withDescendants also locks anywhere below path. Callers filter by
// liveness and coverage.
func (r *SQLiteRepository) locksAffecting(ctx context.Context, q querier, path string, withDescendants bool) ([]Lock, error) {
	candidates := append([]string{path}, ancestors(path)...)
	args := make([]any, 0, len(candidates)+2)
	for _, c := range candidates {
		args = append(args, c)
	}
	query := "SELECT " + lockColumns + " FROM locks WHERE path IN (?" + strings.Repeat(", ?", len(candidates)-1) + ")"
	if withDescendants {
		prefix := strings.TrimSuffix(path, "/") + "/"
		query += " OR substr(path, 1, ?) = ?"
		args = append(args, len(prefix), prefix)
	}
	locks, err := r.queryLocks(ctx, q, query, args...)
	if err != nil {
		return nil, storageError(err, "query locks", path)
	}
	return locks, nil
}

func splitMixins(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusy reports whether err is SQLite refusing a write because another
// connection, possibly in another process, holds the database lock.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !stderrors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
