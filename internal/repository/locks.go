package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"slices"

	ferrors "git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

type sessionLockManager struct {
	s *sqliteSession
}

// Lock places a lock on a saved node that carries the lockable mixin.
func (m *sessionLockManager) Lock(ctx context.Context, path string, opts LockOptions) (*Lock, error) {
	s := m.s
	if err := s.check(path); err != nil {
		return nil, err
	}
	r := s.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, lockContention(err, "begin transaction", path)
	}
	lock, err := m.lockTx(ctx, tx, path, opts)
	if err != nil {
		_ = tx.Rollback()
		return nil, lockContention(err, "lock", path)
	}
	if err := tx.Commit(); err != nil {
		return nil, lockContention(err, "commit lock", path)
	}
	r.logger.Debug("Lock acquired", logfields.Path(path), logfields.SessionID(s.id))
	return lock, nil
}

// lockContention reports a database lock held by another repository handle
// past the busy timeout as ErrLocked: that handle is either placing a lock
// itself or saving, and both mean the caller lost the race.
func lockContention(err error, message, path string) error {
	if isBusy(err) {
		return ErrLocked.WithContext("path", path).WithContext("operation", message)
	}
	var ce *ferrors.ClassifiedError
	if stderrors.As(err, &ce) {
		return err
	}
	return storageError(err, message, path)
}

func (m *sessionLockManager) lockTx(ctx context.Context, tx *sql.Tx, path string, opts LockOptions) (*Lock, error) {
	s, r := m.s, m.s.repo
	_, mixins, ok, err := r.node(ctx, tx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pathError(ErrItemNotFound, path)
	}
	if !slices.Contains(mixins, MixinLockable) {
		return nil, pathError(ErrNotLockable, path)
	}

	now := r.now()
	existing, err := r.locksAffecting(ctx, tx, path, opts.Deep)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		l := &existing[i]
		if !l.Live(now) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM locks WHERE path = ?", l.Path); err != nil {
				return nil, storageError(err, "drop expired lock", l.Path)
			}
			continue
		}
		if l.Covers(path) || (opts.Deep && IsDescendant(l.Path, path)) {
			return nil, ErrLocked.WithContext("path", path).WithContext("holder", l.InstanceID)
		}
	}

	lock := &Lock{
		Path:          path,
		SessionID:     s.id,
		InstanceID:    r.instanceID,
		Owner:         opts.Owner,
		Deep:          opts.Deep,
		SessionScoped: opts.SessionScoped,
		AcquiredAt:    now,
		ExpiresAt:     r.expiry(opts.Timeout, now),
	}
	var expires sql.NullInt64
	if lock.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: lock.ExpiresAt.UnixNano(), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO locks ("+lockColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		lock.Path, lock.SessionID, lock.InstanceID, lock.Owner,
		boolInt(lock.Deep), boolInt(lock.SessionScoped), now.UnixNano(), expires,
	)
	if isUniqueViolation(err) {
		// Lost the race against another instance.
		return nil, pathError(ErrLocked, path)
	}
	if err != nil {
		return nil, storageError(err, "insert lock", path)
	}
	return lock, nil
}

// Unlock removes the lock held by this session on path.
func (m *sessionLockManager) Unlock(ctx context.Context, path string) error {
	s := m.s
	if err := s.check(path); err != nil {
		return err
	}
	r := s.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	locks, err := r.queryLocks(ctx, r.db, "SELECT "+lockColumns+" FROM locks WHERE path = ?", path)
	if err != nil {
		return storageError(err, "query lock", path)
	}
	if len(locks) == 0 || !locks[0].Live(r.now()) {
		return pathError(ErrNotLocked, path)
	}
	if locks[0].SessionID != s.id {
		return ErrLocked.WithContext("path", path).WithContext("holder", locks[0].InstanceID)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM locks WHERE path = ? AND session_id = ?", path, s.id); err != nil {
		return storageError(err, "delete lock", path)
	}
	r.logger.Debug("Lock released", logfields.Path(path), logfields.SessionID(s.id))
	return nil
}

// IsLocked reports whether a live lock covers path.
func (m *sessionLockManager) IsLocked(ctx context.Context, path string) (bool, error) {
	if err := m.s.check(path); err != nil {
		return false, err
	}
	r := m.s.repo
	locks, err := r.locksAffecting(ctx, r.db, path, false)
	if err != nil {
		return false, err
	}
	now := r.now()
	for i := range locks {
		if locks[i].Live(now) && locks[i].Covers(path) {
			return true, nil
		}
	}
	return false, nil
}
