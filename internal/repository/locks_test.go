package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

func createLockable(t *testing.T, s Session, p string) {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, EnsurePath(ctx, s, Parent(p), NodeTypeFolder))
	require.NoError(t, s.AddNode(ctx, p, NodeTypeUnstructured))
	require.NoError(t, s.AddMixin(ctx, p, MixinLockable))
	require.NoError(t, s.Save(ctx))
}

var sessionLock = LockOptions{SessionScoped: true, Timeout: TimeoutUnbounded}

func TestLockRequiresLockableSavedNode(t *testing.T) {
	ctx := t.Context()
	repo := newTestRepository(t, Options{})
	s := login(t, repo)

	_, err := s.LockManager().Lock(ctx, "/nowhere", sessionLock)
	require.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, s.AddNode(ctx, "/plain", ""))
	require.NoError(t, s.Save(ctx))
	_, err = s.LockManager().Lock(ctx, "/plain", sessionLock)
	require.ErrorIs(t, err, ErrNotLockable)
}

func TestLockExcludesOtherSessions(t *testing.T) {
	ctx := t.Context()
	repo := newTestRepository(t, Options{})
	holder := login(t, repo)
	other := login(t, repo)
	createLockable(t, holder, "/records/alpha")

	lock, err := holder.LockManager().Lock(ctx, "/records/alpha", sessionLock)
	require.NoError(t, err)
	assert.Equal(t, "instance-a", lock.InstanceID)
	assert.Nil(t, lock.ExpiresAt)

	locked, err := other.LockManager().IsLocked(ctx, "/records/alpha")
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = other.LockManager().Lock(ctx, "/records/alpha", sessionLock)
	require.ErrorIs(t, err, ErrLocked)

	// Writes by a non-holder are rejected at save time.
	require.NoError(t, other.SetProperty(ctx, "/records/alpha", "content-loaded", BoolValue(true)))
	require.ErrorIs(t, other.Save(ctx), ErrLocked)
	other.Refresh(false)

	require.ErrorIs(t, other.LockManager().Unlock(ctx, "/records/alpha"), ErrLocked)

	// The holder may write.
	require.NoError(t, holder.SetProperty(ctx, "/records/alpha", "content-loaded", BoolValue(true)))
	require.NoError(t, holder.Save(ctx))

	require.NoError(t, holder.LockManager().Unlock(ctx, "/records/alpha"))
	require.ErrorIs(t, holder.LockManager().Unlock(ctx, "/records/alpha"), ErrNotLocked)

	_, err = other.LockManager().Lock(ctx, "/records/alpha", sessionLock)
	require.NoError(t, err)
}

func TestSessionScopedLockReleasedOnLogout(t *testing.T) {
	ctx := t.Context()
	repo := newTestRepository(t, Options{})
	setup := login(t, repo)
	createLockable(t, setup, "/records/beta")

	holder, err := repo.Login(ctx)
	require.NoError(t, err)
	_, err = holder.LockManager().Lock(ctx, "/records/beta", sessionLock)
	require.NoError(t, err)

	locked, err := setup.LockManager().IsLocked(ctx, "/records/beta")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, holder.Logout())

	locked, err = setup.LockManager().IsLocked(ctx, "/records/beta")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestOpenScopedLockSurvivesLogout(t *testing.T) {
	ctx := t.Context()
	repo := newTestRepository(t, Options{})
	setup := login(t, repo)
	createLockable(t, setup, "/records/gamma")

	holder, err := repo.Login(ctx)
	require.NoError(t, err)
	_, err = holder.LockManager().Lock(ctx, "/records/gamma", LockOptions{Owner: "admin"})
	require.NoError(t, err)
	require.NoError(t, holder.Logout())

	locks, err := repo.Locks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "admin", locks[0].Owner)

	released, err := repo.ForceUnlock(ctx, "/records/gamma")
	require.NoError(t, err)
	assert.True(t, released)

	locks, err = repo.Locks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestLockLeaseExpires(t *testing.T) {
	ctx := t.Context()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := newTestRepository(t, Options{LockLease: time.Minute, Now: clock.Now})
	crashed := login(t, repo)
	survivor := login(t, repo)
	createLockable(t, crashed, "/records/delta")

	lock, err := crashed.LockManager().Lock(ctx, "/records/delta", sessionLock)
	require.NoError(t, err)
	require.NotNil(t, lock.ExpiresAt)
	assert.Equal(t, clock.now.Add(time.Minute), *lock.ExpiresAt)

	_, err = survivor.LockManager().Lock(ctx, "/records/delta", sessionLock)
	require.ErrorIs(t, err, ErrLocked)

	clock.Advance(2 * time.Minute)

	locked, err := survivor.LockManager().IsLocked(ctx, "/records/delta")
	require.NoError(t, err)
	assert.False(t, locked)
	_, err = survivor.LockManager().Lock(ctx, "/records/delta", sessionLock)
	require.NoError(t, err)
}

func TestDeepLockCoversDescendants(t *testing.T) {
	ctx := t.Context()
	repo := newTestRepository(t, Options{})
	holder := login(t, repo)
	other := login(t, repo)
	createLockable(t, holder, "/tree")
	createLockable(t, holder, "/tree/leaf")

	_, err := holder.LockManager().Lock(ctx, "/tree", LockOptions{Deep: true, SessionScoped: true})
	require.NoError(t, err)

	locked, err := other.LockManager().IsLocked(ctx, "/tree/leaf")
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = other.LockManager().Lock(ctx, "/tree/leaf", sessionLock)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, other.RemoveNode(ctx, "/tree/leaf"))
	require.ErrorIs(t, other.Save(ctx), ErrLocked)
}

func TestReleaseInstanceLocks(t *testing.T) {
	ctx := t.Context()
	repo := newTestRepository(t, Options{InstanceID: "crashed"})
	s := login(t, repo)
	createLockable(t, s, "/records/one")
	createLockable(t, s, "/records/two")

	for _, p := range []string{"/records/one", "/records/two"} {
		_, err := s.LockManager().Lock(ctx, p, sessionLock)
		require.NoError(t, err)
	}

	n, err := repo.ReleaseInstanceLocks(ctx, "someone-else")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.ReleaseInstanceLocks(ctx, "crashed")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteContentionAcrossHandlesIsReportedAsLocked(t *testing.T) {
	ctx := t.Context()
	dbPath := filepath.Join(t.TempDir(), "content.db")
	open := func(id string) *SQLiteRepository {
		repo, err := NewSQLiteRepository(dbPath, Options{InstanceID: id, BusyTimeout: 50 * time.Millisecond})
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	}
	a, b := open("instance-a"), open("instance-b")
	createLockable(t, login(t, a), "/records/alpha")
	other := login(t, b)

	// Hold the database write lock from the first handle.
	tx, err := a.db.BeginTx(ctx, nil)
	require.NoError(t, err)

	_, err = other.LockManager().Lock(ctx, "/records/alpha", sessionLock)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, other.AddNode(ctx, "/records/beta", ""))
	err = other.Save(ctx)
	require.ErrorIs(t, err, ErrBusy)
	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.True(t, classified.CanRetry())
	assert.True(t, other.HasPendingChanges())

	require.NoError(t, tx.Rollback())
	require.NoError(t, other.Save(ctx))
	lock, err := other.LockManager().Lock(ctx, "/records/alpha", sessionLock)
	require.NoError(t, err)
	assert.Equal(t, "instance-b", lock.InstanceID)
}
