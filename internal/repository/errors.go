package repository

import (
	ferrors "git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// Sentinel errors for repository operations. Errors returned by sessions carry
// extra context (path, session) but still match these with errors.Is.
var (
	// ErrItemNotFound indicates that no node exists at the requested path.
	ErrItemNotFound = ferrors.NotFoundError("item not found").Build()

	// ErrItemExists indicates that a node already exists at the requested path,
	// either in this session or because another session saved it first.
	ErrItemExists = ferrors.NewError(ferrors.CategoryAlreadyExists, "item exists").Build()

	// ErrLocked indicates that a lock held by another session prevents the operation.
	ErrLocked = ferrors.LockError("item is locked").Build()

	// ErrNotLocked indicates an unlock of a path that carries no lock.
	ErrNotLocked = ferrors.LockError("item is not locked").Build()

	// ErrNotLockable indicates a lock request on a node without the lockable mixin.
	ErrNotLockable = ferrors.LockError("item is not lockable").Build()

	// ErrInvalidPath indicates a malformed repository path.
	ErrInvalidPath = ferrors.ValidationError("invalid repository path").Build()

	// ErrBusy indicates that another repository handle held the database
	// write lock past the busy timeout. The operation may be retried.
	ErrBusy = ferrors.RepositoryError("repository is busy").Build()

	// ErrSessionClosed indicates use of a session after Logout.
	ErrSessionClosed = ferrors.RuntimeError("session is closed").Build()
)

func pathError(sentinel *ferrors.ClassifiedError, p string) error {
	return sentinel.WithContext("path", p)
}

func storageError(err error, message, p string) error {
	if isBusy(err) {
		return ferrors.WrapError(err, ferrors.CategoryRepository, ErrBusy.Message()).
			Retryable().
			WithContext("path", p).
			WithContext("operation", message).
			Build()
	}
	return ferrors.WrapError(err, ferrors.CategoryRepository, message).
		WithContext("path", p).
		Build()
}
