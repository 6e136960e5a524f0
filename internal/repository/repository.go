// Package repository provides the shared, hierarchical, transactional content
// store used by cooperating content loader instances.
//
// The store is a tree of nodes addressed by absolute slash-separated paths.
// Nodes carry a primary type, optional mixins and typed properties. Changes
// made through a Session stay pending until Save commits them atomically.
// Advisory, path-scoped locks coordinate instances: a lock is held by a
// session, and session-scoped locks disappear when the session logs out.
package repository

import (
	"context"
	"math"
	"time"
)

// TimeoutUnbounded asks for a lock that never expires on its own.
const TimeoutUnbounded time.Duration = math.MaxInt64

// Repository hands out sessions on the shared store.
type Repository interface {
	// Login opens a new session. Callers must Logout when done.
	Login(ctx context.Context) (Session, error)
}

// Session is a unit of work on the repository. A session is not safe for
// concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string

	// ItemExists reports whether a node exists at path, including pending changes.
	ItemExists(ctx context.Context, path string) (bool, error)

	// NodeType returns the primary type of the node at path.
	NodeType(ctx context.Context, path string) (string, error)

	// AddNode creates a node below an existing parent. It fails with
	// ErrItemExists if the path is already taken.
	AddNode(ctx context.Context, path, nodeType string) error

	// AddMixin adds a mixin type to an existing node.
	AddMixin(ctx context.Context, path, mixin string) error

	// RemoveNode removes the node at path and its whole subtree.
	RemoveNode(ctx context.Context, path string) error

	// Children returns the paths of the direct children of path, sorted.
	Children(ctx context.Context, path string) ([]string, error)

	// Property returns the named property and whether it is set.
	Property(ctx context.Context, path, name string) (Value, bool, error)

	// Properties returns all properties of the node at path.
	Properties(ctx context.Context, path string) (map[string]Value, error)

	// SetProperty sets a property on an existing node.
	SetProperty(ctx context.Context, path, name string, value Value) error

	// RemoveProperty clears a property. Clearing an unset property is a no-op.
	RemoveProperty(ctx context.Context, path, name string) error

	// Save commits all pending changes atomically. On failure the pending
	// changes are kept; callers typically Refresh(false) to discard them.
	Save(ctx context.Context) error

	// Refresh discards pending changes unless keepChanges is true.
	Refresh(keepChanges bool)

	// HasPendingChanges reports whether there are unsaved changes.
	HasPendingChanges() bool

	// LockManager returns the lock manager bound to this session.
	LockManager() LockManager

	// Logout discards pending changes and releases session-scoped locks.
	Logout() error
}

// LockManager manages advisory locks on behalf of one session.
type LockManager interface {
	// Lock places a lock on the saved, lockable node at path. It fails with
	// ErrLocked when a conflicting lock is held.
	Lock(ctx context.Context, path string, opts LockOptions) (*Lock, error)

	// Unlock removes the lock this session holds on path.
	Unlock(ctx context.Context, path string) error

	// IsLocked reports whether path is covered by any live lock.
	IsLocked(ctx context.Context, path string) (bool, error)
}

// LockOptions controls how a lock is placed.
type LockOptions struct {
	// Deep extends the lock to the whole subtree.
	Deep bool
	// SessionScoped locks are released when the owning session logs out.
	SessionScoped bool
	// Timeout is a hint after which the lock lapses. Zero or
	// TimeoutUnbounded means no expiry.
	Timeout time.Duration
	// Owner is free-form information about the lock holder.
	Owner string
}

// Lock describes a held lock.
type Lock struct {
	Path          string     `json:"path"`
	SessionID     string     `json:"session_id"`
	InstanceID    string     `json:"instance_id"`
	Owner         string     `json:"owner,omitempty"`
	Deep          bool       `json:"deep"`
	SessionScoped bool       `json:"session_scoped"`
	AcquiredAt    time.Time  `json:"acquired_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Live reports whether the lock is still in force at now.
func (l *Lock) Live(now time.Time) bool {
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// Covers reports whether the lock applies to path.
func (l *Lock) Covers(path string) bool {
	return l.Path == path || (l.Deep && IsDescendant(path, l.Path))
}
