package repository

import (
	"context"
	"database/sql"
	"slices"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

type pendingNode struct {
	nodeType string
	mixins   []string
}

// changes holds the unsaved state of a session.
type changes struct {
	added   map[string]*pendingNode
	order   []string // creation order, parents before children
	mixins  map[string][]string
	removed map[string]struct{}
	props   map[string]map[string]*Value // nil value marks a removal
}

func newChanges() *changes {
	return &changes{
		added:   make(map[string]*pendingNode),
		mixins:  make(map[string][]string),
		removed: make(map[string]struct{}),
		props:   make(map[string]map[string]*Value),
	}
}

func (c *changes) empty() bool {
	return len(c.added) == 0 && len(c.mixins) == 0 && len(c.removed) == 0 && len(c.props) == 0
}

// hidden reports whether a stored node at p is shadowed by a pending removal.
func (c *changes) hidden(p string) bool {
	if _, ok := c.removed[p]; ok {
		return true
	}
	for _, a := range ancestors(p) {
		if _, ok := c.removed[a]; ok {
			return true
		}
	}
	return false
}

// purge drops pending state for p and everything below it.
func (c *changes) purge(p string) {
	within := func(candidate string) bool { return candidate == p || IsDescendant(candidate, p) }
	for k := range c.added {
		if within(k) {
			delete(c.added, k)
		}
	}
	c.order = slices.DeleteFunc(c.order, within)
	for k := range c.mixins {
		if within(k) {
			delete(c.mixins, k)
		}
	}
	for k := range c.props {
		if within(k) {
			delete(c.props, k)
		}
	}
}

type sqliteSession struct {
	repo    *SQLiteRepository
	id      string
	closed  bool
	pending *changes
}

func (s *sqliteSession) ID() string { return s.id }

func (s *sqliteSession) check(p string) error {
	if s.closed {
		return ErrSessionClosed.WithContext("session_id", s.id)
	}
	return ValidatePath(p)
}

// lookup resolves a node through pending changes, then storage.
func (s *sqliteSession) lookup(ctx context.Context, p string) (nodeType string, mixins []string, isNew, ok bool, err error) {
	if n, found := s.pending.added[p]; found {
		return n.nodeType, n.mixins, true, true, nil
	}
	if s.pending.hidden(p) {
		return "", nil, false, false, nil
	}
	nodeType, mixins, ok, err = s.repo.node(ctx, s.repo.db, p)
	if ok {
		mixins = append(mixins, s.pending.mixins[p]...)
	}
	return nodeType, mixins, false, ok, err
}

func (s *sqliteSession) ItemExists(ctx context.Context, p string) (bool, error) {
	if err := s.check(p); err != nil {
		return false, err
	}
	_, _, _, ok, err := s.lookup(ctx, p)
	return ok, err
}

func (s *sqliteSession) NodeType(ctx context.Context, p string) (string, error) {
	if err := s.check(p); err != nil {
		return "", err
	}
	nodeType, _, _, ok, err := s.lookup(ctx, p)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", pathError(ErrItemNotFound, p)
	}
	return nodeType, nil
}

func (s *sqliteSession) AddNode(ctx context.Context, p, nodeType string) error {
	if err := s.check(p); err != nil {
		return err
	}
	if p == RootPath {
		return pathError(ErrItemExists, p)
	}
	if _, _, _, ok, err := s.lookup(ctx, p); err != nil {
		return err
	} else if ok {
		return pathError(ErrItemExists, p)
	}
	parent := Parent(p)
	if _, _, _, ok, err := s.lookup(ctx, parent); err != nil {
		return err
	} else if !ok {
		return pathError(ErrItemNotFound, parent)
	}
	if nodeType == "" {
		nodeType = NodeTypeUnstructured
	}
	s.pending.added[p] = &pendingNode{nodeType: nodeType}
	s.pending.order = append(s.pending.order, p)
	return nil
}

func (s *sqliteSession) AddMixin(ctx context.Context, p, mixin string) error {
	if err := s.check(p); err != nil {
		return err
	}
	_, mixins, isNew, ok, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return pathError(ErrItemNotFound, p)
	}
	if slices.Contains(mixins, mixin) {
		return nil
	}
	if isNew {
		s.pending.added[p].mixins = append(s.pending.added[p].mixins, mixin)
	} else {
		s.pending.mixins[p] = append(s.pending.mixins[p], mixin)
	}
	return nil
}

func (s *sqliteSession) RemoveNode(ctx context.Context, p string) error {
	if err := s.check(p); err != nil {
		return err
	}
	if p == RootPath {
		return pathError(ErrInvalidPath, p)
	}
	_, _, isNew, ok, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return pathError(ErrItemNotFound, p)
	}
	s.pending.purge(p)
	if !isNew {
		s.pending.removed[p] = struct{}{}
	}
	return nil
}

func (s *sqliteSession) Children(ctx context.Context, p string) ([]string, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}
	_, _, isNew, ok, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pathError(ErrItemNotFound, p)
	}
	seen := make(map[string]struct{})
	var out []string
	if !isNew {
		stored, err := s.repo.children(ctx, s.repo.db, p)
		if err != nil {
			return nil, err
		}
		for _, c := range stored {
			if !s.pending.hidden(c) {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	for c := range s.pending.added {
		if Parent(c) != p || c == p {
			continue
		}
		if _, dup := seen[c]; !dup {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *sqliteSession) Property(ctx context.Context, p, name string) (Value, bool, error) {
	props, err := s.Properties(ctx, p)
	if err != nil {
		return Value{}, false, err
	}
	v, ok := props[name]
	return v, ok, nil
}

func (s *sqliteSession) Properties(ctx context.Context, p string) (map[string]Value, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}
	_, _, isNew, ok, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pathError(ErrItemNotFound, p)
	}
	props := make(map[string]Value)
	if !isNew {
		if props, err = s.repo.properties(ctx, s.repo.db, p); err != nil {
			return nil, err
		}
	}
	for name, v := range s.pending.props[p] {
		if v == nil {
			delete(props, name)
		} else {
			props[name] = *v
		}
	}
	return props, nil
}

func (s *sqliteSession) SetProperty(ctx context.Context, p, name string, value Value) error {
	return s.stageProperty(ctx, p, name, &value)
}

func (s *sqliteSession) RemoveProperty(ctx context.Context, p, name string) error {
	return s.stageProperty(ctx, p, name, nil)
}

func (s *sqliteSession) stageProperty(ctx context.Context, p, name string, v *Value) error {
	if err := s.check(p); err != nil {
		return err
	}
	if name == "" {
		return ferrors.ValidationError("property name must not be empty").WithContext("path", p).Build()
	}
	if _, _, _, ok, err := s.lookup(ctx, p); err != nil {
		return err
	} else if !ok {
		return pathError(ErrItemNotFound, p)
	}
	if s.pending.props[p] == nil {
		s.pending.props[p] = make(map[string]*Value)
	}
	s.pending.props[p][name] = v
	return nil
}

func (s *sqliteSession) HasPendingChanges() bool {
	return !s.pending.empty()
}

func (s *sqliteSession) Refresh(keepChanges bool) {
	if !keepChanges {
		s.pending = newChanges()
	}
}

func (s *sqliteSession) LockManager() LockManager {
	return &sessionLockManager{s: s}
}

func (s *sqliteSession) Logout() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = newChanges()

	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	_, err := s.repo.db.Exec("DELETE FROM locks WHERE session_id = ? AND session_scoped = 1", s.id)
	if err != nil {
		return storageError(err, "release session locks", RootPath)
	}
	s.repo.logger.Debug("Session closed", logfields.SessionID(s.id))
	return nil
}

// Save commits pending changes in one transaction.
func (s *sqliteSession) Save(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed.WithContext("session_id", s.id)
	}
	if s.pending.empty() {
		return nil
	}

	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()

	tx, err := s.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "begin transaction", RootPath)
	}
	if err := s.apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError(err, "commit transaction", RootPath)
	}
	s.pending = newChanges()
	return nil
}

func (s *sqliteSession) apply(ctx context.Context, tx *sql.Tx) error {
	now := s.repo.now()

	removed := make([]string, 0, len(s.pending.removed))
	for p := range s.pending.removed {
		removed = append(removed, p)
	}
	sort.Strings(removed)
	for _, p := range removed {
		if err := s.ensureWritable(ctx, tx, p, true); err != nil {
			return err
		}
		prefix := p + "/"
		for _, table := range []string{"nodes", "properties", "locks"} {
			q := "DELETE FROM " + table + " WHERE path = ? OR substr(path, 1, ?) = ?"
			if _, err := tx.ExecContext(ctx, q, p, len(prefix), prefix); err != nil {
				return storageError(err, "remove "+table, p)
			}
		}
	}

	for _, p := range s.pending.order {
		n := s.pending.added[p]
		parent := Parent(p)
		if _, _, ok, err := s.repo.node(ctx, tx, parent); err != nil {
			return err
		} else if !ok {
			return pathError(ErrItemNotFound, parent)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO nodes (path, parent, node_type, mixins, created_at) VALUES (?, ?, ?, ?, ?)",
			p, parent, n.nodeType, strings.Join(n.mixins, ","), now.UnixNano(),
		)
		if isUniqueViolation(err) {
			return pathError(ErrItemExists, p)
		}
		if err != nil {
			return storageError(err, "insert node", p)
		}
	}

	for p, extra := range s.pending.mixins {
		_, mixins, ok, err := s.repo.node(ctx, tx, p)
		if err != nil {
			return err
		}
		if !ok {
			return pathError(ErrItemNotFound, p)
		}
		for _, m := range extra {
			if !slices.Contains(mixins, m) {
				mixins = append(mixins, m)
			}
		}
		if _, err := tx.ExecContext(ctx, "UPDATE nodes SET mixins = ? WHERE path = ?", strings.Join(mixins, ","), p); err != nil {
			return storageError(err, "update mixins", p)
		}
	}

	for p, props := range s.pending.props {
		if _, _, ok, err := s.repo.node(ctx, tx, p); err != nil {
			return err
		} else if !ok {
			return pathError(ErrItemNotFound, p)
		}
		if err := s.ensureWritable(ctx, tx, p, false); err != nil {
			return err
		}
		for name, v := range props {
			if v == nil {
				if _, err := tx.ExecContext(ctx, "DELETE FROM properties WHERE path = ? AND name = ?", p, name); err != nil {
					return storageError(err, "remove property "+name, p)
				}
				continue
			}
			raw, err := v.encode()
			if err != nil {
				return storageError(err, "encode property "+name, p)
			}
			_, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO properties (path, name, kind, value) VALUES (?, ?, ?, ?)",
				p, name, int(v.Kind()), raw,
			)
			if err != nil {
				return storageError(err, "write property "+name, p)
			}
		}
	}
	return nil
}

// ensureWritable fails with ErrLocked if another session holds a live lock
// covering p (or, for subtree removals, anything below p).
func (s *sqliteSession) ensureWritable(ctx context.Context, tx *sql.Tx, p string, subtree bool) error {
	locks, err := s.repo.locksAffecting(ctx, tx, p, subtree)
	if err != nil {
		return err
	}
	now := s.repo.now()
	for i := range locks {
		l := &locks[i]
		if !l.Live(now) || l.SessionID == s.id {
			continue
		}
		if l.Covers(p) || (subtree && IsDescendant(l.Path, p)) {
			return ErrLocked.WithContext("path", p).WithContext("holder", l.InstanceID)
		}
	}
	return nil
}
