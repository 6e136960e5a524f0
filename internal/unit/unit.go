// Package unit models deployable units and the catalog that discovers them
// on disk and reports their lifecycle changes.
package unit

import (
	"context"
	"fmt"
)

// State is the lifecycle state of a unit as reported by the runtime.
type State int

const (
	StateInstalled State = iota + 1
	StateResolved
	StateUninstalled
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateResolved:
		return "resolved"
	case StateUninstalled:
		return "uninstalled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind is the kind of a lifecycle event.
type EventKind int

const (
	EventInstalled EventKind = iota + 1
	EventResolved
	EventUpdated
	EventUnresolved
	EventUninstalled
)

func (k EventKind) String() string {
	switch k {
	case EventInstalled:
		return "installed"
	case EventResolved:
		return "resolved"
	case EventUpdated:
		return "updated"
	case EventUnresolved:
		return "unresolved"
	case EventUninstalled:
		return "uninstalled"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Unit is an immutable snapshot of a deployable unit. The catalog replaces
// the snapshot whenever the unit changes.
type Unit struct {
	ID           int64
	SymbolicName string
	Version      string
	State        State
	// Dir is the unit's directory; manifest content paths are relative to it.
	Dir      string
	Manifest *Manifest
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s (%d)", u.SymbolicName, u.ID)
}

func (u *Unit) withState(s State) *Unit {
	cp := *u
	cp.State = s
	return &cp
}

// Event reports a lifecycle change of a unit.
type Event struct {
	Kind EventKind
	Unit *Unit
}

// Listener receives lifecycle events synchronously, in order.
type Listener interface {
	UnitChanged(ctx context.Context, ev Event)
}
