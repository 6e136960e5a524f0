// Package eventstore keeps an append-only audit log of content events and
// projects it into per-unit load history.
package eventstore

import (
	"context"
	"time"
)

// Store persists audit events. Implementations are safe for concurrent use.
type Store interface {
	Append(ctx context.Context, unitName, eventType string, payload []byte, metadata map[string]string) error
	// GetByUnit returns the events of one unit, oldest first.
	GetByUnit(ctx context.Context, unitName string) ([]Event, error)
	// GetRange returns events stored within [start, end], oldest first.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	Close() error
}

// Event is one audit log entry as read back from a Store, or about to be
// written to one.
type Event interface {
	ID() int64
	Unit() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// StoredEvent is the plain Event implementation returned by stores.
type StoredEvent struct {
	Seq  int64
	Name string
	Kind string
	At   time.Time
	Data []byte
	Meta map[string]string
}

func (e *StoredEvent) ID() int64                   { return e.Seq }
func (e *StoredEvent) Unit() string                { return e.Name }
func (e *StoredEvent) Type() string                { return e.Kind }
func (e *StoredEvent) Timestamp() time.Time        { return e.At }
func (e *StoredEvent) Payload() []byte             { return e.Data }
func (e *StoredEvent) Metadata() map[string]string { return e.Meta }
