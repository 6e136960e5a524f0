package loader

import (
	"context"
	"time"
)

// Content event kinds reported to observers.
const (
	EventContentLoaded   = "content.loaded"
	EventContentUnloaded = "content.unloaded"
	EventContentDeferred = "content.deferred"
	EventContentFailed   = "content.failed"
)

// ContentEvent describes a state change of a unit's content as performed by
// this instance.
type ContentEvent struct {
	Kind       string    `json:"kind"`
	Unit       string    `json:"unit"`
	UnitID     int64     `json:"unit_id"`
	InstanceID string    `json:"instance_id"`
	Paths      []string  `json:"paths,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Observer is told about content events after the record lock is released.
// Observers must not block for long; failures are theirs to handle.
type Observer interface {
	ContentChanged(ctx context.Context, ev ContentEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev ContentEvent)

// ContentChanged calls f.
func (f ObserverFunc) ContentChanged(ctx context.Context, ev ContentEvent) { f(ctx, ev) }
