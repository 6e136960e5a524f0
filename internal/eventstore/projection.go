// Package eventstore keeps an append-only audit log of content events and
// projects it into per-unit summaries.
package eventstore

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Unit content status as seen by the projection.
const (
	StatusLoaded   = "loaded"
	StatusUnloaded = "unloaded"
	StatusDeferred = "deferred"
	StatusFailed   = "failed"
)

// UnitSummary is a read model of one unit's content history.
type UnitSummary struct {
	Unit          string     `json:"unit"`
	Status        string     `json:"status"`
	Instance      string     `json:"instance_id,omitempty"`
	LoadedAt      *time.Time `json:"loaded_at,omitempty"`
	UnloadedAt    *time.Time `json:"unloaded_at,omitempty"`
	Paths         []string   `json:"paths,omitempty"`
	LoadCount     int        `json:"load_count"`
	FailureCount  int        `json:"failure_count"`
	DeferralCount int        `json:"deferral_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastEventAt   time.Time  `json:"last_event_at"`
}

// UnitHistoryProjection maintains an in-memory view of unit content
// history, reconstructed from events stored in the event store.
type UnitHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	units    map[string]*UnitSummary
	maxSize  int
	lastSync time.Time
}

// NewUnitHistoryProjection creates a new projection backed by the given
// store. At most maxUnits summaries are kept, least recently active first
// out.
func NewUnitHistoryProjection(store Store, maxUnits int) *UnitHistoryProjection {
	if maxUnits <= 0 {
		maxUnits = 500
	}
	return &UnitHistoryProjection{
		store:   store,
		units:   make(map[string]*UnitSummary),
		maxSize: maxUnits,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *UnitHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.units = make(map[string]*UnitSummary)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	p.pruneLocked()
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *UnitHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
	p.pruneLocked()
}

func (p *UnitHistoryProjection) applyEventLocked(event Event) {
	name := event.Unit()
	if name == "" {
		return
	}
	summary, exists := p.units[name]
	if !exists {
		summary = &UnitSummary{Unit: name}
		p.units[name] = summary
	}

	payload, err := DecodePayload(event)
	if err != nil {
		return
	}
	at := event.Timestamp()
	summary.LastEventAt = at
	if payload.InstanceID != "" {
		summary.Instance = payload.InstanceID
	}

	switch event.Type() {
	case TypeContentLoaded:
		summary.Status = StatusLoaded
		summary.LoadedAt = &at
		summary.UnloadedAt = nil
		summary.Paths = payload.Paths
		summary.LoadCount++
		summary.LastError = ""
	case TypeContentUnloaded:
		summary.Status = StatusUnloaded
		summary.UnloadedAt = &at
		summary.Paths = nil
	case TypeContentDeferred:
		summary.Status = StatusDeferred
		summary.DeferralCount++
		summary.LastError = payload.Error
	case TypeContentFailed:
		summary.Status = StatusFailed
		summary.FailureCount++
		summary.LastError = payload.Error
	}
}

// pruneLocked drops the least recently active units beyond maxSize.
// Caller must hold p.mu (write lock).
func (p *UnitHistoryProjection) pruneLocked() {
	if len(p.units) <= p.maxSize {
		return
	}
	ordered := p.orderedLocked()
	for _, s := range ordered[p.maxSize:] {
		delete(p.units, s.Unit)
	}
}

// orderedLocked returns summaries by last activity, newest first.
func (p *UnitHistoryProjection) orderedLocked() []*UnitSummary {
	out := make([]*UnitSummary, 0, len(p.units))
	for _, s := range p.units {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *UnitSummary) int {
		if c := b.LastEventAt.Compare(a.LastEventAt); c != 0 {
			return c
		}
		if a.Unit < b.Unit {
			return -1
		}
		if a.Unit > b.Unit {
			return 1
		}
		return 0
	})
	return out
}

// GetHistory returns copies of all unit summaries, most recently active
// first.
func (p *UnitHistoryProjection) GetHistory() []*UnitSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := p.orderedLocked()
	result := make([]*UnitSummary, len(ordered))
	for i, s := range ordered {
		cp := *s
		cp.Paths = slices.Clone(s.Paths)
		result[i] = &cp
	}
	return result
}

// GetUnit returns the summary for one unit.
func (p *UnitHistoryProjection) GetUnit(name string) (*UnitSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.units[name]
	if !exists {
		return nil, false
	}
	cp := *summary
	cp.Paths = slices.Clone(summary.Paths)
	return &cp, true
}

// LastSyncTime returns when the projection was last synchronized.
func (p *UnitHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
