package eventstore

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

// AuditObserver appends every content event to a store and keeps an
// optional projection current.
type AuditObserver struct {
	store      Store
	projection *UnitHistoryProjection
	logger     *slog.Logger
}

var _ loader.Observer = (*AuditObserver)(nil)

// NewAuditObserver creates an observer. projection may be nil.
func NewAuditObserver(store Store, projection *UnitHistoryProjection, logger *slog.Logger) *AuditObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditObserver{store: store, projection: projection, logger: logger}
}

// ContentChanged implements loader.Observer. Storage failures are logged.
func (o *AuditObserver) ContentChanged(ctx context.Context, ev loader.ContentEvent) {
	rec, err := NewContentRecorded(ev)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to encode content event", logfields.Unit(ev.Unit), logfields.Error(err))
		return
	}
	if err := o.store.Append(ctx, rec.Unit(), rec.Type(), rec.Payload(), rec.Metadata()); err != nil {
		o.logger.ErrorContext(ctx, "Failed to append content event",
			logfields.Unit(ev.Unit), logfields.Event(ev.Kind), logfields.Error(err))
		return
	}
	if o.projection != nil {
		o.projection.Apply(rec)
	}
}
