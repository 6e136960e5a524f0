package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
)

// Event type names, one per content event kind.
const (
	TypeContentLoaded   = "ContentLoaded"
	TypeContentUnloaded = "ContentUnloaded"
	TypeContentDeferred = "ContentDeferred"
	TypeContentFailed   = "ContentFailed"
)

var typeByKind = map[string]string{
	loader.EventContentLoaded:   TypeContentLoaded,
	loader.EventContentUnloaded: TypeContentUnloaded,
	loader.EventContentDeferred: TypeContentDeferred,
	loader.EventContentFailed:   TypeContentFailed,
}

// ContentPayload is the stored body of every content event.
type ContentPayload struct {
	UnitID     int64    `json:"unit_id"`
	InstanceID string   `json:"instance_id"`
	Paths      []string `json:"paths,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ContentRecorded wraps a loader content event for the audit log.
type ContentRecorded struct {
	StoredEvent
	ContentPayload
}

// NewContentRecorded converts a loader event. Unknown kinds are stored
// under their own name.
func NewContentRecorded(ev loader.ContentEvent) (*ContentRecorded, error) {
	body := ContentPayload{
		UnitID:     ev.UnitID,
		InstanceID: ev.InstanceID,
		Paths:      ev.Paths,
		Error:      ev.Error,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal content event payload").
			WithCause(err).
			WithContext("unit", ev.Unit).
			Build()
	}

	eventType, ok := typeByKind[ev.Kind]
	if !ok {
		eventType = ev.Kind
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &ContentRecorded{
		StoredEvent: StoredEvent{
			Name: ev.Unit,
			Kind: eventType,
			At:   at,
			Data: payload,
			Meta: map[string]string{"instance_id": ev.InstanceID},
		},
		ContentPayload: body,
	}, nil
}

// DecodePayload reads the content payload of a stored event.
func DecodePayload(e Event) (ContentPayload, error) {
	var p ContentPayload
	if len(e.Payload()) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.Payload(), &p)
	return p, err
}
