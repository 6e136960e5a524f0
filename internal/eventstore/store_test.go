package eventstore

import (
	"bytes"
	"testing"
	"time"
)

const testUnit = "alpha"

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	payload := []byte(`{"unit_id": 1}`)
	metadata := map[string]string{"instance_id": "instance-a"}

	if err := store.Append(ctx, testUnit, TypeContentLoaded, payload, metadata); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByUnit(ctx, testUnit)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.Unit() != testUnit {
		t.Errorf("expected unit %s, got %s", testUnit, event.Unit())
	}
	if event.Type() != TypeContentLoaded {
		t.Errorf("expected type %s, got %s", TypeContentLoaded, event.Type())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
	if event.Metadata()["instance_id"] != "instance-a" {
		t.Errorf("expected metadata instance_id=instance-a, got %v", event.Metadata())
	}
	if event.ID() == 0 {
		t.Error("expected a store-assigned id")
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for range 3 {
		if err := store.Append(ctx, testUnit, TypeContentDeferred, nil, nil); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, err := store.GetRange(ctx, base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
	if len(events) > 0 && !events[0].Timestamp().Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected timestamp %v", events[0].Timestamp())
	}
}

func TestEventStoreMultipleUnits(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	_ = store.Append(ctx, "alpha", TypeContentLoaded, []byte("{}"), nil)
	_ = store.Append(ctx, "beta", TypeContentLoaded, []byte("{}"), nil)
	_ = store.Append(ctx, "alpha", TypeContentUnloaded, []byte("{}"), nil)

	events, err := store.GetByUnit(ctx, "alpha")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events for alpha, got %d", len(events))
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("failed to get recent events: %v", err)
	}
	if len(recent) != 2 || recent[0].Type() != TypeContentUnloaded || recent[1].Unit() != "beta" {
		t.Errorf("unexpected recent events: %+v", recent)
	}
}
