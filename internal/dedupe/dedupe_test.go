package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhealth/meridian/internal/model"
)

// fakeStore records entries in a map, mirroring the first_seen/duplicate
// contract of the real index table.
type fakeStore struct {
	entries map[string]model.DedupeEntry
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]model.DedupeEntry)}
}

func (s *fakeStore) RecordDedupeEntry(_ context.Context, entry model.DedupeEntry, raw model.RawEvent) (model.DedupeResult, error) {
	s.calls++
	if existing, ok := s.entries[entry.DedupeID]; ok {
		return model.DedupeResult{
			Mode:                   model.DedupeDuplicate,
			DedupeID:               entry.DedupeID,
			FirstRawEventID:        existing.FirstRawEventID,
			IntegrityViolationPath: "users/" + entry.UserID + "/integrityViolations/x",
		}, nil
	}
	s.entries[entry.DedupeID] = entry
	return model.DedupeResult{
		Mode:            model.DedupeFirstSeen,
		DedupeID:        entry.DedupeID,
		FirstRawEventID: raw.ID,
	}, nil
}

func validEvent() model.RawEvent {
	return model.RawEvent{
		ID:          uuid.New(),
		UserID:      "u1",
		Provider:    "fitbit",
		SourceType:  "device",
		SourceID:    "tracker-9",
		Kind:        model.KindActivitySummary,
		Payload:     json.RawMessage(`{"steps": 9500}`),
		ObservedAt:  time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC),
		Uncertainty: model.UncertaintyConfirmed,
	}
}

func TestRecord_FirstSeenThenDuplicate(t *testing.T) {
	store := newFakeStore()
	ix := NewIndex(store, nil)
	ctx := context.Background()

	first := validEvent()
	res, err := ix.Record(ctx, first)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if res.Mode != model.DedupeFirstSeen {
		t.Errorf("Mode = %q, want first_seen", res.Mode)
	}
	if res.FirstRawEventID != first.ID {
		t.Errorf("FirstRawEventID = %v, want %v", res.FirstRawEventID, first.ID)
	}

	// Same identity tuple under a new raw event id is a duplicate, not an error.
	second := validEvent()
	res, err = ix.Record(ctx, second)
	if err != nil {
		t.Fatalf("Record() duplicate error: %v", err)
	}
	if res.Mode != model.DedupeDuplicate {
		t.Errorf("Mode = %q, want duplicate", res.Mode)
	}
	if res.FirstRawEventID != first.ID {
		t.Errorf("FirstRawEventID = %v, want original %v", res.FirstRawEventID, first.ID)
	}
	if res.IntegrityViolationPath == "" {
		t.Error("duplicate result missing integrity violation path")
	}
}

func TestRecord_PayloadKeyOrderDoesNotMatter(t *testing.T) {
	store := newFakeStore()
	ix := NewIndex(store, nil)
	ctx := context.Background()

	a := validEvent()
	a.Payload = json.RawMessage(`{"steps": 9500, "active_minutes": 40}`)
	b := validEvent()
	b.Payload = json.RawMessage(`{"active_minutes": 40, "steps": 9500}`)

	if _, err := ix.Record(ctx, a); err != nil {
		t.Fatalf("Record(a) error: %v", err)
	}
	res, err := ix.Record(ctx, b)
	if err != nil {
		t.Fatalf("Record(b) error: %v", err)
	}
	if res.Mode != model.DedupeDuplicate {
		t.Errorf("reordered payload Mode = %q, want duplicate", res.Mode)
	}
}

func TestRecord_DistinctTuplesAreIndependent(t *testing.T) {
	store := newFakeStore()
	ix := NewIndex(store, nil)
	ctx := context.Background()

	a := validEvent()
	b := validEvent()
	b.ObservedAt = a.ObservedAt.Add(time.Minute)

	for _, ev := range []model.RawEvent{a, b} {
		res, err := ix.Record(ctx, ev)
		if err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		if res.Mode != model.DedupeFirstSeen {
			t.Errorf("Mode = %q, want first_seen", res.Mode)
		}
	}
}

func TestRecord_FileRefReusesContentHash(t *testing.T) {
	store := newFakeStore()
	ix := NewIndex(store, nil)
	ctx := context.Background()

	a := validEvent()
	a.Kind = model.KindFileRef
	a.Payload = json.RawMessage(`{"content_hash": "abc123", "size_bytes": 100}`)

	// Different metadata, same file content hash: still the same tuple.
	b := validEvent()
	b.Kind = model.KindFileRef
	b.Payload = json.RawMessage(`{"content_hash": "abc123", "size_bytes": 9999, "mime_type": "application/pdf"}`)

	if _, err := ix.Record(ctx, a); err != nil {
		t.Fatalf("Record(a) error: %v", err)
	}
	res, err := ix.Record(ctx, b)
	if err != nil {
		t.Fatalf("Record(b) error: %v", err)
	}
	if res.Mode != model.DedupeDuplicate {
		t.Errorf("same content hash Mode = %q, want duplicate", res.Mode)
	}
}

func TestRecord_FileRefWithoutContentHashIsInvalid(t *testing.T) {
	store := newFakeStore()
	ix := NewIndex(store, nil)

	ev := validEvent()
	ev.Kind = model.KindFileRef
	ev.Payload = json.RawMessage(`{"size_bytes": 100}`)

	_, err := ix.Record(context.Background(), ev)
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("Record() error = %v, want ErrInvalidEvent", err)
	}
	if store.calls != 0 {
		t.Error("invalid event reached the store")
	}
}

func TestRecord_ContractValidationShortCircuits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RawEvent)
	}{
		{"missing user id", func(e *model.RawEvent) { e.UserID = "" }},
		{"missing provider", func(e *model.RawEvent) { e.Provider = "" }},
		{"missing source type", func(e *model.RawEvent) { e.SourceType = "" }},
		{"missing source id", func(e *model.RawEvent) { e.SourceID = "" }},
		{"missing kind", func(e *model.RawEvent) { e.Kind = "" }},
		{"zero observed_at", func(e *model.RawEvent) { e.ObservedAt = time.Time{} }},
		{"empty payload", func(e *model.RawEvent) { e.Payload = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			ix := NewIndex(store, nil)

			ev := validEvent()
			tt.mutate(&ev)

			_, err := ix.Record(context.Background(), ev)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("Record() error = %v, want ErrInvalidEvent", err)
			}
			if store.calls != 0 {
				t.Error("invalid event reached the store")
			}
		})
	}
}

func TestID_Deterministic(t *testing.T) {
	at := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)

	a := ID("fitbit", "device", "tracker-9", model.KindActivitySummary, at, "h1")
	b := ID("fitbit", "device", "tracker-9", model.KindActivitySummary, at, "h1")
	if a != b {
		t.Errorf("same tuple produced different ids: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("id length = %d, want 64 hex chars", len(a))
	}

	// Observation instant compares in UTC, not wall-clock representation.
	est := time.FixedZone("EST", -5*3600)
	c := ID("fitbit", "device", "tracker-9", model.KindActivitySummary, at.In(est), "h1")
	if a != c {
		t.Error("same instant in a different zone produced a different id")
	}

	d := ID("fitbit", "device", "tracker-9", model.KindActivitySummary, at, "h2")
	if a == d {
		t.Error("different payload hash produced the same id")
	}
}
