package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/storage"
)

var computedAt = time.Date(2026, 8, 11, 6, 0, 0, 0, time.UTC)

func signalDoc(status model.SignalStatus) model.HealthSignalDoc {
	return model.HealthSignalDoc{
		SchemaVersion:      model.SchemaVersion,
		UserID:             "user-1",
		Date:               "2026-08-10",
		ModelVersion:       model.SignalModelVersion,
		Status:             status,
		Readiness:          model.ReadinessReady,
		Reasons:            []string{},
		MissingInputs:      []string{},
		BaselineWindowDays: 14,
		DomainEvidence:     map[string]model.SignalEvidence{},
		ComputedAt:         computedAt,
	}
}

func TestImmutable_IdenticalReplayIsNoop(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc := signalDoc(model.SignalStable)
	require.NoError(t, s.PutHealthSignals(ctx, doc))

	// Same content, different timestamp: volatile fields are excluded from
	// the comparison, so the replay is a no-op.
	doc.ComputedAt = computedAt.Add(3 * time.Hour)
	require.NoError(t, s.PutHealthSignals(ctx, doc))
}

func TestImmutable_ConflictingRewriteFails(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.PutHealthSignals(ctx, signalDoc(model.SignalStable)))
	err := s.PutHealthSignals(ctx, signalDoc(model.SignalAttentionRequired))
	require.ErrorIs(t, err, storage.ErrImmutabilityViolation)

	// The original document survives the failed rewrite.
	got, err := s.GetHealthSignals(ctx, "user-1", "2026-08-10")
	require.NoError(t, err)
	require.Equal(t, model.SignalStable, got.Status)
}

func TestRecordFailure_ForksOnConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := model.FailureRecord{
		ID: "abc123", SchemaVersion: model.SchemaVersion, UserID: "user-1",
		Source: "derive:admin", Stage: "score", ReasonCode: "write_health_score",
		Day: "2026-08-10", Detail: "boom", CreatedAt: computedAt,
	}
	id, err := s.RecordFailure(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, "abc123", id)

	// Identical retry (different CreatedAt) is a no-op at the same id.
	retry := rec
	retry.CreatedAt = computedAt.Add(time.Minute)
	id, err = s.RecordFailure(ctx, retry)
	require.NoError(t, err)
	require.Equal(t, "abc123", id)

	// Different content at the same id forks instead of overwriting.
	conflict := rec
	conflict.Detail = "different boom"
	forkID, err := s.RecordFailure(ctx, conflict)
	require.NoError(t, err)
	require.NotEqual(t, "abc123", forkID)
	require.Contains(t, forkID, "abc123_")

	recs, err := s.FailuresForUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestRecordDedupeEntry_FirstSeenThenDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	firstRaw := model.RawEvent{ID: uuid.New(), UserID: "user-1"}
	entry := model.DedupeEntry{
		DedupeID:        "d-1",
		UserID:          "user-1",
		FirstRawEventID: firstRaw.ID,
	}
	res, err := s.RecordDedupeEntry(ctx, entry, firstRaw)
	require.NoError(t, err)
	require.Equal(t, model.DedupeFirstSeen, res.Mode)
	require.Equal(t, firstRaw.ID, res.FirstRawEventID)

	// Second occurrence of the same tuple from a different raw event.
	secondRaw := model.RawEvent{ID: uuid.New(), UserID: "user-1"}
	dup := entry
	dup.FirstRawEventID = secondRaw.ID
	res, err = s.RecordDedupeEntry(ctx, dup, secondRaw)
	require.NoError(t, err)
	require.Equal(t, model.DedupeDuplicate, res.Mode)
	require.Equal(t, firstRaw.ID, res.FirstRawEventID, "first writer stays the owner")
	require.NotEmpty(t, res.IntegrityViolationPath)
	require.Len(t, s.IntegrityViolations(), 1)
}

func TestDailyFactsHistory_OrderedMostRecentFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, date := range []string{"2026-08-05", "2026-08-08", "2026-08-07", "2026-08-10"} {
		require.NoError(t, s.PutDailyFacts(ctx, model.DailyFacts{UserID: "user-1", Date: date}))
	}

	hist, err := s.DailyFactsHistory(ctx, "user-1", "2026-08-10", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "2026-08-08", hist[0].Date)
	require.Equal(t, "2026-08-07", hist[1].Date)
}
