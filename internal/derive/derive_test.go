package derive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/storage"
	"github.com/meridianhealth/meridian/internal/storage/memstore"
)

var frozen = time.Date(2026, 8, 11, 6, 0, 0, 0, time.UTC)

func newTestEngine(store Store) *Engine {
	return NewEngine(store, nil, WithClock(func() time.Time { return frozen }))
}

func fp(v float64) *float64 { return &v }

func seedSleepEvent(t *testing.T, s *memstore.Store, userID, day string, durationMin float64) {
	t.Helper()
	observed := time.Date(2026, 8, 10, 7, 0, 0, 0, time.UTC)
	err := s.InsertCanonicalEvent(context.Background(), model.CanonicalEvent{
		ID:         "ce_" + uuid.NewString(),
		UserID:     userID,
		RawEventID: uuid.New(),
		Provider:   "garmin",
		Kind:       model.KindSleepSession,
		Day:        day,
		ObservedAt: observed,
		Metrics:    model.CanonicalMetrics{SleepDurationMin: fp(durationMin)},
		CreatedAt:  frozen,
	})
	require.NoError(t, err)
}

// Fact-only recompute: the bare weight flows into DailyFacts.body without a
// canonical event ever being created, and the ledger snapshot carries it.
func TestRecomputeDay_FactOnly(t *testing.T) {
	store := memstore.New()
	eng := newTestEngine(store)
	ctx := context.Background()

	trigger := model.FactOnlyTrigger(uuid.New())
	run, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", &model.FactOnlyBody{WeightKg: fp(80)}, trigger)
	require.NoError(t, err)
	require.NotEmpty(t, run.RunID)

	facts, err := store.GetDailyFacts(ctx, "user-1", "2026-08-10")
	require.NoError(t, err)
	require.NotNil(t, facts.Body)
	require.Equal(t, 80.0, *facts.Body.WeightKg)

	require.Zero(t, store.CanonicalEventCount("user-1"), "fact-only path must not create canonical events")

	snaps, err := store.SnapshotsForRun(ctx, "user-1", run.RunID)
	require.NoError(t, err)
	var found bool
	for _, snap := range snaps {
		if snap.Kind != model.SnapshotDailyFacts {
			continue
		}
		found = true
		var snapFacts model.DailyFacts
		require.NoError(t, json.Unmarshal(snap.Doc, &snapFacts))
		require.Equal(t, 80.0, *snapFacts.Body.WeightKg)
	}
	require.True(t, found, "dailyFacts snapshot missing from run")

	ptr, err := store.GetLedgerPointer(ctx, "user-1", "2026-08-10")
	require.NoError(t, err)
	require.Equal(t, run.RunID, ptr.LatestRunID)
}

// Replaying the same logical trigger converges: same run id, no error, one
// ledger run. This is what makes blind retries safe.
func TestRecomputeDay_RetryConverges(t *testing.T) {
	store := memstore.New()
	eng := newTestEngine(store)
	ctx := context.Background()

	seedSleepEvent(t, store, "user-1", "2026-08-10", 390)
	trigger := model.AdminTrigger("backfill")

	first, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, trigger)
	require.NoError(t, err)
	second, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, trigger)
	require.NoError(t, err)
	require.Equal(t, first.RunID, second.RunID)

	runs, err := store.ListLedgerRuns(ctx, "user-1", "2026-08-10")
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

// Distinct triggers map to distinct run id namespaces.
func TestRecomputeDay_TriggerNamespaces(t *testing.T) {
	store := memstore.New()
	eng := newTestEngine(store)
	ctx := context.Background()

	seedSleepEvent(t, store, "user-1", "2026-08-10", 460)

	adminRun, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, model.AdminTrigger("backfill"))
	require.NoError(t, err)
	realtimeRun, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, model.RealtimeTrigger("ce_1"))
	require.NoError(t, err)
	require.NotEqual(t, adminRun.RunID, realtimeRun.RunID)

	runs, err := store.ListLedgerRuns(ctx, "user-1", "2026-08-10")
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

// New input under an already-used trigger means the same keys would be
// rewritten with different content: the immutable writer must refuse, and
// the engine must leave failure evidence behind.
func TestRecomputeDay_ConflictingRewriteFailsLoudly(t *testing.T) {
	store := memstore.New()
	eng := newTestEngine(store)
	ctx := context.Background()

	trigger := model.AdminTrigger("backfill")
	_, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, trigger)
	require.NoError(t, err)

	// The day's inputs change after the run was committed.
	seedSleepEvent(t, store, "user-1", "2026-08-10", 300)

	_, err = eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, trigger)
	require.ErrorIs(t, err, storage.ErrImmutabilityViolation)

	recs, err := store.FailuresForUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs, "conflicting rewrite must leave failure evidence")
}

// No score history and no canonical events: signals fail closed but the run
// still commits with the fail-closed artifacts.
func TestRecomputeDay_EmptyDayFailsClosed(t *testing.T) {
	store := memstore.New()
	eng := newTestEngine(store)
	ctx := context.Background()

	run, err := eng.RecomputeDay(ctx, "user-1", "2026-08-10", nil, model.AdminTrigger("sweep"))
	require.NoError(t, err)
	require.False(t, run.Outputs.HealthScore)
	require.True(t, run.Outputs.HealthSignals)

	sig, err := store.GetHealthSignals(ctx, "user-1", "2026-08-10")
	require.NoError(t, err)
	require.Equal(t, model.SignalAttentionRequired, sig.Status)
	require.Equal(t, model.ReadinessMissing, sig.Readiness)
	require.Contains(t, sig.MissingInputs, "health_score")
}

func TestRecomputeDay_RejectsMalformedDay(t *testing.T) {
	eng := newTestEngine(memstore.New())
	_, err := eng.RecomputeDay(context.Background(), "user-1", "10-08-2026", nil, model.AdminTrigger("x"))
	require.Error(t, err)
}
