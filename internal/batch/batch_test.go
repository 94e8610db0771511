package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/meridian/internal/derive"
	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/storage"
	"github.com/meridianhealth/meridian/internal/storage/memstore"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// poisonedStore fails every facts write for one user.
type poisonedStore struct {
	*memstore.Store
	badUser string
}

var errPoisoned = errors.New("poisoned user")

func (s *poisonedStore) PutDailyFacts(ctx context.Context, facts model.DailyFacts) error {
	if facts.UserID == s.badUser {
		return errPoisoned
	}
	return s.Store.PutDailyFacts(ctx, facts)
}

func users(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user-%02d", i)
	}
	return out
}

func TestRecomputeUsers_AllBatchesCommit(t *testing.T) {
	store := memstore.New()
	runner := NewRunner(derive.NewEngine(store, discard()), discard(), WithBatchSize(2), WithConcurrency(2))

	ids := users(5)
	done, err := runner.RecomputeUsers(context.Background(), ids, "2026-08-10", "nightly")
	require.NoError(t, err)
	require.Equal(t, 5, done)

	for _, id := range ids {
		_, err := store.GetLedgerPointer(context.Background(), id, "2026-08-10")
		require.NoError(t, err, "user %s missing ledger pointer", id)
	}
}

func TestRecomputeUsers_FailureStopsLaterBatches(t *testing.T) {
	inner := memstore.New()
	store := &poisonedStore{Store: inner, badUser: "user-03"}
	runner := NewRunner(derive.NewEngine(store, discard()), discard(), WithBatchSize(2), WithConcurrency(1))

	ids := users(6) // batches: [00 01] [02 03] [04 05]; 03 poisons batch two
	done, err := runner.RecomputeUsers(context.Background(), ids, "2026-08-10", "nightly")
	require.ErrorIs(t, err, errPoisoned)
	require.Equal(t, 2, done, "only the first batch commits")

	// Batch one is committed.
	for _, id := range []string{"user-00", "user-01"} {
		_, err := inner.GetLedgerPointer(context.Background(), id, "2026-08-10")
		require.NoError(t, err)
	}
	// Batch three never started.
	for _, id := range []string{"user-04", "user-05"} {
		_, err := inner.GetLedgerPointer(context.Background(), id, "2026-08-10")
		require.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func TestRecomputeUsers_RerunConverges(t *testing.T) {
	store := memstore.New()
	runner := NewRunner(derive.NewEngine(store, discard()), discard(), WithBatchSize(3))

	ids := users(4)
	_, err := runner.RecomputeUsers(context.Background(), ids, "2026-08-10", "nightly")
	require.NoError(t, err)
	done, err := runner.RecomputeUsers(context.Background(), ids, "2026-08-10", "nightly")
	require.NoError(t, err)
	require.Equal(t, 4, done)

	for _, id := range ids {
		runs, err := store.ListLedgerRuns(context.Background(), id, "2026-08-10")
		require.NoError(t, err)
		require.Len(t, runs, 1, "retried sweep must collapse to the same run")
	}
}
