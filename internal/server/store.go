package server

import (
	"context"

	"github.com/meridianhealth/meridian/internal/dedupe"
	"github.com/meridianhealth/meridian/internal/derive"
	"github.com/meridianhealth/meridian/internal/model"
)

// Store is the persistence surface the HTTP layer needs: everything the
// recompute engine and dedupe index require, plus the ingestion writes and
// the read-only query endpoints. Both the Postgres store and the in-memory
// test store implement it.
type Store interface {
	derive.Store
	dedupe.Store

	InsertRawEvent(ctx context.Context, raw model.RawEvent) error
	InsertCanonicalEvent(ctx context.Context, ev model.CanonicalEvent) error

	GetDailyFacts(ctx context.Context, userID, date string) (model.DailyFacts, error)
	InsightsForDay(ctx context.Context, userID, date string) ([]model.Insight, error)
	GetIntelligenceContext(ctx context.Context, userID, date string) (model.IntelligenceContext, error)
	GetHealthScore(ctx context.Context, userID, date string) (model.HealthScoreDoc, error)
	GetHealthSignals(ctx context.Context, userID, date string) (model.HealthSignalDoc, error)
	GetLedgerPointer(ctx context.Context, userID, date string) (model.DerivedLedgerPointer, error)
	GetLedgerRun(ctx context.Context, userID, runID string) (model.DerivedLedgerRun, error)
	ListLedgerRuns(ctx context.Context, userID, date string) ([]model.DerivedLedgerRun, error)
	SnapshotsForRun(ctx context.Context, userID, runID string) ([]model.LedgerSnapshot, error)
	FailuresForUser(ctx context.Context, userID string, limit int) ([]model.FailureRecord, error)
}
