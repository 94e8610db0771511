// Package derive orchestrates a full derived-truth recompute for one
// (user, day, trigger).
//
// The engine is stateless: every invocation loads what it needs, computes
// every artifact through the pure stages, and persists them in order. The
// ledger run is written last, so an aborted invocation never commits a
// partial run; the individual writes are each idempotent or immutable, so
// blind retries and concurrent identical invocations converge.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianhealth/meridian/internal/aggregate"
	"github.com/meridianhealth/meridian/internal/enrich"
	"github.com/meridianhealth/meridian/internal/failure"
	"github.com/meridianhealth/meridian/internal/insight"
	"github.com/meridianhealth/meridian/internal/intelligence"
	"github.com/meridianhealth/meridian/internal/ledger"
	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/score"
)

// Store is the persistence contract the engine is constructed with.
// Implementations must make PutHealthScore, PutHealthSignals, PutLedgerRun,
// and RecordFailure follow the immutable-writer contract; PutDailyFacts,
// ReplaceInsights, PutIntelligenceContext, and PutLedgerPointer are
// idempotent overwrites. History methods return the most recent days first.
type Store interface {
	ledger.Store

	CanonicalEventsForDay(ctx context.Context, userID, day string) ([]model.CanonicalEvent, error)
	DailyFactsHistory(ctx context.Context, userID, beforeDay string, limit int) ([]model.DailyFacts, error)
	PutDailyFacts(ctx context.Context, facts model.DailyFacts) error
	ReplaceInsights(ctx context.Context, userID, date string, insights []model.Insight) error
	PutIntelligenceContext(ctx context.Context, ictx model.IntelligenceContext) error
	PutHealthScore(ctx context.Context, doc model.HealthScoreDoc) error
	HealthScoreHistory(ctx context.Context, userID, beforeDay string, limit int) ([]model.HealthScoreDoc, error)
	PutHealthSignals(ctx context.Context, doc model.HealthSignalDoc) error
	RecordFailure(ctx context.Context, rec model.FailureRecord) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine's time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGateThreshold overrides the confidence gate used by the rule engine
// and the readiness flags.
func WithGateThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.gate = threshold
		e.rules = insight.NewEngine(threshold)
	}
}

// Engine is the recompute orchestrator.
type Engine struct {
	store  Store
	ledger *ledger.Writer
	rules  *insight.Engine
	logger *slog.Logger
	now    func() time.Time
	gate   float64
}

// NewEngine builds an orchestrator over the injected store.
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		ledger: ledger.NewWriter(store, logger),
		rules:  insight.NewEngine(0),
		logger: logger,
		now:    time.Now,
		gate:   insight.DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecomputeDay runs the full derivation sequence for (userID, day):
// aggregate, enrich, insights, intelligence context, health score, health
// signals, and finally the ledger run bundling every artifact. Any stage
// error aborts the invocation after recording failure evidence.
func (e *Engine) RecomputeDay(ctx context.Context, userID, day string, factOnly *model.FactOnlyBody, trigger model.Trigger) (model.DerivedLedgerRun, error) {
	if _, err := time.Parse(model.DayFormat, day); err != nil {
		return model.DerivedLedgerRun{}, fmt.Errorf("derive: invalid day %q: %w", day, err)
	}

	computedAt := e.now().UTC()
	fail := func(stage, reason string, cause error) (model.DerivedLedgerRun, error) {
		e.recordFailure(ctx, userID, day, stage, reason, trigger, cause)
		return model.DerivedLedgerRun{}, fmt.Errorf("derive: %s for %s/%s: %w", stage, userID, day, cause)
	}

	events, err := e.store.CanonicalEventsForDay(ctx, userID, day)
	if err != nil {
		return fail(failure.StageAggregate, "load_canonical_events", err)
	}

	base := aggregate.Fold(userID, day, computedAt, events, factOnly)

	history, err := e.store.DailyFactsHistory(ctx, userID, day, 6)
	if err != nil {
		return fail(failure.StageEnrich, "load_facts_history", err)
	}
	facts := enrich.Enrich(base, history)

	if err := e.store.PutDailyFacts(ctx, facts); err != nil {
		return fail(failure.StageEnrich, "write_daily_facts", err)
	}

	insights := e.rules.Evaluate(facts, computedAt)
	if err := e.store.ReplaceInsights(ctx, userID, day, insights); err != nil {
		return fail(failure.StageInsights, "write_insights", err)
	}

	ictx := intelligence.Build(facts, insights, e.gate, computedAt)
	if err := e.store.PutIntelligenceContext(ctx, ictx); err != nil {
		return fail(failure.StageContext, "write_intelligence_context", err)
	}

	scoreDoc := score.Compute(facts, computedAt)
	if scoreDoc != nil {
		if err := e.store.PutHealthScore(ctx, *scoreDoc); err != nil {
			return fail(failure.StageScore, "write_health_score", err)
		}
	}

	scoreHistory, err := e.store.HealthScoreHistory(ctx, userID, day, score.BaselineWindowDays)
	if err != nil {
		return fail(failure.StageSignals, "load_score_history", err)
	}
	signals := score.ComputeSignals(userID, day, scoreDoc, scoreHistory, computedAt)
	if err := e.store.PutHealthSignals(ctx, signals); err != nil {
		return fail(failure.StageSignals, "write_health_signals", err)
	}

	run, err := e.ledger.Write(ctx, ledger.Input{
		UserID:                 userID,
		Date:                   day,
		RunID:                  ledger.RunID(trigger, day),
		ComputedAt:             computedAt,
		Trigger:                trigger,
		LatestCanonicalEventAt: latestObservedAt(events),
		DailyFacts:             &facts,
		IntelligenceContext:    &ictx,
		Insights:               insights,
		HealthScore:            scoreDoc,
		HealthSignals:          &signals,
	})
	if err != nil {
		return fail(failure.StageLedger, "write_ledger_run", err)
	}

	e.logger.Info("derive: day recomputed",
		"user_id", userID, "day", day, "run_id", run.RunID,
		"trigger", trigger.Kind, "insights", len(insights),
		"scored", scoreDoc != nil, "signal_status", signals.Status)
	return run, nil
}

// recordFailure persists failure evidence. Best-effort: a failing failure
// write is logged, never allowed to mask the original error.
func (e *Engine) recordFailure(ctx context.Context, userID, day, stage, reason string, trigger model.Trigger, cause error) {
	in := failure.Input{
		UserID:     userID,
		Source:     "derive:" + string(trigger.Kind),
		Stage:      stage,
		ReasonCode: reason,
		Day:        day,
		Detail:     cause.Error(),
	}
	if trigger.RawEventID != nil {
		s := trigger.RawEventID.String()
		in.RawEventID = &s
	}
	if trigger.EventID != nil {
		in.CanonicalEventID = trigger.EventID
	}

	rec, err := failure.Record(in, e.now().UTC())
	if err != nil {
		e.logger.Error("derive: build failure record", "error", err)
		return
	}
	if _, err := e.store.RecordFailure(ctx, rec); err != nil {
		e.logger.Error("derive: persist failure record", "error", err, "failure_id", rec.ID)
	}
}

func latestObservedAt(events []model.CanonicalEvent) *time.Time {
	var latest *time.Time
	for i := range events {
		t := events[i].ObservedAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest
}
