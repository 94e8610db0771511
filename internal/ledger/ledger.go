// Package ledger assembles the append-only derived ledger: one run record
// per recompute invocation plus a content-hashed snapshot per artifact, and
// the single mutable "latest run" pointer.
//
// Snapshots go through the create-or-assert-identical contract in the store:
// replaying a run with identical content is a no-op; different content at
// the same (run, kind) key is an immutability violation and fails loudly.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

// Store is the persistence contract for ledger writes. PutLedgerRun must
// apply create-or-assert-identical semantics to the run record and every
// snapshot; PutLedgerPointer overwrites unconditionally.
type Store interface {
	PutLedgerRun(ctx context.Context, run model.DerivedLedgerRun, snapshots []model.LedgerSnapshot) error
	PutLedgerPointer(ctx context.Context, ptr model.DerivedLedgerPointer) error
}

// Input bundles every artifact produced by one recompute invocation.
// Nil artifacts were not produced and get no snapshot.
type Input struct {
	UserID                 string
	Date                   string
	RunID                  string
	ComputedAt             time.Time
	Trigger                model.Trigger
	LatestCanonicalEventAt *time.Time
	DailyFacts             *model.DailyFacts
	IntelligenceContext    *model.IntelligenceContext
	Insights               []model.Insight
	HealthScore            *model.HealthScoreDoc
	HealthSignals          *model.HealthSignalDoc
}

// RunID derives the deterministic run id from the trigger namespace and
// day, so retries of the same logical trigger collapse to the same run.
func RunID(trigger model.Trigger, day string) string {
	sum, err := canonjson.ShortDigest(map[string]any{
		"namespace": trigger.Namespace(),
		"day":       day,
	})
	if err != nil {
		// The input is two strings; canonical hashing cannot fail on it.
		panic(fmt.Sprintf("ledger: run id: %v", err))
	}
	return sum
}

// Writer persists ledger runs.
type Writer struct {
	store  Store
	logger *slog.Logger
}

// NewWriter wires a ledger writer to a store.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger}
}

// Write persists the run record with its content-hashed snapshots, then
// overwrites the day's pointer. The pointer is explicitly not historical
// truth — only a fast cursor to the latest run.
func (w *Writer) Write(ctx context.Context, in Input) (model.DerivedLedgerRun, error) {
	run := model.DerivedLedgerRun{
		SchemaVersion:          model.SchemaVersion,
		UserID:                 in.UserID,
		Date:                   in.Date,
		RunID:                  in.RunID,
		PipelineVersion:        model.PipelineVersion,
		Trigger:                in.Trigger,
		LatestCanonicalEventAt: in.LatestCanonicalEventAt,
		ComputedAt:             in.ComputedAt,
		Outputs: model.RunOutputs{
			DailyFacts:          in.DailyFacts != nil,
			IntelligenceContext: in.IntelligenceContext != nil,
			Insights:            len(in.Insights) > 0,
			HealthScore:         in.HealthScore != nil,
			HealthSignals:       in.HealthSignals != nil,
		},
	}

	var snapshots []model.LedgerSnapshot
	add := func(kind model.SnapshotKind, doc any) error {
		snap, err := snapshot(in, kind, doc)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, snap)
		return nil
	}

	if in.DailyFacts != nil {
		if err := add(model.SnapshotDailyFacts, in.DailyFacts); err != nil {
			return model.DerivedLedgerRun{}, err
		}
	}
	if in.IntelligenceContext != nil {
		if err := add(model.SnapshotIntelligenceContext, in.IntelligenceContext); err != nil {
			return model.DerivedLedgerRun{}, err
		}
	}
	if len(in.Insights) > 0 {
		if err := add(model.SnapshotInsights, in.Insights); err != nil {
			return model.DerivedLedgerRun{}, err
		}
	}
	if in.HealthScore != nil {
		if err := add(model.SnapshotHealthScore, in.HealthScore); err != nil {
			return model.DerivedLedgerRun{}, err
		}
	}
	if in.HealthSignals != nil {
		if err := add(model.SnapshotHealthSignals, in.HealthSignals); err != nil {
			return model.DerivedLedgerRun{}, err
		}
	}

	if err := w.store.PutLedgerRun(ctx, run, snapshots); err != nil {
		return model.DerivedLedgerRun{}, fmt.Errorf("ledger: write run %s: %w", in.RunID, err)
	}

	ptr := model.DerivedLedgerPointer{
		UserID:           in.UserID,
		Date:             in.Date,
		LatestRunID:      in.RunID,
		LatestComputedAt: in.ComputedAt,
	}
	if err := w.store.PutLedgerPointer(ctx, ptr); err != nil {
		return model.DerivedLedgerRun{}, fmt.Errorf("ledger: write pointer for %s: %w", in.Date, err)
	}

	w.logger.Debug("ledger: run written",
		"user_id", in.UserID, "date", in.Date, "run_id", in.RunID, "snapshots", len(snapshots))
	return run, nil
}

// snapshot canonicalizes a document and stamps its stable content hash.
func snapshot(in Input, kind model.SnapshotKind, doc any) (model.LedgerSnapshot, error) {
	body, err := canonjson.Marshal(doc)
	if err != nil {
		return model.LedgerSnapshot{}, fmt.Errorf("ledger: canonicalize %s snapshot: %w", kind, err)
	}
	hash, err := canonjson.StableDigest(doc)
	if err != nil {
		return model.LedgerSnapshot{}, fmt.Errorf("ledger: hash %s snapshot: %w", kind, err)
	}
	return model.LedgerSnapshot{
		UserID:      in.UserID,
		Date:        in.Date,
		RunID:       in.RunID,
		Kind:        kind,
		ContentHash: hash,
		Doc:         body,
	}, nil
}
