package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

// PutLedgerRun persists a run record and its content-hashed snapshots in one
// transaction, every row through the immutable writer. Replaying a run with
// identical content is a no-op; different content at the same (run, kind)
// key aborts the whole transaction with ErrImmutabilityViolation.
func (db *DB) PutLedgerRun(ctx context.Context, run model.DerivedLedgerRun, snapshots []model.LedgerSnapshot) error {
	runHash, err := canonjson.StableDigest(run)
	if err != nil {
		return fmt.Errorf("storage: hash ledger run: %w", err)
	}
	runDoc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("storage: encode ledger run: %w", err)
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if err := createOrAssertIdentical(ctx, tx, "ledger run",
			`INSERT INTO ledger_runs (user_id, run_id, date, content_hash, doc, created_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (user_id, run_id) DO NOTHING`,
			[]any{run.UserID, run.RunID, run.Date, runHash, runDoc},
			`SELECT content_hash FROM ledger_runs WHERE user_id = $1 AND run_id = $2`,
			[]any{run.UserID, run.RunID},
			runHash,
		); err != nil {
			return err
		}

		for _, snap := range snapshots {
			if err := createOrAssertIdentical(ctx, tx, fmt.Sprintf("ledger snapshot %s", snap.Kind),
				`INSERT INTO ledger_snapshots (user_id, run_id, kind, date, content_hash, doc, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, now())
				 ON CONFLICT (user_id, run_id, kind) DO NOTHING`,
				[]any{snap.UserID, snap.RunID, snap.Kind, snap.Date, snap.ContentHash, []byte(snap.Doc)},
				`SELECT content_hash FROM ledger_snapshots WHERE user_id = $1 AND run_id = $2 AND kind = $3`,
				[]any{snap.UserID, snap.RunID, snap.Kind},
				snap.ContentHash,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutLedgerPointer unconditionally overwrites the day's "latest run" cursor.
// The pointer is the one mutable derived-truth surface and is never read as
// historical truth.
func (db *DB) PutLedgerPointer(ctx context.Context, ptr model.DerivedLedgerPointer) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO ledger_pointers (user_id, date, latest_run_id, latest_computed_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, date) DO UPDATE
		SET latest_run_id = EXCLUDED.latest_run_id,
		    latest_computed_at = EXCLUDED.latest_computed_at,
		    updated_at = now()`,
		ptr.UserID, ptr.Date, ptr.LatestRunID, ptr.LatestComputedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert ledger pointer: %w", err)
	}
	return nil
}

// GetLedgerPointer returns the day's latest-run cursor.
func (db *DB) GetLedgerPointer(ctx context.Context, userID, date string) (model.DerivedLedgerPointer, error) {
	ptr := model.DerivedLedgerPointer{UserID: userID, Date: date}
	err := db.pool.QueryRow(ctx, `
		SELECT latest_run_id, latest_computed_at, updated_at
		FROM ledger_pointers WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&ptr.LatestRunID, &ptr.LatestComputedAt, &ptr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DerivedLedgerPointer{}, ErrNotFound
	}
	if err != nil {
		return model.DerivedLedgerPointer{}, fmt.Errorf("storage: query ledger pointer: %w", err)
	}
	return ptr, nil
}

// GetLedgerRun returns one run record by id.
func (db *DB) GetLedgerRun(ctx context.Context, userID, runID string) (model.DerivedLedgerRun, error) {
	var doc []byte
	err := db.pool.QueryRow(ctx,
		`SELECT doc FROM ledger_runs WHERE user_id = $1 AND run_id = $2`,
		userID, runID,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DerivedLedgerRun{}, ErrNotFound
	}
	if err != nil {
		return model.DerivedLedgerRun{}, fmt.Errorf("storage: query ledger run: %w", err)
	}

	var run model.DerivedLedgerRun
	if err := json.Unmarshal(doc, &run); err != nil {
		return model.DerivedLedgerRun{}, fmt.Errorf("storage: decode ledger run: %w", err)
	}
	return run, nil
}

// ListLedgerRuns returns every run for a day, most recent first.
func (db *DB) ListLedgerRuns(ctx context.Context, userID, date string) ([]model.DerivedLedgerRun, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT doc FROM ledger_runs
		WHERE user_id = $1 AND date = $2
		ORDER BY created_at DESC, run_id`,
		userID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query ledger runs: %w", err)
	}
	defer rows.Close()

	var out []model.DerivedLedgerRun
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage: scan ledger run: %w", err)
		}
		var run model.DerivedLedgerRun
		if err := json.Unmarshal(doc, &run); err != nil {
			return nil, fmt.Errorf("storage: decode ledger run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// SnapshotsForRun returns the run's snapshots ordered by kind.
func (db *DB) SnapshotsForRun(ctx context.Context, userID, runID string) ([]model.LedgerSnapshot, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT kind, date, content_hash, doc, created_at
		FROM ledger_snapshots
		WHERE user_id = $1 AND run_id = $2
		ORDER BY kind`,
		userID, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query ledger snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerSnapshot
	for rows.Next() {
		snap := model.LedgerSnapshot{UserID: userID, RunID: runID}
		var doc []byte
		if err := rows.Scan(&snap.Kind, &snap.Date, &snap.ContentHash, &doc, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan ledger snapshot: %w", err)
		}
		snap.Doc = json.RawMessage(doc)
		out = append(out, snap)
	}
	return out, rows.Err()
}
