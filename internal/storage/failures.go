package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/failure"
	"github.com/meridianhealth/meridian/internal/model"
)

// RecordFailure persists failure evidence and returns the id it ended up
// under. Absent id: create. Present with identical content (CreatedAt
// excluded): no-op retry. Present with different content: fork a second
// record at "<id>_<suffix>" — evidence is never overwritten or lost.
func (db *DB) RecordFailure(ctx context.Context, rec model.FailureRecord) (string, error) {
	hash, err := canonjson.StableDigest(rec)
	if err != nil {
		return "", fmt.Errorf("storage: hash failure record: %w", err)
	}

	var storedID string
	err = pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		id, err := insertFailure(ctx, tx, rec, hash)
		if err != nil {
			return err
		}
		storedID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return storedID, nil
}

func insertFailure(ctx context.Context, tx pgx.Tx, rec model.FailureRecord, hash string) (string, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("storage: encode failure record: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO failures (id, user_id, content_hash, doc, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, hash, doc, rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("storage: insert failure record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return rec.ID, nil
	}

	var existingHash string
	var existingCreatedAt time.Time
	if err := tx.QueryRow(ctx,
		`SELECT content_hash, created_at FROM failures WHERE id = $1`, rec.ID,
	).Scan(&existingHash, &existingCreatedAt); err != nil {
		return "", fmt.Errorf("storage: read existing failure record: %w", err)
	}
	if existingHash == hash {
		return rec.ID, nil
	}

	// Same id, different content: fork rather than clobber.
	suffix, err := failure.ForkSuffix(rec, existingCreatedAt)
	if err != nil {
		return "", fmt.Errorf("storage: derive fork suffix: %w", err)
	}
	fork := rec
	fork.ID = rec.ID + "_" + suffix

	forkDoc, err := json.Marshal(fork)
	if err != nil {
		return "", fmt.Errorf("storage: encode failure fork: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO failures (id, user_id, content_hash, doc, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		fork.ID, fork.UserID, hash, forkDoc, fork.CreatedAt,
	); err != nil {
		return "", fmt.Errorf("storage: insert failure fork: %w", err)
	}
	return fork.ID, nil
}

// FailuresForUser returns the user's failure records, most recent first.
func (db *DB) FailuresForUser(ctx context.Context, userID string, limit int) ([]model.FailureRecord, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT doc FROM failures
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query failures: %w", err)
	}
	defer rows.Close()

	var out []model.FailureRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage: scan failure record: %w", err)
		}
		var rec model.FailureRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("storage: decode failure record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
