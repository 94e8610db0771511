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

// PutHealthScore persists a day's score through the immutable writer.
// ComputedAt is excluded from the comparison: a rerun with identical inputs
// is a no-op regardless of when it ran.
func (db *DB) PutHealthScore(ctx context.Context, doc model.HealthScoreDoc) error {
	hash, err := canonjson.StableDigest(doc)
	if err != nil {
		return fmt.Errorf("storage: hash health score: %w", err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: encode health score: %w", err)
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return createOrAssertIdentical(ctx, tx, "health score",
			`INSERT INTO health_scores (user_id, date, content_hash, doc, created_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (user_id, date) DO NOTHING`,
			[]any{doc.UserID, doc.Date, hash, body},
			`SELECT content_hash FROM health_scores WHERE user_id = $1 AND date = $2`,
			[]any{doc.UserID, doc.Date},
			hash,
		)
	})
}

// GetHealthScore returns the score for one day.
func (db *DB) GetHealthScore(ctx context.Context, userID, date string) (model.HealthScoreDoc, error) {
	var body []byte
	err := db.pool.QueryRow(ctx,
		`SELECT doc FROM health_scores WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.HealthScoreDoc{}, ErrNotFound
	}
	if err != nil {
		return model.HealthScoreDoc{}, fmt.Errorf("storage: query health score: %w", err)
	}

	var doc model.HealthScoreDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.HealthScoreDoc{}, fmt.Errorf("storage: decode health score: %w", err)
	}
	return doc, nil
}

// HealthScoreHistory returns up to limit scores strictly before beforeDay,
// most recent first.
func (db *DB) HealthScoreHistory(ctx context.Context, userID, beforeDay string, limit int) ([]model.HealthScoreDoc, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT doc FROM health_scores
		WHERE user_id = $1 AND date < $2
		ORDER BY date DESC
		LIMIT $3`,
		userID, beforeDay, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query score history: %w", err)
	}
	defer rows.Close()

	var out []model.HealthScoreDoc
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("storage: scan score history: %w", err)
		}
		var doc model.HealthScoreDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("storage: decode score history: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// PutHealthSignals persists a day's signals through the immutable writer.
func (db *DB) PutHealthSignals(ctx context.Context, doc model.HealthSignalDoc) error {
	hash, err := canonjson.StableDigest(doc)
	if err != nil {
		return fmt.Errorf("storage: hash health signals: %w", err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: encode health signals: %w", err)
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return createOrAssertIdentical(ctx, tx, "health signals",
			`INSERT INTO health_signals (user_id, date, content_hash, doc, created_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (user_id, date) DO NOTHING`,
			[]any{doc.UserID, doc.Date, hash, body},
			`SELECT content_hash FROM health_signals WHERE user_id = $1 AND date = $2`,
			[]any{doc.UserID, doc.Date},
			hash,
		)
	})
}

// GetHealthSignals returns the signals for one day.
func (db *DB) GetHealthSignals(ctx context.Context, userID, date string) (model.HealthSignalDoc, error) {
	var body []byte
	err := db.pool.QueryRow(ctx,
		`SELECT doc FROM health_signals WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.HealthSignalDoc{}, ErrNotFound
	}
	if err != nil {
		return model.HealthSignalDoc{}, fmt.Errorf("storage: query health signals: %w", err)
	}

	var doc model.HealthSignalDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.HealthSignalDoc{}, fmt.Errorf("storage: decode health signals: %w", err)
	}
	return doc, nil
}
