package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/model"
)

// PutDailyFacts overwrites the day's facts. Idempotent: recompute with the
// same inputs writes the same document.
func (db *DB) PutDailyFacts(ctx context.Context, facts model.DailyFacts) error {
	doc, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("storage: encode daily facts: %w", err)
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO daily_facts (user_id, date, doc, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, date) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		facts.UserID, facts.Date, doc,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert daily facts: %w", err)
	}
	return nil
}

// GetDailyFacts returns the facts document for one day.
func (db *DB) GetDailyFacts(ctx context.Context, userID, date string) (model.DailyFacts, error) {
	var doc []byte
	err := db.pool.QueryRow(ctx,
		`SELECT doc FROM daily_facts WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DailyFacts{}, ErrNotFound
	}
	if err != nil {
		return model.DailyFacts{}, fmt.Errorf("storage: query daily facts: %w", err)
	}

	var facts model.DailyFacts
	if err := json.Unmarshal(doc, &facts); err != nil {
		return model.DailyFacts{}, fmt.Errorf("storage: decode daily facts: %w", err)
	}
	return facts, nil
}

// DailyFactsHistory returns up to limit days of facts strictly before
// beforeDay, most recent first. Day keys sort lexically in date order.
func (db *DB) DailyFactsHistory(ctx context.Context, userID, beforeDay string, limit int) ([]model.DailyFacts, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT doc FROM daily_facts
		WHERE user_id = $1 AND date < $2
		ORDER BY date DESC
		LIMIT $3`,
		userID, beforeDay, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query facts history: %w", err)
	}
	defer rows.Close()

	var out []model.DailyFacts
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage: scan facts history: %w", err)
		}
		var facts model.DailyFacts
		if err := json.Unmarshal(doc, &facts); err != nil {
			return nil, fmt.Errorf("storage: decode facts history: %w", err)
		}
		out = append(out, facts)
	}
	return out, rows.Err()
}
