package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/model"
)

// ReplaceInsights overwrites the day's insight set in one transaction.
// Insight ids are deterministic per (date, kind), so recompute replaces the
// same documents rather than accumulating duplicates; rules that stopped
// firing are removed by the delete.
func (db *DB) ReplaceInsights(ctx context.Context, userID, date string, insights []model.Insight) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM insights WHERE user_id = $1 AND date = $2`,
			userID, date,
		); err != nil {
			return fmt.Errorf("storage: clear insights: %w", err)
		}

		for _, ins := range insights {
			doc, err := json.Marshal(ins)
			if err != nil {
				return fmt.Errorf("storage: encode insight %s: %w", ins.ID, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO insights (user_id, id, date, doc, updated_at)
				VALUES ($1, $2, $3, $4, now())`,
				userID, ins.ID, date, doc,
			); err != nil {
				return fmt.Errorf("storage: insert insight %s: %w", ins.ID, err)
			}
		}
		return nil
	})
}

// InsightsForDay returns the day's insights ordered by id.
func (db *DB) InsightsForDay(ctx context.Context, userID, date string) ([]model.Insight, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT doc FROM insights
		WHERE user_id = $1 AND date = $2
		ORDER BY id`,
		userID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query insights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage: scan insight: %w", err)
		}
		var ins model.Insight
		if err := json.Unmarshal(doc, &ins); err != nil {
			return nil, fmt.Errorf("storage: decode insight: %w", err)
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}
