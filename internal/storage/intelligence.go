package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/model"
)

// PutIntelligenceContext overwrites the day's context. Idempotent overwrite:
// the builder is deterministic, so identical inputs rewrite the same document.
func (db *DB) PutIntelligenceContext(ctx context.Context, ictx model.IntelligenceContext) error {
	doc, err := json.Marshal(ictx)
	if err != nil {
		return fmt.Errorf("storage: encode intelligence context: %w", err)
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO intelligence_contexts (user_id, date, doc, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, date) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		ictx.UserID, ictx.Date, doc,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert intelligence context: %w", err)
	}
	return nil
}

// GetIntelligenceContext returns the context for one day.
func (db *DB) GetIntelligenceContext(ctx context.Context, userID, date string) (model.IntelligenceContext, error) {
	var doc []byte
	err := db.pool.QueryRow(ctx,
		`SELECT doc FROM intelligence_contexts WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.IntelligenceContext{}, ErrNotFound
	}
	if err != nil {
		return model.IntelligenceContext{}, fmt.Errorf("storage: query intelligence context: %w", err)
	}

	var ictx model.IntelligenceContext
	if err := json.Unmarshal(doc, &ictx); err != nil {
		return model.IntelligenceContext{}, fmt.Errorf("storage: decode intelligence context: %w", err)
	}
	return ictx, nil
}
