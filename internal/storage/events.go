package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

// InsertRawEvent appends a raw event. Raw events are append-only; replaying
// the same event id is a no-op.
func (db *DB) InsertRawEvent(ctx context.Context, raw model.RawEvent) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO raw_events (
			id, user_id, provider, source_type, source_id, kind, payload,
			observed_at, received_at, timezone, provenance, uncertainty,
			correction_of, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		raw.ID, raw.UserID, raw.Provider, raw.SourceType, raw.SourceID,
		raw.Kind, raw.Payload, raw.ObservedAt, raw.ReceivedAt, raw.Timezone,
		raw.Provenance, raw.Uncertainty, raw.CorrectionOf, raw.RequestID,
	)
	if err != nil {
		return fmt.Errorf("storage: insert raw event: %w", err)
	}
	return nil
}

// InsertCanonicalEvent persists a normalized event through the immutable
// writer: create when absent, no-op on identical replay, and
// ErrImmutabilityViolation when a different document arrives at the same id.
func (db *DB) InsertCanonicalEvent(ctx context.Context, ev model.CanonicalEvent) error {
	hash, err := canonjson.StableDigest(ev)
	if err != nil {
		return fmt.Errorf("storage: hash canonical event: %w", err)
	}
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: encode canonical event: %w", err)
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return createOrAssertIdentical(ctx, tx, "canonical event",
			`INSERT INTO canonical_events (id, user_id, day, content_hash, doc, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			[]any{ev.ID, ev.UserID, ev.Day, hash, doc, ev.CreatedAt},
			`SELECT content_hash FROM canonical_events WHERE id = $1`,
			[]any{ev.ID},
			hash,
		)
	})
}

// CanonicalEventsForDay returns the day's canonical events ordered by
// observation time.
func (db *DB) CanonicalEventsForDay(ctx context.Context, userID, day string) ([]model.CanonicalEvent, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT doc FROM canonical_events
		WHERE user_id = $1 AND day = $2
		ORDER BY (doc->>'observed_at'), id`,
		userID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query canonical events: %w", err)
	}
	defer rows.Close()

	var out []model.CanonicalEvent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage: scan canonical event: %w", err)
		}
		var ev model.CanonicalEvent
		if err := json.Unmarshal(doc, &ev); err != nil {
			return nil, fmt.Errorf("storage: decode canonical event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
