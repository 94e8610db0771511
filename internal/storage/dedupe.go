package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianhealth/meridian/internal/model"
)

// RecordDedupeEntry runs the content-addressed dedupe transaction. First
// occurrence of the identity tuple creates the index entry; a later
// identical tuple writes an IntegrityViolation referencing both raw event
// ids. Duplication is advisory evidence — the caller keeps ingesting.
func (db *DB) RecordDedupeEntry(ctx context.Context, entry model.DedupeEntry, raw model.RawEvent) (model.DedupeResult, error) {
	var res model.DedupeResult
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		doc, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("storage: encode dedupe entry: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO ingestion_dedupe (dedupe_id, user_id, first_raw_event_id, doc, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (dedupe_id) DO NOTHING`,
			entry.DedupeID, entry.UserID, entry.FirstRawEventID, doc,
		)
		if err != nil {
			return fmt.Errorf("storage: insert dedupe entry: %w", err)
		}
		if tag.RowsAffected() == 1 {
			res = model.DedupeResult{
				Mode:            model.DedupeFirstSeen,
				DedupeID:        entry.DedupeID,
				FirstRawEventID: entry.FirstRawEventID,
			}
			return nil
		}

		var firstID uuid.UUID
		if err := tx.QueryRow(ctx,
			`SELECT first_raw_event_id FROM ingestion_dedupe WHERE dedupe_id = $1`,
			entry.DedupeID,
		).Scan(&firstID); err != nil {
			return fmt.Errorf("storage: read existing dedupe entry: %w", err)
		}

		violation := model.IntegrityViolation{
			ID:                  uuid.New(),
			UserID:              entry.UserID,
			DedupeID:            entry.DedupeID,
			FirstRawEventID:     firstID,
			DuplicateRawEventID: raw.ID,
		}
		vdoc, err := json.Marshal(violation)
		if err != nil {
			return fmt.Errorf("storage: encode integrity violation: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO integrity_violations (id, user_id, dedupe_id, doc, detected_at)
			VALUES ($1, $2, $3, $4, now())`,
			violation.ID, violation.UserID, violation.DedupeID, vdoc,
		); err != nil {
			return fmt.Errorf("storage: insert integrity violation: %w", err)
		}

		res = model.DedupeResult{
			Mode:                   model.DedupeDuplicate,
			DedupeID:               entry.DedupeID,
			FirstRawEventID:        firstID,
			IntegrityViolationPath: fmt.Sprintf("users/%s/integrityViolations/%s", entry.UserID, violation.ID),
		}
		return nil
	})
	if err != nil {
		return model.DedupeResult{}, err
	}
	return res, nil
}
