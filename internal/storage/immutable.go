package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// createOrAssertIdentical is the shared immutable-writer transaction body:
// INSERT ... ON CONFLICT DO NOTHING, and when the row already exists its
// stored stable content hash must equal the attempted one. Identical means
// no-op (safe replay); different means ErrImmutabilityViolation.
//
// insertSQL must end with ON CONFLICT (...) DO NOTHING and include the
// content hash among its values; selectHashSQL must select exactly the
// stored content_hash for the same key.
func createOrAssertIdentical(
	ctx context.Context,
	tx pgx.Tx,
	what string,
	insertSQL string, insertArgs []any,
	selectHashSQL string, keyArgs []any,
	contentHash string,
) error {
	tag, err := tx.Exec(ctx, insertSQL, insertArgs...)
	if err != nil {
		return fmt.Errorf("storage: insert %s: %w", what, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var existing string
	if err := tx.QueryRow(ctx, selectHashSQL, keyArgs...).Scan(&existing); err != nil {
		return fmt.Errorf("storage: read existing %s: %w", what, err)
	}
	if existing != contentHash {
		return fmt.Errorf("%w: %s (stored %s, attempted %s)", ErrImmutabilityViolation, what, existing, contentHash)
	}
	return nil
}
