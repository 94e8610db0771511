// Package dedupe implements content-addressed duplicate detection for raw
// ingestion inputs.
//
// Every validated RawEvent is fingerprinted by dedupeId =
// sha256(provider|sourceType|sourceId|kind|observedAt|payloadHash). The
// first occurrence creates the index entry; later identical tuples record
// an IntegrityViolation instead. Duplication is evidence, not an error:
// ingestion is never rejected here.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

// ErrInvalidEvent is returned for contract-invalid input. The check runs
// before any storage access: invalid input is never partially stored.
var ErrInvalidEvent = errors.New("dedupe: invalid raw event")

// Store is the transactional index contract. RecordEntry must create the
// entry when absent (first_seen) or, when present, write an advisory
// IntegrityViolation referencing both raw event ids (duplicate).
type Store interface {
	RecordDedupeEntry(ctx context.Context, entry model.DedupeEntry, raw model.RawEvent) (model.DedupeResult, error)
}

// PayloadHash fingerprints a raw payload via canonical serialization.
// File payloads reuse the upload path's content hash instead of rehashing.
func PayloadHash(kind model.EventKind, payload json.RawMessage) (string, error) {
	if kind == model.KindFileRef {
		var p model.FileRefPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", fmt.Errorf("dedupe: decode file payload: %w", err)
		}
		if p.ContentHash == "" {
			return "", fmt.Errorf("%w: file payload without content hash", ErrInvalidEvent)
		}
		return p.ContentHash, nil
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("dedupe: decode payload: %w", err)
	}
	return canonjson.Digest(decoded)
}

// ID builds the dedupe id from the identity tuple and payload hash.
func ID(provider, sourceType, sourceID string, kind model.EventKind, observedAt time.Time, payloadHash string) string {
	canonical := strings.Join([]string{
		provider,
		sourceType,
		sourceID,
		string(kind),
		observedAt.UTC().Format(time.RFC3339Nano),
		payloadHash,
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Index is the dedupe-index writer.
type Index struct {
	store  Store
	logger *slog.Logger
}

// NewIndex wires the writer to a store.
func NewIndex(store Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, logger: logger}
}

// Record fingerprints the raw event and writes the index transaction.
// Contract-invalid input short-circuits before any storage access.
func (ix *Index) Record(ctx context.Context, raw model.RawEvent) (model.DedupeResult, error) {
	if err := validate(raw); err != nil {
		return model.DedupeResult{}, err
	}

	payloadHash, err := PayloadHash(raw.Kind, raw.Payload)
	if err != nil {
		return model.DedupeResult{}, err
	}

	entry := model.DedupeEntry{
		DedupeID:        ID(raw.Provider, raw.SourceType, raw.SourceID, raw.Kind, raw.ObservedAt, payloadHash),
		UserID:          raw.UserID,
		FirstRawEventID: raw.ID,
		Provider:        raw.Provider,
		SourceType:      raw.SourceType,
		SourceID:        raw.SourceID,
		Kind:            raw.Kind,
		ObservedAt:      raw.ObservedAt,
		PayloadHash:     payloadHash,
	}

	res, err := ix.store.RecordDedupeEntry(ctx, entry, raw)
	if err != nil {
		return model.DedupeResult{}, fmt.Errorf("dedupe: record entry: %w", err)
	}

	if res.Mode == model.DedupeDuplicate {
		ix.logger.Info("dedupe: duplicate tuple detected",
			"user_id", raw.UserID,
			"dedupe_id", res.DedupeID,
			"first_raw_event_id", res.FirstRawEventID,
			"duplicate_raw_event_id", raw.ID,
		)
	}
	return res, nil
}

func validate(raw model.RawEvent) error {
	switch {
	case raw.UserID == "":
		return fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	case raw.Provider == "":
		return fmt.Errorf("%w: missing provider", ErrInvalidEvent)
	case raw.SourceType == "":
		return fmt.Errorf("%w: missing source type", ErrInvalidEvent)
	case raw.SourceID == "":
		return fmt.Errorf("%w: missing source id", ErrInvalidEvent)
	case raw.Kind == "":
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	case raw.ObservedAt.IsZero():
		return fmt.Errorf("%w: missing observed_at", ErrInvalidEvent)
	case len(raw.Payload) == 0:
		return fmt.Errorf("%w: missing payload", ErrInvalidEvent)
	}
	return nil
}
