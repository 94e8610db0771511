package model

import (
	"time"

	"github.com/google/uuid"
)

// DedupeMode is the outcome of a dedupe-index write.
type DedupeMode string

const (
	DedupeFirstSeen DedupeMode = "first_seen"
	DedupeDuplicate DedupeMode = "duplicate"
)

// DedupeEntry is the content-addressed index record for a raw input.
// Keyed by DedupeID = hash(provider|sourceType|sourceId|kind|observedAt|payloadHash).
type DedupeEntry struct {
	DedupeID        string    `json:"dedupe_id"`
	UserID          string    `json:"user_id"`
	FirstRawEventID uuid.UUID `json:"first_raw_event_id"`
	Provider        string    `json:"provider"`
	SourceType      string    `json:"source_type"`
	SourceID        string    `json:"source_id"`
	Kind            EventKind `json:"kind"`
	ObservedAt      time.Time `json:"observed_at"`
	PayloadHash     string    `json:"payload_hash"`
	CreatedAt       time.Time `json:"created_at"`
}

// DedupeResult reports what the index writer did. Duplication is evidence,
// not an error: ingestion proceeds either way.
type DedupeResult struct {
	Mode                   DedupeMode `json:"mode"`
	DedupeID               string     `json:"dedupe_id"`
	FirstRawEventID        uuid.UUID  `json:"first_raw_event_id"`
	IntegrityViolationPath string     `json:"integrity_violation_path,omitempty"`
}

// IntegrityViolation is advisory evidence of a detected duplicate tuple.
type IntegrityViolation struct {
	ID                  uuid.UUID `json:"id"`
	UserID              string    `json:"user_id"`
	DedupeID            string    `json:"dedupe_id"`
	FirstRawEventID     uuid.UUID `json:"first_raw_event_id"`
	DuplicateRawEventID uuid.UUID `json:"duplicate_raw_event_id"`
	DetectedAt          time.Time `json:"detected_at"`
}
