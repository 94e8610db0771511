package model

import "time"

// FailureRecord is immutable evidence that a pipeline stage failed.
// ID is a deterministic hash of the identity tuple, so an idempotent retry
// of the same failure is a no-op; a conflicting retry forks a second record
// at "<id>_<suffix>" rather than overwriting. Evidence is never lost.
type FailureRecord struct {
	ID                string    `json:"id"`
	SchemaVersion     int       `json:"schema_version"`
	UserID            string    `json:"user_id"`
	Source            string    `json:"source"`
	Stage             string    `json:"stage"`
	ReasonCode        string    `json:"reason_code"`
	Day               string    `json:"day"`
	RawEventID        *string   `json:"raw_event_id,omitempty"`
	CanonicalEventID  *string   `json:"canonical_event_id,omitempty"`
	RequestID         *string   `json:"request_id,omitempty"`
	Detail            string    `json:"detail,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
