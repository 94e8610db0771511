// Package model defines the core domain types for Meridian.
//
// All types correspond directly to database tables and derived documents.
// Types use strong typing (UUIDs, time.Time, enums) and avoid interface{}
// wherever possible; the one tagged union (RawEvent payloads) is keyed by
// EventKind with a strongly typed struct per kind.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind represents the category of a raw health event.
type EventKind string

const (
	KindSleepSession     EventKind = "sleep_session"
	KindActivitySummary  EventKind = "activity_summary"
	KindWorkout          EventKind = "workout"
	KindHRVSample        EventKind = "hrv_sample"
	KindRestingHeartRate EventKind = "resting_heart_rate"
	KindWeightLog        EventKind = "weight_log"
	KindNutritionSummary EventKind = "nutrition_summary"
	KindFileRef          EventKind = "file_ref"
)

// UncertaintyState flags how trustworthy a raw observation is.
type UncertaintyState string

const (
	UncertaintyConfirmed UncertaintyState = "confirmed"
	UncertaintyEstimated UncertaintyState = "estimated"
	UncertaintyDisputed  UncertaintyState = "disputed"
)

// RawEvent is an append-only ingested record before normalization.
// Corrections are new RawEvents referencing the original via CorrectionOf;
// nothing is ever edited in place.
type RawEvent struct {
	ID           uuid.UUID        `json:"id"`
	UserID       string           `json:"user_id"`
	Provider     string           `json:"provider"`
	SourceType   string           `json:"source_type"`
	SourceID     string           `json:"source_id"`
	Kind         EventKind        `json:"kind"`
	Payload      json.RawMessage  `json:"payload"`
	ObservedAt   time.Time        `json:"observed_at"`
	ReceivedAt   time.Time        `json:"received_at"`
	Timezone     string           `json:"timezone"`
	Provenance   string           `json:"provenance,omitempty"`
	Uncertainty  UncertaintyState `json:"uncertainty"`
	CorrectionOf *uuid.UUID       `json:"correction_of,omitempty"`
	RequestID    *string          `json:"request_id,omitempty"`
}

// SleepSessionPayload is the payload for sleep_session events.
type SleepSessionPayload struct {
	DurationMin float64  `json:"duration_min"`
	Efficiency  *float64 `json:"efficiency,omitempty"`
	StartAt     *string  `json:"start_at,omitempty"`
	EndAt       *string  `json:"end_at,omitempty"`
}

// ActivitySummaryPayload is the payload for activity_summary events.
type ActivitySummaryPayload struct {
	Steps         float64  `json:"steps"`
	ActiveMinutes *float64 `json:"active_minutes,omitempty"`
	TrainingLoad  *float64 `json:"training_load,omitempty"`
}

// WorkoutPayload is the payload for workout events.
type WorkoutPayload struct {
	Sport        string   `json:"sport"`
	DurationMin  float64  `json:"duration_min"`
	TrainingLoad *float64 `json:"training_load,omitempty"`
}

// HRVSamplePayload is the payload for hrv_sample events.
type HRVSamplePayload struct {
	RMSSDMs float64 `json:"rmssd_ms"`
}

// RestingHeartRatePayload is the payload for resting_heart_rate events.
type RestingHeartRatePayload struct {
	BPM float64 `json:"bpm"`
}

// WeightLogPayload is the payload for weight_log events.
type WeightLogPayload struct {
	WeightKg   float64  `json:"weight_kg"`
	BodyFatPct *float64 `json:"body_fat_pct,omitempty"`
}

// NutritionSummaryPayload is the payload for nutrition_summary events.
type NutritionSummaryPayload struct {
	Calories float64  `json:"calories"`
	ProteinG *float64 `json:"protein_g,omitempty"`
	CarbsG   *float64 `json:"carbs_g,omitempty"`
	FatG     *float64 `json:"fat_g,omitempty"`
	WaterMl  *float64 `json:"water_ml,omitempty"`
}

// FileRefPayload is the payload for file_ref events (e.g. lab report uploads).
// ContentHash is computed by the upload path; the dedupe index reuses it
// instead of rehashing the file body.
type FileRefPayload struct {
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type,omitempty"`
}

// CanonicalMetrics carries the normalized scalar fields of a canonical event.
// Only the fields relevant to the event's kind are set.
type CanonicalMetrics struct {
	SleepDurationMin *float64 `json:"sleep_duration_min,omitempty"`
	SleepEfficiency  *float64 `json:"sleep_efficiency,omitempty"`
	Steps            *float64 `json:"steps,omitempty"`
	ActiveMinutes    *float64 `json:"active_minutes,omitempty"`
	TrainingLoad     *float64 `json:"training_load,omitempty"`
	HRVms            *float64 `json:"hrv_ms,omitempty"`
	RestingHR        *float64 `json:"resting_hr,omitempty"`
	WeightKg         *float64 `json:"weight_kg,omitempty"`
	BodyFatPct       *float64 `json:"body_fat_pct,omitempty"`
	Calories         *float64 `json:"calories,omitempty"`
	ProteinG         *float64 `json:"protein_g,omitempty"`
	CarbsG           *float64 `json:"carbs_g,omitempty"`
	FatG             *float64 `json:"fat_g,omitempty"`
	WaterMl          *float64 `json:"water_ml,omitempty"`
}

// CanonicalEvent is a normalized, server-day-stamped fact.
// Day is always derived from ObservedAt plus the raw event's timezone,
// never client-supplied. Create-only, or identical on replay.
type CanonicalEvent struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	RawEventID uuid.UUID        `json:"raw_event_id"`
	Provider   string           `json:"provider"`
	Kind       EventKind        `json:"kind"`
	Day        string           `json:"day"`
	ObservedAt time.Time        `json:"observed_at"`
	Metrics    CanonicalMetrics `json:"metrics"`
	CreatedAt  time.Time        `json:"created_at"`
}
