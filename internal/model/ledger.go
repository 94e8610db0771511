package model

import (
	"encoding/json"
	"time"
)

// SnapshotKind names the artifacts bundled into a ledger run.
type SnapshotKind string

const (
	SnapshotDailyFacts          SnapshotKind = "dailyFacts"
	SnapshotIntelligenceContext SnapshotKind = "intelligenceContext"
	SnapshotInsights            SnapshotKind = "insights"
	SnapshotHealthScore         SnapshotKind = "healthScore"
	SnapshotHealthSignals       SnapshotKind = "healthSignals"
)

// RunOutputs flags which artifacts a ledger run produced.
type RunOutputs struct {
	DailyFacts          bool `json:"daily_facts"`
	IntelligenceContext bool `json:"intelligence_context"`
	Insights            bool `json:"insights"`
	HealthScore         bool `json:"health_score"`
	HealthSignals       bool `json:"health_signals"`
}

// DerivedLedgerRun is the append-only record of one recompute invocation.
// Keyed by (UserID, Date, RunID); RunID is a deterministic hash of the
// trigger namespace and day, so retries of the same logical trigger collapse
// to the same run.
type DerivedLedgerRun struct {
	SchemaVersion          int        `json:"schema_version"`
	UserID                 string     `json:"user_id"`
	Date                   string     `json:"date"`
	RunID                  string     `json:"run_id"`
	PipelineVersion        string     `json:"pipeline_version"`
	Trigger                Trigger    `json:"trigger"`
	Outputs                RunOutputs `json:"outputs"`
	LatestCanonicalEventAt *time.Time `json:"latest_canonical_event_at,omitempty"`
	ComputedAt             time.Time  `json:"computed_at"`
}

// LedgerSnapshot is one content-hashed artifact of a ledger run.
// Create-or-assert-identical: replay with identical content is a no-op,
// different content at the same key is an immutability violation.
type LedgerSnapshot struct {
	UserID      string          `json:"user_id"`
	Date        string          `json:"date"`
	RunID       string          `json:"run_id"`
	Kind        SnapshotKind    `json:"kind"`
	ContentHash string          `json:"content_hash"`
	Doc         json.RawMessage `json:"doc"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DerivedLedgerPointer is the one mutable derived-truth surface: a fast
// "latest run" cursor, unconditionally overwritten every run. Explicitly
// not historical truth.
type DerivedLedgerPointer struct {
	UserID           string    `json:"user_id"`
	Date             string    `json:"date"`
	LatestRunID      string    `json:"latest_run_id"`
	LatestComputedAt time.Time `json:"latest_computed_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
