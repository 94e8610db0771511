package model

import "time"

// SignalStatus is the overall attention state for a day.
type SignalStatus string

const (
	SignalStable            SignalStatus = "stable"
	SignalAttentionRequired SignalStatus = "attention_required"
)

// SignalReadiness describes whether the signal inputs were complete.
type SignalReadiness string

const (
	ReadinessReady   SignalReadiness = "ready"
	ReadinessMissing SignalReadiness = "missing"
)

// SignalEvidence carries the baseline-window inputs behind one signal check.
// DeviationPct is nil when the baseline mean is zero (no meaningful ratio).
type SignalEvidence struct {
	Score        float64  `json:"score"`
	BaselineMean float64  `json:"baseline_mean"`
	DeviationPct *float64 `json:"deviation_pct,omitempty"`
}

// HealthSignalDoc is the threshold-based attention signal for one day.
// Fail-closed: when the day's HealthScore is absent the doc reports
// attention_required with readiness "missing" and zeroed evidence.
// Immutable via the shared writer contract; ComputedAt excluded.
type HealthSignalDoc struct {
	SchemaVersion      int                       `json:"schema_version"`
	UserID             string                    `json:"user_id"`
	Date               string                    `json:"date"`
	ModelVersion       string                    `json:"model_version"`
	Status             SignalStatus              `json:"status"`
	Readiness          SignalReadiness           `json:"readiness"`
	Reasons            []string                  `json:"reasons"`
	MissingInputs      []string                  `json:"missing_inputs"`
	BaselineWindowDays int                       `json:"baseline_window_days"`
	Composite          SignalEvidence            `json:"composite"`
	DomainEvidence     map[string]SignalEvidence `json:"domain_evidence"`
	ComputedAt         time.Time                 `json:"computed_at"`
}
