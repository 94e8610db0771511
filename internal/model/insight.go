package model

import "time"

// Severity classifies how urgent an insight is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Severities lists the fixed severity set in canonical order.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityCritical}

// Direction indicates which side of a threshold a fact violated.
type Direction string

const (
	DirectionBelow Direction = "below"
	DirectionAbove Direction = "above"
)

// InsightEvidence records the fact, value, and threshold behind an insight.
type InsightEvidence struct {
	FactPath  string    `json:"fact_path"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
}

// Insight is a deterministic rule-engine output with evidence.
// ID is "<date>_<kind>", so recompute overwrites rather than duplicates.
type Insight struct {
	ID            string            `json:"id"`
	SchemaVersion int               `json:"schema_version"`
	UserID        string            `json:"user_id"`
	Date          string            `json:"date"`
	Kind          string            `json:"kind"`
	Severity      Severity          `json:"severity"`
	Message       string            `json:"message"`
	Evidence      []InsightEvidence `json:"evidence"`
	Tags          []string          `json:"tags"`
	RuleVersion   string            `json:"rule_version"`
	ComputedAt    time.Time         `json:"computed_at"`
}

// InsightID builds the deterministic document id for a (date, kind) pair.
func InsightID(date, kind string) string {
	return date + "_" + kind
}
