package model

// SchemaVersion is stamped on every derived document so readers can detect
// stale computations after a schema change.
const SchemaVersion = 1

// Version identifiers for the deterministic computations. Bumped whenever the
// corresponding semantics change; stamped on every output document.
const (
	// PipelineVersion covers aggregation, enrichment, and ledger assembly.
	PipelineVersion = "p-v3"
	// RuleVersion covers the insight rule set and its thresholds.
	RuleVersion = "r-v3"
	// ScoreModelVersion covers the HealthScore composite/domain formula.
	ScoreModelVersion = "hs-v1"
	// SignalModelVersion covers the HealthSignals baseline/threshold logic.
	SignalModelVersion = "sig-v2"
)

// DayFormat is the canonical layout for day keys ("2006-01-02").
// Day keys are always server-derived from observation time plus the
// event's timezone, never client-supplied.
const DayFormat = "2006-01-02"
