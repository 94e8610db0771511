package model

import "time"

// FactSnapshot is the scalar fact view embedded in IntelligenceContext.
type FactSnapshot struct {
	SleepDurationMin *float64 `json:"sleep_duration_min,omitempty"`
	SleepEfficiency  *float64 `json:"sleep_efficiency,omitempty"`
	Steps            *float64 `json:"steps,omitempty"`
	TrainingLoad     *float64 `json:"training_load,omitempty"`
	HRVms            *float64 `json:"hrv_ms,omitempty"`
	HRVDeviation     *float64 `json:"hrv_deviation,omitempty"`
	RestingHR        *float64 `json:"resting_hr,omitempty"`
	Calories         *float64 `json:"calories,omitempty"`
	WeightKg         *float64 `json:"weight_kg,omitempty"`
}

// ConfidenceSnapshot passes each domain's confidence through to readers.
type ConfidenceSnapshot struct {
	Sleep     float64 `json:"sleep"`
	Activity  float64 `json:"activity"`
	Recovery  float64 `json:"recovery"`
	Nutrition float64 `json:"nutrition"`
	Body      float64 `json:"body"`
}

// SeverityCounts is a zero-filled histogram over the fixed severity set.
// All three fields are always present so readers never branch on key absence.
type SeverityCounts struct {
	Info     int `json:"info"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// InsightAggregates summarizes the day's insights. Tags, Kinds, and IDs are
// deduplicated and sorted, making the aggregate order-independent on input.
type InsightAggregates struct {
	Count      int            `json:"count"`
	BySeverity SeverityCounts `json:"by_severity"`
	Tags       []string       `json:"tags"`
	Kinds      []string       `json:"kinds"`
	IDs        []string       `json:"ids"`
}

// ReadinessFlags expose whether enough derived truth exists for consumers.
type ReadinessFlags struct {
	HasDailyFacts  bool `json:"has_daily_facts"`
	HasInsights    bool `json:"has_insights"`
	SleepReady     bool `json:"sleep_ready"`
	ActivityReady  bool `json:"activity_ready"`
	RecoveryReady  bool `json:"recovery_ready"`
	NutritionReady bool `json:"nutrition_ready"`
	BodyReady      bool `json:"body_ready"`
}

// IntelligenceContext is a deterministic read-optimized view over
// (facts, insights). Byte-identical for identical inputs modulo ComputedAt.
type IntelligenceContext struct {
	SchemaVersion   int                `json:"schema_version"`
	UserID          string             `json:"user_id"`
	Date            string             `json:"date"`
	PipelineVersion string             `json:"pipeline_version"`
	Facts           FactSnapshot       `json:"facts"`
	Confidence      ConfidenceSnapshot `json:"confidence"`
	Insights        InsightAggregates  `json:"insights"`
	Readiness       ReadinessFlags     `json:"readiness"`
	ComputedAt      time.Time          `json:"computed_at"`
}
