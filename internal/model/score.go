package model

import "time"

// Tier buckets a 0-100 score into a coarse label.
type Tier string

const (
	TierOptimal Tier = "optimal"
	TierGood    Tier = "good"
	TierFair    Tier = "fair"
	TierPoor    Tier = "poor"
)

// DomainScore is one domain's contribution to the composite score.
type DomainScore struct {
	Score      float64 `json:"score"`
	Tier       Tier    `json:"tier"`
	Confidence float64 `json:"confidence"`
}

// HealthScoreDoc is the composite + per-domain score for one day.
// Deterministic function of enriched DailyFacts and history; written via the
// immutable-writer contract, so reruns with identical inputs are no-ops and
// conflicting rewrites fail loudly. ComputedAt is excluded from the
// immutability comparison.
type HealthScoreDoc struct {
	SchemaVersion int          `json:"schema_version"`
	UserID        string       `json:"user_id"`
	Date          string       `json:"date"`
	ModelVersion  string       `json:"model_version"`
	Composite     float64      `json:"composite"`
	CompositeTier Tier         `json:"composite_tier"`
	Sleep         *DomainScore `json:"sleep,omitempty"`
	Activity      *DomainScore `json:"activity,omitempty"`
	Recovery      *DomainScore `json:"recovery,omitempty"`
	Nutrition     *DomainScore `json:"nutrition,omitempty"`
	ComputedAt    time.Time    `json:"computed_at"`
}

// Domain returns the named domain score, or nil when absent.
func (d *HealthScoreDoc) Domain(dom Domain) *DomainScore {
	switch dom {
	case DomainSleep:
		return d.Sleep
	case DomainActivity:
		return d.Activity
	case DomainRecovery:
		return d.Recovery
	case DomainNutrition:
		return d.Nutrition
	}
	return nil
}
