package model

import "time"

// Domain names the five fact buckets of a day.
type Domain string

const (
	DomainSleep     Domain = "sleep"
	DomainActivity  Domain = "activity"
	DomainRecovery  Domain = "recovery"
	DomainNutrition Domain = "nutrition"
	DomainBody      Domain = "body"
)

// Domains lists all fact domains in canonical order.
var Domains = []Domain{DomainSleep, DomainActivity, DomainRecovery, DomainNutrition, DomainBody}

// ScoredDomains lists the four domains that contribute to HealthScore.
// Body is tracked but not scored.
var ScoredDomains = []Domain{DomainSleep, DomainActivity, DomainRecovery, DomainNutrition}

// SleepFacts is the sleep bucket of DailyFacts.
type SleepFacts struct {
	DurationMin *float64 `json:"duration_min,omitempty"`
	Efficiency  *float64 `json:"efficiency,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// ActivityFacts is the activity bucket of DailyFacts.
// Rolling fields are 7-day unpadded means filled in by enrichment.
type ActivityFacts struct {
	Steps                 *float64 `json:"steps,omitempty"`
	ActiveMinutes         *float64 `json:"active_minutes,omitempty"`
	TrainingLoad          *float64 `json:"training_load,omitempty"`
	RollingSteps7d        *float64 `json:"rolling_steps_7d,omitempty"`
	RollingTrainingLoad7d *float64 `json:"rolling_training_load_7d,omitempty"`
	Confidence            float64  `json:"confidence"`
}

// RecoveryFacts is the recovery bucket of DailyFacts.
// HRVBaseline is the mean of history only (today excluded); HRVDeviation is
// (today - baseline) / baseline. Both are left nil when history is missing.
type RecoveryFacts struct {
	HRVms        *float64 `json:"hrv_ms,omitempty"`
	RestingHR    *float64 `json:"resting_hr,omitempty"`
	HRVBaseline  *float64 `json:"hrv_baseline,omitempty"`
	HRVDeviation *float64 `json:"hrv_deviation,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// NutritionFacts is the nutrition bucket of DailyFacts.
type NutritionFacts struct {
	Calories   *float64 `json:"calories,omitempty"`
	ProteinG   *float64 `json:"protein_g,omitempty"`
	CarbsG     *float64 `json:"carbs_g,omitempty"`
	FatG       *float64 `json:"fat_g,omitempty"`
	WaterMl    *float64 `json:"water_ml,omitempty"`
	Confidence float64  `json:"confidence"`
}

// BodyFacts is the body bucket of DailyFacts.
type BodyFacts struct {
	WeightKg   *float64 `json:"weight_kg,omitempty"`
	BodyFatPct *float64 `json:"body_fat_pct,omitempty"`
	Confidence float64  `json:"confidence"`
}

// FactOnlyBody supplies body facts directly, bypassing canonical-event
// creation for inputs too simple to normalize (e.g. a bare weight log).
type FactOnlyBody struct {
	WeightKg   *float64 `json:"weight_kg,omitempty"`
	BodyFatPct *float64 `json:"body_fat_pct,omitempty"`
}

// DailyFacts is the per-user per-day aggregate and enriched summary.
// Mutable: recompute overwrites it idempotently.
type DailyFacts struct {
	SchemaVersion   int             `json:"schema_version"`
	UserID          string          `json:"user_id"`
	Date            string          `json:"date"`
	PipelineVersion string          `json:"pipeline_version"`
	Sleep           *SleepFacts     `json:"sleep,omitempty"`
	Activity        *ActivityFacts  `json:"activity,omitempty"`
	Recovery        *RecoveryFacts  `json:"recovery,omitempty"`
	Nutrition       *NutritionFacts `json:"nutrition,omitempty"`
	Body            *BodyFacts      `json:"body,omitempty"`
	ComputedAt      time.Time       `json:"computed_at"`
}

// DomainConfidence returns the confidence of the named domain bucket,
// or 0 when the bucket is absent.
func (f *DailyFacts) DomainConfidence(d Domain) float64 {
	switch d {
	case DomainSleep:
		if f.Sleep != nil {
			return f.Sleep.Confidence
		}
	case DomainActivity:
		if f.Activity != nil {
			return f.Activity.Confidence
		}
	case DomainRecovery:
		if f.Recovery != nil {
			return f.Recovery.Confidence
		}
	case DomainNutrition:
		if f.Nutrition != nil {
			return f.Nutrition.Confidence
		}
	case DomainBody:
		if f.Body != nil {
			return f.Body.Confidence
		}
	}
	return 0
}

// HasDomain reports whether any field is present for the named domain.
func (f *DailyFacts) HasDomain(d Domain) bool {
	switch d {
	case DomainSleep:
		return f.Sleep != nil && (f.Sleep.DurationMin != nil || f.Sleep.Efficiency != nil)
	case DomainActivity:
		return f.Activity != nil && (f.Activity.Steps != nil || f.Activity.ActiveMinutes != nil || f.Activity.TrainingLoad != nil)
	case DomainRecovery:
		return f.Recovery != nil && (f.Recovery.HRVms != nil || f.Recovery.RestingHR != nil)
	case DomainNutrition:
		return f.Nutrition != nil && (f.Nutrition.Calories != nil || f.Nutrition.ProteinG != nil || f.Nutrition.CarbsG != nil || f.Nutrition.FatG != nil || f.Nutrition.WaterMl != nil)
	case DomainBody:
		return f.Body != nil && (f.Body.WeightKg != nil || f.Body.BodyFatPct != nil)
	}
	return false
}
