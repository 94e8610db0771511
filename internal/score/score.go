// Package score computes the composite HealthScore and the threshold-based
// HealthSignals for a day. Both computations are pure, versioned, and
// deterministic modulo the caller-supplied computedAt.
package score

import (
	"math"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

// hs-v1 formula constants. Bump model.ScoreModelVersion when changing any.
const (
	sleepTargetMin      = 480
	stepsTarget         = 10000
	hrvTargetMs         = 60
	loadPenaltyOver     = 150
	caloriesBandLow     = 1600
	caloriesBandHigh    = 2800
	caloriesPointPerOut = 25 // kcal outside the band per point lost
)

// Composite weights per domain, renormalized over present domains.
var domainWeights = map[model.Domain]float64{
	model.DomainSleep:     0.30,
	model.DomainActivity:  0.30,
	model.DomainRecovery:  0.25,
	model.DomainNutrition: 0.15,
}

// Compute derives the hs-v1 HealthScoreDoc from enriched DailyFacts.
// History influences the score through the enrichment fields already on the
// facts (rolling averages, HRV baseline). Returns nil when no scorable
// domain is present: absence of data is never scored.
func Compute(facts model.DailyFacts, computedAt time.Time) *model.HealthScoreDoc {
	doc := &model.HealthScoreDoc{
		SchemaVersion: model.SchemaVersion,
		UserID:        facts.UserID,
		Date:          facts.Date,
		ModelVersion:  model.ScoreModelVersion,
		ComputedAt:    computedAt,
	}

	doc.Sleep = sleepScore(facts.Sleep)
	doc.Activity = activityScore(facts.Activity)
	doc.Recovery = recoveryScore(facts.Recovery)
	doc.Nutrition = nutritionScore(facts.Nutrition)

	var weightSum, weighted float64
	any := false
	for _, d := range model.ScoredDomains {
		ds := doc.Domain(d)
		if ds == nil {
			continue
		}
		any = true
		w := domainWeights[d]
		weightSum += w
		weighted += w * ds.Score
	}
	if !any {
		return nil
	}

	doc.Composite = round1(weighted / weightSum)
	doc.CompositeTier = tierOf(doc.Composite)
	return doc
}

func sleepScore(f *model.SleepFacts) *model.DomainScore {
	if f == nil || f.DurationMin == nil {
		return nil
	}
	s := 100 * math.Min(*f.DurationMin/sleepTargetMin, 1)
	if f.Efficiency != nil {
		s = 0.8*s + 0.2*clamp(*f.Efficiency*100, 0, 100)
	}
	return domainScore(s, f.Confidence)
}

func activityScore(f *model.ActivityFacts) *model.DomainScore {
	if f == nil || f.Steps == nil {
		return nil
	}
	s := 100 * math.Min(*f.Steps/stepsTarget, 1)
	// Overload penalty: sustained excess training load reduces the score.
	if f.TrainingLoad != nil && *f.TrainingLoad > loadPenaltyOver {
		s -= math.Min(20, (*f.TrainingLoad-loadPenaltyOver)*0.1)
	}
	return domainScore(s, f.Confidence)
}

func recoveryScore(f *model.RecoveryFacts) *model.DomainScore {
	if f == nil || f.HRVms == nil {
		return nil
	}
	s := 100 * math.Min(*f.HRVms/hrvTargetMs, 1)
	// A negative deviation from the personal baseline scales the score down.
	if f.HRVDeviation != nil && *f.HRVDeviation < 0 {
		s *= math.Max(0, 1+*f.HRVDeviation)
	}
	return domainScore(s, f.Confidence)
}

func nutritionScore(f *model.NutritionFacts) *model.DomainScore {
	if f == nil || f.Calories == nil {
		return nil
	}
	var dist float64
	switch {
	case *f.Calories < caloriesBandLow:
		dist = caloriesBandLow - *f.Calories
	case *f.Calories > caloriesBandHigh:
		dist = *f.Calories - caloriesBandHigh
	}
	s := 100 - dist/caloriesPointPerOut
	return domainScore(s, f.Confidence)
}

func domainScore(s, confidence float64) *model.DomainScore {
	s = round1(clamp(s, 0, 100))
	return &model.DomainScore{Score: s, Tier: tierOf(s), Confidence: confidence}
}

func tierOf(s float64) model.Tier {
	switch {
	case s >= 80:
		return model.TierOptimal
	case s >= 65:
		return model.TierGood
	case s >= 50:
		return model.TierFair
	default:
		return model.TierPoor
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round1 rounds to one decimal so canonical serializations stay stable
// across float formatting.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
