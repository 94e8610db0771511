// Package intelligence builds the deterministic read-optimized context view
// over a day's facts and insights.
//
// Build is pure: for identical inputs the output is byte-identical modulo
// the caller-supplied computedAt, and independent of insight slice order.
package intelligence

import (
	"sort"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

// Build assembles the IntelligenceContext for a day. gateThreshold is the
// per-domain confidence bar for the readiness flags (0 uses 0.5).
func Build(facts model.DailyFacts, insights []model.Insight, gateThreshold float64, computedAt time.Time) model.IntelligenceContext {
	if gateThreshold <= 0 {
		gateThreshold = 0.5
	}

	ctx := model.IntelligenceContext{
		SchemaVersion:   model.SchemaVersion,
		UserID:          facts.UserID,
		Date:            facts.Date,
		PipelineVersion: model.PipelineVersion,
		Facts:           snapshot(facts),
		Confidence: model.ConfidenceSnapshot{
			Sleep:     facts.DomainConfidence(model.DomainSleep),
			Activity:  facts.DomainConfidence(model.DomainActivity),
			Recovery:  facts.DomainConfidence(model.DomainRecovery),
			Nutrition: facts.DomainConfidence(model.DomainNutrition),
			Body:      facts.DomainConfidence(model.DomainBody),
		},
		Insights:   aggregate(insights),
		ComputedAt: computedAt,
	}

	hasFacts := false
	for _, d := range model.Domains {
		if facts.HasDomain(d) {
			hasFacts = true
			break
		}
	}
	ctx.Readiness = model.ReadinessFlags{
		HasDailyFacts:  hasFacts,
		HasInsights:    len(insights) > 0,
		SleepReady:     ctx.Confidence.Sleep >= gateThreshold,
		ActivityReady:  ctx.Confidence.Activity >= gateThreshold,
		RecoveryReady:  ctx.Confidence.Recovery >= gateThreshold,
		NutritionReady: ctx.Confidence.Nutrition >= gateThreshold,
		BodyReady:      ctx.Confidence.Body >= gateThreshold,
	}

	return ctx
}

func snapshot(facts model.DailyFacts) model.FactSnapshot {
	var s model.FactSnapshot
	if f := facts.Sleep; f != nil {
		s.SleepDurationMin = f.DurationMin
		s.SleepEfficiency = f.Efficiency
	}
	if f := facts.Activity; f != nil {
		s.Steps = f.Steps
		s.TrainingLoad = f.TrainingLoad
	}
	if f := facts.Recovery; f != nil {
		s.HRVms = f.HRVms
		s.HRVDeviation = f.HRVDeviation
		s.RestingHR = f.RestingHR
	}
	if f := facts.Nutrition; f != nil {
		s.Calories = f.Calories
	}
	if f := facts.Body; f != nil {
		s.WeightKg = f.WeightKg
	}
	return s
}

// aggregate counts severities over the fixed set (always zero-filled) and
// produces deduplicated, sorted tag/kind/id lists.
func aggregate(insights []model.Insight) model.InsightAggregates {
	agg := model.InsightAggregates{
		Count: len(insights),
		Tags:  []string{},
		Kinds: []string{},
		IDs:   []string{},
	}

	tags := map[string]bool{}
	kindSet := map[string]bool{}
	idSet := map[string]bool{}
	for _, in := range insights {
		switch in.Severity {
		case model.SeverityInfo:
			agg.BySeverity.Info++
		case model.SeverityWarning:
			agg.BySeverity.Warning++
		case model.SeverityCritical:
			agg.BySeverity.Critical++
		}
		for _, tag := range in.Tags {
			tags[tag] = true
		}
		kindSet[in.Kind] = true
		idSet[in.ID] = true
	}

	agg.Tags = sortedKeys(tags)
	agg.Kinds = sortedKeys(kindSet)
	agg.IDs = sortedKeys(idSet)
	return agg
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
