package score

import (
	"testing"
	"time"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

func scoreDoc(composite float64, domains map[model.Domain]float64) *model.HealthScoreDoc {
	doc := &model.HealthScoreDoc{
		SchemaVersion: model.SchemaVersion,
		UserID:        "user-1",
		Date:          "2026-08-10",
		ModelVersion:  model.ScoreModelVersion,
		Composite:     composite,
		CompositeTier: model.TierGood,
		ComputedAt:    computedAt,
	}
	for d, s := range domains {
		ds := &model.DomainScore{Score: s, Tier: model.TierGood, Confidence: 0.8}
		switch d {
		case model.DomainSleep:
			doc.Sleep = ds
		case model.DomainActivity:
			doc.Activity = ds
		case model.DomainRecovery:
			doc.Recovery = ds
		case model.DomainNutrition:
			doc.Nutrition = ds
		}
	}
	return doc
}

func hasReason(doc model.HealthSignalDoc, reason string) bool {
	for _, r := range doc.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func TestComputeSignals_MissingScoreFailsClosed(t *testing.T) {
	doc := ComputeSignals("user-1", "2026-08-10", nil, nil, computedAt)

	if doc.Status != model.SignalAttentionRequired {
		t.Fatalf("status = %s, want attention_required", doc.Status)
	}
	if doc.Readiness != model.ReadinessMissing {
		t.Fatalf("readiness = %s, want missing", doc.Readiness)
	}
	if !hasReason(doc, ReasonMissingHealthScore) {
		t.Fatalf("reasons = %v, want missing_health_score", doc.Reasons)
	}
	if len(doc.MissingInputs) != 1 || doc.MissingInputs[0] != "health_score" {
		t.Fatalf("missing inputs = %v", doc.MissingInputs)
	}
	for _, d := range model.ScoredDomains {
		ev, ok := doc.DomainEvidence[string(d)]
		if !ok {
			t.Fatalf("domain evidence for %s missing", d)
		}
		if ev.Score != 0 || ev.BaselineMean != 0 || ev.DeviationPct != nil {
			t.Fatalf("domain evidence for %s should be zeroed: %+v", d, ev)
		}
	}
}

func TestComputeSignals_CompositeBoundaryInclusiveStable(t *testing.T) {
	// Exactly at the threshold: stable.
	at := ComputeSignals("user-1", "2026-08-10", scoreDoc(65, nil), nil, computedAt)
	if at.Status != model.SignalStable {
		t.Fatalf("composite 65 must be stable, got %s (%v)", at.Status, at.Reasons)
	}

	// One below: attention.
	below := ComputeSignals("user-1", "2026-08-10", scoreDoc(64, nil), nil, computedAt)
	if below.Status != model.SignalAttentionRequired {
		t.Fatalf("composite 64 must require attention, got %s", below.Status)
	}
	if !hasReason(below, "composite_below_threshold") {
		t.Fatalf("reasons = %v, want composite_below_threshold", below.Reasons)
	}
}

func TestComputeSignals_DomainBelowThreshold(t *testing.T) {
	doc := ComputeSignals("user-1", "2026-08-10",
		scoreDoc(70, map[model.Domain]float64{model.DomainSleep: 55}), nil, computedAt)

	if !hasReason(doc, "domain_sleep_below_threshold") {
		t.Fatalf("reasons = %v, want domain_sleep_below_threshold", doc.Reasons)
	}
	if doc.Status != model.SignalAttentionRequired {
		t.Fatalf("status = %s", doc.Status)
	}
}

func TestComputeSignals_DeviationAgainstBaseline(t *testing.T) {
	history := []model.HealthScoreDoc{
		*scoreDoc(80, map[model.Domain]float64{model.DomainRecovery: 80}),
		*scoreDoc(80, map[model.Domain]float64{model.DomainRecovery: 80}),
	}
	today := scoreDoc(66, map[model.Domain]float64{model.DomainRecovery: 62})

	doc := ComputeSignals("user-1", "2026-08-10", today, history, computedAt)

	// Composite 66 vs baseline 80 is -17.5%: deviation fires even though the
	// absolute composite threshold does not.
	if !hasReason(doc, "composite_deviation_below_threshold") {
		t.Fatalf("reasons = %v, want composite_deviation_below_threshold", doc.Reasons)
	}
	// Recovery 62 vs baseline 80 is -22.5%: domain deviation fires; absolute
	// domain threshold (60) does not.
	if !hasReason(doc, "domain_recovery_deviation_below_threshold") {
		t.Fatalf("reasons = %v, want domain_recovery_deviation_below_threshold", doc.Reasons)
	}
	if hasReason(doc, "domain_recovery_below_threshold") || hasReason(doc, "composite_below_threshold") {
		t.Fatalf("absolute thresholds should not fire: %v", doc.Reasons)
	}

	ev := doc.DomainEvidence["recovery"]
	if ev.BaselineMean != 80 || ev.DeviationPct == nil {
		t.Fatalf("recovery evidence incomplete: %+v", ev)
	}
}

func TestComputeSignals_DeviationBoundaryInclusiveStable(t *testing.T) {
	history := []model.HealthScoreDoc{*scoreDoc(80, nil)}
	// 68 vs 80 is exactly -15%: inclusive-stable.
	doc := ComputeSignals("user-1", "2026-08-10", scoreDoc(68, nil), history, computedAt)

	if hasReason(doc, "composite_deviation_below_threshold") {
		t.Fatalf("deviation exactly at threshold must be stable: %v", doc.Reasons)
	}
}

func TestComputeSignals_NoBaselineNilDeviation(t *testing.T) {
	doc := ComputeSignals("user-1", "2026-08-10",
		scoreDoc(72, map[model.Domain]float64{model.DomainSleep: 70}), nil, computedAt)

	if doc.Composite.BaselineMean != 0 || doc.Composite.DeviationPct != nil {
		t.Fatalf("no history should mean zero baseline and nil deviation: %+v", doc.Composite)
	}
	if doc.Status != model.SignalStable {
		t.Fatalf("status = %s (%v)", doc.Status, doc.Reasons)
	}
}

func TestComputeSignals_DeterministicModuloComputedAt(t *testing.T) {
	today := scoreDoc(72, map[model.Domain]float64{model.DomainSleep: 70, model.DomainActivity: 58})
	history := []model.HealthScoreDoc{*scoreDoc(75, map[model.Domain]float64{model.DomainSleep: 74})}

	a := ComputeSignals("user-1", "2026-08-10", today, history, computedAt)
	b := ComputeSignals("user-1", "2026-08-10", today, history, computedAt.Add(3*time.Hour))

	da, err := canonjson.DigestExcluding(a, "computed_at")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	db, err := canonjson.DigestExcluding(b, "computed_at")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if da != db {
		t.Fatal("signals differ beyond computed_at")
	}
}
