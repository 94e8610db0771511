package insight

import (
	"testing"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

func fp(v float64) *float64 { return &v }

var computedAt = time.Date(2026, 8, 11, 6, 0, 0, 0, time.UTC)

func facts(mutate func(*model.DailyFacts)) model.DailyFacts {
	f := model.DailyFacts{
		SchemaVersion:   model.SchemaVersion,
		UserID:          "user-1",
		Date:            "2026-08-10",
		PipelineVersion: model.PipelineVersion,
	}
	if mutate != nil {
		mutate(&f)
	}
	return f
}

func kinds(insights []model.Insight) map[string]model.Insight {
	m := make(map[string]model.Insight, len(insights))
	for _, in := range insights {
		m[in.Kind] = in
	}
	return m
}

func TestEvaluate_LowSleepDuration(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		f.Sleep = &model.SleepFacts{DurationMin: fp(390), Confidence: 0.8}
	})

	got := kinds(NewEngine(0).Evaluate(f, computedAt))
	in, ok := got["low_sleep_duration"]
	if !ok {
		t.Fatal("low_sleep_duration should fire at 390 min")
	}
	if in.ID != "2026-08-10_low_sleep_duration" {
		t.Fatalf("deterministic id mismatch: %s", in.ID)
	}
	if in.Severity != model.SeverityWarning {
		t.Fatalf("severity = %s", in.Severity)
	}
	if len(in.Evidence) != 1 {
		t.Fatalf("expected exactly one evidence entry, got %d", len(in.Evidence))
	}
	ev := in.Evidence[0]
	if ev.FactPath != "sleep.duration_min" || ev.Value != 390 || ev.Threshold != 420 || ev.Direction != model.DirectionBelow {
		t.Fatalf("evidence mismatch: %+v", ev)
	}
	if in.RuleVersion != model.RuleVersion {
		t.Fatalf("rule version not stamped: %q", in.RuleVersion)
	}
}

func TestEvaluate_ConfidenceGateSkipsRule(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		// Plainly low sleep, but coverage is too sparse to conclude anything.
		f.Sleep = &model.SleepFacts{DurationMin: fp(300), Confidence: 1.0 / 7.0}
	})

	if got := NewEngine(0).Evaluate(f, computedAt); len(got) != 0 {
		t.Fatalf("expected no insights under the gate, got %d", len(got))
	}
}

func TestEvaluate_GateThresholdOverridable(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		f.Sleep = &model.SleepFacts{DurationMin: fp(300), Confidence: 1.0 / 7.0}
	})

	got := NewEngine(0.1).Evaluate(f, computedAt)
	if len(got) != 1 {
		t.Fatalf("lowered gate should let the rule fire, got %d insights", len(got))
	}
}

func TestEvaluate_UndefinedFactSkips(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		// Confident sleep bucket with no duration value.
		f.Sleep = &model.SleepFacts{Efficiency: fp(0.9), Confidence: 0.9}
	})

	if got := NewEngine(0).Evaluate(f, computedAt); len(got) != 0 {
		t.Fatalf("rule must skip when the fact is undefined, got %d", len(got))
	}
}

func TestEvaluate_MultipleRulesFireIndependently(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		f.Sleep = &model.SleepFacts{DurationMin: fp(380), Confidence: 0.9}
		f.Activity = &model.ActivityFacts{Steps: fp(4000), TrainingLoad: fp(180), Confidence: 0.9}
		f.Recovery = &model.RecoveryFacts{HRVms: fp(42), Confidence: 0.9}
	})

	got := kinds(NewEngine(0).Evaluate(f, computedAt))
	for _, want := range []string{"low_sleep_duration", "low_steps", "high_training_load", "low_hrv"} {
		if _, ok := got[want]; !ok {
			t.Fatalf("expected %s to fire, got %v", want, got)
		}
	}
}

func TestEvaluate_BoundaryValuesDoNotFire(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		f.Sleep = &model.SleepFacts{DurationMin: fp(420), Confidence: 0.9}
		f.Activity = &model.ActivityFacts{Steps: fp(8000), TrainingLoad: fp(150), Confidence: 0.9}
		f.Recovery = &model.RecoveryFacts{HRVms: fp(50), Confidence: 0.9}
	})

	if got := NewEngine(0).Evaluate(f, computedAt); len(got) != 0 {
		t.Fatalf("values exactly at thresholds must not fire, got %d insights", len(got))
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	f := facts(func(f *model.DailyFacts) {
		f.Recovery = &model.RecoveryFacts{HRVms: fp(44), Confidence: 0.9}
	})

	a := NewEngine(0).Evaluate(f, computedAt)
	b := NewEngine(0).Evaluate(f, computedAt)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one insight per run: %d, %d", len(a), len(b))
	}
	if a[0].ID != b[0].ID || a[0].Message != b[0].Message {
		t.Fatal("evaluation is not deterministic")
	}
}
