package intelligence

import (
	"bytes"
	"testing"
	"time"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

func fp(v float64) *float64 { return &v }

var computedAt = time.Date(2026, 8, 11, 6, 0, 0, 0, time.UTC)

func sampleFacts() model.DailyFacts {
	return model.DailyFacts{
		SchemaVersion:   model.SchemaVersion,
		UserID:          "user-1",
		Date:            "2026-08-10",
		PipelineVersion: model.PipelineVersion,
		Sleep:           &model.SleepFacts{DurationMin: fp(430), Confidence: 6.0 / 7.0},
		Activity:        &model.ActivityFacts{Steps: fp(9100), Confidence: 4.0 / 7.0},
	}
}

func sampleInsights() []model.Insight {
	return []model.Insight{
		{
			ID: "2026-08-10_low_steps", Kind: "low_steps", Date: "2026-08-10",
			Severity: model.SeverityInfo, Tags: []string{"activity"},
		},
		{
			ID: "2026-08-10_low_hrv", Kind: "low_hrv", Date: "2026-08-10",
			Severity: model.SeverityWarning, Tags: []string{"recovery", "hrv"},
		},
	}
}

func TestBuild_SeverityHistogramZeroFilled(t *testing.T) {
	ctx := Build(sampleFacts(), nil, 0, computedAt)

	if ctx.Insights.Count != 0 {
		t.Fatalf("count = %d, want 0", ctx.Insights.Count)
	}
	// The fixed severity set is always present, zero-filled.
	if ctx.Insights.BySeverity.Info != 0 || ctx.Insights.BySeverity.Warning != 0 || ctx.Insights.BySeverity.Critical != 0 {
		t.Fatalf("histogram should be zero-filled: %+v", ctx.Insights.BySeverity)
	}
	if ctx.Insights.Tags == nil || ctx.Insights.Kinds == nil || ctx.Insights.IDs == nil {
		t.Fatal("aggregate lists must be empty, not nil")
	}
}

func TestBuild_AggregatesDedupedAndSorted(t *testing.T) {
	ins := sampleInsights()
	// A duplicate tag across insights appears once.
	ins[0].Tags = []string{"activity", "hrv"}

	ctx := Build(sampleFacts(), ins, 0, computedAt)

	wantTags := []string{"activity", "hrv", "recovery"}
	if len(ctx.Insights.Tags) != len(wantTags) {
		t.Fatalf("tags = %v, want %v", ctx.Insights.Tags, wantTags)
	}
	for i, tag := range wantTags {
		if ctx.Insights.Tags[i] != tag {
			t.Fatalf("tags = %v, want %v", ctx.Insights.Tags, wantTags)
		}
	}
	if ctx.Insights.BySeverity.Info != 1 || ctx.Insights.BySeverity.Warning != 1 {
		t.Fatalf("histogram mismatch: %+v", ctx.Insights.BySeverity)
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	ins := sampleInsights()
	reversed := []model.Insight{ins[1], ins[0]}

	a := Build(sampleFacts(), ins, 0, computedAt)
	b := Build(sampleFacts(), reversed, 0, computedAt)

	ab, err := canonjson.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	bb, err := canonjson.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(ab, bb) {
		t.Fatalf("context depends on insight order:\n%s\n%s", ab, bb)
	}
}

func TestBuild_ReadinessFlags(t *testing.T) {
	ctx := Build(sampleFacts(), sampleInsights(), 0, computedAt)

	if !ctx.Readiness.HasDailyFacts || !ctx.Readiness.HasInsights {
		t.Fatalf("presence flags wrong: %+v", ctx.Readiness)
	}
	// Sleep 6/7 passes the 0.5 gate; activity 4/7 passes; recovery 0 fails.
	if !ctx.Readiness.SleepReady || !ctx.Readiness.ActivityReady {
		t.Fatalf("confident domains should be ready: %+v", ctx.Readiness)
	}
	if ctx.Readiness.RecoveryReady || ctx.Readiness.NutritionReady || ctx.Readiness.BodyReady {
		t.Fatalf("uncovered domains must not be ready: %+v", ctx.Readiness)
	}
}

func TestBuild_ConfidencePassthrough(t *testing.T) {
	ctx := Build(sampleFacts(), nil, 0, computedAt)

	if ctx.Confidence.Sleep != 6.0/7.0 || ctx.Confidence.Activity != 4.0/7.0 {
		t.Fatalf("confidence not passed through: %+v", ctx.Confidence)
	}
	if ctx.Confidence.Recovery != 0 {
		t.Fatalf("absent domain confidence should be 0: %+v", ctx.Confidence)
	}
}

func TestBuild_EmptyFacts(t *testing.T) {
	ctx := Build(model.DailyFacts{UserID: "user-1", Date: "2026-08-10"}, nil, 0, computedAt)

	if ctx.Readiness.HasDailyFacts {
		t.Fatal("no domains present, HasDailyFacts must be false")
	}
}
