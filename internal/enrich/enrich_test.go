package enrich

import (
	"math"
	"testing"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

func fp(v float64) *float64 { return &v }

func day(date string, mutate func(*model.DailyFacts)) model.DailyFacts {
	f := model.DailyFacts{
		SchemaVersion:   model.SchemaVersion,
		UserID:          "user-1",
		Date:            date,
		PipelineVersion: model.PipelineVersion,
		ComputedAt:      time.Date(2026, 8, 11, 6, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&f)
	}
	return f
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEnrich_RollingStepsUnpaddedMean(t *testing.T) {
	today := day("2026-08-10", func(f *model.DailyFacts) {
		f.Activity = &model.ActivityFacts{Steps: fp(9000)}
	})
	history := []model.DailyFacts{
		day("2026-08-09", func(f *model.DailyFacts) { f.Activity = &model.ActivityFacts{Steps: fp(7000)} }),
		day("2026-08-08", func(f *model.DailyFacts) { f.Activity = &model.ActivityFacts{Steps: fp(8000)} }),
		// A day with no activity contributes nothing — the mean is unpadded.
		day("2026-08-07", nil),
	}

	got := Enrich(today, history)
	if got.Activity.RollingSteps7d == nil {
		t.Fatal("rolling steps missing")
	}
	approx(t, *got.Activity.RollingSteps7d, 8000)
}

func TestEnrich_HRVBaselineExcludesToday(t *testing.T) {
	today := day("2026-08-10", func(f *model.DailyFacts) {
		f.Recovery = &model.RecoveryFacts{HRVms: fp(45)}
	})
	history := []model.DailyFacts{
		day("2026-08-09", func(f *model.DailyFacts) { f.Recovery = &model.RecoveryFacts{HRVms: fp(60)} }),
		day("2026-08-08", func(f *model.DailyFacts) { f.Recovery = &model.RecoveryFacts{HRVms: fp(60)} }),
	}

	got := Enrich(today, history)
	if got.Recovery.HRVBaseline == nil {
		t.Fatal("baseline missing")
	}
	approx(t, *got.Recovery.HRVBaseline, 60)
	if got.Recovery.HRVDeviation == nil {
		t.Fatal("deviation missing")
	}
	approx(t, *got.Recovery.HRVDeviation, (45.0-60.0)/60.0)
}

func TestEnrich_NoHistoryLeavesBaselineNil(t *testing.T) {
	today := day("2026-08-10", func(f *model.DailyFacts) {
		f.Recovery = &model.RecoveryFacts{HRVms: fp(55)}
	})

	got := Enrich(today, nil)
	if got.Recovery.HRVBaseline != nil {
		t.Fatalf("baseline should be nil without history, got %v", *got.Recovery.HRVBaseline)
	}
	if got.Recovery.HRVDeviation != nil {
		t.Fatal("deviation should be nil without a baseline")
	}
}

func TestEnrich_ConfidenceOneDayCoverage(t *testing.T) {
	today := day("2026-08-10", func(f *model.DailyFacts) {
		f.Sleep = &model.SleepFacts{DurationMin: fp(430)}
		f.Activity = &model.ActivityFacts{Steps: fp(9000)}
	})

	got := Enrich(today, nil)
	approx(t, got.Sleep.Confidence, 1.0/7.0)
	approx(t, got.Activity.Confidence, 1.0/7.0)
}

func TestEnrich_ConfidenceFiveOfSevenCoverage(t *testing.T) {
	today := day("2026-08-10", func(f *model.DailyFacts) {
		f.Sleep = &model.SleepFacts{DurationMin: fp(430)}
	})
	var history []model.DailyFacts
	for _, d := range []string{"2026-08-09", "2026-08-08", "2026-08-07", "2026-08-06"} {
		history = append(history, day(d, func(f *model.DailyFacts) {
			f.Sleep = &model.SleepFacts{DurationMin: fp(420)}
		}))
	}

	got := Enrich(today, history)
	approx(t, got.Sleep.Confidence, 5.0/7.0)
}

func TestEnrich_Deterministic(t *testing.T) {
	today := day("2026-08-10", func(f *model.DailyFacts) {
		f.Activity = &model.ActivityFacts{Steps: fp(10500), TrainingLoad: fp(120)}
		f.Recovery = &model.RecoveryFacts{HRVms: fp(58)}
	})
	history := []model.DailyFacts{
		day("2026-08-09", func(f *model.DailyFacts) {
			f.Activity = &model.ActivityFacts{Steps: fp(8800), TrainingLoad: fp(95)}
			f.Recovery = &model.RecoveryFacts{HRVms: fp(61)}
		}),
	}

	a := Enrich(today, history)
	b := Enrich(today, history)

	approx(t, *a.Activity.RollingSteps7d, *b.Activity.RollingSteps7d)
	approx(t, *a.Recovery.HRVBaseline, *b.Recovery.HRVBaseline)
	approx(t, a.Activity.Confidence, b.Activity.Confidence)
}
