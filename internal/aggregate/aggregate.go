// Package aggregate folds canonical events into a day's base DailyFacts.
//
// Fold is pure: no I/O, no clock reads, and safe to call repeatedly with the
// same inputs. Events are ordered internally, so the result does not depend
// on the order of the input slice. Enrichment (rolling averages, baselines,
// confidence) happens downstream in the enrich package.
package aggregate

import (
	"sort"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

// Fold aggregates canonical events (plus an optional fact-only body
// override) into the base DailyFacts for (userID, date).
//
// Folding rules per kind:
//   - sleep sessions: durations sum (naps included); efficiency from the
//     latest session carrying one.
//   - activity summaries: steps and active minutes are daily cumulative
//     snapshots, so the maximum wins; workouts add their duration and
//     training load on top.
//   - HRV and resting HR samples: mean of the day's samples.
//   - weight and nutrition: latest observation wins.
//
// A fact-only body override replaces aggregated body facts entirely.
func Fold(userID, date string, computedAt time.Time, events []model.CanonicalEvent, factOnly *model.FactOnlyBody) model.DailyFacts {
	ordered := make([]model.CanonicalEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ObservedAt.Equal(ordered[j].ObservedAt) {
			return ordered[i].ObservedAt.Before(ordered[j].ObservedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	facts := model.DailyFacts{
		SchemaVersion:   model.SchemaVersion,
		UserID:          userID,
		Date:            date,
		PipelineVersion: model.PipelineVersion,
		ComputedAt:      computedAt,
	}

	var (
		sleepTotal      float64
		sleepSeen       bool
		sleepEfficiency *float64
		stepsMax        *float64
		activeMax       *float64
		workoutMinutes  float64
		workoutSeen     bool
		loadTotal       float64
		loadSeen        bool
		hrvSum          float64
		hrvN            int
		rhrSum          float64
		rhrN            int
		weight          *float64
		bodyFat         *float64
		nutrition       *model.NutritionFacts
	)

	for i := range ordered {
		m := ordered[i].Metrics
		switch ordered[i].Kind {
		case model.KindSleepSession:
			if m.SleepDurationMin != nil {
				sleepTotal += *m.SleepDurationMin
				sleepSeen = true
			}
			if m.SleepEfficiency != nil {
				sleepEfficiency = m.SleepEfficiency
			}

		case model.KindActivitySummary:
			if m.Steps != nil {
				stepsMax = maxOf(stepsMax, *m.Steps)
			}
			if m.ActiveMinutes != nil {
				activeMax = maxOf(activeMax, *m.ActiveMinutes)
			}
			if m.TrainingLoad != nil {
				loadTotal += *m.TrainingLoad
				loadSeen = true
			}

		case model.KindWorkout:
			if m.ActiveMinutes != nil {
				workoutMinutes += *m.ActiveMinutes
				workoutSeen = true
			}
			if m.TrainingLoad != nil {
				loadTotal += *m.TrainingLoad
				loadSeen = true
			}

		case model.KindHRVSample:
			if m.HRVms != nil {
				hrvSum += *m.HRVms
				hrvN++
			}

		case model.KindRestingHeartRate:
			if m.RestingHR != nil {
				rhrSum += *m.RestingHR
				rhrN++
			}

		case model.KindWeightLog:
			if m.WeightKg != nil {
				weight = m.WeightKg
			}
			if m.BodyFatPct != nil {
				bodyFat = m.BodyFatPct
			}

		case model.KindNutritionSummary:
			n := &model.NutritionFacts{
				Calories: m.Calories,
				ProteinG: m.ProteinG,
				CarbsG:   m.CarbsG,
				FatG:     m.FatG,
				WaterMl:  m.WaterMl,
			}
			nutrition = n
		}
	}

	if sleepSeen || sleepEfficiency != nil {
		facts.Sleep = &model.SleepFacts{Efficiency: sleepEfficiency}
		if sleepSeen {
			facts.Sleep.DurationMin = &sleepTotal
		}
	}

	if stepsMax != nil || activeMax != nil || workoutSeen || loadSeen {
		act := &model.ActivityFacts{Steps: stepsMax}
		if activeMax != nil || workoutSeen {
			total := workoutMinutes
			if activeMax != nil {
				total += *activeMax
			}
			act.ActiveMinutes = &total
		}
		if loadSeen {
			act.TrainingLoad = &loadTotal
		}
		facts.Activity = act
	}

	if hrvN > 0 || rhrN > 0 {
		rec := &model.RecoveryFacts{}
		if hrvN > 0 {
			mean := hrvSum / float64(hrvN)
			rec.HRVms = &mean
		}
		if rhrN > 0 {
			mean := rhrSum / float64(rhrN)
			rec.RestingHR = &mean
		}
		facts.Recovery = rec
	}

	if nutrition != nil {
		facts.Nutrition = nutrition
	}

	if weight != nil || bodyFat != nil {
		facts.Body = &model.BodyFacts{WeightKg: weight, BodyFatPct: bodyFat}
	}

	// Fact-only overrides bypass canonical events and win over them.
	if factOnly != nil && (factOnly.WeightKg != nil || factOnly.BodyFatPct != nil) {
		facts.Body = &model.BodyFacts{WeightKg: factOnly.WeightKg, BodyFatPct: factOnly.BodyFatPct}
	}

	return facts
}

func maxOf(cur *float64, v float64) *float64 {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}
