// Package enrich adds rolling averages, HRV baselines, and per-domain
// confidence to a day's base DailyFacts using up to six prior days.
//
// Enrich is pure and deterministic. Missing history leaves fields nil:
// nothing is ever defaulted to zero or fabricated.
package enrich

import (
	"github.com/meridianhealth/meridian/internal/model"
)

// windowDays is the trailing coverage window (today plus six prior days).
const windowDays = 7

// Enrich returns a copy of today's facts with rolling averages, the HRV
// baseline/deviation, and per-domain confidence filled in.
//
// Rolling averages (steps, training load) are the unpadded mean of the
// values present in the window, today included. The HRV baseline is the
// mean of history only — today is excluded so deviation measures today
// against the past. Confidence per domain is the fraction of window days
// (today included) with any field present for that domain, clamped [0,1].
func Enrich(today model.DailyFacts, history []model.DailyFacts) model.DailyFacts {
	// Bound history to the six most recent prior days by date key.
	prior := history
	if len(prior) > windowDays-1 {
		prior = prior[:windowDays-1]
	}

	// Copy the buckets so the caller's facts are never mutated.
	if today.Sleep != nil {
		s := *today.Sleep
		today.Sleep = &s
	}
	if today.Activity != nil {
		a := *today.Activity
		today.Activity = &a
	}
	if today.Recovery != nil {
		r := *today.Recovery
		today.Recovery = &r
	}
	if today.Nutrition != nil {
		n := *today.Nutrition
		today.Nutrition = &n
	}
	if today.Body != nil {
		b := *today.Body
		today.Body = &b
	}

	if today.Activity != nil {
		var steps, load []float64
		if today.Activity.Steps != nil {
			steps = append(steps, *today.Activity.Steps)
		}
		if today.Activity.TrainingLoad != nil {
			load = append(load, *today.Activity.TrainingLoad)
		}
		for i := range prior {
			if a := prior[i].Activity; a != nil {
				if a.Steps != nil {
					steps = append(steps, *a.Steps)
				}
				if a.TrainingLoad != nil {
					load = append(load, *a.TrainingLoad)
				}
			}
		}
		today.Activity.RollingSteps7d = meanOf(steps)
		today.Activity.RollingTrainingLoad7d = meanOf(load)
	}

	if today.Recovery != nil {
		var hist []float64
		for i := range prior {
			if r := prior[i].Recovery; r != nil && r.HRVms != nil {
				hist = append(hist, *r.HRVms)
			}
		}
		baseline := meanOf(hist)
		today.Recovery.HRVBaseline = baseline
		if baseline != nil && *baseline > 0 && today.Recovery.HRVms != nil {
			dev := (*today.Recovery.HRVms - *baseline) / *baseline
			today.Recovery.HRVDeviation = &dev
		}
	}

	for _, d := range model.Domains {
		c := confidence(d, today, prior)
		switch d {
		case model.DomainSleep:
			if today.Sleep != nil {
				today.Sleep.Confidence = c
			}
		case model.DomainActivity:
			if today.Activity != nil {
				today.Activity.Confidence = c
			}
		case model.DomainRecovery:
			if today.Recovery != nil {
				today.Recovery.Confidence = c
			}
		case model.DomainNutrition:
			if today.Nutrition != nil {
				today.Nutrition.Confidence = c
			}
		case model.DomainBody:
			if today.Body != nil {
				today.Body.Confidence = c
			}
		}
	}

	return today
}

// confidence is the covered-day fraction for a domain over the window.
func confidence(d model.Domain, today model.DailyFacts, prior []model.DailyFacts) float64 {
	covered := 0
	if today.HasDomain(d) {
		covered++
	}
	for i := range prior {
		if prior[i].HasDomain(d) {
			covered++
		}
	}
	c := float64(covered) / windowDays
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

// meanOf returns the mean of vs, or nil for empty input. Never pads.
func meanOf(vs []float64) *float64 {
	if len(vs) == 0 {
		return nil
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	m := sum / float64(len(vs))
	return &m
}
