package score

import (
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

// Signal thresholds (sig-v2). The boundary is inclusive-stable: a score
// exactly at a threshold is stable.
const (
	// BaselineWindowDays is the HealthScore history window for baselines.
	BaselineWindowDays = 14

	domainAttentionLt       = 60.0
	compositeAttentionLt    = 65.0
	deviationAttentionPctLt = -0.15
)

// ReasonMissingHealthScore is emitted when the day has no HealthScore.
const ReasonMissingHealthScore = "missing_health_score"

// ComputeSignals derives the HealthSignalDoc for a day from that day's
// HealthScore plus up to 14 days of HealthScore history.
//
// Fail-closed: a nil scoreForDay yields status attention_required with
// readiness "missing", reason "missing_health_score", and zeroed evidence —
// absence of the input is itself a signal, not an exception.
func ComputeSignals(userID, date string, scoreForDay *model.HealthScoreDoc, history []model.HealthScoreDoc, computedAt time.Time) model.HealthSignalDoc {
	doc := model.HealthSignalDoc{
		SchemaVersion:      model.SchemaVersion,
		UserID:             userID,
		Date:               date,
		ModelVersion:       model.SignalModelVersion,
		Reasons:            []string{},
		MissingInputs:      []string{},
		BaselineWindowDays: BaselineWindowDays,
		DomainEvidence:     zeroedEvidence(),
		ComputedAt:         computedAt,
	}

	if scoreForDay == nil {
		doc.Status = model.SignalAttentionRequired
		doc.Readiness = model.ReadinessMissing
		doc.Reasons = append(doc.Reasons, ReasonMissingHealthScore)
		doc.MissingInputs = append(doc.MissingInputs, "health_score")
		return doc
	}

	if len(history) > BaselineWindowDays {
		history = history[:BaselineWindowDays]
	}

	doc.Readiness = model.ReadinessReady

	for _, d := range model.ScoredDomains {
		ds := scoreForDay.Domain(d)
		if ds == nil {
			doc.MissingInputs = append(doc.MissingInputs, "domain_"+string(d)+"_score")
			continue
		}

		mean := domainBaselineMean(d, history)
		ev := model.SignalEvidence{Score: ds.Score, BaselineMean: mean}
		if mean > 0 {
			dev := (ds.Score - mean) / mean
			ev.DeviationPct = &dev
		}
		doc.DomainEvidence[string(d)] = ev

		if ds.Score < domainAttentionLt {
			doc.Reasons = append(doc.Reasons, "domain_"+string(d)+"_below_threshold")
		}
		if ev.DeviationPct != nil && *ev.DeviationPct < deviationAttentionPctLt {
			doc.Reasons = append(doc.Reasons, "domain_"+string(d)+"_deviation_below_threshold")
		}
	}

	compositeMean := compositeBaselineMean(history)
	doc.Composite = model.SignalEvidence{Score: scoreForDay.Composite, BaselineMean: compositeMean}
	if compositeMean > 0 {
		dev := (scoreForDay.Composite - compositeMean) / compositeMean
		doc.Composite.DeviationPct = &dev
	}
	if scoreForDay.Composite < compositeAttentionLt {
		doc.Reasons = append(doc.Reasons, "composite_below_threshold")
	}
	if doc.Composite.DeviationPct != nil && *doc.Composite.DeviationPct < deviationAttentionPctLt {
		doc.Reasons = append(doc.Reasons, "composite_deviation_below_threshold")
	}

	if len(doc.Reasons) > 0 {
		doc.Status = model.SignalAttentionRequired
	} else {
		doc.Status = model.SignalStable
	}
	return doc
}

func zeroedEvidence() map[string]model.SignalEvidence {
	ev := make(map[string]model.SignalEvidence, len(model.ScoredDomains))
	for _, d := range model.ScoredDomains {
		ev[string(d)] = model.SignalEvidence{}
	}
	return ev
}

// domainBaselineMean is the mean of the domain's scores across history days
// where the domain is present, or 0 when none are.
func domainBaselineMean(d model.Domain, history []model.HealthScoreDoc) float64 {
	var sum float64
	n := 0
	for i := range history {
		if ds := history[i].Domain(d); ds != nil {
			sum += ds.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func compositeBaselineMean(history []model.HealthScoreDoc) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for i := range history {
		sum += history[i].Composite
	}
	return sum / float64(len(history))
}
