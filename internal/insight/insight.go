// Package insight evaluates deterministic, confidence-gated rules over
// enriched DailyFacts and emits Insights with evidence.
//
// Rules are independent: several may fire for the same day. A rule is
// skipped — never fired with fabricated data — when the domain's confidence
// is below the gate threshold or the underlying fact is absent. Insight ids
// are "<date>_<kind>", so recompute overwrites instead of duplicating.
package insight

import (
	"fmt"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

// DefaultConfidenceThreshold gates rule evaluation unless overridden.
const DefaultConfidenceThreshold = 0.5

// Rule thresholds. Bump model.RuleVersion whenever one of these, or any
// rule's semantics, changes.
const (
	lowSleepDurationMin  = 420
	lowStepsCount        = 8000
	highTrainingLoadOver = 150
	lowHRVMs             = 50
)

// FactContext is a read-only view over enriched facts exposing safe getters
// and the confidence gate used by rules.
type FactContext struct {
	facts     model.DailyFacts
	threshold float64
}

// NewContext wraps facts with the given gate threshold.
// A non-positive threshold falls back to the default.
func NewContext(facts model.DailyFacts, threshold float64) *FactContext {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &FactContext{facts: facts, threshold: threshold}
}

// Confident reports whether the domain's coverage meets the gate.
func (c *FactContext) Confident(d model.Domain) bool {
	return c.facts.DomainConfidence(d) >= c.threshold
}

// SleepDurationMin returns the day's sleep duration, or nil.
func (c *FactContext) SleepDurationMin() *float64 {
	if c.facts.Sleep == nil {
		return nil
	}
	return c.facts.Sleep.DurationMin
}

// Steps returns the day's step count, or nil.
func (c *FactContext) Steps() *float64 {
	if c.facts.Activity == nil {
		return nil
	}
	return c.facts.Activity.Steps
}

// TrainingLoad returns the day's training load, or nil.
func (c *FactContext) TrainingLoad() *float64 {
	if c.facts.Activity == nil {
		return nil
	}
	return c.facts.Activity.TrainingLoad
}

// HRVms returns the day's mean HRV, or nil.
func (c *FactContext) HRVms() *float64 {
	if c.facts.Recovery == nil {
		return nil
	}
	return c.facts.Recovery.HRVms
}

// Rule is one deterministic threshold check over the fact context.
type Rule struct {
	Kind      string
	Domain    model.Domain
	Severity  model.Severity
	FactPath  string
	Threshold float64
	Direction model.Direction
	Tags      []string
	Value     func(*FactContext) *float64
	Message   func(value float64) string
}

// Rules is the shipped rule set, in evaluation order.
var Rules = []Rule{
	{
		Kind:      "low_sleep_duration",
		Domain:    model.DomainSleep,
		Severity:  model.SeverityWarning,
		FactPath:  "sleep.duration_min",
		Threshold: lowSleepDurationMin,
		Direction: model.DirectionBelow,
		Tags:      []string{"sleep", "recovery"},
		Value:     (*FactContext).SleepDurationMin,
		Message: func(v float64) string {
			return fmt.Sprintf("Sleep duration %.0f min is below the %d min target.", v, lowSleepDurationMin)
		},
	},
	{
		Kind:      "low_steps",
		Domain:    model.DomainActivity,
		Severity:  model.SeverityInfo,
		FactPath:  "activity.steps",
		Threshold: lowStepsCount,
		Direction: model.DirectionBelow,
		Tags:      []string{"activity"},
		Value:     (*FactContext).Steps,
		Message: func(v float64) string {
			return fmt.Sprintf("Step count %.0f is below the %d step target.", v, lowStepsCount)
		},
	},
	{
		Kind:      "high_training_load",
		Domain:    model.DomainActivity,
		Severity:  model.SeverityWarning,
		FactPath:  "activity.training_load",
		Threshold: highTrainingLoadOver,
		Direction: model.DirectionAbove,
		Tags:      []string{"activity", "load"},
		Value:     (*FactContext).TrainingLoad,
		Message: func(v float64) string {
			return fmt.Sprintf("Training load %.0f exceeds the %d threshold.", v, highTrainingLoadOver)
		},
	},
	{
		Kind:      "low_hrv",
		Domain:    model.DomainRecovery,
		Severity:  model.SeverityWarning,
		FactPath:  "recovery.hrv_ms",
		Threshold: lowHRVMs,
		Direction: model.DirectionBelow,
		Tags:      []string{"recovery", "hrv"},
		Value:     (*FactContext).HRVms,
		Message: func(v float64) string {
			return fmt.Sprintf("HRV %.0f ms is below the %d ms floor.", v, lowHRVMs)
		},
	},
}

// Engine evaluates the shipped rule set with a configurable gate threshold.
type Engine struct {
	threshold float64
}

// NewEngine returns an engine with the given confidence gate.
// Pass 0 for the default threshold.
func NewEngine(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Engine{threshold: threshold}
}

// Evaluate runs every rule against the facts and returns the insights that
// fired. Deterministic for fixed inputs; computedAt is stamped as given.
func (e *Engine) Evaluate(facts model.DailyFacts, computedAt time.Time) []model.Insight {
	ctx := NewContext(facts, e.threshold)

	var out []model.Insight
	for _, rule := range Rules {
		if !ctx.Confident(rule.Domain) {
			continue
		}
		v := rule.Value(ctx)
		if v == nil {
			continue
		}

		violated := false
		switch rule.Direction {
		case model.DirectionBelow:
			violated = *v < rule.Threshold
		case model.DirectionAbove:
			violated = *v > rule.Threshold
		}
		if !violated {
			continue
		}

		out = append(out, model.Insight{
			ID:            model.InsightID(facts.Date, rule.Kind),
			SchemaVersion: model.SchemaVersion,
			UserID:        facts.UserID,
			Date:          facts.Date,
			Kind:          rule.Kind,
			Severity:      rule.Severity,
			Message:       rule.Message(*v),
			Evidence: []model.InsightEvidence{{
				FactPath:  rule.FactPath,
				Value:     *v,
				Threshold: rule.Threshold,
				Direction: rule.Direction,
			}},
			Tags:        rule.Tags,
			RuleVersion: model.RuleVersion,
			ComputedAt:  computedAt,
		})
	}
	return out
}
