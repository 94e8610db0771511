// Package normalize maps validated RawEvents to CanonicalEvents.
//
// The mapping is a pure, exhaustive match on event kind. It either returns a
// canonical event or a typed *Error carrying one of the contract codes
// (UNSUPPORTED_PROVIDER, UNSUPPORTED_KIND, MALFORMED_PAYLOAD). The canonical
// day is always derived here from observation time plus the event's timezone;
// a client-supplied day is never trusted.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridianhealth/meridian/internal/model"
)

// Code is a typed normalization failure code.
type Code string

const (
	CodeUnsupportedProvider Code = "UNSUPPORTED_PROVIDER"
	CodeUnsupportedKind     Code = "UNSUPPORTED_KIND"
	CodeMalformedPayload    Code = "MALFORMED_PAYLOAD"
)

// Error is a typed normalization failure.
type Error struct {
	Code     Code
	Provider string
	Kind     model.EventKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: %s (provider=%s kind=%s): %v", e.Code, e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("normalize: %s (provider=%s kind=%s)", e.Code, e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// supportedProviders is the closed set of upstream providers the contract
// accepts. Anything else is UNSUPPORTED_PROVIDER.
var supportedProviders = map[string]bool{
	"apple_health": true,
	"fitbit":       true,
	"garmin":       true,
	"manual":       true,
	"oura":         true,
	"whoop":        true,
}

// Event normalizes a validated raw event into a canonical event.
// The canonical id is derived from the raw event id, so replaying the same
// raw event always yields an identical canonical event.
func Event(raw model.RawEvent) (model.CanonicalEvent, error) {
	if !supportedProviders[raw.Provider] {
		return model.CanonicalEvent{}, &Error{Code: CodeUnsupportedProvider, Provider: raw.Provider, Kind: raw.Kind}
	}

	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return model.CanonicalEvent{}, &Error{Code: CodeMalformedPayload, Provider: raw.Provider, Kind: raw.Kind, Err: fmt.Errorf("invalid timezone %q: %w", raw.Timezone, err)}
	}

	metrics, err := metricsFor(raw)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	return model.CanonicalEvent{
		ID:         "ce_" + raw.ID.String(),
		UserID:     raw.UserID,
		RawEventID: raw.ID,
		Provider:   raw.Provider,
		Kind:       raw.Kind,
		Day:        raw.ObservedAt.In(loc).Format(model.DayFormat),
		ObservedAt: raw.ObservedAt,
		Metrics:    metrics,
	}, nil
}

// metricsFor decodes the kind-tagged payload into canonical metrics.
// The switch is exhaustive over model.EventKind; unknown kinds fall through
// to UNSUPPORTED_KIND.
func metricsFor(raw model.RawEvent) (model.CanonicalMetrics, error) {
	malformed := func(err error) error {
		return &Error{Code: CodeMalformedPayload, Provider: raw.Provider, Kind: raw.Kind, Err: err}
	}

	var m model.CanonicalMetrics
	switch raw.Kind {
	case model.KindSleepSession:
		var p model.SleepSessionPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.DurationMin < 0 {
			return m, malformed(fmt.Errorf("negative duration_min %v", p.DurationMin))
		}
		m.SleepDurationMin = &p.DurationMin
		m.SleepEfficiency = p.Efficiency

	case model.KindActivitySummary:
		var p model.ActivitySummaryPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.Steps < 0 {
			return m, malformed(fmt.Errorf("negative steps %v", p.Steps))
		}
		m.Steps = &p.Steps
		m.ActiveMinutes = p.ActiveMinutes
		m.TrainingLoad = p.TrainingLoad

	case model.KindWorkout:
		var p model.WorkoutPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.DurationMin < 0 {
			return m, malformed(fmt.Errorf("negative duration_min %v", p.DurationMin))
		}
		m.ActiveMinutes = &p.DurationMin
		m.TrainingLoad = p.TrainingLoad

	case model.KindHRVSample:
		var p model.HRVSamplePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.RMSSDMs <= 0 {
			return m, malformed(fmt.Errorf("non-positive rmssd_ms %v", p.RMSSDMs))
		}
		m.HRVms = &p.RMSSDMs

	case model.KindRestingHeartRate:
		var p model.RestingHeartRatePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.BPM <= 0 {
			return m, malformed(fmt.Errorf("non-positive bpm %v", p.BPM))
		}
		m.RestingHR = &p.BPM

	case model.KindWeightLog:
		var p model.WeightLogPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.WeightKg <= 0 {
			return m, malformed(fmt.Errorf("non-positive weight_kg %v", p.WeightKg))
		}
		m.WeightKg = &p.WeightKg
		m.BodyFatPct = p.BodyFatPct

	case model.KindNutritionSummary:
		var p model.NutritionSummaryPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return m, malformed(err)
		}
		if p.Calories < 0 {
			return m, malformed(fmt.Errorf("negative calories %v", p.Calories))
		}
		m.Calories = &p.Calories
		m.ProteinG = p.ProteinG
		m.CarbsG = p.CarbsG
		m.FatG = p.FatG
		m.WaterMl = p.WaterMl

	case model.KindFileRef:
		// File uploads never normalize into metrics; they flow through the
		// dedupe index and fact-only paths instead.
		return m, &Error{Code: CodeUnsupportedKind, Provider: raw.Provider, Kind: raw.Kind}

	default:
		return m, &Error{Code: CodeUnsupportedKind, Provider: raw.Provider, Kind: raw.Kind}
	}

	return m, nil
}
