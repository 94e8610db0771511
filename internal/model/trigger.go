package model

import "github.com/google/uuid"

// TriggerKind names the recompute trigger variants. Each maps to a distinct
// runId namespace so retries of the same logical trigger collapse to the
// same run.
type TriggerKind string

const (
	TriggerFactOnly TriggerKind = "fact_only"
	TriggerRealtime TriggerKind = "realtime"
	TriggerAdmin    TriggerKind = "admin"
)

// Trigger records the provenance of a recompute invocation.
type Trigger struct {
	Kind       TriggerKind `json:"kind"`
	RawEventID *uuid.UUID  `json:"raw_event_id,omitempty"`
	EventID    *string     `json:"event_id,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// Namespace returns the deterministic runId namespace for the trigger.
func (t Trigger) Namespace() string {
	switch t.Kind {
	case TriggerFactOnly:
		if t.RawEventID != nil {
			return "factOnly:" + t.RawEventID.String()
		}
		return "factOnly:"
	case TriggerRealtime:
		if t.EventID != nil {
			return "realtime:" + *t.EventID
		}
		return "realtime:"
	case TriggerAdmin:
		return "admin:" + t.Source
	}
	return "unknown:"
}

// FactOnlyTrigger builds a fact-only trigger from the originating raw event.
func FactOnlyTrigger(rawEventID uuid.UUID) Trigger {
	return Trigger{Kind: TriggerFactOnly, RawEventID: &rawEventID}
}

// RealtimeTrigger builds a realtime trigger from a canonical event id.
func RealtimeTrigger(eventID string) Trigger {
	return Trigger{Kind: TriggerRealtime, EventID: &eventID}
}

// AdminTrigger builds an administrative trigger with a human-readable source.
func AdminTrigger(source string) Trigger {
	return Trigger{Kind: TriggerAdmin, Source: source}
}
