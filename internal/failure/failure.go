// Package failure derives deterministic ids for immutable failure evidence.
//
// The id is a content hash of the failure's identity tuple, so the same
// failure retried yields the same id (and the store treats it as a no-op).
// When the same id arrives with different content, the store forks a second
// record at "<id>_<suffix>" instead of overwriting: evidence is never lost.
// The transactional create/no-op/fork decision itself lives in the stores;
// everything here is pure.
package failure

import (
	"time"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/model"
)

// Pipeline stages recorded on failures.
const (
	StageIngest    = "ingest"
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
	StageEnrich    = "enrich"
	StageInsights  = "insights"
	StageContext   = "context"
	StageScore     = "score"
	StageSignals   = "signals"
	StageLedger    = "ledger"
)

// Input is the identity tuple plus free-form detail for a failure.
// Detail is stored but not part of the identity hash.
type Input struct {
	UserID           string
	Source           string
	Stage            string
	ReasonCode       string
	Day              string
	RawEventID       *string
	CanonicalEventID *string
	RequestID        *string
	Detail           string
}

// ID returns the deterministic failure id: the first 32 hex characters of
// the canonical digest of the identity tuple. Optional ids hash as explicit
// nulls so absence is part of the identity.
func ID(in Input) (string, error) {
	return canonjson.ShortDigest(identityTuple(in))
}

// ForkSuffix derives the suffix for a conflict fork from the attempted
// record (its CreatedAt is the attempt time) and the existing record's
// creation time. Two different conflicting attempts fork to different keys.
func ForkSuffix(rec model.FailureRecord, existingCreatedAt time.Time) (string, error) {
	d, err := canonjson.Digest(map[string]any{
		"record":              rec,
		"existing_created_at": existingCreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return d[:8], nil
}

// Record builds the immutable FailureRecord for an input.
func Record(in Input, createdAt time.Time) (model.FailureRecord, error) {
	id, err := ID(in)
	if err != nil {
		return model.FailureRecord{}, err
	}
	return model.FailureRecord{
		ID:               id,
		SchemaVersion:    model.SchemaVersion,
		UserID:           in.UserID,
		Source:           in.Source,
		Stage:            in.Stage,
		ReasonCode:       in.ReasonCode,
		Day:              in.Day,
		RawEventID:       in.RawEventID,
		CanonicalEventID: in.CanonicalEventID,
		RequestID:        in.RequestID,
		Detail:           in.Detail,
		CreatedAt:        createdAt,
	}, nil
}

func identityTuple(in Input) map[string]any {
	return map[string]any{
		"user_id":            in.UserID,
		"source":             in.Source,
		"stage":              in.Stage,
		"reason_code":        in.ReasonCode,
		"day":                in.Day,
		"raw_event_id":       orNull(in.RawEventID),
		"canonical_event_id": orNull(in.CanonicalEventID),
		"request_id":         orNull(in.RequestID),
	}
}

func orNull(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
