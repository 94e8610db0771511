// Package memstore is an in-memory implementation of the persistence
// contracts, used by tests and local development. It enforces the same
// semantics as the Postgres store: idempotent upserts for mutable documents
// and create-or-assert-identical for immutable ones.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhealth/meridian/internal/canonjson"
	"github.com/meridianhealth/meridian/internal/failure"
	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/storage"
)

type hashed[T any] struct {
	doc  T
	hash string
}

// Store holds every document family behind one mutex. Good enough for the
// single-process test and dev workloads it serves.
type Store struct {
	mu sync.Mutex

	rawEvents  map[uuid.UUID]model.RawEvent
	canonical  map[string]hashed[model.CanonicalEvent] // by event id
	facts      map[string]model.DailyFacts            // by uid|date
	insights   map[string][]model.Insight             // by uid|date
	contexts   map[string]model.IntelligenceContext   // by uid|date
	scores     map[string]hashed[model.HealthScoreDoc]
	signals    map[string]hashed[model.HealthSignalDoc]
	runs       map[string]hashed[model.DerivedLedgerRun] // by uid|runId
	snapshots  map[string]model.LedgerSnapshot          // by uid|runId|kind
	pointers   map[string]model.DerivedLedgerPointer    // by uid|date
	failures   map[string]hashed[model.FailureRecord]   // by id
	dedupe     map[string]model.DedupeEntry             // by dedupeId
	violations []model.IntegrityViolation
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rawEvents: make(map[uuid.UUID]model.RawEvent),
		canonical: make(map[string]hashed[model.CanonicalEvent]),
		facts:     make(map[string]model.DailyFacts),
		insights:  make(map[string][]model.Insight),
		contexts:  make(map[string]model.IntelligenceContext),
		scores:    make(map[string]hashed[model.HealthScoreDoc]),
		signals:   make(map[string]hashed[model.HealthSignalDoc]),
		runs:      make(map[string]hashed[model.DerivedLedgerRun]),
		snapshots: make(map[string]model.LedgerSnapshot),
		pointers:  make(map[string]model.DerivedLedgerPointer),
		failures:  make(map[string]hashed[model.FailureRecord]),
		dedupe:    make(map[string]model.DedupeEntry),
	}
}

func key(parts ...string) string {
	return fmt.Sprintf("%q", parts)
}

// InsertRawEvent appends a raw event; replaying the same id is a no-op.
func (s *Store) InsertRawEvent(_ context.Context, raw model.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rawEvents[raw.ID]; !ok {
		s.rawEvents[raw.ID] = raw
	}
	return nil
}

// InsertCanonicalEvent applies create-or-assert-identical by event id.
func (s *Store) InsertCanonicalEvent(_ context.Context, ev model.CanonicalEvent) error {
	hash, err := canonjson.StableDigest(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.canonical[ev.ID]; ok {
		if cur.hash != hash {
			return fmt.Errorf("%w: canonical event %s", storage.ErrImmutabilityViolation, ev.ID)
		}
		return nil
	}
	s.canonical[ev.ID] = hashed[model.CanonicalEvent]{doc: ev, hash: hash}
	return nil
}

// CanonicalEventsForDay returns the day's events ordered by observation time.
func (s *Store) CanonicalEventsForDay(_ context.Context, userID, day string) ([]model.CanonicalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.CanonicalEvent
	for _, e := range s.canonical {
		if e.doc.UserID == userID && e.doc.Day == day {
			out = append(out, e.doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CanonicalEventCount reports how many canonical events exist for a user.
func (s *Store) CanonicalEventCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.canonical {
		if e.doc.UserID == userID {
			n++
		}
	}
	return n
}

// PutDailyFacts overwrites the day's facts.
func (s *Store) PutDailyFacts(_ context.Context, facts model.DailyFacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[key(facts.UserID, facts.Date)] = facts
	return nil
}

// GetDailyFacts returns one day's facts.
func (s *Store) GetDailyFacts(_ context.Context, userID, date string) (model.DailyFacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[key(userID, date)]
	if !ok {
		return model.DailyFacts{}, storage.ErrNotFound
	}
	return f, nil
}

// DailyFactsHistory returns up to limit days strictly before beforeDay,
// most recent first.
func (s *Store) DailyFactsHistory(_ context.Context, userID, beforeDay string, limit int) ([]model.DailyFacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.DailyFacts
	for _, f := range s.facts {
		if f.UserID == userID && f.Date < beforeDay {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ReplaceInsights overwrites the day's insight set.
func (s *Store) ReplaceInsights(_ context.Context, userID, date string, insights []model.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights[key(userID, date)] = append([]model.Insight(nil), insights...)
	return nil
}

// InsightsForDay returns the day's insights ordered by id.
func (s *Store) InsightsForDay(_ context.Context, userID, date string) ([]model.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]model.Insight(nil), s.insights[key(userID, date)]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutIntelligenceContext overwrites the day's context.
func (s *Store) PutIntelligenceContext(_ context.Context, ictx model.IntelligenceContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[key(ictx.UserID, ictx.Date)] = ictx
	return nil
}

// GetIntelligenceContext returns one day's context.
func (s *Store) GetIntelligenceContext(_ context.Context, userID, date string) (model.IntelligenceContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[key(userID, date)]
	if !ok {
		return model.IntelligenceContext{}, storage.ErrNotFound
	}
	return c, nil
}

// PutHealthScore applies the immutable-writer contract to the day's score.
func (s *Store) PutHealthScore(_ context.Context, doc model.HealthScoreDoc) error {
	hash, err := canonjson.StableDigest(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doc.UserID, doc.Date)
	if cur, ok := s.scores[k]; ok {
		if cur.hash != hash {
			return fmt.Errorf("%w: health score %s/%s", storage.ErrImmutabilityViolation, doc.UserID, doc.Date)
		}
		return nil
	}
	s.scores[k] = hashed[model.HealthScoreDoc]{doc: doc, hash: hash}
	return nil
}

// GetHealthScore returns one day's score.
func (s *Store) GetHealthScore(_ context.Context, userID, date string) (model.HealthScoreDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.scores[key(userID, date)]
	if !ok {
		return model.HealthScoreDoc{}, storage.ErrNotFound
	}
	return cur.doc, nil
}

// HealthScoreHistory returns up to limit scores strictly before beforeDay,
// most recent first.
func (s *Store) HealthScoreHistory(_ context.Context, userID, beforeDay string, limit int) ([]model.HealthScoreDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.HealthScoreDoc
	for _, e := range s.scores {
		if e.doc.UserID == userID && e.doc.Date < beforeDay {
			out = append(out, e.doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutHealthSignals applies the immutable-writer contract to the day's signals.
func (s *Store) PutHealthSignals(_ context.Context, doc model.HealthSignalDoc) error {
	hash, err := canonjson.StableDigest(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doc.UserID, doc.Date)
	if cur, ok := s.signals[k]; ok {
		if cur.hash != hash {
			return fmt.Errorf("%w: health signals %s/%s", storage.ErrImmutabilityViolation, doc.UserID, doc.Date)
		}
		return nil
	}
	s.signals[k] = hashed[model.HealthSignalDoc]{doc: doc, hash: hash}
	return nil
}

// GetHealthSignals returns one day's signals.
func (s *Store) GetHealthSignals(_ context.Context, userID, date string) (model.HealthSignalDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.signals[key(userID, date)]
	if !ok {
		return model.HealthSignalDoc{}, storage.ErrNotFound
	}
	return cur.doc, nil
}

// PutLedgerRun persists the run and its snapshots atomically under the
// immutable-writer contract: a conflicting row fails the whole write
// without mutating anything.
func (s *Store) PutLedgerRun(_ context.Context, run model.DerivedLedgerRun, snapshots []model.LedgerSnapshot) error {
	runHash, err := canonjson.StableDigest(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runKey := key(run.UserID, run.RunID)
	if cur, ok := s.runs[runKey]; ok && cur.hash != runHash {
		return fmt.Errorf("%w: ledger run %s", storage.ErrImmutabilityViolation, run.RunID)
	}
	for _, snap := range snapshots {
		k := key(snap.UserID, snap.RunID, string(snap.Kind))
		if cur, ok := s.snapshots[k]; ok && cur.ContentHash != snap.ContentHash {
			return fmt.Errorf("%w: ledger snapshot %s/%s", storage.ErrImmutabilityViolation, snap.RunID, snap.Kind)
		}
	}

	if _, ok := s.runs[runKey]; !ok {
		s.runs[runKey] = hashed[model.DerivedLedgerRun]{doc: run, hash: runHash}
	}
	for _, snap := range snapshots {
		k := key(snap.UserID, snap.RunID, string(snap.Kind))
		if _, ok := s.snapshots[k]; !ok {
			s.snapshots[k] = snap
		}
	}
	return nil
}

// PutLedgerPointer unconditionally overwrites the day's cursor.
func (s *Store) PutLedgerPointer(_ context.Context, ptr model.DerivedLedgerPointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointers[key(ptr.UserID, ptr.Date)] = ptr
	return nil
}

// GetLedgerPointer returns the day's latest-run cursor.
func (s *Store) GetLedgerPointer(_ context.Context, userID, date string) (model.DerivedLedgerPointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ptr, ok := s.pointers[key(userID, date)]
	if !ok {
		return model.DerivedLedgerPointer{}, storage.ErrNotFound
	}
	return ptr, nil
}

// GetLedgerRun returns one run record by id.
func (s *Store) GetLedgerRun(_ context.Context, userID, runID string) (model.DerivedLedgerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.runs[key(userID, runID)]
	if !ok {
		return model.DerivedLedgerRun{}, storage.ErrNotFound
	}
	return cur.doc, nil
}

// ListLedgerRuns returns every run for a day, most recent first.
func (s *Store) ListLedgerRuns(_ context.Context, userID, date string) ([]model.DerivedLedgerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.DerivedLedgerRun
	for _, e := range s.runs {
		if e.doc.UserID == userID && e.doc.Date == date {
			out = append(out, e.doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

// SnapshotsForRun returns the run's snapshots ordered by kind.
func (s *Store) SnapshotsForRun(_ context.Context, userID, runID string) ([]model.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.LedgerSnapshot
	for _, snap := range s.snapshots {
		if snap.UserID == userID && snap.RunID == runID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// RecordFailure applies the create/no-op/fork contract for failure evidence
// and returns the id the record ended up under.
func (s *Store) RecordFailure(_ context.Context, rec model.FailureRecord) (string, error) {
	hash, err := canonjson.StableDigest(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.failures[rec.ID]
	if !ok {
		s.failures[rec.ID] = hashed[model.FailureRecord]{doc: rec, hash: hash}
		return rec.ID, nil
	}
	if cur.hash == hash {
		return rec.ID, nil
	}

	suffix, err := failure.ForkSuffix(rec, cur.doc.CreatedAt)
	if err != nil {
		return "", err
	}
	fork := rec
	fork.ID = rec.ID + "_" + suffix
	if _, ok := s.failures[fork.ID]; !ok {
		s.failures[fork.ID] = hashed[model.FailureRecord]{doc: fork, hash: hash}
	}
	return fork.ID, nil
}

// FailuresForUser returns the user's failure records, most recent first.
func (s *Store) FailuresForUser(_ context.Context, userID string, limit int) ([]model.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.FailureRecord
	for _, e := range s.failures {
		if e.doc.UserID == userID {
			out = append(out, e.doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordDedupeEntry runs the content-addressed dedupe transaction.
func (s *Store) RecordDedupeEntry(_ context.Context, entry model.DedupeEntry, raw model.RawEvent) (model.DedupeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dedupe[entry.DedupeID]; ok {
		violation := model.IntegrityViolation{
			ID:                  uuid.New(),
			UserID:              entry.UserID,
			DedupeID:            entry.DedupeID,
			FirstRawEventID:     existing.FirstRawEventID,
			DuplicateRawEventID: raw.ID,
			DetectedAt:          time.Now().UTC(),
		}
		s.violations = append(s.violations, violation)
		return model.DedupeResult{
			Mode:                   model.DedupeDuplicate,
			DedupeID:               entry.DedupeID,
			FirstRawEventID:        existing.FirstRawEventID,
			IntegrityViolationPath: fmt.Sprintf("users/%s/integrityViolations/%s", entry.UserID, violation.ID),
		}, nil
	}

	entry.CreatedAt = time.Now().UTC()
	s.dedupe[entry.DedupeID] = entry
	return model.DedupeResult{
		Mode:            model.DedupeFirstSeen,
		DedupeID:        entry.DedupeID,
		FirstRawEventID: entry.FirstRawEventID,
	}, nil
}

// IntegrityViolations returns the recorded violations in detection order.
func (s *Store) IntegrityViolations() []model.IntegrityViolation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.IntegrityViolation(nil), s.violations...)
}
