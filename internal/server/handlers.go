package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhealth/meridian/internal/dedupe"
	"github.com/meridianhealth/meridian/internal/derive"
	"github.com/meridianhealth/meridian/internal/failure"
	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/normalize"
	"github.com/meridianhealth/meridian/internal/storage"
)

// Error codes returned in the JSON error envelope.
const (
	errCodeInvalidRequest        = "invalid_request"
	errCodeNotFound              = "not_found"
	errCodeImmutabilityViolation = "immutability_violation"
	errCodeInternal              = "internal"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store     Store
	index     *dedupe.Index
	engine    *derive.Engine
	logger    *slog.Logger
	version   string
	startedAt time.Time
	maxBody   int64
	now       func() time.Time
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store   Store
	Engine  *derive.Engine
	Logger  *slog.Logger
	Version string
	MaxBody int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		store:     d.Store,
		index:     dedupe.NewIndex(d.Store, d.Logger),
		engine:    d.Engine,
		logger:    d.Logger,
		version:   d.Version,
		startedAt: time.Now(),
		maxBody:   maxBody,
		now:       time.Now,
	}
}

// IngestRequest is the wire shape of POST /v1/ingest. The body of a raw
// health event as produced by the validated-event contract; the canonical
// day is always derived server-side from observed_at plus timezone.
type IngestRequest struct {
	UserID       string                 `json:"user_id"`
	Provider     string                 `json:"provider"`
	SourceType   string                 `json:"source_type"`
	SourceID     string                 `json:"source_id"`
	Kind         model.EventKind        `json:"kind"`
	Payload      json.RawMessage        `json:"payload"`
	ObservedAt   time.Time              `json:"observed_at"`
	Timezone     string                 `json:"timezone"`
	Provenance   string                 `json:"provenance,omitempty"`
	Uncertainty  model.UncertaintyState `json:"uncertainty,omitempty"`
	CorrectionOf *uuid.UUID             `json:"correction_of,omitempty"`

	// FactOnly routes the event through the fact-only path: the payload
	// supplies body facts directly and no canonical event is created.
	FactOnly bool `json:"fact_only,omitempty"`
}

// IngestResponse reports what ingestion did with the event.
type IngestResponse struct {
	RawEventID       uuid.UUID          `json:"raw_event_id"`
	Dedupe           model.DedupeResult `json:"dedupe"`
	CanonicalEventID string             `json:"canonical_event_id,omitempty"`
	Day              string             `json:"day,omitempty"`
	RunID            string             `json:"run_id,omitempty"`
	NormalizeCode    string             `json:"normalize_code,omitempty"`
}

// HandleIngest handles POST /v1/ingest: dedupe index, raw event append,
// normalization (or the fact-only bypass), and a realtime recompute of the
// event's day. A detected duplicate is evidence, not a rejection.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
		return
	}

	raw := model.RawEvent{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Provider:     req.Provider,
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		Kind:         req.Kind,
		Payload:      req.Payload,
		ObservedAt:   req.ObservedAt,
		ReceivedAt:   h.now().UTC(),
		Timezone:     req.Timezone,
		Provenance:   req.Provenance,
		Uncertainty:  req.Uncertainty,
		CorrectionOf: req.CorrectionOf,
	}
	if raw.Timezone == "" {
		raw.Timezone = "UTC"
	}
	if raw.Uncertainty == "" {
		raw.Uncertainty = model.UncertaintyConfirmed
	}
	if reqID := RequestIDFromContext(r.Context()); reqID != "" {
		raw.RequestID = &reqID
	}

	// Contract check + dedupe index first; invalid input never reaches
	// storage.
	dedupeRes, err := h.index.Record(r.Context(), raw)
	if err != nil {
		if errors.Is(err, dedupe.ErrInvalidEvent) {
			writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
			return
		}
		h.internalError(w, r, "record dedupe entry", err)
		return
	}

	if err := h.store.InsertRawEvent(r.Context(), raw); err != nil {
		h.internalError(w, r, "insert raw event", err)
		return
	}

	resp := IngestResponse{RawEventID: raw.ID, Dedupe: dedupeRes}

	if req.FactOnly {
		h.ingestFactOnly(w, r, raw, resp)
		return
	}

	canonical, err := normalize.Event(raw)
	if err != nil {
		var nerr *normalize.Error
		if errors.As(err, &nerr) {
			h.recordIngestFailure(r, raw, failure.StageNormalize, string(nerr.Code), err)
			resp.NormalizeCode = string(nerr.Code)
			writeJSON(w, http.StatusAccepted, resp)
			return
		}
		h.internalError(w, r, "normalize event", err)
		return
	}

	canonical.CreatedAt = h.now().UTC()
	if err := h.store.InsertCanonicalEvent(r.Context(), canonical); err != nil {
		h.writeStoreError(w, r, "insert canonical event", err)
		return
	}

	run, err := h.engine.RecomputeDay(r.Context(), raw.UserID, canonical.Day, nil, model.RealtimeTrigger(canonical.ID))
	if err != nil {
		h.writeStoreError(w, r, "recompute day", err)
		return
	}

	resp.CanonicalEventID = canonical.ID
	resp.Day = canonical.Day
	resp.RunID = run.RunID
	writeJSON(w, http.StatusAccepted, resp)
}

// ingestFactOnly recomputes the day with the body facts taken straight from
// the payload. No canonical event is created on this path.
func (h *Handlers) ingestFactOnly(w http.ResponseWriter, r *http.Request, raw model.RawEvent, resp IngestResponse) {
	if raw.Kind != model.KindWeightLog {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest,
			fmt.Sprintf("fact-only ingestion supports kind %q, got %q", model.KindWeightLog, raw.Kind))
		return
	}

	var p model.WeightLogPayload
	if err := json.Unmarshal(raw.Payload, &p); err != nil || p.WeightKg <= 0 {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, "fact-only payload must carry a positive weight_kg")
		return
	}

	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, fmt.Sprintf("invalid timezone %q", raw.Timezone))
		return
	}
	day := raw.ObservedAt.In(loc).Format(model.DayFormat)

	body := &model.FactOnlyBody{WeightKg: &p.WeightKg, BodyFatPct: p.BodyFatPct}
	run, err := h.engine.RecomputeDay(r.Context(), raw.UserID, day, body, model.FactOnlyTrigger(raw.ID))
	if err != nil {
		h.writeStoreError(w, r, "fact-only recompute", err)
		return
	}

	resp.Day = day
	resp.RunID = run.RunID
	writeJSON(w, http.StatusAccepted, resp)
}

// RecomputeRequest is the wire shape of POST /v1/recompute.
type RecomputeRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Source string `json:"source,omitempty"`
}

// HandleRecompute handles POST /v1/recompute with an admin trigger.
func (h *Handlers) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
		return
	}
	if req.UserID == "" || req.Date == "" {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, "user_id and date are required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	run, err := h.engine.RecomputeDay(r.Context(), req.UserID, req.Date, nil, model.AdminTrigger(req.Source))
	if err != nil {
		h.writeStoreError(w, r, "recompute day", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleGetDailyFacts handles GET /v1/users/{user_id}/daily-facts/{date}.
func (h *Handlers) HandleGetDailyFacts(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetDailyFacts(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "get daily facts", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleGetInsights handles GET /v1/users/{user_id}/insights/{date}.
func (h *Handlers) HandleGetInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.store.InsightsForDay(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "get insights", err)
		return
	}
	if insights == nil {
		insights = []model.Insight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// HandleGetIntelligence handles GET /v1/users/{user_id}/intelligence/{date}.
func (h *Handlers) HandleGetIntelligence(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetIntelligenceContext(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "get intelligence context", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleGetHealthScore handles GET /v1/users/{user_id}/health-score/{date}.
func (h *Handlers) HandleGetHealthScore(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetHealthScore(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "get health score", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleGetHealthSignals handles GET /v1/users/{user_id}/health-signals/{date}.
func (h *Handlers) HandleGetHealthSignals(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetHealthSignals(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "get health signals", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleGetLedgerPointer handles GET /v1/users/{user_id}/ledger/{date}.
func (h *Handlers) HandleGetLedgerPointer(w http.ResponseWriter, r *http.Request) {
	ptr, err := h.store.GetLedgerPointer(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "get ledger pointer", err)
		return
	}
	writeJSON(w, http.StatusOK, ptr)
}

// HandleListLedgerRuns handles GET /v1/users/{user_id}/ledger/{date}/runs.
func (h *Handlers) HandleListLedgerRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListLedgerRuns(r.Context(), r.PathValue("user_id"), r.PathValue("date"))
	if err != nil {
		h.writeStoreError(w, r, "list ledger runs", err)
		return
	}
	if runs == nil {
		runs = []model.DerivedLedgerRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// HandleGetLedgerRun handles GET /v1/users/{user_id}/ledger/runs/{run_id},
// returning the run record together with its content-hashed snapshots.
func (h *Handlers) HandleGetLedgerRun(w http.ResponseWriter, r *http.Request) {
	userID, runID := r.PathValue("user_id"), r.PathValue("run_id")

	run, err := h.store.GetLedgerRun(r.Context(), userID, runID)
	if err != nil {
		h.writeStoreError(w, r, "get ledger run", err)
		return
	}
	snapshots, err := h.store.SnapshotsForRun(r.Context(), userID, runID)
	if err != nil {
		h.writeStoreError(w, r, "get ledger snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []model.LedgerSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "snapshots": snapshots})
}

// HandleListFailures handles GET /v1/users/{user_id}/failures.
func (h *Handlers) HandleListFailures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := h.store.FailuresForUser(r.Context(), r.PathValue("user_id"), limit)
	if err != nil {
		h.writeStoreError(w, r, "list failures", err)
		return
	}
	if recs == nil {
		recs = []model.FailureRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": recs})
}

// HandleHealthz handles GET /healthz.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    h.version,
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
	})
}

// recordIngestFailure leaves durable failure evidence for an ingest-path
// error. Best-effort: a failing failure write is logged, never surfaced.
func (h *Handlers) recordIngestFailure(r *http.Request, raw model.RawEvent, stage, reason string, cause error) {
	rawID := raw.ID.String()
	in := failure.Input{
		UserID:     raw.UserID,
		Source:     "ingest:" + raw.Provider,
		Stage:      stage,
		ReasonCode: reason,
		Day:        raw.ObservedAt.UTC().Format(model.DayFormat),
		RawEventID: &rawID,
		RequestID:  raw.RequestID,
		Detail:     cause.Error(),
	}
	rec, err := failure.Record(in, h.now().UTC())
	if err != nil {
		h.logger.Error("build ingest failure record", "error", err)
		return
	}
	if _, err := h.store.RecordFailure(r.Context(), rec); err != nil {
		h.logger.Error("persist ingest failure record", "error", err, "failure_id", rec.ID)
	}
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeStoreError maps storage and pipeline errors onto HTTP status codes:
// missing documents are 404, immutability conflicts are 409 (a real bug or
// non-determinism upstream — the caller must not blindly retry), everything
// else is 500.
func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, errCodeNotFound, what+": not found")
	case errors.Is(err, storage.ErrImmutabilityViolation):
		writeError(w, r, http.StatusConflict, errCodeImmutabilityViolation, err.Error())
	default:
		h.internalError(w, r, what, err)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	h.logger.Error(what, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, errCodeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"request_id": RequestIDFromContext(r.Context()),
		},
	})
}
