// Package http provides the HTTP reporting and query surface over the
// usage ledger and policy engine.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/app"
	"github.com/personahire/tokenmeter/domain/usage"
	"github.com/personahire/tokenmeter/pkg/httpjson"
)

// Handler serves the v1 API.
type Handler struct {
	ledger *app.LedgerService
	policy *app.PolicyService
	logger zerolog.Logger
}

// NewHandler creates an HTTP handler over the ledger and policy services.
func NewHandler(ledger *app.LedgerService, policySvc *app.PolicyService, logger zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		policy: policySvc,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// RouterOptions configures the assembled router.
type RouterOptions struct {
	MetricsEnabled bool
	MetricsPath    string // default /metrics
}

// Router assembles the chi router with all v1 routes.
func (h *Handler) Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.RecordEvent)
		r.Get("/events", h.ListEvents)
		r.Delete("/events", h.ResetLedger)
		r.Post("/decisions", h.Decide)
		r.Get("/days/{date}", h.GetDay)
		r.Get("/days/{date}/events", h.GetDayEvents)
		r.Get("/totals", h.GetTotals)
		r.Get("/summary", h.GetSummary)
	})

	return r
}

// Health responds to liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordEventRequest is the POST /v1/events body. Cost is optional: when
// omitted it is derived from the pricing table at record time.
type recordEventRequest struct {
	Category       string   `json:"category"`
	InputUnits     int64    `json:"input_units"`
	OutputUnits    int64    `json:"output_units"`
	Cost           *float64 `json:"cost,omitempty"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	SessionID      string   `json:"session_id"`
}

// RecordEvent appends a usage event to the ledger.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, httpjson.ErrBadRequest("invalid JSON body"))
		return
	}

	cost := h.ledger.Price(req.Category, req.InputUnits, req.OutputUnits)
	if req.Cost != nil {
		cost = *req.Cost
	}

	e, err := h.ledger.Record(r.Context(), req.Category, req.InputUnits, req.OutputUnits, cost, req.ResponseTimeMs, req.SessionID)
	if err != nil {
		var verr *usage.ValidationError
		if errors.As(err, &verr) {
			httpjson.WriteError(w, httpjson.ErrValidation(verr.Field, verr.Error()))
			return
		}
		h.logger.Error().Err(err).Msg("record failed")
		httpjson.WriteError(w, httpjson.ErrInternal(""))
		return
	}

	httpjson.Write(w, http.StatusCreated, e)
}

// decisionRequest is the POST /v1/decisions body.
type decisionRequest struct {
	Units    int64  `json:"units"`
	Category string `json:"category"`
}

// decisionResponse is the wire form of a policy decision.
type decisionResponse struct {
	Outcome string `json:"outcome"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Allowed bool   `json:"allowed"`
}

// Decide evaluates a prospective call against the active thresholds.
// Evaluation never mutates the ledger; record the call once it completes.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, httpjson.ErrBadRequest("invalid JSON body"))
		return
	}
	if req.Units < 0 {
		httpjson.WriteError(w, httpjson.ErrValidation("units", "must not be negative"))
		return
	}
	if req.Category == "" {
		httpjson.WriteError(w, httpjson.ErrValidation("category", "is required"))
		return
	}

	d := h.policy.Check(req.Category, req.Units)
	httpjson.Write(w, http.StatusOK, decisionResponse{
		Outcome: d.Outcome.String(),
		Code:    string(d.Code),
		Reason:  d.Reason,
		Allowed: d.Allowed(),
	})
}

// GetDay returns the daily bucket for a date. A date with no recorded
// events is 404, distinct from a day of zero usage.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}

	b, found := h.ledger.BucketFor(date)
	if !found {
		httpjson.WriteError(w, httpjson.ErrNotFound("no usage recorded for "+date))
		return
	}
	httpjson.Write(w, http.StatusOK, b)
}

// GetDayEvents returns, in insertion order, the events of one date.
func (h *Handler) GetDayEvents(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}

	events := h.ledger.EventsOn(date)
	if events == nil {
		events = []usage.Event{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"date": date, "events": events})
}

// ListEvents returns recent events. With ?since=RFC3339 it returns events
// at or after the instant in insertion order; otherwise the newest events
// first, capped at ?limit= (default 50).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			httpjson.WriteError(w, httpjson.ErrBadRequest("since must be RFC3339"))
			return
		}
		events := h.ledger.EventsSince(since)
		if events == nil {
			events = []usage.Event{}
		}
		httpjson.Write(w, http.StatusOK, map[string]any{"events": events})
		return
	}

	limit := 50
	if limitStr := q.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			httpjson.WriteError(w, httpjson.ErrBadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	events := h.ledger.RecentEvents(limit)
	if events == nil {
		events = []usage.Event{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"events": events})
}

// GetTotals returns the fold over all daily buckets.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.ledger.Totals())
}

// GetSummary aggregates events at or after ?since= (default: start of the
// current UTC day).
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	since := startOfToday()
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			httpjson.WriteError(w, httpjson.ErrBadRequest("since must be RFC3339"))
			return
		}
		since = parsed
	}
	httpjson.Write(w, http.StatusOK, h.ledger.SummarizeSince(since))
}

// ResetLedger clears all recorded usage.
func (h *Handler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	h.ledger.Reset(r.Context())
	h.logger.Info().Msg("ledger reset via API")
	httpjson.WriteNoContent(w)
}

func parseDate(w http.ResponseWriter, raw string) (string, bool) {
	if _, err := time.Parse(usage.DateLayout, raw); err != nil {
		httpjson.WriteError(w, httpjson.ErrBadRequest("date must be YYYY-MM-DD"))
		return "", false
	}
	return raw, true
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

