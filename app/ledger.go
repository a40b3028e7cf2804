package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/metrics"
	"github.com/personahire/tokenmeter/domain/pricing"
	"github.com/personahire/tokenmeter/domain/usage"
	"github.com/personahire/tokenmeter/ports"
)

// LedgerService owns the usage event log and the derived daily buckets.
// All mutation goes through Record, ApplyRetention, or Reset; a mutex
// serializes mutations so bucket folds never interleave and lose
// increments when reports race.
type LedgerService struct {
	mu      sync.Mutex
	state   State
	gateway *Gateway
	clock   ports.Clock
	ids     ports.IDGenerator
	prices  pricing.Table
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewLedgerService loads the persisted snapshot and returns a ready ledger.
func NewLedgerService(gw *Gateway, clock ports.Clock, ids ports.IDGenerator, prices pricing.Table, logger zerolog.Logger, m *metrics.Collector) *LedgerService {
	s := &LedgerService{
		gateway: gw,
		clock:   clock,
		ids:     ids,
		prices:  prices,
		logger:  logger.With().Str("component", "ledger").Logger(),
		metrics: m,
	}
	s.state = gw.Load(context.Background())
	s.logger.Info().
		Int("events", len(s.state.Events)).
		Int("days", len(s.state.Buckets)).
		Msg("ledger loaded")
	return s
}

// Price computes the cost of a call from the pricing table. Categories
// without a table entry cost zero.
func (s *LedgerService) Price(category usage.Category, inputUnits, outputUnits int64) float64 {
	return s.prices.Cost(category, inputUnits, outputUnits)
}

// Record validates and appends a usage event, folds it into the day
// bucket, and persists the snapshot best-effort. Validation happens before
// any mutation; persistence failure never fails the caller.
func (s *LedgerService) Record(ctx context.Context, category usage.Category, inputUnits, outputUnits int64, cost float64, responseTimeMs int64, sessionID string) (usage.Event, error) {
	now := s.clock.Now()
	e, err := usage.NewEvent(s.ids.New(), now, category, inputUnits, outputUnits, cost, responseTimeMs, sessionID)
	if err != nil {
		return usage.Event{}, err
	}

	s.mu.Lock()
	s.state.Events = append(s.state.Events, e)
	date := e.Date()
	bucket, ok := s.state.Buckets[date]
	if !ok {
		bucket = usage.NewDailyBucket(date)
	}
	s.state.Buckets[date] = usage.Apply(bucket, e)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.gateway.Save(ctx, snapshot)

	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(category).Inc()
		s.metrics.UnitsTotal.WithLabelValues(category).Add(float64(e.TotalUnits))
		s.metrics.CostTotal.WithLabelValues(category).Add(e.Cost)
	}
	s.logger.Debug().
		Str("id", e.ID).
		Str("category", category).
		Int64("units", e.TotalUnits).
		Float64("cost", e.Cost).
		Msg("event recorded")

	return e, nil
}

// EventsOn returns, in insertion order, all events whose calendar date
// (UTC) equals date. An unknown date yields an empty slice, not an error.
func (s *LedgerService) EventsOn(date string) []usage.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []usage.Event
	for _, e := range s.state.Events {
		if e.Date() == date {
			out = append(out, e)
		}
	}
	return out
}

// EventsSince returns all events with timestamp >= since, insertion order.
func (s *LedgerService) EventsSince(since time.Time) []usage.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventsSinceLocked(since)
}

func (s *LedgerService) eventsSinceLocked(since time.Time) []usage.Event {
	var out []usage.Event
	for _, e := range s.state.Events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// RecentEvents returns the most recent events, newest first, capped at
// limit. Mirrors the live-log tail shown while developing.
func (s *LedgerService) RecentEvents(limit int) []usage.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.state.Events) {
		limit = len(s.state.Events)
	}
	out := make([]usage.Event, 0, limit)
	for i := len(s.state.Events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.state.Events[i])
	}
	return out
}

// BucketFor returns the daily bucket for date. ok is false when no event
// was ever recorded for that date: callers must distinguish "no data"
// from a day of zero usage.
func (s *LedgerService) BucketFor(date string) (usage.DailyBucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.state.Buckets[date]
	return b, ok
}

// Totals folds all buckets into repo-wide totals.
func (s *LedgerService) Totals() usage.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return usage.FoldTotals(s.state.Buckets)
}

// SummarizeSince aggregates the events recorded at or after since.
func (s *LedgerService) SummarizeSince(since time.Time) usage.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return usage.Summarize(s.eventsSinceLocked(since))
}

// ApplyRetention drops events and buckets older than horizonDays and
// persists the swept state. Returns the number of events removed.
func (s *LedgerService) ApplyRetention(ctx context.Context, horizonDays int) int {
	now := s.clock.Now()

	s.mu.Lock()
	next, removed := s.gateway.ApplyRetention(s.state, horizonDays, now)
	s.state = next
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if removed > 0 {
		s.gateway.Save(ctx, snapshot)
	}
	return removed
}

// Reset clears all events and buckets, in memory and in the store.
func (s *LedgerService) Reset(ctx context.Context) {
	s.mu.Lock()
	s.state = NewState()
	s.mu.Unlock()

	s.gateway.Clear(ctx)
	s.logger.Info().Msg("ledger reset")
}

// PolicySnapshot assembles the day and short-window figures the policy
// engine consults, as one consistent read under the ledger lock.
func (s *LedgerService) PolicySnapshot(window time.Duration) (dayUnits int64, dayCost float64, windowUnits int64) {
	now := s.clock.Now()
	today := now.UTC().Format(usage.DateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.state.Buckets[today]; ok {
		dayUnits = b.TotalUnits
		dayCost = b.TotalCost
	}
	for _, e := range s.eventsSinceLocked(now.Add(-window)) {
		windowUnits += e.TotalUnits
	}
	return dayUnits, dayCost, windowUnits
}

// snapshotLocked copies the state for handoff to the gateway so the save
// path never races a later mutation. Callers must hold mu.
func (s *LedgerService) snapshotLocked() State {
	cp := State{
		Version: s.state.Version,
		Events:  make([]usage.Event, len(s.state.Events)),
		Buckets: make(map[string]usage.DailyBucket, len(s.state.Buckets)),
	}
	copy(cp.Events, s.state.Events)
	for k, v := range s.state.Buckets {
		cp.Buckets[k] = v
	}
	return cp
}
