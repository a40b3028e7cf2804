package app

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/metrics"
	"github.com/personahire/tokenmeter/domain/policy"
	"github.com/personahire/tokenmeter/domain/usage"
)

// PolicyService evaluates prospective calls against the configured
// thresholds using a live ledger snapshot. Thresholds are swappable at
// runtime for config hot reload; evaluation itself stays pure in
// domain/policy.
type PolicyService struct {
	mu         sync.RWMutex
	thresholds policy.Thresholds

	ledger  *LedgerService
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewPolicyService creates a policy service bound to the ledger.
func NewPolicyService(ledger *LedgerService, t policy.Thresholds, logger zerolog.Logger, m *metrics.Collector) *PolicyService {
	return &PolicyService{
		thresholds: t,
		ledger:     ledger,
		logger:     logger.With().Str("component", "policy").Logger(),
		metrics:    m,
	}
}

// SetThresholds replaces the active thresholds (config hot reload). The
// next Check sees the new limits.
func (s *PolicyService) SetThresholds(t policy.Thresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
	s.logger.Info().
		Int64("daily_units", t.DailyUnits).
		Int64("per_request_units", t.PerRequestUnits).
		Float64("cost_limit", t.CostLimit).
		Msg("thresholds updated")
}

// Thresholds returns the currently active thresholds.
func (s *PolicyService) Thresholds() policy.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Check decides whether a prospective call of the given size in the given
// category may proceed. The decision is advisory on WARN: only BLOCK
// forbids the call. Check never mutates the ledger; record the call
// separately once it completes.
func (s *PolicyService) Check(category usage.Category, prospectiveUnits int64) policy.Decision {
	t := s.Thresholds()
	dayUnits, dayCost, windowUnits := s.ledger.PolicySnapshot(t.Window())

	d := policy.Evaluate(policy.State{
		DayUnits:    dayUnits,
		DayCost:     dayCost,
		WindowUnits: windowUnits,
	}, t, prospectiveUnits, category)

	if s.metrics != nil {
		s.metrics.DecisionsTotal.WithLabelValues(d.Outcome.String(), string(d.Code)).Inc()
	}
	if d.Outcome != policy.Allow {
		s.logger.Info().
			Str("outcome", d.Outcome.String()).
			Str("code", string(d.Code)).
			Str("category", category).
			Int64("prospective_units", prospectiveUnits).
			Int64("day_units", dayUnits).
			Float64("day_cost", dayCost).
			Msg("policy decision")
	}
	return d
}
