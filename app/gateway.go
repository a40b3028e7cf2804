package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/metrics"
	"github.com/personahire/tokenmeter/domain/usage"
	"github.com/personahire/tokenmeter/ports"
)

// SnapshotKey is the key the ledger snapshot is stored under. A single key
// keeps save/load atomic from the caller's perspective: the next Load sees
// either the previous snapshot or the new one, never a mix.
const SnapshotKey = "tokenmeter:ledger"

// DefaultMaxEvents caps the number of events retained in the persisted
// snapshot. Buckets are not rewritten when old events are trimmed, so day
// rollups stay authoritative even for days whose raw events are gone.
const DefaultMaxEvents = 1000

// DefaultSaveTimeout bounds a snapshot write so recording usage never
// stalls the caller's primary workflow on a slow store.
const DefaultSaveTimeout = 2 * time.Second

// Gateway persists ledger state to a key-value store. Store failures are
// absorbed here: Load degrades to an empty state and Save to a no-op, both
// logged and counted, because usage accounting is advisory data the
// application must not depend on.
type Gateway struct {
	store       ports.KVStore
	logger      zerolog.Logger
	metrics     *metrics.Collector
	maxEvents   int
	saveTimeout time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMaxEvents overrides the persisted event cap. Zero disables the cap.
func WithMaxEvents(n int) GatewayOption {
	return func(g *Gateway) { g.maxEvents = n }
}

// WithSaveTimeout overrides the snapshot write deadline.
func WithSaveTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.saveTimeout = d }
}

// NewGateway creates a persistence gateway over the given store.
func NewGateway(store ports.KVStore, logger zerolog.Logger, m *metrics.Collector, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:       store,
		logger:      logger.With().Str("component", "gateway").Logger(),
		metrics:     m,
		maxEvents:   DefaultMaxEvents,
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load reads the persisted snapshot. Missing or corrupt data yields a
// fresh empty state, never an error: corruption is logged, not propagated.
func (g *Gateway) Load(ctx context.Context) State {
	raw, ok, err := g.store.Get(ctx, SnapshotKey)
	if err != nil {
		g.logger.Warn().Err(err).Msg("snapshot read failed, starting empty")
		if g.metrics != nil {
			g.metrics.PersistErrors.Inc()
		}
		return NewState()
	}
	if !ok {
		return NewState()
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		g.logger.Warn().Err(err).Msg("snapshot is corrupt, starting empty")
		if g.metrics != nil {
			g.metrics.CorruptLoads.Inc()
		}
		return NewState()
	}
	if state.Buckets == nil {
		state.Buckets = make(map[string]usage.DailyBucket)
	}
	if !state.valid() {
		g.logger.Warn().Int("version", state.Version).Msg("snapshot failed schema checks, starting empty")
		if g.metrics != nil {
			g.metrics.CorruptLoads.Inc()
		}
		return NewState()
	}

	g.logger.Debug().
		Int("events", len(state.Events)).
		Int("days", len(state.Buckets)).
		Msg("snapshot loaded")
	return state
}

// Save serializes the state and overwrites the snapshot. Failures degrade
// to a no-op: the error is logged and counted but never returned, so the
// caller's record path cannot fail on store trouble. The persisted event
// list is capped at maxEvents (most recent kept).
func (g *Gateway) Save(ctx context.Context, state State) {
	snapshot := state
	if g.maxEvents > 0 && len(snapshot.Events) > g.maxEvents {
		snapshot.Events = snapshot.Events[len(snapshot.Events)-g.maxEvents:]
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		g.logger.Error().Err(err).Msg("snapshot marshal failed")
		if g.metrics != nil {
			g.metrics.PersistErrors.Inc()
		}
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.saveTimeout)
	defer cancel()

	start := time.Now()
	if err := g.store.Set(ctx, SnapshotKey, raw); err != nil {
		g.logger.Warn().Err(err).Msg("snapshot write failed, state kept in memory only")
		if g.metrics != nil {
			g.metrics.PersistErrors.Inc()
		}
		return
	}
	if g.metrics != nil {
		g.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}
}

// Clear removes the persisted snapshot (used by ledger reset).
func (g *Gateway) Clear(ctx context.Context) {
	if err := g.store.Delete(ctx, SnapshotKey); err != nil {
		g.logger.Warn().Err(err).Msg("snapshot delete failed")
		if g.metrics != nil {
			g.metrics.PersistErrors.Inc()
		}
	}
}

// ApplyRetention returns a copy of state with events and buckets whose
// date is older than now - horizonDays removed. The persisted copy is not
// touched; the caller saves explicitly when it wants the sweep durable.
func (g *Gateway) ApplyRetention(state State, horizonDays int, now time.Time) (State, int) {
	if horizonDays <= 0 {
		return state, 0
	}
	cutoff := now.UTC().AddDate(0, 0, -horizonDays).Format(usage.DateLayout)
	next, removed := state.retained(cutoff)
	if removed > 0 || len(state.Buckets) != len(next.Buckets) {
		g.logger.Info().
			Str("cutoff", cutoff).
			Int("events_removed", removed).
			Int("days_removed", len(state.Buckets)-len(next.Buckets)).
			Msg("retention sweep")
	}
	return next, removed
}
