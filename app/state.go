// Package app wires the domain logic to storage and exposes the ledger,
// policy, and persistence services.
package app

import (
	"time"

	"github.com/personahire/tokenmeter/domain/usage"
)

// SchemaVersion identifies the snapshot layout. Loads with a different
// version are treated as corrupt and discarded.
const SchemaVersion = 1

// State is the full in-memory ledger state: the append-only event log in
// insertion order plus the derived per-day buckets. The zero value is not
// usable; call NewState.
type State struct {
	Version int                          `json:"version"`
	Events  []usage.Event                `json:"events"`
	Buckets map[string]usage.DailyBucket `json:"buckets"`
}

// NewState returns an empty ledger state.
func NewState() State {
	return State{
		Version: SchemaVersion,
		Buckets: make(map[string]usage.DailyBucket),
	}
}

// valid performs schema checks on a deserialized state: version match,
// parseable bucket dates, and per-bucket aggregation invariants.
func (s State) valid() bool {
	if s.Version != SchemaVersion {
		return false
	}
	for date, b := range s.Buckets {
		if _, err := time.Parse(usage.DateLayout, date); err != nil {
			return false
		}
		if b.Date != date || !b.CheckInvariants() {
			return false
		}
	}
	for _, e := range s.Events {
		if e.ID == "" || e.Timestamp.IsZero() || e.TotalUnits != e.InputUnits+e.OutputUnits {
			return false
		}
	}
	return true
}

// retained returns a copy of the state with all events and buckets older
// than the cutoff date removed. Bucket sums for retained days are
// untouched; the state keeps its invariants. This is a pure function with
// respect to the receiver.
func (s State) retained(cutoff string) (State, int) {
	next := NewState()
	removed := 0

	for _, e := range s.Events {
		if e.Date() < cutoff {
			removed++
			continue
		}
		next.Events = append(next.Events, e)
	}
	for date, b := range s.Buckets {
		if date < cutoff {
			continue
		}
		next.Buckets[date] = b
	}
	return next, removed
}
