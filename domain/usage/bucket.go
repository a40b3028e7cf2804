package usage

// CategoryTotals holds the per-category sub-totals inside a daily bucket.
type CategoryTotals struct {
	Calls int64   `json:"calls"`
	Units int64   `json:"units"`
	Cost  float64 `json:"cost"`
}

// DailyBucket is the per-day rollup derived from the event log.
// ResponseTimeSumMs and ResponseTimeCount carry enough information to
// recompute the exact mean after every fold; AvgResponseTimeMs is that
// exact mean, not a decayed approximation.
type DailyBucket struct {
	Date              string                    `json:"date"`
	TotalCalls        int64                     `json:"total_calls"`
	TotalUnits        int64                     `json:"total_units"`
	TotalCost         float64                   `json:"total_cost"`
	CategoryBreakdown map[Category]CategoryTotals `json:"category_breakdown"`
	AvgResponseTimeMs float64                   `json:"avg_response_time_ms"`
	ResponseTimeSumMs int64                     `json:"response_time_sum_ms"`
	ResponseTimeCount int64                     `json:"response_time_count"`
}

// NewDailyBucket returns a zero-valued bucket for the given day key.
func NewDailyBucket(date string) DailyBucket {
	return DailyBucket{
		Date:              date,
		CategoryBreakdown: make(map[Category]CategoryTotals),
	}
}

// Apply folds one event into a bucket and returns the updated bucket.
// This is a PURE function: the input bucket is not mutated (the breakdown
// map is copied), so callers can retry or diff safely.
func Apply(b DailyBucket, e Event) DailyBucket {
	next := b
	next.CategoryBreakdown = make(map[Category]CategoryTotals, len(b.CategoryBreakdown)+1)
	for k, v := range b.CategoryBreakdown {
		next.CategoryBreakdown[k] = v
	}
	if next.Date == "" {
		next.Date = e.Date()
	}

	next.TotalCalls++
	next.TotalUnits += e.TotalUnits
	next.TotalCost += e.Cost

	ct := next.CategoryBreakdown[e.Category]
	ct.Calls++
	ct.Units += e.TotalUnits
	ct.Cost += e.Cost
	next.CategoryBreakdown[e.Category] = ct

	next.ResponseTimeSumMs += e.ResponseTimeMs
	next.ResponseTimeCount++
	next.AvgResponseTimeMs = float64(next.ResponseTimeSumMs) / float64(next.ResponseTimeCount)

	return next
}

// CheckInvariants verifies that the bucket totals equal the sums of the
// category breakdown. Returns false when the bucket is internally
// inconsistent (e.g. after deserializing corrupt state).
func (b DailyBucket) CheckInvariants() bool {
	var calls, units int64
	var cost float64
	for _, ct := range b.CategoryBreakdown {
		calls += ct.Calls
		units += ct.Units
		cost += ct.Cost
	}
	const eps = 1e-9
	return calls == b.TotalCalls && units == b.TotalUnits && abs(cost-b.TotalCost) < eps
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Totals is the fold over all buckets exposed by the ledger.
type Totals struct {
	TotalCalls               int64   `json:"total_calls"`
	TotalUnits               int64   `json:"total_units"`
	TotalCost                float64 `json:"total_cost"`
	ActiveDayCount           int     `json:"active_day_count"`
	AverageUnitsPerActiveDay float64 `json:"average_units_per_active_day"`
}

// FoldTotals combines all buckets into repo-wide totals.
// AverageUnitsPerActiveDay is 0 when there are no active days.
// This is a PURE function.
func FoldTotals(buckets map[string]DailyBucket) Totals {
	var t Totals
	for _, b := range buckets {
		t.TotalCalls += b.TotalCalls
		t.TotalUnits += b.TotalUnits
		t.TotalCost += b.TotalCost
		t.ActiveDayCount++
	}
	if t.ActiveDayCount > 0 {
		t.AverageUnitsPerActiveDay = float64(t.TotalUnits) / float64(t.ActiveDayCount)
	}
	return t
}

// Summary represents aggregated usage over an arbitrary event slice
// (value type). Used for trailing-window reporting.
type Summary struct {
	TotalCalls        int64                    `json:"total_calls"`
	TotalUnits        int64                    `json:"total_units"`
	TotalCost         float64                  `json:"total_cost"`
	AvgResponseTimeMs float64                  `json:"avg_response_time_ms"`
	CategoryBreakdown map[Category]CategoryTotals `json:"category_breakdown"`
}

// Summarize combines events into a summary.
// This is a PURE function.
func Summarize(events []Event) Summary {
	s := Summary{CategoryBreakdown: make(map[Category]CategoryTotals)}
	var rtSum int64
	for _, e := range events {
		s.TotalCalls++
		s.TotalUnits += e.TotalUnits
		s.TotalCost += e.Cost
		rtSum += e.ResponseTimeMs

		ct := s.CategoryBreakdown[e.Category]
		ct.Calls++
		ct.Units += e.TotalUnits
		ct.Cost += e.Cost
		s.CategoryBreakdown[e.Category] = ct
	}
	if s.TotalCalls > 0 {
		s.AvgResponseTimeMs = float64(rtSum) / float64(s.TotalCalls)
	}
	return s
}
