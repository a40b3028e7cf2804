// Package policy provides pure quota evaluation for prospective provider
// calls. All functions are deterministic with no side effects: the caller
// supplies a snapshot of ledger state and gets a Decision back.
package policy

import "time"

// Outcome is the kind of decision returned by Evaluate.
type Outcome int

const (
	Allow Outcome = iota
	Warn
	Block
)

// String returns the string representation of an outcome.
func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Code is the stable taxonomy value carried by WARN and BLOCK decisions.
// Callers branch on codes, never on the human-readable reason.
type Code string

const (
	CodeRequestTooLarge    Code = "REQUEST_TOO_LARGE"
	CodeCategoryBlocked    Code = "CATEGORY_BLOCKED"
	CodeDailyLimitExceeded Code = "DAILY_LIMIT_EXCEEDED"
	CodeHighFrequency      Code = "HIGH_FREQUENCY"
	CodeCostLimitExceeded  Code = "COST_LIMIT_EXCEEDED"
	CodeCostWarning        Code = "COST_WARNING"
)

// Decision is the outcome of a policy evaluation (value type).
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Code    Code    `json:"code,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Allowed reports whether the caller may proceed (ALLOW and WARN both
// permit the call; only BLOCK forbids it).
func (d Decision) Allowed() bool {
	return d.Outcome != Block
}

// Thresholds holds the configured quota limits (read-only at evaluation
// time). A zero cap disables that check; the allow-list is enforced only
// when non-empty. All unit caps operate on totalUnits in each category's
// native billing unit - the pricing table is the normalization point.
type Thresholds struct {
	PerRequestUnits   int64
	DailyUnits        int64
	ShortWindowUnits  int64
	ShortWindow       time.Duration // default 5m when zero
	CostWarning       float64
	CostLimit         float64
	AllowedCategories []string
}

// DefaultShortWindow is the trailing window used for the high-frequency
// heuristic when the config does not override it.
const DefaultShortWindow = 5 * time.Minute

// State is the ledger snapshot consulted by Evaluate. DayUnits and DayCost
// cover today's bucket; WindowUnits covers the trailing short window.
type State struct {
	DayUnits    int64
	DayCost     float64
	WindowUnits int64
}

// Evaluate decides whether a prospective call of the given size may
// proceed. Checks run most-severe-first and the first match wins;
// structural checks (request size, category allow-list) come before any
// history-derived check so a malformed call never needs ledger state.
// This is a PURE function.
func Evaluate(state State, t Thresholds, prospectiveUnits int64, category string) Decision {
	if t.PerRequestUnits > 0 && prospectiveUnits > t.PerRequestUnits {
		return Decision{
			Outcome: Block,
			Code:    CodeRequestTooLarge,
			Reason:  "request size exceeds per-request unit cap",
		}
	}

	if len(t.AllowedCategories) > 0 && !contains(t.AllowedCategories, category) {
		return Decision{
			Outcome: Block,
			Code:    CodeCategoryBlocked,
			Reason:  "category is not in the configured allow-list",
		}
	}

	if t.DailyUnits > 0 && state.DayUnits+prospectiveUnits > t.DailyUnits {
		return Decision{
			Outcome: Block,
			Code:    CodeDailyLimitExceeded,
			Reason:  "daily unit cap would be exceeded",
		}
	}

	if t.ShortWindowUnits > 0 && state.WindowUnits+prospectiveUnits > t.ShortWindowUnits {
		return Decision{
			Outcome: Warn,
			Code:    CodeHighFrequency,
			Reason:  "short-window unit cap exceeded",
		}
	}

	if t.CostLimit > 0 && state.DayCost > t.CostLimit {
		return Decision{
			Outcome: Block,
			Code:    CodeCostLimitExceeded,
			Reason:  "daily cost hard limit exceeded",
		}
	}
	if t.CostWarning > 0 && state.DayCost >= t.CostWarning {
		return Decision{
			Outcome: Warn,
			Code:    CodeCostWarning,
			Reason:  "daily cost warning level reached",
		}
	}

	return Decision{Outcome: Allow}
}

// Window returns the effective short-window duration.
func (t Thresholds) Window() time.Duration {
	if t.ShortWindow > 0 {
		return t.ShortWindow
	}
	return DefaultShortWindow
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
