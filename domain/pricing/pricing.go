// Package pricing provides the category pricing table and cost calculation.
// All functions are pure - no side effects.
package pricing

// Price holds the per-1000-unit rates for one category. Token-billed
// categories carry distinct input and output rates; character-billed
// categories (speech synthesis) carry a single PerThousand rate and their
// unit is one character. The difference is data, not a code path.
type Price struct {
	InputPerThousand  float64
	OutputPerThousand float64
	PerThousand       float64 // flat rate; used when non-zero
}

// Table maps a category or model name to its price.
// Unknown categories cost zero: recording is best-effort and must not fail
// because a new model name has no price yet.
type Table map[string]Price

// Cost computes the monetary cost for a call, in the table's currency.
// For flat-rate entries the input and output counts are summed (characters
// submitted to a speech provider). Prices are fixed at lookup time; a later
// table change never retroactively alters recorded events.
func (t Table) Cost(category string, inputUnits, outputUnits int64) float64 {
	p, ok := t[category]
	if !ok {
		return 0
	}
	if p.PerThousand > 0 {
		return float64(inputUnits+outputUnits) / 1000 * p.PerThousand
	}
	return float64(inputUnits)/1000*p.InputPerThousand +
		float64(outputUnits)/1000*p.OutputPerThousand
}

// Default returns the built-in pricing table. Config-provided entries are
// merged on top of it, so deployments only list the prices they override.
func Default() Table {
	return Table{
		"chat-completion":  {InputPerThousand: 0.002, OutputPerThousand: 0.008},
		"gpt-4.1":          {InputPerThousand: 0.002, OutputPerThousand: 0.008},
		"speech-synthesis": {PerThousand: 0.015},
		"tts-1":            {PerThousand: 0.015},
		"tts-1-hd":         {PerThousand: 0.030},
		"elevenlabs":       {PerThousand: 0.30},
		"summary":          {InputPerThousand: 0.002, OutputPerThousand: 0.008},
	}
}

// Known reports whether the table has a price for the category.
func (t Table) Known(category string) bool {
	_, ok := t[category]
	return ok
}

// Merge overlays other on top of t and returns the combined table.
// This is a PURE function.
func Merge(t, other Table) Table {
	merged := make(Table, len(t)+len(other))
	for k, v := range t {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}
