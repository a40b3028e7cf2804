// Package usage provides usage event types and daily aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"fmt"
	"math"
	"time"
)

// Category tags a usage event with the kind of provider call it records.
// It is an open enum: the well-known values below cover the built-in
// providers, but any non-empty string is a valid category.
type Category = string

const (
	CategoryChatCompletion  Category = "chat-completion"
	CategorySpeechSynthesis Category = "speech-synthesis"
	CategorySummary         Category = "summary-generation"
)

// Event represents a single recorded provider call (immutable value type).
// InputUnits and OutputUnits are in the category's native billing unit:
// tokens for language-model calls, characters for speech synthesis.
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Category       Category  `json:"category"`
	InputUnits     int64     `json:"input_units"`
	OutputUnits    int64     `json:"output_units"`
	TotalUnits     int64     `json:"total_units"`
	Cost           float64   `json:"cost"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	SessionID      string    `json:"session_id"`
}

// ValidationError reports a malformed numeric field passed to NewEvent.
type ValidationError struct {
	Field string
	Value float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("usage: invalid %s: %v", e.Field, e.Value)
}

// NewEvent constructs an immutable event. TotalUnits is always recomputed
// from the input and output counts; callers never supply it. The timestamp
// is normalized to UTC so date bucketing is stable across host timezones.
func NewEvent(id string, at time.Time, category Category, inputUnits, outputUnits int64, cost float64, responseTimeMs int64, sessionID string) (Event, error) {
	if inputUnits < 0 {
		return Event{}, &ValidationError{Field: "inputUnits", Value: float64(inputUnits)}
	}
	if outputUnits < 0 {
		return Event{}, &ValidationError{Field: "outputUnits", Value: float64(outputUnits)}
	}
	if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return Event{}, &ValidationError{Field: "cost", Value: cost}
	}
	if responseTimeMs < 0 {
		return Event{}, &ValidationError{Field: "responseTimeMs", Value: float64(responseTimeMs)}
	}
	if category == "" {
		return Event{}, &ValidationError{Field: "category"}
	}

	return Event{
		ID:             id,
		Timestamp:      at.UTC(),
		Category:       category,
		InputUnits:     inputUnits,
		OutputUnits:    outputUnits,
		TotalUnits:     inputUnits + outputUnits,
		Cost:           cost,
		ResponseTimeMs: responseTimeMs,
		SessionID:      sessionID,
	}, nil
}

// Date returns the event's calendar day key in ISO form (YYYY-MM-DD, UTC).
func (e Event) Date() string {
	return e.Timestamp.UTC().Format(DateLayout)
}

// DateLayout is the calendar day key format used for bucket keys.
const DateLayout = "2006-01-02"
