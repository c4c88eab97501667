// Package commitment detects actionable commitments with specific future
// dates in user messages. It supports an AI-backed analyzer constrained by
// the deterministic date extractor, a keyword analyzer used standalone or
// as the fallback when the AI path fails, and a disabled mode.
package commitment

import (
	"context"
	"time"
)

// Commitment is a detected commitment bound to a future calendar date.
type Commitment struct {
	Text        string  `json:"text"`
	DateISO     string  `json:"date_iso"`
	Confidence  float64 `json:"confidence"`
	MatchedSpan string  `json:"matched_span,omitempty"`
}

// Result is the outcome of analyzing one message.
type Result struct {
	HasCommitment bool        `json:"has_commitment"`
	Commitment    *Commitment `json:"commitment,omitempty"`
}

// Analyzer examines message text for a commitment with a future date.
//
// A message that contains no commitment is a normal Result with
// HasCommitment=false, not an error. Errors mean the analyzer itself could
// not run; callers chain to a fallback on error rather than surfacing it.
type Analyzer interface {
	// Analyze inspects text against the given reference time.
	Analyze(ctx context.Context, text string, reference time.Time) (Result, error)

	// Available reports whether the analyzer is configured and ready.
	Available() bool
}

// None returns the empty no-commitment result.
func None() Result {
	return Result{HasCommitment: false}
}
