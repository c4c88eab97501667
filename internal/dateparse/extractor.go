// Package dateparse extracts a single future calendar date from free text.
//
// Extraction is deterministic and independent of commitment semantics: it
// answers "does this text name a specific future date" and nothing more.
// The same contract is exposed as a model-callable tool (see tool.go) so
// AI-assisted analysis can be constrained to dates this package would also
// accept.
package dateparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// maxInputLength is the maximum text length considered for extraction.
// Prevents ReDoS attacks by limiting input size before regex execution.
const maxInputLength = 10000

// Result is the outcome of a date extraction.
type Result struct {
	HasDate     bool    `json:"hasDate"`
	DateISO     string  `json:"dateIso,omitempty"`
	Confidence  float64 `json:"confidence"`
	MatchedSpan string  `json:"matchedSpan,omitempty"`
}

// monthNames maps month names and their three-letter abbreviations
// (lowercase) to time.Month values.
var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// recognizers defines the ordered format rules. Order matters: the most
// specific, most confident formats come first, and the first recognizer
// whose first match survives validation wins outright. A failed candidate
// moves extraction to the next recognizer, never to a later match of the
// same one.
var recognizers = []struct {
	name       string
	pattern    *regexp.Regexp
	confidence float64
	normalize  func(match []string) string
}{
	// Bare ISO date: "2025-08-15"
	{
		name:       "iso",
		pattern:    regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
		confidence: 0.95,
		normalize: func(match []string) string {
			return fmt.Sprintf("%s-%s-%s", match[1], match[2], match[3])
		},
	},
	// ISO date after a commitment preposition: "on 2025-08-15"
	{
		name:       "preposition-iso",
		pattern:    regexp.MustCompile(`(?i)\b(?:on|by|until|before)\s+(\d{4})-(\d{2})-(\d{2})\b`),
		confidence: 0.90,
		normalize: func(match []string) string {
			return fmt.Sprintf("%s-%s-%s", match[1], match[2], match[3])
		},
	},
	// Month name after a preposition: "on August 15, 2025", "by Aug 15 2025"
	{
		name:       "preposition-month-name",
		pattern:    regexp.MustCompile(`(?i)\b(?:on|by|until|before)\s+([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		confidence: 0.80,
		normalize: func(match []string) string {
			month, ok := monthNames[strings.ToLower(match[1])]
			if !ok {
				return ""
			}
			return fmt.Sprintf("%s-%02d-%s", match[3], int(month), pad2(match[2]))
		},
	},
	// Slash-separated US date after a preposition: "by 08/15/2025"
	{
		name:       "preposition-slash",
		pattern:    regexp.MustCompile(`(?i)\b(?:on|by|until|before)\s+(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		confidence: 0.70,
		normalize: func(match []string) string {
			return fmt.Sprintf("%s-%s-%s", match[3], pad2(match[1]), pad2(match[2]))
		},
	},
	// Dash-separated US date after a preposition: "by 08-15-2025"
	{
		name:       "preposition-dash",
		pattern:    regexp.MustCompile(`(?i)\b(?:on|by|until|before)\s+(\d{1,2})-(\d{1,2})-(\d{4})\b`),
		confidence: 0.70,
		normalize: func(match []string) string {
			return fmt.Sprintf("%s-%s-%s", match[3], pad2(match[1]), pad2(match[2]))
		},
	},
}

// Extract scans text for a single future calendar date relative to the
// reference time. The reference is reduced to its UTC calendar day; a
// candidate equal to that day is rejected, not accepted. Returns a zero
// Result when no recognizer produces a surviving candidate.
func Extract(text string, reference time.Time) Result {
	if text == "" {
		return Result{}
	}

	// Truncate to prevent ReDoS
	if len(text) > maxInputLength {
		text = text[:maxInputLength]
	}

	refDay := utcDay(reference)

	for _, rec := range recognizers {
		match := rec.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		candidate := rec.normalize(match)
		if candidate == "" {
			continue
		}

		parsed, err := time.Parse("2006-01-02", candidate)
		if err != nil {
			// Not a real calendar date (e.g. 2025-02-30)
			continue
		}
		if !parsed.After(refDay) {
			// Same-day and past dates are rejected
			continue
		}

		return Result{
			HasDate:     true,
			DateISO:     candidate,
			Confidence:  rec.confidence,
			MatchedSpan: match[0],
		}
	}

	return Result{}
}

// utcDay truncates a time to midnight of its UTC calendar day.
func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// pad2 left-pads a one-digit numeric string to two digits.
func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
