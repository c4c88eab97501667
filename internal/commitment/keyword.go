package commitment

import (
	"context"
	"strings"
	"time"

	"github.com/fyrsmithlabs/remindd/internal/dateparse"
)

// commitmentKeywords is the fixed vocabulary gating the keyword analyzer.
// Matching is a lowercase substring check; if none of these appear, the
// message is declared commitment-free without running date extraction.
var commitmentKeywords = []string{
	"commit",
	"promise",
	"will",
	"going to",
	"plan to",
	"intend to",
	"goal",
	"target",
	"deadline",
	"schedule",
	"appointment",
	"reminder",
}

// KeywordAnalyzer is the deterministic analyzer. It never errors: keyword
// misses and date misses both yield a plain no-commitment result.
type KeywordAnalyzer struct{}

// NewKeywordAnalyzer creates the deterministic keyword analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{}
}

// Analyze requires a commitment keyword and a surviving future date. The
// commitment text is the full trimmed message; no phrase trimming happens
// on this path.
func (k *KeywordAnalyzer) Analyze(_ context.Context, text string, reference time.Time) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return None(), nil
	}

	if !containsKeyword(trimmed) {
		// No vocabulary hit, extraction never runs.
		return None(), nil
	}

	extracted := dateparse.Extract(trimmed, reference)
	if !extracted.HasDate {
		return None(), nil
	}

	return Result{
		HasCommitment: true,
		Commitment: &Commitment{
			Text:        trimmed,
			DateISO:     extracted.DateISO,
			Confidence:  extracted.Confidence,
			MatchedSpan: extracted.MatchedSpan,
		},
	}, nil
}

// Available always reports true; the keyword analyzer needs no credentials.
func (k *KeywordAnalyzer) Available() bool {
	return true
}

// containsKeyword reports whether any vocabulary entry appears in the text.
func containsKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range commitmentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var _ Analyzer = (*KeywordAnalyzer)(nil)
