package commitment

import (
	"regexp"
	"strings"
)

// commitmentPhrases are the commitment-introducing openers the AI path
// looks for when deriving the stored commitment text. Checked in order.
var commitmentPhrases = []string{
	"i will",
	"i plan to",
	"i'm going to",
	"my goal is to",
}

// phraseBoundary marks where the committed action ends: the first
// temporal or prepositional connective after the opener.
var phraseBoundary = regexp.MustCompile(`(?i)\s+(?:on|by|until|before|at)\b`)

// commitmentText derives the text stored on a commitment found by the AI
// analyzer. It takes the continuation after the first matching opener up
// to the first boundary; when no opener matches, the whole trimmed
// message is used.
func commitmentText(message string) string {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	for _, phrase := range commitmentPhrases {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}

		continuation := trimmed[idx+len(phrase):]
		if loc := phraseBoundary.FindStringIndex(continuation); loc != nil {
			continuation = continuation[:loc[0]]
		}
		continuation = strings.TrimSpace(continuation)
		continuation = strings.TrimRight(continuation, ".,;:!?")
		if continuation != "" {
			return continuation
		}
	}

	return trimmed
}
