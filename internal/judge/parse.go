package judge

import (
	"strings"
	"unicode"
)

// resultMarker terminates a remote judge reply. Everything before it is
// treated as feedback; the value after it is the verdict.
const resultMarker = "[RESULT]"

// ParseScoreReply extracts a 1-5 score from a remote reply. A missing
// marker or missing digit defaults to the neutral score 3; an out-of-range
// digit is clamped. Feedback is the text before the marker, or the whole
// reply when no marker was found.
func ParseScoreReply(reply string) (score float64, feedback string) {
	idx := strings.Index(reply, resultMarker)
	if idx == -1 {
		return 3, strings.TrimSpace(reply)
	}

	feedback = strings.TrimSpace(reply[:idx])
	rest := reply[idx+len(resultMarker):]

	for _, r := range rest {
		if unicode.IsDigit(r) {
			score = float64(r - '0')
			if score < 1 {
				score = 1
			}
			if score > 5 {
				score = 5
			}
			return score, feedback
		}
	}

	// Marker but no digit: neutral default
	return 3, feedback
}

// ParseCompareReply extracts an A/B verdict from a remote reply. A missing
// marker or missing letter defaults to WinnerB; the asymmetry is
// load-bearing and asserted by tests.
func ParseCompareReply(reply string) (winner string, feedback string) {
	idx := strings.Index(reply, resultMarker)
	if idx == -1 {
		return WinnerB, strings.TrimSpace(reply)
	}

	feedback = strings.TrimSpace(reply[:idx])
	rest := reply[idx+len(resultMarker):]

	// First letter after the marker decides; anything else defaults to B
	for _, r := range rest {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.ToUpper(r) == 'A' {
			return WinnerA, feedback
		}
		return WinnerB, feedback
	}

	return WinnerB, feedback
}
