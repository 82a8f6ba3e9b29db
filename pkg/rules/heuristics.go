package rules

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gatescan/gatescan/pkg/risk"
)

// Supplemental checks that run alongside the catalog on unrestricted scans.
// They catch patterns no single regex expresses well: oversized payloads,
// obfuscation by symbol soup, and repeated probe fragments.

const (
	lengthAnomalyLimit = 5000
	densityLimit       = 0.3
	repetitionMin      = 3
)

// repetitionTokens are probe fragments whose repetition, rather than mere
// presence, is suspicious.
var repetitionTokens = []string{"../", "<script", "or 1=1", `\x`, "%"}

func lengthCharsetHits(text string, weights risk.Weights) []risk.Hit {
	var hits []risk.Hit

	length := utf8.RuneCountInString(text)
	if length > lengthAnomalyLimit {
		hits = append(hits, risk.NewHit(
			"LENGTH_ANOMALY",
			risk.SeverityMedium,
			"Input length is unusually large.",
			fmt.Sprintf("length=%d", length),
			weights,
			[]string{"resource-abuse"},
		))
	}

	special := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if length > 0 {
		density := float64(special) / float64(length)
		if density > densityLimit {
			hits = append(hits, risk.NewHit(
				"SPECIAL_CHAR_DENSITY",
				risk.SeverityMedium,
				"High special-character density can indicate obfuscation.",
				fmt.Sprintf("density=%.2f", density),
				weights,
				[]string{"obfuscation"},
			))
		}
	}
	return hits
}

// repetitionHits emits at most one hit: the first token repeated at least
// repetitionMin times wins and later tokens are not checked.
func repetitionHits(text string, weights risk.Weights) []risk.Hit {
	for _, token := range repetitionTokens {
		count := strings.Count(text, token)
		if count >= repetitionMin {
			return []risk.Hit{risk.NewHit(
				"REPETITION_PATTERN",
				risk.SeverityLow,
				"Suspicious pattern repetition detected.",
				fmt.Sprintf("%s repeated %d times", token, count),
				weights,
				[]string{"obfuscation"},
			)}
		}
	}
	return nil
}
