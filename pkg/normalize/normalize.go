// Package normalize canonicalizes untrusted text before rule evaluation.
// Full-width compatibility variants, zero-width code points, and mixed line
// endings are all common filter-evasion tricks; every scan runs on the
// output of Text so the rule catalog only ever sees one shape of input.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// Invisible code points that survive NFKC untouched.
	zeroWidthRe = regexp.MustCompile(`[\x{200b}\x{200c}\x{200d}\x{2060}\x{feff}]`)

	// Horizontal whitespace, including separator controls and the Unicode
	// space family. Newlines are excluded so line structure is preserved
	// for the per-line trim step.
	horizontalWSRe = regexp.MustCompile(`[\t\v\f\x{1c}-\x{1f}\x{85}\x{2028}\x{2029}\p{Zs}]+`)
)

// Text canonicalizes raw input in a fixed order: NFKC normalization,
// zero-width removal, CRLF/CR to LF, horizontal whitespace collapse,
// per-line trim, overall trim, case fold. The result is idempotent:
// Text(Text(s)) == Text(s).
func Text(raw string) string {
	cleaned := norm.NFKC.String(raw)
	cleaned = zeroWidthRe.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	cleaned = horizontalWSRe.ReplaceAllString(cleaned, " ")

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	cleaned = strings.TrimSpace(strings.Join(lines, "\n"))

	return cases.Fold().String(cleaned)
}
