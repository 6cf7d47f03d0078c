// Package postprocess turns raw backend text into the pieces of a
// GenerationResult: related queries, thinking trace and display segments.
package postprocess

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

// MaxRelatedQueries caps ExtractRelatedQueries.
const MaxRelatedQueries = 4

var (
	relatedLine   = regexp.MustCompile(`^(\d+\.|•|-)\s*.+\?$`)
	relatedPrefix = regexp.MustCompile(`^(\d+\.|•|-)\s*`)
)

// ExtractRelatedQueries returns up to four follow-up questions found as
// list lines ending in '?'. Lengths are counted in characters and must lie
// strictly between 10 and 100.
func ExtractRelatedQueries(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !relatedLine.MatchString(line) {
			continue
		}
		q := strings.TrimSpace(relatedPrefix.ReplaceAllString(line, ""))
		if n := len(utf16.Encode([]rune(q))); n <= 10 || n >= 100 {
			continue
		}
		out = append(out, q)
		if len(out) == MaxRelatedQueries {
			break
		}
	}
	return out
}
