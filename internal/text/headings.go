package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// GenericTopics are offered when a document yields no heading-like lines.
var GenericTopics = []string{
	"Introduction", "Overview", "Summary", "Background", "Objectives", "Methodology", "Approach",
	"Results", "Discussion", "Conclusion", "Features", "Requirements", "Limitations", "Future Work",
}

var numberedHeadingRe = regexp.MustCompile(`^\d+(?:\.\d+){0,3}\s+.{3,80}$`)

// ExtractHeadings returns up to limit distinct heading-like lines: numbered
// headings, all-caps lines, lines ending in a colon, lines naming a generic
// topic, and short capitalised titles.
func ExtractHeadings(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || len(ln) > 100 || sectionMarkerRe.MatchString(ln) {
			continue
		}
		if !looksLikeHeading(ln) {
			continue
		}

		key := strings.Trim(strings.ToLower(ln), ":")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimRight(ln, ": ."))
		if len(out) >= limit {
			break
		}
	}
	return out
}

func looksLikeHeading(ln string) bool {
	n := utf8.RuneCountInString(ln)
	if ln == strings.ToUpper(ln) && n >= 3 && n <= 80 {
		return true
	}
	if strings.HasSuffix(ln, ":") && n >= 3 && n <= 80 {
		return true
	}
	if numberedHeadingRe.MatchString(ln) {
		return true
	}

	low := strings.ToLower(ln)
	for _, topic := range GenericTopics {
		if strings.Contains(low, strings.ToLower(topic)) {
			return true
		}
	}

	words := strings.Fields(ln)
	first, _ := utf8.DecodeRuneInString(ln)
	return len(words) >= 1 && len(words) <= 8 && unicode.IsUpper(first)
}
