package retrieval

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you your yours with this that these those from
		have has had was were will would shall should can could may might must
		what which who whom whose when where why how all any both each few more
		most other some such only own same than too very just into onto over
		under about above below after before again further then once here there
		out off our ours his her hers its they them their theirs she him himself
		herself itself themselves ourselves yourself yourselves does did doing
		being been also tell give show explain describe please document`) {
		stopWords[w] = struct{}{}
	}
}

// Tokens lowercases s and returns its distinct content words: stop-words,
// tokens shorter than three characters and pure numbers are dropped.
func Tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		if len([]rune(t)) < 3 || isNumeric(t) {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

func isNumeric(t string) bool {
	for _, r := range t {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func overlap(q, c map[string]struct{}) int {
	n := 0
	for t := range q {
		if _, ok := c[t]; ok {
			n++
		}
	}
	return n
}
