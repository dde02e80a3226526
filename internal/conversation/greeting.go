package conversation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxGreetingLen = 40

var greetingPhrases = []string{
	// greetings
	"hi", "hello", "hey", "yo", "hola", "namaste",
	"good morning", "good afternoon", "good evening", "gm", "ge", "gn",
	// small talk
	"how are you", "what's up", "sup", "howdy",
	// wishes
	"have a nice day", "good day", "good night",
}

var (
	greetingRe = func() *regexp.Regexp {
		quoted := make([]string, len(greetingPhrases))
		for i, p := range greetingPhrases {
			quoted[i] = regexp.QuoteMeta(p)
		}
		return regexp.MustCompile(`(^|\b)(` + strings.Join(quoted, "|") + `)(\b|$)`)
	}()
	spaceRe = regexp.MustCompile(`\s+`)
)

// IsGreeting reports short small talk: at most 40 characters, no question
// mark, containing a greeting or small-talk phrase.
func IsGreeting(msg string) bool {
	s := spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(msg)), " ")
	if s == "" || utf8.RuneCountInString(s) > maxGreetingLen || strings.Contains(s, "?") {
		return false
	}
	return greetingRe.MatchString(s)
}
