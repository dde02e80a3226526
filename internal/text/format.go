package text

import (
	"regexp"
	"strings"
)

var (
	excessBreaksRe  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	spaceRunRe      = regexp.MustCompile(`[ \t]+`)
	sentenceBreakRe = regexp.MustCompile(`(\w)\. ([A-Z])`)
	bulletRe        = regexp.MustCompile(`(?m)^[ \t]*[-•*][ \t]+`)
	numberedRe      = regexp.MustCompile(`(?m)^[ \t]*(\d+)\.[ \t]+`)
	inlineListRe    = regexp.MustCompile(`([.!?])[ \t]+(•|\d+\.)([ \t])`)
	colonListRe     = regexp.MustCompile(`:[ \t]*\n?[ \t]*(•|\d+\.[ \t])`)
	headerColonRe   = regexp.MustCompile(`([^:\n]):[ \t]*\n`)
	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
)

// FormatAnswer tidies generated text for chat display: paragraphs per
// sentence, bullets and numbered items on their own lines, at most one
// blank line in a row.
func FormatAnswer(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = excessBreaksRe.ReplaceAllString(s, "\n\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = sentenceBreakRe.ReplaceAllString(s, "${1}.\n\n${2}")
	s = bulletRe.ReplaceAllString(s, "• ")
	s = numberedRe.ReplaceAllString(s, "${1}. ")
	s = inlineListRe.ReplaceAllString(s, "${1}\n\n${2}${3}")
	s = colonListRe.ReplaceAllString(s, ":\n\n${1}")
	s = headerColonRe.ReplaceAllString(s, "${1}:\n\n")
	s = trailingSpaceRe.ReplaceAllString(s, "")
	s = excessBreaksRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
