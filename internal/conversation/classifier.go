package conversation

import "strings"

// AnswerClassifier decides whether a generated answer admits the context did
// not contain what was asked.
type AnswerClassifier interface {
	NotInContext(answer string) bool
}

var DefaultCues = []string{
	"not mentioned in the context",
	"not mentioned in the provided context",
	"not provided in the context",
	"context does not",
	"context doesn't",
	"document does not contain",
	"document doesn't contain",
	"does not contain any information",
	"no information about",
	"no information on",
	"not found in the document",
	"cannot find",
	"can't find",
	"could not find",
	"couldn't find",
	"unable to find",
}

// CueClassifier matches case-insensitive cue phrases.
type CueClassifier struct {
	cues []string
}

func NewCueClassifier(cues ...string) *CueClassifier {
	if len(cues) == 0 {
		cues = DefaultCues
	}
	lower := make([]string, len(cues))
	for i, c := range cues {
		lower[i] = strings.ToLower(c)
	}
	return &CueClassifier{cues: lower}
}

func (c *CueClassifier) NotInContext(answer string) bool {
	a := strings.ToLower(strings.ReplaceAll(answer, "’", "'"))
	for _, cue := range c.cues {
		if strings.Contains(a, cue) {
			return true
		}
	}
	return false
}
