package conversation

import (
	"regexp"
	"strings"

	"smartdoc/internal/apperr"
)

var urlRe = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|ftp://\S+|mailto:\S+|t\.me/\S+|discord\.gg/\S+)`)

var wordRe = regexp.MustCompile(`\p{L}+`)

var defaultProfanity = []string{
	"fuck", "fucking", "fucker", "shit", "bullshit", "bitch", "bastard", "asshole",
	"dick", "cunt", "motherfucker", "slut", "whore", "wanker", "prick", "twat",
}

// PolicyViolation carries the user-facing guidance for a rejected question.
type PolicyViolation struct {
	Message string
}

func (e *PolicyViolation) Error() string { return e.Message }

func (e *PolicyViolation) Unwrap() error { return apperr.ErrContentPolicy }

type Policy struct {
	banned map[string]struct{}
}

// NewPolicy builds a policy from a profanity word list; nil uses the
// built-in list.
func NewPolicy(words []string) *Policy {
	if words == nil {
		words = defaultProfanity
	}
	p := &Policy{banned: make(map[string]struct{}, len(words))}
	for _, w := range words {
		p.banned[strings.ToLower(w)] = struct{}{}
	}
	return p
}

// Check rejects links and profanity.
func (p *Policy) Check(question string) error {
	if urlRe.MatchString(question) {
		return &PolicyViolation{Message: msgNoLinks}
	}
	for _, w := range wordRe.FindAllString(strings.ToLower(question), -1) {
		if _, bad := p.banned[w]; bad {
			return &PolicyViolation{Message: msgProfanity}
		}
	}
	return nil
}
