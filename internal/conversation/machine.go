// Package conversation routes a question about a document through greeting
// and policy checks, the consent and general-knowledge prompts, and finally
// retrieval-grounded generation.
package conversation

import (
	"smartdoc/internal/consent"
)

type Phase int

const (
	// Idle: nothing is known about the document yet.
	Idle Phase = iota
	AwaitingSensitiveConsent
	AwaitingGeneralFallbackConsent
	Ready
)

func (p Phase) String() string {
	switch p {
	case AwaitingSensitiveConsent:
		return "awaiting_sensitive_consent"
	case AwaitingGeneralFallbackConsent:
		return "awaiting_general_fallback_consent"
	case Ready:
		return "ready"
	default:
		return "idle"
	}
}

// FallbackRecord is the single pending general-knowledge offer of a document.
type FallbackRecord struct {
	Awaiting        bool   `json:"awaiting"`
	PendingQuestion string `json:"pending_question,omitempty"`
}

type State struct {
	Consent    consent.Record
	HasConsent bool
	Fallback   FallbackRecord
}

func (s State) Phase() Phase {
	switch {
	case s.Consent.Blocked():
		return AwaitingSensitiveConsent
	case s.Fallback.Awaiting:
		return AwaitingGeneralFallbackConsent
	case !s.HasConsent:
		return Idle
	default:
		return Ready
	}
}

type Action int

const (
	// ActionRetrieve continues to indexing and retrieval.
	ActionRetrieve Action = iota
	ActionConsentGranted
	ActionConsentDeclined
	ActionConsentPrompt
	ActionGeneralAnswer
	ActionAskAgain
	ActionFallbackDeclined
	ActionFallbackReprompt
)

type Outcome struct {
	Action Action
	// Question is the pending question to answer for ActionGeneralAnswer.
	Question string
}

// Transition interprets msg against s. It never touches document content, so
// it is safe to call while consent is outstanding.
func Transition(s State, msg string) (State, Outcome) {
	switch s.Phase() {
	case AwaitingSensitiveConsent:
		rec, kind := consent.Reply(s.Consent, msg)
		s.Consent = rec
		s.HasConsent = true
		switch kind {
		case consent.ReplyYes:
			return s, Outcome{Action: ActionConsentGranted}
		case consent.ReplyNo:
			return s, Outcome{Action: ActionConsentDeclined}
		default:
			return s, Outcome{Action: ActionConsentPrompt}
		}

	case AwaitingGeneralFallbackConsent:
		switch consent.ParseReply(msg) {
		case consent.ReplyYes:
			q := s.Fallback.PendingQuestion
			s.Fallback = FallbackRecord{}
			if q == "" {
				return s, Outcome{Action: ActionAskAgain}
			}
			return s, Outcome{Action: ActionGeneralAnswer, Question: q}
		case consent.ReplyNo:
			s.Fallback = FallbackRecord{}
			return s, Outcome{Action: ActionFallbackDeclined}
		default:
			return s, Outcome{Action: ActionFallbackReprompt}
		}
	}
	return s, Outcome{Action: ActionRetrieve}
}
