// Package consent detects sensitive data in document text and tracks, per
// document, whether the user agreed to work with it anyway.
package consent

import (
	"log/slog"
	"strings"

	"smartdoc/internal/keyed"
)

// Summary is the outcome of a scan. Matches holds counts only.
type Summary struct {
	Found   bool           `json:"found"`
	Matches map[string]int `json:"matches"`
}

// Record is the consent state of one document.
type Record struct {
	Sensitive bool    `json:"sensitive"`
	Confirmed bool    `json:"confirmed"`
	Awaiting  bool    `json:"awaiting"`
	Summary   Summary `json:"summary"`
}

// Blocked reports whether document content must not be used.
func (r Record) Blocked() bool {
	return r.Sensitive && !r.Confirmed
}

// ReplyKind classifies a conversational answer to the consent prompt.
type ReplyKind int

const (
	ReplyOther ReplyKind = iota
	ReplyYes
	ReplyNo
)

// ParseReply recognises y/yes and n/no, case and whitespace insensitive.
func ParseReply(msg string) ReplyKind {
	switch strings.ToLower(strings.TrimSpace(msg)) {
	case "y", "yes":
		return ReplyYes
	case "n", "no":
		return ReplyNo
	default:
		return ReplyOther
	}
}

// Reply applies a conversational answer to a record.
func Reply(r Record, msg string) (Record, ReplyKind) {
	kind := ParseReply(msg)
	switch kind {
	case ReplyYes:
		r.Confirmed = true
		r.Awaiting = false
	case ReplyNo:
		r.Awaiting = false
	default:
		r.Awaiting = true
	}
	return r, kind
}

// Gate owns the detectors and the per-document records. It authorizes;
// it never indexes.
type Gate struct {
	detectors []Detector
	records   *keyed.Store[Record]
}

func NewGate(detectors []Detector) *Gate {
	if detectors == nil {
		detectors = DefaultDetectors()
	}
	return &Gate{detectors: detectors, records: keyed.NewStore[Record]()}
}

func (g *Gate) Scan(text string) Summary {
	s := Summary{Matches: make(map[string]int)}
	for _, d := range g.detectors {
		if n := len(d.Pattern.FindAllStringIndex(text, -1)); n > 0 {
			s.Matches[d.Name] = n
			s.Found = true
		}
	}
	slog.Info("sensitive data scan", "found", s.Found, "matches", s.Matches)
	return s
}

// Observe stores a fresh scan for docID. Confirmed carries over from the
// previous record.
func (g *Gate) Observe(docID string, s Summary) Record {
	return g.records.Update(docID, func(cur Record, _ bool) Record {
		return Record{
			Sensitive: s.Found,
			Confirmed: cur.Confirmed,
			Awaiting:  false,
			Summary:   s,
		}
	})
}

// SetConsent records an explicit consent decision.
func (g *Gate) SetConsent(docID string, confirmed bool) Record {
	return g.records.Update(docID, func(cur Record, _ bool) Record {
		cur.Confirmed = confirmed
		cur.Awaiting = false
		return cur
	})
}

func (g *Gate) Get(docID string) (Record, bool) {
	return g.records.Get(docID)
}

// Update applies fn atomically to the record of docID.
func (g *Gate) Update(docID string, fn func(cur Record, ok bool) Record) Record {
	return g.records.Update(docID, fn)
}

// Pending counts documents blocked on consent.
func (g *Gate) Pending() int {
	return g.records.Count(Record.Blocked)
}
