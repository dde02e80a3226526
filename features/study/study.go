// Package study generates quizzes, flashcards and summaries from document
// text with the generative model.
package study

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"smartdoc/internal/apperr"
	"smartdoc/internal/consent"
	"smartdoc/internal/docstore"
	"smartdoc/internal/vector"
)

const (
	maxContextChars = 12000
	maxIndexedTexts = 500
)

// Generator is satisfied by gemini.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, docID string) (*docstore.Document, error)
}

type Extractor interface {
	Extract(data []byte, mimetype, filename string) (string, error)
}

// Consent is satisfied by consent.Gate.
type Consent interface {
	Get(docID string) (consent.Record, bool)
	Scan(text string) consent.Summary
	Observe(docID string, s consent.Summary) consent.Record
}

// ConsentRequiredError is returned for documents whose sensitive content has
// not been confirmed.
type ConsentRequiredError struct {
	Summary consent.Summary
}

func (e *ConsentRequiredError) Error() string {
	return "sensitive data detected; confirm consent before using this document"
}

func (e *ConsentRequiredError) Unwrap() error { return apperr.ErrContentPolicy }

type Service struct {
	gen       Generator
	store     vector.Store
	fetcher   Fetcher
	extractor Extractor
	consent   Consent
}

func NewService(g Generator, s vector.Store, f Fetcher, x Extractor, c Consent) *Service {
	return &Service{gen: g, store: s, fetcher: f, extractor: x, consent: c}
}

// documentText returns the indexed chunk texts of docID, or the extracted
// text of the stored file when the document has no index yet. Extracted
// text is scanned first, so an unindexed document with unconfirmed
// sensitive data never reaches the model.
func (s *Service) documentText(ctx context.Context, docID string) (string, error) {
	if rec, ok := s.consent.Get(docID); ok && rec.Blocked() {
		return "", &ConsentRequiredError{Summary: rec.Summary}
	}

	var text string
	if s.store.Has(ctx, docID) {
		text = strings.Join(s.store.Texts(ctx, docID, maxIndexedTexts), "\n\n")
	} else {
		doc, err := s.fetcher.Fetch(ctx, docID)
		if err != nil {
			return "", err
		}
		text, err = s.extractor.Extract(doc.Data, doc.MIMEType, doc.Filename)
		if err != nil {
			return "", err
		}
		if rec := s.consent.Observe(docID, s.consent.Scan(text)); rec.Blocked() {
			return "", &ConsentRequiredError{Summary: rec.Summary}
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: Document has no readable text", apperr.ErrInvalidInput)
	}
	return truncate(text, maxContextChars), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	fencedRe = regexp.MustCompile("(?i)```(?:json)?\\s*([\\s\\S]*?)```")
	objectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// parseLenient decodes model output that may wrap its JSON in a code fence
// or surrounding prose.
func parseLenient(raw string, v interface{}) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if json.Unmarshal([]byte(raw), v) == nil {
		return true
	}
	if m := fencedRe.FindStringSubmatch(raw); m != nil {
		if json.Unmarshal([]byte(strings.TrimSpace(m[1])), v) == nil {
			return true
		}
	}
	if m := objectRe.FindString(raw); m != "" {
		if json.Unmarshal([]byte(m), v) == nil {
			return true
		}
	}
	return false
}

// generateStructured asks for JSON, and when the answer cannot be parsed
// asks once more for a strict conversion of it.
func (s *Service) generateStructured(ctx context.Context, prompt, schema string, v interface{}) error {
	raw, err := s.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return err
	}
	if parseLenient(raw, v) {
		return nil
	}

	conv := "Convert the following content to valid JSON that matches this schema: " + schema +
		"\nRespond with JSON only, no extra text.\n\nContent to convert:\n" + raw
	raw, err = s.gen.GenerateJSON(ctx, conv)
	if err != nil {
		return err
	}
	if parseLenient(raw, v) {
		return nil
	}
	return fmt.Errorf("%w: model did not return valid JSON", apperr.ErrUpstreamUnavailable)
}

// stringValue renders a loosely typed JSON scalar as trimmed text.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	default:
		b, _ := json.Marshal(t)
		return strings.TrimSpace(string(b))
	}
}
