package study

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"smartdoc/internal/apperr"
)

const (
	defaultCards   = 20
	minCards       = 3
	maxCards       = 50
	cardBatchSize  = 15
	cardAttempts   = 3
	maxFrontRunes  = 200
	maxBackRunes   = 600
	avoidListLimit = 50
)

const flashcardSchema = `{
  "flashcards": [
    {
      "front": string,
      "back": string,
      "category": string,
      "difficulty": "Easy|Medium|Hard"
    }
  ]
}`

type FlashcardRequest struct {
	DocID      string `json:"doc_id"`
	DocumentID string `json:"documentId"`
	NumCards   int    `json:"num_cards"`
}

type Flashcard struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

type rawCard struct {
	Front      interface{} `json:"front"`
	Back       interface{} `json:"back"`
	Category   interface{} `json:"category"`
	Difficulty interface{} `json:"difficulty"`
}

func flashcardPrompt(n int, fronts []string, context string) string {
	var sb strings.Builder
	sb.WriteString("You are SmartDoc Flashcard Generator. Given the document context, generate concise study flashcards strictly about the content. ")
	sb.WriteString("Return ONLY valid JSON with schema: " + flashcardSchema + "\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Generate exactly the requested number of cards if possible; if not, generate as many as the context supports.\n")
	sb.WriteString("- Each card must be answerable from the context.\n")
	sb.WriteString("- Keep 'front' short (<= 140 chars) and 'back' focused (<= 400 chars).\n")
	sb.WriteString("- Prefer diverse categories and coverage across the document.\n")
	sb.WriteString("- Do not duplicate any previously generated cards provided to you.\n\n")
	fmt.Fprintf(&sb, "Number of flashcards to generate now: %d.\n\n", n)
	if len(fronts) > 0 {
		sb.WriteString("Previously generated (avoid duplicates):\n")
		for i, f := range fronts {
			if i >= avoidListLimit {
				break
			}
			sb.WriteString("- " + truncate(f, 120) + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Document Context:\n" + context)
	return sb.String()
}

// Flashcards generates cards in batches until the requested number is
// reached, a batch adds nothing new, or the attempts run out.
func (s *Service) Flashcards(ctx context.Context, req FlashcardRequest) ([]Flashcard, error) {
	docID := strings.TrimSpace(req.DocID)
	if docID == "" {
		docID = strings.TrimSpace(req.DocumentID)
	}
	if docID == "" {
		return nil, fmt.Errorf("%w: doc_id is required", apperr.ErrInvalidInput)
	}
	want := req.NumCards
	if want == 0 {
		want = defaultCards
	}
	want = max(minCards, min(want, maxCards))

	text, err := s.documentText(ctx, docID)
	if err != nil {
		return nil, err
	}

	var cards []Flashcard
	seen := make(map[string]bool)
	for attempt := 0; attempt < cardAttempts && len(cards) < want; attempt++ {
		n := min(want-len(cards), cardBatchSize)
		fronts := make([]string, len(cards))
		for i, c := range cards {
			fronts[i] = c.Front
		}

		var out struct {
			Flashcards []rawCard `json:"flashcards"`
		}
		if err := s.generateStructured(ctx, flashcardPrompt(n, fronts, text), flashcardSchema, &out); err != nil {
			if len(cards) > 0 {
				slog.WarnContext(ctx, "flashcard batch failed, keeping earlier cards", "doc_id", docID, "error", err)
				break
			}
			return nil, err
		}

		added := 0
		for i, r := range out.Flashcards {
			if i >= n || len(cards) >= want {
				break
			}
			c, ok := sanitizeCard(r)
			if !ok {
				continue
			}
			key := strings.ToLower(c.Front) + "\x00" + strings.ToLower(c.Back)
			if seen[key] {
				continue
			}
			seen[key] = true
			cards = append(cards, c)
			added++
		}
		if added == 0 {
			break
		}
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: model did not return valid flashcards", apperr.ErrUpstreamUnavailable)
	}
	return cards, nil
}

func sanitizeCard(r rawCard) (Flashcard, bool) {
	c := Flashcard{
		Front:      clip(stringValue(r.Front), maxFrontRunes),
		Back:       clip(stringValue(r.Back), maxBackRunes),
		Category:   stringValue(r.Category),
		Difficulty: strings.ToLower(stringValue(r.Difficulty)),
	}
	if c.Front == "" || c.Back == "" {
		return Flashcard{}, false
	}
	if c.Category == "" {
		c.Category = "General"
	}
	switch c.Difficulty {
	case "easy":
		c.Difficulty = "Easy"
	case "hard":
		c.Difficulty = "Hard"
	default:
		c.Difficulty = "Medium"
	}
	return c, true
}

// clip shortens s to n runes plus an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRight(string(r[:n]), " \t\n") + "…"
}
