package study

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"smartdoc/internal/apperr"
	"smartdoc/internal/text"
)

const (
	summaryChunkSize    = 1600
	summaryChunkOverlap = 200
	summaryParallelism  = 4
)

type SummarizeRequest struct {
	SelectionText string      `json:"selectionText"`
	Text          string      `json:"text"`
	DocID         string      `json:"doc_id"`
	Pages         interface{} `json:"pages,omitempty"`
	Style         string      `json:"style"`
	Bullets       *bool       `json:"bullets"`
}

type Summary struct {
	Summary string      `json:"summary"`
	DocID   string      `json:"doc_id,omitempty"`
	Pages   interface{} `json:"pages,omitempty"`
	Length  int         `json:"length"`
}

var (
	hyphenBreakRe = regexp.MustCompile(`([A-Za-z])-\n+([A-Za-z])`)
	softWrapRe    = regexp.MustCompile(`([^\n])\n([a-z0-9(])`)
	blankRunRe    = regexp.MustCompile(`\n\s*\n\s*\n+`)
	bulletLineRe  = regexp.MustCompile(`(?m)^[ \t]*[-•*][ \t]*`)
)

// cleanSelection repairs text copied out of PDF and Word viewers: broken
// hyphenation, hard wraps, runs of blank lines and mixed bullet glyphs.
func cleanSelection(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = hyphenBreakRe.ReplaceAllString(s, "$1$2")
	s = softWrapRe.ReplaceAllString(s, "$1 $2")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	s = bulletLineRe.ReplaceAllString(s, "• ")
	return strings.TrimSpace(s)
}

func styleHint(style string) (hint, target string) {
	switch style {
	case "detailed":
		return "Be detailed but focused (8-12 bullets or ~200-300 words).", "200-300 words"
	case "short":
		return "Very short (3-5 bullets or ~80-120 words).", "80-120 words"
	default:
		return "Keep it concise (5-8 bullets or ~120-180 words).", "120-180 words"
	}
}

func summaryPrompt(selection, style string, bullets bool) string {
	bulletHint := "Write as short paragraphs."
	if bullets {
		bulletHint = "Use bullet points where helpful."
	}
	hint, _ := styleHint(style)
	return fmt.Sprintf(`You are a helpful assistant. Summarize the selection below faithfully without adding facts.
Preserve key terms, numbers, and definitions. %s %s

Selection:

%s

Summary:
`, bulletHint, hint, selection)
}

func reducePrompt(partials []string, style string) string {
	_, target := styleHint(style)
	return fmt.Sprintf(`You are aggregating multiple partial summaries of a longer selection. Merge them into a single cohesive summary.
Remove redundancy, keep important details and numbers, and keep the tone neutral.
Target length: %s.

Partials:

%s

Final summary:
`, target, strings.Join(partials, "\n\n"))
}

// Summarize condenses user-selected text. Long selections are summarised
// chunk by chunk in parallel and the partial summaries merged.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) (*Summary, error) {
	selection := strings.TrimSpace(req.SelectionText)
	if selection == "" {
		selection = strings.TrimSpace(req.Text)
	}
	if selection == "" {
		return nil, fmt.Errorf("%w: Missing selectionText", apperr.ErrInvalidInput)
	}
	style := strings.ToLower(strings.TrimSpace(req.Style))
	bullets := req.Bullets == nil || *req.Bullets

	cleaned := cleanSelection(selection)
	windows := text.NewChunker(summaryChunkSize, summaryChunkOverlap).Split(cleaned)

	var summary string
	if len(windows) <= 1 {
		out, err := s.gen.Generate(ctx, summaryPrompt(cleaned, style, bullets))
		if err != nil {
			return nil, err
		}
		summary = out
	} else {
		partials := make([]string, len(windows))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(summaryParallelism)
		for i, w := range windows {
			g.Go(func() error {
				out, err := s.gen.Generate(gctx, summaryPrompt(w.Text, style, bullets))
				if err != nil {
					return fmt.Errorf("summarize part %d: %w", i, err)
				}
				partials[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		nonEmpty := partials[:0]
		for _, p := range partials {
			if p != "" {
				nonEmpty = append(nonEmpty, p)
			}
		}
		out, err := s.gen.Generate(ctx, reducePrompt(nonEmpty, style))
		if err != nil {
			return nil, err
		}
		summary = out
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, fmt.Errorf("%w: Failed to summarize", apperr.ErrUpstreamUnavailable)
	}
	return &Summary{
		Summary: summary,
		DocID:   strings.TrimSpace(req.DocID),
		Pages:   req.Pages,
		Length:  len([]rune(cleaned)),
	}, nil
}
