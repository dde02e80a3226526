package study

import (
	"context"
	"fmt"
	"strings"

	"smartdoc/internal/apperr"
)

const (
	QuizMCQ         = "mcq"
	QuizTrueFalse   = "true_false"
	QuizShortAnswer = "short_answer"

	defaultQuestions = 10
	maxQuestions     = 50
)

const quizSchema = `{
  "questions": [
    {
      "type": "mcq|true_false|short_answer",
      "question": string,
      "options": [string] (for mcq only),
      "correct_answer": string,
      "explanation": string
    }
  ]
}`

type QuizRequest struct {
	DocID        string   `json:"doc_id"`
	DocumentID   string   `json:"documentId"`
	NumQuestions int      `json:"num_questions"`
	Difficulty   string   `json:"difficulty"`
	Types        []string `json:"question_types"`
}

type Question struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

type QuizMeta struct {
	Requested  int      `json:"requested"`
	Generated  int      `json:"generated"`
	Difficulty string   `json:"difficulty"`
	Types      []string `json:"types"`
}

type Quiz struct {
	Questions []Question `json:"questions"`
	Meta      QuizMeta   `json:"meta"`
}

type rawQuestion struct {
	Type          interface{}   `json:"type"`
	Question      interface{}   `json:"question"`
	Options       []interface{} `json:"options"`
	CorrectAnswer interface{}   `json:"correct_answer"`
	Explanation   interface{}   `json:"explanation"`
}

func (r *QuizRequest) normalize() {
	if r.DocID == "" {
		r.DocID = r.DocumentID
	}
	r.DocID = strings.TrimSpace(r.DocID)
	if r.NumQuestions <= 0 {
		r.NumQuestions = defaultQuestions
	}
	r.NumQuestions = min(r.NumQuestions, maxQuestions)
	r.Difficulty = strings.ToLower(strings.TrimSpace(r.Difficulty))
	if r.Difficulty == "" {
		r.Difficulty = "medium"
	}
	if len(r.Types) == 0 {
		r.Types = []string{QuizMCQ, QuizTrueFalse, QuizShortAnswer}
	}
}

func quizPrompt(req QuizRequest, context string) string {
	return "You are SmartDoc Quiz Generator. Given the document context, generate a quiz strictly about the content. " +
		"Return ONLY valid JSON with schema: " + quizSchema + "\n" +
		"- Generate UP TO the requested number of questions.\n" +
		"- If the document supports fewer questions, return as many as possible without fabricating facts.\n" +
		"- Ensure all questions are answerable using the context.\n" +
		"- For mcq, include 3-5 plausible options.\n" +
		"- For true_false, use the strings 'true' or 'false'.\n" +
		"- Keep explanations concise and factual.\n\n" +
		fmt.Sprintf("Difficulty: %s. Number of questions: up to %d. Allowed types: %s.\n\n",
			req.Difficulty, req.NumQuestions, strings.Join(req.Types, ", ")) +
		"Document Context:\n" + context
}

// Quiz generates up to req.NumQuestions validated questions about a document.
func (s *Service) Quiz(ctx context.Context, req QuizRequest) (*Quiz, error) {
	req.normalize()
	if req.DocID == "" {
		return nil, fmt.Errorf("%w: doc_id is required", apperr.ErrInvalidInput)
	}

	text, err := s.documentText(ctx, req.DocID)
	if err != nil {
		return nil, err
	}

	var out struct {
		Questions []rawQuestion `json:"questions"`
	}
	if err := s.generateStructured(ctx, quizPrompt(req, text), quizSchema, &out); err != nil {
		return nil, err
	}

	qs := sanitizeQuestions(out.Questions, req.NumQuestions)
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: no valid questions could be constructed from the model output", apperr.ErrUpstreamUnavailable)
	}
	return &Quiz{
		Questions: qs,
		Meta: QuizMeta{
			Requested:  req.NumQuestions,
			Generated:  len(qs),
			Difficulty: req.Difficulty,
			Types:      req.Types,
		},
	}, nil
}

func sanitizeQuestions(raw []rawQuestion, limit int) []Question {
	var out []Question
	for i, r := range raw {
		if i >= limit {
			break
		}
		q := Question{
			Type:          strings.ToLower(stringValue(r.Type)),
			Question:      stringValue(r.Question),
			CorrectAnswer: stringValue(r.CorrectAnswer),
			Explanation:   stringValue(r.Explanation),
		}
		if q.Question == "" {
			continue
		}

		switch q.Type {
		case QuizTrueFalse:
			tf, ok := normalizeTrueFalse(q.CorrectAnswer)
			if !ok {
				continue
			}
			q.CorrectAnswer = tf
		case QuizMCQ:
			if q.CorrectAnswer == "" {
				continue
			}
			opts, ok := normalizeOptions(r.Options, q.CorrectAnswer)
			if !ok {
				continue
			}
			q.Options = opts
		case QuizShortAnswer:
			if q.CorrectAnswer == "" {
				continue
			}
		default:
			continue
		}
		out = append(out, q)
	}
	return out
}

func normalizeTrueFalse(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return "True", true
	case "false", "f", "no", "n", "0":
		return "False", true
	}
	return "", false
}

// normalizeOptions dedupes options, keeps at most five and guarantees the
// correct answer is one of them. Fewer than three options is rejected.
func normalizeOptions(raw []interface{}, correct string) ([]string, bool) {
	seen := make(map[string]bool)
	var opts []string
	for _, o := range raw {
		s := stringValue(o)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		opts = append(opts, s)
	}
	if !seen[correct] {
		opts = append(opts, correct)
	}
	if len(opts) > 5 {
		idx := -1
		for i, o := range opts {
			if o == correct {
				idx = i
				break
			}
		}
		if idx >= 5 {
			opts[4] = correct
		}
		opts = opts[:5]
	}
	return opts, len(opts) >= 3
}
