package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartdoc/internal/apperr"
)

// Settings is the single tuning row shared by every instance. The ranking
// fields are empirical defaults and exposed so operators can adjust them.
type Settings struct {
	ID             int       `json:"-"`
	GeminiAPIKey   string    `json:"gemini_api_key"`
	VectorWeight   float64   `json:"vector_weight"`
	LexicalWeight  float64   `json:"lexical_weight"`
	NoiseCeiling   float64   `json:"noise_ceiling"`
	StrictDistance float64   `json:"strict_distance"`
	MinScore       float64   `json:"min_score"`
	TopK           int       `json:"top_k"`
	ContextSize    int       `json:"context_size"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Patch is a partial update; nil fields keep their stored value.
type Patch struct {
	GeminiAPIKey   *string  `json:"gemini_api_key"`
	VectorWeight   *float64 `json:"vector_weight"`
	LexicalWeight  *float64 `json:"lexical_weight"`
	NoiseCeiling   *float64 `json:"noise_ceiling"`
	StrictDistance *float64 `json:"strict_distance"`
	MinScore       *float64 `json:"min_score"`
	TopK           *int     `json:"top_k"`
	ContextSize    *int     `json:"context_size"`
}

// apply copies the set fields of p onto s. An empty or masked key, as
// echoed back by GET /settings, is not a change.
func (p Patch) apply(s *Settings) {
	if p.GeminiAPIKey != nil && *p.GeminiAPIKey != "" && !strings.HasPrefix(*p.GeminiAPIKey, "*") {
		s.GeminiAPIKey = strings.TrimSpace(*p.GeminiAPIKey)
	}
	setIf(&s.VectorWeight, p.VectorWeight)
	setIf(&s.LexicalWeight, p.LexicalWeight)
	setIf(&s.NoiseCeiling, p.NoiseCeiling)
	setIf(&s.StrictDistance, p.StrictDistance)
	setIf(&s.MinScore, p.MinScore)
	setIf(&s.TopK, p.TopK)
	setIf(&s.ContextSize, p.ContextSize)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Defaults mirrors the seed row written by the initial migration.
func Defaults() Settings {
	return Settings{
		ID:             1,
		VectorWeight:   0.7,
		LexicalWeight:  0.3,
		NoiseCeiling:   0.6,
		StrictDistance: 0.45,
		MinScore:       0,
		TopK:           12,
		ContextSize:    5,
	}
}

func (s *Settings) Validate() error {
	switch {
	case s.VectorWeight < 0 || s.LexicalWeight < 0 || s.VectorWeight+s.LexicalWeight == 0:
		return fmt.Errorf("%w: weights must be non-negative and not both zero", apperr.ErrInvalidInput)
	case s.NoiseCeiling <= 0 || s.NoiseCeiling > 2:
		return fmt.Errorf("%w: noise_ceiling must be in (0, 2]", apperr.ErrInvalidInput)
	case s.StrictDistance <= 0 || s.StrictDistance > s.NoiseCeiling:
		return fmt.Errorf("%w: strict_distance must be in (0, noise_ceiling]", apperr.ErrInvalidInput)
	case s.TopK < 1 || s.TopK > 100:
		return fmt.Errorf("%w: top_k must be between 1 and 100", apperr.ErrInvalidInput)
	case s.ContextSize < 1 || s.ContextSize > s.TopK:
		return fmt.Errorf("%w: context_size must be between 1 and top_k", apperr.ErrInvalidInput)
	case s.MinScore < 0 || s.MinScore > 1:
		return fmt.Errorf("%w: min_score must be in [0, 1]", apperr.ErrInvalidInput)
	}
	return nil
}

// MaskedKey hides all but the last four characters of the API key.
func (s Settings) MaskedKey() string {
	if len(s.GeminiAPIKey) <= 4 {
		return strings.Repeat("*", len(s.GeminiAPIKey))
	}
	return strings.Repeat("*", len(s.GeminiAPIKey)-4) + s.GeminiAPIKey[len(s.GeminiAPIKey)-4:]
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

// Apply merges p onto the stored settings, validates the result and
// persists it.
func (s *Service) Apply(ctx context.Context, p Patch) (*Settings, error) {
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	next := *cur
	p.apply(&next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// SeedAPIKey stores key when no key has been configured yet.
func (s *Service) SeedAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return false, err
	}
	if cur.GeminiAPIKey != "" {
		return false, nil
	}
	cur.GeminiAPIKey = key
	return true, s.repo.Update(ctx, cur)
}
