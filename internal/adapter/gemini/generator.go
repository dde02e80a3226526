package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"smartdoc/internal/apperr"
)

const (
	DefaultTextModel       = "gemini-2.5-flash"
	DefaultGenerateTimeout = 30 * time.Second
	DefaultRPM             = 60
)

type GeneratorConfig struct {
	Model   string
	Timeout time.Duration
	// RPM caps requests per minute across all callers.
	RPM int
}

// Generator produces text with a Gemini model. Calls are rate limited and
// run behind a circuit breaker; a deadline or open breaker surfaces as an
// upstream error from apperr.
type Generator struct {
	clients *clientCache
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGenerator(keys KeySource, cfg GeneratorConfig, opts ...option.ClientOption) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultTextModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerateTimeout
	}
	if cfg.RPM <= 0 {
		cfg.RPM = DefaultRPM
	}

	return &Generator{
		clients: &clientCache{keys: keys, clientOpts: opts},
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), max(1, cfg.RPM/10)),
		breaker: newBreaker("gemini-generate"),
	}
}

// Generate returns the model's plain-text answer to prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, false)
}

// GenerateJSON asks the model for an application/json response. The result is
// still raw text; callers parse it leniently.
func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, true)
}

func (g *Generator) generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	ctx, span := otel.Tracer("smartdoc/gemini").Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.prompt_chars", len(prompt)),
		attribute.Bool("gemini.json", jsonMode),
	)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: rate limiter: %v", apperr.ErrUpstreamTimeout, err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		client, err := g.clients.current(ctx)
		if err != nil {
			return nil, err
		}
		model := client.GenerativeModel(g.model)
		model.SetTemperature(0.3)
		if jsonMode {
			model.ResponseMIMEType = "application/json"
		}
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}
		return responseText(resp), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return "", fmt.Errorf("%w: generation circuit open", apperr.ErrUpstreamUnavailable)
		case errors.Is(err, ErrMissingAPIKey):
			return "", fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return "", fmt.Errorf("%w: generation exceeded %s", apperr.ErrUpstreamTimeout, g.timeout)
		}
		return "", fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}

	text := out.(string)
	span.SetAttributes(attribute.Int("gemini.answer_chars", len(text)))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// First candidate only.
		break
	}
	return strings.TrimSpace(sb.String())
}

func (g *Generator) Close() error {
	return g.clients.Close()
}
