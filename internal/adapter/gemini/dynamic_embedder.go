package gemini

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	"smartdoc/internal/apperr"
)

const DefaultEmbedModel = "text-embedding-004"

// maxEmbedBytes keeps inputs under the model's 2048-token window.
const maxEmbedBytes = 8000

// DynamicEmbedder embeds chunk and question text with the API key currently
// stored in settings. Calls share one circuit breaker.
type DynamicEmbedder struct {
	clients *clientCache
	model   string
	breaker *gobreaker.CircuitBreaker
}

func NewDynamicEmbedder(keys KeySource, model string, opts ...option.ClientOption) *DynamicEmbedder {
	if model == "" {
		model = DefaultEmbedModel
	}
	return &DynamicEmbedder{
		clients: &clientCache{keys: keys, clientOpts: opts},
		model:   model,
		breaker: newBreaker("gemini-embed"),
	}
}

func (e *DynamicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("smartdoc/gemini").Start(ctx, "gemini.embed")
	defer span.End()

	text, clipped := clipUTF8(text, maxEmbedBytes)
	span.SetAttributes(
		attribute.String("gemini.model", e.model),
		attribute.Int("gemini.input_bytes", len(text)),
		attribute.Bool("gemini.clipped", clipped),
	)

	out, err := e.breaker.Execute(func() (interface{}, error) {
		client, err := e.clients.current(ctx)
		if err != nil {
			return nil, err
		}
		res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, fmt.Errorf("model %s returned an empty embedding", e.model)
		}
		return res.Embedding.Values, nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: embedding circuit open", apperr.ErrUpstreamUnavailable)
		}
		return nil, err
	}
	return out.([]float32), nil
}

func (e *DynamicEmbedder) Close() error {
	return e.clients.Close()
}

// clipUTF8 cuts s to at most n bytes without splitting a rune.
func clipUTF8(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}
