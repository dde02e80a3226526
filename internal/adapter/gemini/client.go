// Package gemini adapts the Gemini API to the embedding and generation
// collaborators. The API key is read from settings on every call so a key
// changed through PUT /settings takes effect without a restart.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"

	"smartdoc/internal/settings"
)

var ErrMissingAPIKey = errors.New("gemini api key not configured")

// KeySource yields the current settings row.
type KeySource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// clientCache holds one genai client per API key and swaps it when the key
// changes.
type clientCache struct {
	keys       KeySource
	clientOpts []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func (c *clientCache) current(ctx context.Context) (*genai.Client, error) {
	s, err := c.keys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return c.get(ctx, s.GeminiAPIKey)
}

func (c *clientCache) get(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	c.currentKey = key
	return client, nil
}

func (c *clientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.currentKey = ""
	return err
}

// newBreaker trips when at least 60% of 5 or more calls in a 30s window
// fail. A missing key is a configuration problem, not an outage, so it
// never counts.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMissingAPIKey)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}
