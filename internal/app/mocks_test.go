package app

import (
	"context"
	"sync"

	"smartdoc/internal/apperr"
	"smartdoc/internal/docstore"
)

// ScriptedSchema returns the queued errors from EnsureSchema in order, then
// nil once the script runs out.
type ScriptedSchema struct {
	Script []error
	Calls  int
}

func (s *ScriptedSchema) EnsureSchema(ctx context.Context) error {
	s.Calls++
	if len(s.Script) == 0 {
		return nil
	}
	err := s.Script[0]
	s.Script = s.Script[1:]
	return err
}

// FakeEmbedder maps every text to the same unit vector, so every chunk is a
// perfect vector match and ranking falls to lexical overlap.
type FakeEmbedder struct{}

func (FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type FakeGenerator struct {
	mu      sync.Mutex
	Answer  string
	Prompts []string
}

func (g *FakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, prompt)
	return g.Answer, nil
}

func (g *FakeGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.Generate(ctx, prompt)
}

func (g *FakeGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Prompts) == 0 {
		return ""
	}
	return g.Prompts[len(g.Prompts)-1]
}

type FakeFetcher map[string]string

func (f FakeFetcher) Fetch(ctx context.Context, docID string) (*docstore.Document, error) {
	body, ok := f[docID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &docstore.Document{ID: docID, Filename: docID + ".txt", MIMEType: "text/plain", Data: []byte(body)}, nil
}
