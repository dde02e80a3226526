// Package memory is an in-process vector backend using brute-force cosine
// similarity. It suits single-instance deployments and tests.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"smartdoc/internal/vector"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

type chunk struct {
	vector.Record
	norm float64
}

type document struct {
	filename string
	chunks   map[int]chunk
}

// Store keeps every document's chunks keyed by chunk index, so rewriting an
// index replaces it.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*document
}

func NewStore() *Store {
	return &Store{docs: make(map[string]*document)}
}

func (s *Store) Upsert(ctx context.Context, docID, filename string, recs []vector.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		doc = &document{chunks: make(map[int]chunk)}
		s.docs[docID] = doc
	}
	doc.filename = filename

	dim := 0
	for _, c := range doc.chunks {
		dim = len(c.Embedding)
		break
	}
	for _, r := range recs {
		if dim != 0 && len(r.Embedding) != dim {
			return 0, ErrDimensionMismatch
		}
		dim = len(r.Embedding)
	}

	for _, r := range recs {
		r.Embedding = append([]float32(nil), r.Embedding...)
		doc.chunks[r.ChunkIndex] = chunk{Record: r, norm: norm(r.Embedding)}
	}
	return len(recs), nil
}

func (s *Store) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	return nil
}

func (s *Store) Has(ctx context.Context, docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	return ok && len(doc.chunks) > 0
}

func (s *Store) Query(ctx context.Context, docID string, embedding []float32, topK int) []vector.Match {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	qn := norm(embedding)

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docID]
	if !ok || qn == 0 {
		return nil
	}

	matches := make([]vector.Match, 0, len(doc.chunks))
	for _, c := range doc.chunks {
		if len(c.Embedding) != len(embedding) || c.norm == 0 {
			continue
		}
		matches = append(matches, vector.Match{
			ChunkIndex: c.ChunkIndex,
			Section:    c.Section,
			Text:       c.Text,
			Similarity: dot(c.Embedding, embedding) / (c.norm * qn),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func (s *Store) ListDocuments(ctx context.Context) []vector.DocumentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]vector.DocumentInfo, 0, len(s.docs))
	for id, doc := range s.docs {
		out = append(out, vector.DocumentInfo{DocID: id, Filename: doc.filename, Chunks: len(doc.chunks)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}

func (s *Store) Rename(ctx context.Context, docID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[docID]; ok {
		doc.filename = filename
	}
	return nil
}

func (s *Store) Health(ctx context.Context) vector.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vector.Health{OK: true, Backend: "memory"}
}

func (s *Store) Texts(ctx context.Context, docID string, limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docID]
	if !ok {
		return nil
	}
	idxs := make([]int, 0, len(doc.chunks))
	for i := range doc.chunks {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	if limit > 0 && len(idxs) > limit {
		idxs = idxs[:limit]
	}

	out := make([]string, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, doc.chunks[i].Text)
	}
	return out
}

// ChunkIndexes returns the stored indexes of docID in ascending order.
func (s *Store) ChunkIndexes(docID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(doc.chunks))
	for i := range doc.chunks {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
