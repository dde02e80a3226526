// Package vector defines the backend-neutral chunk store used by indexing and
// retrieval.
package vector

import "context"

// DefaultTopK is the candidate count retrieval asks a backend for.
const DefaultTopK = 12

// Record is one chunk to write.
type Record struct {
	ChunkIndex int
	Section    string
	Text       string
	Embedding  []float32
}

// Match is one chunk returned by a similarity query. Similarity is
// 1 - cosine distance.
type Match struct {
	ChunkIndex int     `json:"chunk_index"`
	Section    string  `json:"section,omitempty"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// Distance is the cosine distance the similarity was derived from.
func (m Match) Distance() float64 {
	return 1 - m.Similarity
}

type DocumentInfo struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

type Health struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend"`
	Detail  string `json:"detail,omitempty"`
}

// Store is implemented by every vector backend. Read paths degrade to
// empty results instead of returning backend errors.
type Store interface {
	// Upsert writes recs for docID; rewriting the same (docID, ChunkIndex)
	// replaces the previous object. It returns the number written.
	Upsert(ctx context.Context, docID, filename string, recs []Record) (int, error)
	Delete(ctx context.Context, docID string) error
	Has(ctx context.Context, docID string) bool
	// Query returns at most topK chunks of docID, best first.
	Query(ctx context.Context, docID string, embedding []float32, topK int) []Match
	ListDocuments(ctx context.Context) []DocumentInfo
	Rename(ctx context.Context, docID, filename string) error
	Health(ctx context.Context) Health
	// Texts returns chunk texts of docID in chunk order.
	Texts(ctx context.Context, docID string, limit int) []string
}
