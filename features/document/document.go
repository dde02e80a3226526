// Package document exposes indexing, consent and administration endpoints for
// uploaded documents.
package document

import (
	"context"
	"path/filepath"
	"strings"

	"smartdoc/internal/consent"
	"smartdoc/internal/indexing"
	"smartdoc/internal/vector"
)

// Indexer is satisfied by indexing.Coordinator.
type Indexer interface {
	IndexNow(ctx context.Context, docID string) (indexing.Result, error)
	IndexText(ctx context.Context, docID, filename, text string) (indexing.Result, error)
}

// ConsentStore is satisfied by consent.Gate.
type ConsentStore interface {
	SetConsent(docID string, confirmed bool) consent.Record
}

// ConversationResetter is satisfied by conversation.Router.
type ConversationResetter interface {
	Forget(docID string)
}

// Summary is one row of the document list.
type Summary struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Chunks int    `json:"chunks"`
}

func summarize(d vector.DocumentInfo) Summary {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Filename)), ".")
	if ext == "" {
		ext = "text"
	}
	name := d.Filename
	if name == "" {
		name = "unknown"
	}
	return Summary{ID: d.DocID, Name: name, Type: ext, Chunks: d.Chunks}
}

type docRef struct {
	DocumentID string `json:"documentId"`
	DocID      string `json:"doc_id"`
}

// id accepts either spelling of the document id.
func (r docRef) id() string {
	if id := strings.TrimSpace(r.DocumentID); id != "" {
		return id
	}
	return strings.TrimSpace(r.DocID)
}
