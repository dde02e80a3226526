// Package worker holds the NSQ consumers that run background indexing.
package worker

import (
	"context"

	"smartdoc/internal/indexing"
)

// Indexer is satisfied by indexing.Coordinator.
type Indexer interface {
	IndexNow(ctx context.Context, docID string) (indexing.Result, error)
}

// IndexChecker reports whether a document already has chunks.
type IndexChecker interface {
	Has(ctx context.Context, docID string) bool
}
