package job

import (
	"encoding/json"
	"time"
)

// Job is the ledger entry for one failing stage of a document's indexing.
// Repeated failures of the same stage fold into the same entry.
type Job struct {
	ID      string `json:"id"`
	DocID   string `json:"doc_id"`
	Handler string `json:"handler"`
	// Payload is the indexing.IndexMessage replayed on retry.
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Filter narrows List. A zero Limit means DefaultListLimit.
type Filter struct {
	DocID string
	Limit int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}
