package indexing

import (
	"sync"
	"time"
)

// QueuedTTL bounds how long a published index message counts as pending
// when no local run picks it up, e.g. a worker in another process.
const QueuedTTL = 2 * time.Minute

// Tickets records which documents have an indexing run in flight, and which
// have been handed to the queue but not yet picked up.
type Tickets struct {
	mu     sync.Mutex
	active map[string]struct{}
	queued map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewTickets() *Tickets {
	return &Tickets{
		active: make(map[string]struct{}),
		queued: make(map[string]time.Time),
		ttl:    QueuedTTL,
		now:    time.Now,
	}
}

// Acquire claims docID. It returns false when a run already holds it.
// A successful claim consumes any queued marker.
func (t *Tickets) Acquire(docID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.active[docID]; busy {
		return false
	}
	t.active[docID] = struct{}{}
	delete(t.queued, docID)
	return true
}

func (t *Tickets) Release(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, docID)
}

func (t *Tickets) Active(docID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.active[docID]
	return busy
}

// Queue marks docID as published. It returns false while a run holds the
// document or an earlier marker is younger than the TTL.
func (t *Tickets) Queue(docID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.active[docID]; busy || t.queuedLocked(docID) {
		return false
	}
	t.queued[docID] = t.now()
	return true
}

// Unqueue drops the marker of a message that was never published.
func (t *Tickets) Unqueue(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queued, docID)
}

// Pending reports an active run or a fresh queued marker.
func (t *Tickets) Pending(docID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.active[docID]
	return busy || t.queuedLocked(docID)
}

func (t *Tickets) queuedLocked(docID string) bool {
	at, ok := t.queued[docID]
	if !ok {
		return false
	}
	if t.now().Sub(at) >= t.ttl {
		delete(t.queued, docID)
		return false
	}
	return true
}

func (t *Tickets) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
