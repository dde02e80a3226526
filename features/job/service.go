package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"smartdoc/internal/apperr"
	"smartdoc/internal/indexing"
)

// Dispatcher is satisfied by indexing.Coordinator.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg indexing.IndexMessage) bool
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
}

func NewService(repo Repository, d Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: d}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Job, error) {
	return s.repo.List(ctx, f)
}

// RecordFailure stores a failed indexing stage. Ledger errors are logged and
// otherwise ignored so they never mask the indexing error itself.
func (s *Service) RecordFailure(ctx context.Context, docID, stage string, cause error) {
	payload, _ := json.Marshal(indexing.IndexMessage{DocID: docID})
	j := &Job{DocID: docID, Handler: stage, Payload: payload, Error: cause.Error()}
	if err := s.repo.Save(ctx, j); err != nil {
		slog.ErrorContext(ctx, "failed to record failed job", "doc_id", docID, "stage", stage, "error", err)
		return
	}
	slog.WarnContext(ctx, "indexing failure recorded", "job_id", j.ID, "doc_id", docID, "stage", stage, "retries", j.Retries)
}

// ResolveFailures forgets every failure of docID once it indexes cleanly.
func (s *Service) ResolveFailures(ctx context.Context, docID string) {
	n, err := s.repo.DeleteByDoc(ctx, docID)
	if err != nil {
		slog.WarnContext(ctx, "failed to clear failed jobs", "doc_id", docID, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "failed jobs resolved", "doc_id", docID, "count", n)
	}
}

// Retry re-dispatches a full re-index of the job's document, drops the
// job and returns the document id.
func (s *Service) Retry(ctx context.Context, id string) (string, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	var msg indexing.IndexMessage
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &msg); err != nil {
			slog.WarnContext(ctx, "unreadable job payload, using doc_id", "job_id", id, "error", err)
		}
	}
	if msg.DocID == "" {
		msg.DocID = job.DocID
	}
	if msg.DocID == "" {
		return "", fmt.Errorf("%w: job %s has no document", apperr.ErrInvalidInput, id)
	}
	msg.OnlyIfMissing = false

	if !s.dispatcher.Dispatch(ctx, msg) {
		return "", fmt.Errorf("%w: document %s could not be dispatched", apperr.ErrUpstreamUnavailable, msg.DocID)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return "", err
	}
	return msg.DocID, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

var _ indexing.FailureRecorder = (*Service)(nil)
