package repair

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/metrics"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Recounter sets a query's counter to the number of live recommendations
// referencing it and returns the new value.
type Recounter interface {
	Recount(ctx context.Context, queryID string) (int64, error)
}

// Worker processes recount_query jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	recounter Recounter
	metrics   *metrics.Metrics
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 2s. m may be nil.
func NewWorker(store JobStore, recounter Recounter, m *metrics.Metrics, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		store:     store,
		recounter: recounter,
		metrics:   m,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("repair iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single recount_query job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{RecountJobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("repair job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		w.metrics.RepairJob(storage.JobFailed)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.metrics.RepairJob(storage.JobCompleted)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	queryID, err := parseRecountPayload(job.PayloadJSON)
	if err != nil {
		return err
	}
	n, err := w.recounter.Recount(ctx, queryID)
	if err != nil {
		return fmt.Errorf("recounting query %s: %w", queryID, err)
	}
	w.logger.Info("query counter repaired", "query_id", queryID, "recommendation_count", n)
	return nil
}
