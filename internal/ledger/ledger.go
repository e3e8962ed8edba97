// Package ledger creates and deletes recommendations and keeps each query's
// queryPoster.recommendationCount in step with them.
//
// The counter is a best-effort mirror. The recommendation write and the
// counter write are two separate store operations with no transaction around
// them, so a failure between them leaves the counter off by one. Such
// failures are logged, counted, and queued for the repair worker, which
// resets the counter from a live count. Callers that need an exact number
// must count recommendations rather than read the counter.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/metrics"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/repair"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

// CountPath is the dotted path of the denormalized counter on a query.
const CountPath = "queryPoster.recommendationCount"

// Recommendation field names.
const (
	FieldQueryID       = "queryId"
	FieldRecommender   = "recommenderEmail"
	FieldQueryCreator  = "queryCreator"
	FieldRecommendedAt = "recommendedAt"
)

var (
	// ErrSelfRecommendation is returned when the recommender created the query.
	ErrSelfRecommendation = errors.New("you cannot recommend on your own query")

	// ErrInvalidRecommendation is returned when a required field is missing.
	ErrInvalidRecommendation = errors.New("invalid recommendation")
)

// DocumentCollection is the subset of storage.Collection the ledger needs.
type DocumentCollection interface {
	InsertOne(ctx context.Context, doc storage.Document) (storage.InsertResult, error)
	Find(ctx context.Context, f storage.Filter, opts storage.FindOptions) ([]storage.Document, error)
	DeleteOne(ctx context.Context, f storage.Filter) (storage.DeleteResult, error)
	UpdateOne(ctx context.Context, f storage.Filter, u storage.Update, opts storage.UpdateOptions) (storage.UpdateResult, error)
	Count(ctx context.Context, f storage.Filter) (int64, error)
	SetToCount(ctx context.Context, f storage.Filter, path string, source string, sourceFilter storage.Filter) (int64, storage.UpdateResult, error)
	Name() string
}

// RepairQueue accepts recount jobs for counters that failed to update.
type RepairQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Ledger maintains recommendations and their per-query counters.
type Ledger struct {
	queries         DocumentCollection
	recommendations DocumentCollection
	queue           RepairQueue
	metrics         *metrics.Metrics
	logger          *slog.Logger
	now             func() time.Time
}

// New creates a Ledger. queue and m may be nil; without a queue, counter
// failures are only logged.
func New(queries, recommendations DocumentCollection, queue RepairQueue, m *metrics.Metrics) *Ledger {
	return &Ledger{
		queries:         queries,
		recommendations: recommendations,
		queue:           queue,
		metrics:         m,
		logger:          slog.Default(),
		now:             time.Now,
	}
}

// CreateRecommendation validates input, inserts it with a server-assigned id,
// then increments the referenced query's counter. The result reflects the
// insert only; a failed increment is logged and queued for repair.
func (l *Ledger) CreateRecommendation(ctx context.Context, input storage.Document) (storage.InsertResult, error) {
	queryID, err := requireString(input, FieldQueryID)
	if err != nil {
		return storage.InsertResult{}, err
	}
	recommender, err := requireString(input, FieldRecommender)
	if err != nil {
		return storage.InsertResult{}, err
	}
	creator, err := requireString(input, FieldQueryCreator)
	if err != nil {
		return storage.InsertResult{}, err
	}
	if recommender == creator {
		return storage.InsertResult{}, ErrSelfRecommendation
	}

	doc := make(storage.Document, len(input)+1)
	for k, v := range input {
		if k != storage.IDField {
			doc[k] = v
		}
	}
	if _, ok := doc[FieldRecommendedAt]; !ok {
		doc[FieldRecommendedAt] = l.now().UTC().Format(time.RFC3339)
	}

	res, err := l.recommendations.InsertOne(ctx, doc)
	if err != nil {
		return storage.InsertResult{}, fmt.Errorf("inserting recommendation: %w", err)
	}
	l.metrics.LedgerWrite("create")

	// The recommendation is durable now; a client disconnect must not skip
	// the counter update.
	l.adjustCount(context.WithoutCancel(ctx), queryID, +1, "create")
	return res, nil
}

// DeleteRecommendation decrements the referenced query's counter, then
// deletes the recommendation. An empty or unknown queryID makes the
// decrement a no-op; the delete still runs. Once validated, both writes run
// to completion even if ctx is cancelled, matching CreateRecommendation.
func (l *Ledger) DeleteRecommendation(ctx context.Context, id, queryID string) (storage.DeleteResult, error) {
	if strings.TrimSpace(id) == "" {
		return storage.DeleteResult{}, fmt.Errorf("%w: missing recommendation id", ErrInvalidRecommendation)
	}
	ctx = context.WithoutCancel(ctx)

	if queryID != "" {
		l.adjustCount(ctx, queryID, -1, "delete")
	}

	res, err := l.recommendations.DeleteOne(ctx, storage.Filter{storage.IDField: id})
	if err != nil {
		return storage.DeleteResult{}, fmt.Errorf("deleting recommendation %s: %w", id, err)
	}
	if res.DeletedCount > 0 {
		l.metrics.LedgerWrite("delete")
	}
	return res, nil
}

// ListForPrincipal returns the recommendations email wrote (asRecommender)
// or received on their queries, newest first.
func (l *Ledger) ListForPrincipal(ctx context.Context, email string, asRecommender bool) ([]storage.Document, error) {
	field := FieldQueryCreator
	if asRecommender {
		field = FieldRecommender
	}
	return l.recommendations.Find(ctx, storage.Filter{field: email}, storage.FindOptions{
		Sort: []storage.SortField{{Path: FieldRecommendedAt, Direction: -1}},
	})
}

// ListByQuery returns the recommendations referencing queryID.
func (l *Ledger) ListByQuery(ctx context.Context, queryID string) ([]storage.Document, error) {
	return l.recommendations.Find(ctx, storage.Filter{FieldQueryID: queryID}, storage.FindOptions{})
}

// ListAll returns every recommendation.
func (l *Ledger) ListAll(ctx context.Context) ([]storage.Document, error) {
	return l.recommendations.Find(ctx, nil, storage.FindOptions{})
}

// Recount sets queryID's counter to the live number of recommendations
// referencing it. The count is taken inside the counter write, so a
// recommendation created concurrently is never dropped from the result. A
// missing query is not an error.
func (l *Ledger) Recount(ctx context.Context, queryID string) (int64, error) {
	n, res, err := l.queries.SetToCount(ctx, storage.Filter{storage.IDField: queryID}, CountPath,
		l.recommendations.Name(), storage.Filter{FieldQueryID: queryID})
	if err != nil {
		return 0, fmt.Errorf("recounting %s: %w", queryID, err)
	}
	if res.MatchedCount == 0 {
		l.logger.Debug("recount target missing", "query_id", queryID)
	}
	return n, nil
}

// adjustCount applies delta to the query counter as a single atomic
// increment. Failures never reach the caller.
func (l *Ledger) adjustCount(ctx context.Context, queryID string, delta int64, op string) {
	res, err := l.queries.UpdateOne(ctx, storage.Filter{storage.IDField: queryID},
		storage.Update{Inc: map[string]int64{CountPath: delta}}, storage.UpdateOptions{})
	if err != nil {
		l.logger.Warn("recommendation counter update failed",
			"query_id", queryID, "op", op, "delta", delta, "error", err)
		l.metrics.CounterUpdateFailed(op)
		l.scheduleRepair(ctx, queryID)
		return
	}
	if res.MatchedCount == 0 {
		l.logger.Debug("recommendation counter target missing", "query_id", queryID, "op", op)
	}
}

func (l *Ledger) scheduleRepair(ctx context.Context, queryID string) {
	if l.queue == nil {
		return
	}
	if err := l.queue.EnqueueJob(context.WithoutCancel(ctx), repair.NewRecountJob(queryID)); err != nil {
		l.logger.Error("could not queue counter repair", "query_id", queryID, "error", err)
	}
}

func requireString(doc storage.Document, field string) (string, error) {
	s, _ := doc[field].(string)
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidRecommendation, field)
	}
	return s, nil
}
