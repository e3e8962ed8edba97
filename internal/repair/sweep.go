package repair

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

// DefaultSweepConcurrency bounds parallel recounts in Sweep.
const DefaultSweepConcurrency = 4

const countPath = "queryPoster.recommendationCount"

// QueryLister lists query documents.
type QueryLister interface {
	Find(ctx context.Context, f storage.Filter, opts storage.FindOptions) ([]storage.Document, error)
}

// Drift records a query whose stored counter disagreed with the live count.
type Drift struct {
	QueryID string
	Stored  int64
	Actual  int64
}

// SweepResult summarizes a Sweep run.
type SweepResult struct {
	Checked int
	Drifted []Drift
}

// Sweep recounts every query matched by f, at most limit at a time. A limit
// <= 0 uses DefaultSweepConcurrency. The first recount error cancels the rest.
func Sweep(ctx context.Context, queries QueryLister, rc Recounter, f storage.Filter, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = DefaultSweepConcurrency
	}

	docs, err := queries.Find(ctx, f, storage.FindOptions{})
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing queries: %w", err)
	}

	var (
		mu     sync.Mutex
		result = SweepResult{Checked: len(docs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, doc := range docs {
		id := doc.ID()
		stored := doc.Int64(countPath)
		g.Go(func() error {
			actual, err := rc.Recount(gctx, id)
			if err != nil {
				return fmt.Errorf("recounting query %s: %w", id, err)
			}
			if actual != stored {
				mu.Lock()
				result.Drifted = append(result.Drifted, Drift{QueryID: id, Stored: stored, Actual: actual})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	return result, nil
}
