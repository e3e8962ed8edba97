// Package queries is the catalog of posted questions.
package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

// HomeLimit is the number of queries shown on the home page.
const HomeLimit = 7

// Field paths on a query document.
const (
	FieldCategory    = "queryCategory"
	FieldPoster      = "queryPoster"
	FieldPosterEmail = "queryPoster.email"
	FieldPostedAt    = "queryPoster.currentDateAndTime"
	FieldCount       = "queryPoster.recommendationCount"
)

// ErrInvalidQuery is returned when a query document is missing its poster
// email or an update carries a queryPoster that is not an object.
var ErrInvalidQuery = errors.New("invalid query")

// Collection is the subset of storage.Collection the catalog needs.
type Collection interface {
	InsertOne(ctx context.Context, doc storage.Document) (storage.InsertResult, error)
	Find(ctx context.Context, f storage.Filter, opts storage.FindOptions) ([]storage.Document, error)
	FindOne(ctx context.Context, f storage.Filter) (storage.Document, error)
	DeleteOne(ctx context.Context, f storage.Filter) (storage.DeleteResult, error)
	UpdateOne(ctx context.Context, f storage.Filter, u storage.Update, opts storage.UpdateOptions) (storage.UpdateResult, error)
}

type Service struct {
	coll Collection
	now  func() time.Time
}

func NewService(coll Collection) *Service {
	return &Service{coll: coll, now: time.Now}
}

// ListOptions filters and limits List. Home applies HomeLimit unless Limit is set.
type ListOptions struct {
	Category string
	Home     bool
	Limit    int
}

var newestFirst = []storage.SortField{{Path: FieldPostedAt, Direction: -1}}

// Add stores a new query. The recommendation counter always starts at 0 and
// the posting time defaults to now.
func (s *Service) Add(ctx context.Context, input storage.Document) (storage.InsertResult, error) {
	doc := make(storage.Document, len(input))
	for k, v := range input {
		if k != storage.IDField {
			doc[k] = v
		}
	}
	if poster, ok := doc[FieldPoster].(map[string]any); ok {
		copied := make(map[string]any, len(poster)+2)
		for k, v := range poster {
			copied[k] = v
		}
		doc[FieldPoster] = copied
	}
	if strings.TrimSpace(doc.String(FieldPosterEmail)) == "" {
		return storage.InsertResult{}, fmt.Errorf("%w: %s is required", ErrInvalidQuery, FieldPosterEmail)
	}
	if _, ok := doc.Lookup(FieldPostedAt); !ok {
		doc.Set(FieldPostedAt, s.now().UTC().Format(time.RFC3339))
	}
	doc.Set(FieldCount, 0)

	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return storage.InsertResult{}, fmt.Errorf("inserting query: %w", err)
	}
	return res, nil
}

// List returns queries newest first, optionally narrowed to one category.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]storage.Document, error) {
	f := storage.Filter{}
	if opts.Category != "" {
		f[FieldCategory] = opts.Category
	}
	limit := opts.Limit
	if limit <= 0 && opts.Home {
		limit = HomeLimit
	}
	return s.coll.Find(ctx, f, storage.FindOptions{Sort: newestFirst, Limit: limit})
}

// ListByPoster returns the queries posted by email, newest first.
func (s *Service) ListByPoster(ctx context.Context, email string) ([]storage.Document, error) {
	return s.coll.Find(ctx, storage.Filter{FieldPosterEmail: email}, storage.FindOptions{Sort: newestFirst})
}

// Get returns one query or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (storage.Document, error) {
	return s.coll.FindOne(ctx, storage.Filter{storage.IDField: id})
}

// Delete removes a query. Recommendations that reference it are left in place.
func (s *Service) Delete(ctx context.Context, id string) (storage.DeleteResult, error) {
	return s.coll.DeleteOne(ctx, storage.Filter{storage.IDField: id})
}

// Update sets the fields in changes on query id, inserting it when absent.
// The recommendation counter is owned by the ledger and is never written
// here; a nested queryPoster object is merged field by field so the
// counter beside it survives. Any other queryPoster value is rejected with
// ErrInvalidQuery.
func (s *Service) Update(ctx context.Context, id string, changes storage.Document) (storage.UpdateResult, error) {
	set := make(map[string]any, len(changes))
	for k, v := range changes {
		switch k {
		case storage.IDField, FieldCount:
			continue
		case FieldPoster:
			poster, ok := v.(map[string]any)
			if !ok {
				return storage.UpdateResult{}, fmt.Errorf("%w: %s must be an object, got %T", ErrInvalidQuery, FieldPoster, v)
			}
			for pk, pv := range poster {
				if path := FieldPoster + "." + pk; path != FieldCount {
					set[path] = pv
				}
			}
			continue
		}
		set[k] = v
	}
	return s.coll.UpdateOne(ctx, storage.Filter{storage.IDField: id}, storage.Update{Set: set}, storage.UpdateOptions{Upsert: true})
}
