package queries

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewService(s.Queries()), s
}

func newQuery(email, category, postedAt string) storage.Document {
	return storage.Document{
		"queryTitle":    "Best budget phone?",
		FieldCategory:   category,
		FieldPoster: map[string]any{
			"email":              email,
			"currentDateAndTime": postedAt,
		},
	}
}

func TestAdd_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	fixed := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	in := storage.Document{
		"queryTitle": "q",
		FieldPoster: map[string]any{"email": "a@x.com", "recommendationCount": 42},
	}
	res, err := svc.Add(ctx, in)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !res.Acknowledged || res.InsertedID == "" {
		t.Errorf("result = %+v", res)
	}

	got, err := svc.Get(ctx, res.InsertedID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Int64(FieldCount) != 0 {
		t.Errorf("recommendationCount = %d, want 0 regardless of input", got.Int64(FieldCount))
	}
	if got.String(FieldPostedAt) != "2025-05-01T09:30:00Z" {
		t.Errorf("currentDateAndTime = %q", got.String(FieldPostedAt))
	}
}

func TestAdd_RequiresPosterEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add(context.Background(), storage.Document{"queryTitle": "anonymous"})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestList_CategoryAndHome(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		category := "Tech"
		if i%2 == 1 {
			category = "Food"
		}
		posted := fmt.Sprintf("2025-01-%02dT00:00:00Z", i+1)
		if _, err := svc.Add(ctx, newQuery("a@x.com", category, posted)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("List = %d, want 10", len(all))
	}
	if all[0].String(FieldPostedAt) != "2025-01-10T00:00:00Z" {
		t.Errorf("newest first: got %s", all[0].String(FieldPostedAt))
	}

	home, err := svc.List(ctx, ListOptions{Home: true})
	if err != nil {
		t.Fatalf("List home: %v", err)
	}
	if len(home) != HomeLimit {
		t.Errorf("home = %d, want %d", len(home), HomeLimit)
	}

	food, err := svc.List(ctx, ListOptions{Category: "Food"})
	if err != nil {
		t.Fatalf("List category: %v", err)
	}
	if len(food) != 5 {
		t.Errorf("Food = %d, want 5", len(food))
	}
	for _, d := range food {
		if d.String(FieldCategory) != "Food" {
			t.Errorf("unexpected category %q", d.String(FieldCategory))
		}
	}
}

func TestListByPoster(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.Add(ctx, newQuery("a@x.com", "Tech", "2025-01-01T00:00:00Z"))
	svc.Add(ctx, newQuery("b@x.com", "Tech", "2025-01-02T00:00:00Z"))
	svc.Add(ctx, newQuery("a@x.com", "Tech", "2025-01-03T00:00:00Z"))

	mine, err := svc.ListByPoster(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("ListByPoster: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("len = %d, want 2", len(mine))
	}
	if mine[0].String(FieldPostedAt) != "2025-01-03T00:00:00Z" {
		t.Errorf("newest first: got %s", mine[0].String(FieldPostedAt))
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want storage.ErrNotFound", err)
	}
}

func TestDelete_LeavesRecommendations(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Add(ctx, newQuery("a@x.com", "Tech", "2025-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Recommendations().InsertOne(ctx, storage.Document{"queryId": res.InsertedID}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	del, err := svc.Delete(ctx, res.InsertedID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if del.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, want 1", del.DeletedCount)
	}
	n, _ := store.Recommendations().Count(ctx, storage.Filter{"queryId": res.InsertedID})
	if n != 1 {
		t.Errorf("orphaned recommendations = %d, want 1", n)
	}
}

func TestUpdate_PreservesCounter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Add(ctx, newQuery("a@x.com", "Tech", "2025-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = store.Queries().UpdateOne(ctx, storage.Filter{storage.IDField: res.InsertedID},
		storage.Update{Inc: map[string]int64{FieldCount: 3}}, storage.UpdateOptions{})
	if err != nil {
		t.Fatalf("seeding counter: %v", err)
	}

	up, err := svc.Update(ctx, res.InsertedID, storage.Document{
		storage.IDField: "ignored",
		"queryTitle":    "Renamed",
		FieldPoster: map[string]any{
			"email":               "a@x.com",
			"name":                "Alice",
			"recommendationCount": 0,
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.MatchedCount != 1 {
		t.Errorf("MatchedCount = %d, want 1", up.MatchedCount)
	}

	got, err := svc.Get(ctx, res.InsertedID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.String("queryTitle") != "Renamed" || got.String("queryPoster.name") != "Alice" {
		t.Errorf("fields not updated: %v", got)
	}
	if got.Int64(FieldCount) != 3 {
		t.Errorf("recommendationCount = %d, want 3 (counter is ledger-owned)", got.Int64(FieldCount))
	}
}

func TestUpdate_Upserts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	up, err := svc.Update(ctx, "fresh-id", storage.Document{"queryTitle": "New"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.UpsertedCount != 1 {
		t.Errorf("UpsertedCount = %d, want 1", up.UpsertedCount)
	}
	if _, err := svc.Get(ctx, "fresh-id"); err != nil {
		t.Errorf("Get after upsert: %v", err)
	}
}

func TestUpdate_RejectsNonObjectPoster(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Add(ctx, newQuery("a@x.com", "Tech", "2025-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = store.Queries().UpdateOne(ctx, storage.Filter{storage.IDField: res.InsertedID},
		storage.Update{Inc: map[string]int64{FieldCount: 2}}, storage.UpdateOptions{})
	if err != nil {
		t.Fatalf("seeding counter: %v", err)
	}

	for _, poster := range []any{nil, "a@x.com", 7.0, []any{"x"}} {
		_, err := svc.Update(ctx, res.InsertedID, storage.Document{"queryTitle": "Renamed", FieldPoster: poster})
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Update(queryPoster=%v): err = %v, want ErrInvalidQuery", poster, err)
		}
	}

	got, err := svc.Get(ctx, res.InsertedID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Int64(FieldCount) != 2 {
		t.Errorf("recommendationCount = %d, want 2", got.Int64(FieldCount))
	}
	if got.String("queryTitle") == "Renamed" {
		t.Error("rejected update was partially applied")
	}
}

func TestUpdate_HyphenatedKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Add(ctx, newQuery("a@x.com", "Tech", "2025-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := svc.Update(ctx, res.InsertedID, storage.Document{"product-name": "Pixel"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := svc.Get(ctx, res.InsertedID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.String("product-name") != "Pixel" {
		t.Errorf("product-name = %q, want Pixel", got.String("product-name"))
	}
}
