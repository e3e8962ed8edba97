package storage

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidPath is returned when a filter, sort, or update key is not a dotted field path.
var ErrInvalidPath = errors.New("invalid field path")

// IDField is the reserved document key holding the store-assigned identifier.
const IDField = "_id"

// Document is a schemaless JSON object. Nested objects decode as map[string]any
// and numbers as float64.
type Document map[string]any

// ID returns the document identifier, or "" when absent.
func (d Document) ID() string {
	s, _ := d[IDField].(string)
	return s
}

// Lookup resolves a dotted path such as "queryPoster.email".
func (d Document) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" when absent or not a string.
func (d Document) String(path string) string {
	v, _ := d.Lookup(path)
	s, _ := v.(string)
	return s
}

// Int64 returns the number at path truncated to int64, or 0 when absent.
func (d Document) Int64(path string) int64 {
	v, _ := d.Lookup(path)
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

// Set writes v at a dotted path, creating intermediate objects as needed.
func (d Document) Set(path string, v any) {
	parts := strings.Split(path, ".")
	m := map[string]any(d)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(m[part])
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

// Filter selects documents by equality. Keys are IDField or dotted field paths;
// values are strings, numbers, booleans, or nil (field absent or null).
type Filter map[string]any

// SortField orders results by a dotted path. Direction is 1 for ascending and -1 for descending.
type SortField struct {
	Path      string
	Direction int
}

// FindOptions controls ordering and result size. Limit <= 0 means unlimited.
type FindOptions struct {
	Sort  []SortField
	Limit int
}

// Update describes a single-document modification. Set replaces values at
// dotted paths; Inc adds an integer delta, treating a missing field as 0.
type Update struct {
	Set map[string]any
	Inc map[string]int64
}

// UpdateOptions controls UpdateOne. With Upsert, a document built from the
// filter's equality fields and the update is inserted when nothing matches.
type UpdateOptions struct {
	Upsert bool
}

type InsertResult struct {
	InsertedID   string `json:"insertedId"`
	Acknowledged bool   `json:"acknowledged"`
}

type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

type UpdateResult struct {
	Acknowledged  bool    `json:"acknowledged"`
	MatchedCount  int64   `json:"matchedCount"`
	ModifiedCount int64   `json:"modifiedCount"`
	UpsertedCount int64   `json:"upsertedCount"`
	UpsertedID    *string `json:"upsertedId"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
