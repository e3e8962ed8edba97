package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Collection is a named set of JSON documents within the documents table.
type Collection struct {
	db   *sql.DB
	name string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// jsonPath converts a dotted field path to a SQLite JSON path. Segments that
// are not plain identifiers are double-quoted, so keys such as "product-name"
// are addressable. Empty segments and segments containing a double quote,
// backslash or control character are rejected.
func jsonPath(field string) (string, error) {
	if field == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		if seg == "" || strings.ContainsAny(seg, "\"\\") || strings.IndexFunc(seg, unicode.IsControl) >= 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, field)
		}
		b.WriteString(".")
		if identRe.MatchString(seg) {
			b.WriteString(seg)
		} else {
			b.WriteString(`"` + seg + `"`)
		}
	}
	return b.String(), nil
}

// pathLiteral renders field's JSON path as a SQL string literal. Filters and
// sorts use the literal form so SQLite can match the expression indexes on
// json_extract(body, '$.field').
func pathLiteral(field string) (string, error) {
	path, err := jsonPath(field)
	if err != nil {
		return "", err
	}
	return "'" + strings.ReplaceAll(path, "'", "''") + "'", nil
}

// where renders a filter as a WHERE clause. Keys are visited in sorted order
// so the generated SQL is stable.
func (c *Collection) where(f Filter) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{c.name}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := f[k]
		if k == IDField {
			clauses = append(clauses, "id = ?")
			args = append(args, fmt.Sprint(v))
			continue
		}
		path, err := pathLiteral(k)
		if err != nil {
			return "", nil, err
		}
		switch val := v.(type) {
		case nil:
			clauses = append(clauses, "json_extract(body, "+path+") IS NULL")
		case bool:
			b := 0
			if val {
				b = 1
			}
			clauses = append(clauses, "json_extract(body, "+path+") = ?")
			args = append(args, b)
		case string, int, int64, float64:
			clauses = append(clauses, "json_extract(body, "+path+") = ?")
			args = append(args, val)
		default:
			return "", nil, fmt.Errorf("unsupported filter value for %s: %T", k, v)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func orderBy(sorts []SortField) (string, error) {
	var terms []string
	for _, s := range sorts {
		dir := "ASC"
		if s.Direction < 0 {
			dir = "DESC"
		}
		if s.Path == IDField {
			terms = append(terms, "id "+dir)
			continue
		}
		path, err := pathLiteral(s.Path)
		if err != nil {
			return "", err
		}
		terms = append(terms, "json_extract(body, "+path+") "+dir)
	}
	terms = append(terms, "rowid ASC")
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// InsertOne stores doc and returns its identifier. A string _id in doc is
// used as-is; otherwise a UUID is assigned. doc itself is not modified.
func (c *Collection) InsertOne(ctx context.Context, doc Document) (InsertResult, error) {
	id, err := insertDocument(ctx, c.db, c.name, doc)
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{InsertedID: id, Acknowledged: true}, nil
}

func insertDocument(ctx context.Context, q querier, collection string, doc Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	body := make(Document, len(doc))
	for k, v := range doc {
		if k != IDField {
			body[k] = v
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(raw), now, now,
	); err != nil {
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return id, nil
}

// Find returns the documents matching f. A nil filter matches everything.
func (c *Collection) Find(ctx context.Context, f Filter, opts FindOptions) ([]Document, error) {
	where, args, err := c.where(f)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(opts.Sort)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, body FROM documents WHERE " + where + order
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func decodeDocument(id, body string) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}
	doc[IDField] = id
	return doc, nil
}

// FindOne returns the first document matching f, or ErrNotFound.
func (c *Collection) FindOne(ctx context.Context, f Filter) (Document, error) {
	docs, err := c.Find(ctx, f, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// FindByID returns the document with the given identifier, or ErrNotFound.
func (c *Collection) FindByID(ctx context.Context, id string) (Document, error) {
	return c.FindOne(ctx, Filter{IDField: id})
}

// Count returns the number of documents matching f.
func (c *Collection) Count(ctx context.Context, f Filter) (int64, error) {
	where, args, err := c.where(f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", c.name, err)
	}
	return n, nil
}

// DeleteOne removes the first document matching f. Deleting nothing is not an error.
func (c *Collection) DeleteOne(ctx context.Context, f Filter) (DeleteResult, error) {
	where, args, err := c.where(f)
	if err != nil {
		return DeleteResult{}, err
	}
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM documents WHERE rowid = (SELECT rowid FROM documents WHERE "+where+" ORDER BY rowid LIMIT 1)",
		args...,
	)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("deleting from %s: %w", c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Acknowledged: true, DeletedCount: n}, nil
}

// UpdateOne applies u to the first document matching f. The read and the
// write run in one transaction, so concurrent increments on the same
// document do not lose updates.
func (c *Collection) UpdateOne(ctx context.Context, f Filter, u Update, opts UpdateOptions) (UpdateResult, error) {
	where, args, err := c.where(f)
	if err != nil {
		return UpdateResult{}, err
	}
	expr, exprArgs, err := updateExpr(u)
	if err != nil {
		return UpdateResult{}, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	var rowid int64
	err = tx.QueryRowContext(ctx, "SELECT rowid FROM documents WHERE "+where+" ORDER BY rowid LIMIT 1", args...).Scan(&rowid)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !opts.Upsert {
			return UpdateResult{Acknowledged: true}, nil
		}
		id, err := insertDocument(ctx, tx, c.name, upsertDocument(f, u))
		if err != nil {
			return UpdateResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return UpdateResult{}, fmt.Errorf("committing upsert: %w", err)
		}
		return UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: &id}, nil
	case err != nil:
		return UpdateResult{}, fmt.Errorf("locating document in %s: %w", c.name, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	exprArgs = append(exprArgs, now, rowid)
	if _, err := tx.ExecContext(ctx, "UPDATE documents SET body = "+expr+", updated_at = ? WHERE rowid = ?", exprArgs...); err != nil {
		return UpdateResult{}, fmt.Errorf("updating %s: %w", c.name, err)
	}
	if err := tx.Commit(); err != nil {
		return UpdateResult{}, fmt.Errorf("committing update: %w", err)
	}
	return UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

// SetToCount sets path on the first document matching f to the number of
// documents in the source collection matching sourceFilter. The count and the
// write are a single statement, so a concurrent insert into source is either
// counted or applied after the write, never lost. When nothing matches f the
// live count is still returned.
func (c *Collection) SetToCount(ctx context.Context, f Filter, path string, source string, sourceFilter Filter) (int64, UpdateResult, error) {
	where, args, err := c.where(f)
	if err != nil {
		return 0, UpdateResult{}, err
	}
	src := &Collection{db: c.db, name: source}
	srcWhere, srcArgs, err := src.where(sourceFilter)
	if err != nil {
		return 0, UpdateResult{}, err
	}
	jp, err := jsonPath(path)
	if err != nil {
		return 0, UpdateResult{}, err
	}

	query := "UPDATE documents SET body = json_set(body, ?, (SELECT COUNT(*) FROM documents WHERE " + srcWhere + ")), updated_at = ?" +
		" WHERE rowid = (SELECT rowid FROM documents WHERE " + where + " ORDER BY rowid LIMIT 1)" +
		" RETURNING json_extract(body, ?)"
	qargs := make([]any, 0, len(srcArgs)+len(args)+3)
	qargs = append(qargs, jp)
	qargs = append(qargs, srcArgs...)
	qargs = append(qargs, time.Now().UTC().Format(time.RFC3339Nano))
	qargs = append(qargs, args...)
	qargs = append(qargs, jp)

	var n int64
	err = c.db.QueryRowContext(ctx, query, qargs...).Scan(&n)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		n, err := src.Count(ctx, sourceFilter)
		if err != nil {
			return 0, UpdateResult{}, err
		}
		return n, UpdateResult{Acknowledged: true}, nil
	case err != nil:
		return 0, UpdateResult{}, fmt.Errorf("setting %s from %s count: %w", path, source, err)
	}
	return n, UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

// updateExpr nests one json_set call per modified path. Placeholders are
// appended in the same order they appear in the rendered expression.
func updateExpr(u Update) (string, []any, error) {
	expr := "body"
	var args []any

	for _, k := range sortedKeys(u.Set) {
		if k == IDField {
			continue
		}
		path, err := jsonPath(k)
		if err != nil {
			return "", nil, err
		}
		raw, err := json.Marshal(u.Set[k])
		if err != nil {
			return "", nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		expr = "json_set(" + expr + ", ?, json(?))"
		args = append(args, path, string(raw))
	}
	for _, k := range sortedKeys(u.Inc) {
		path, err := jsonPath(k)
		if err != nil {
			return "", nil, err
		}
		expr = "json_set(" + expr + ", ?, COALESCE(json_extract(body, ?), 0) + ?)"
		args = append(args, path, path, u.Inc[k])
	}
	return expr, args, nil
}

func upsertDocument(f Filter, u Update) Document {
	doc := Document{}
	for k, v := range f {
		if k == IDField {
			doc[IDField] = fmt.Sprint(v)
			continue
		}
		if v != nil {
			doc.Set(k, v)
		}
	}
	for k, v := range u.Set {
		if k != IDField {
			doc.Set(k, v)
		}
	}
	for k, v := range u.Inc {
		doc.Set(k, v)
	}
	return doc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
