package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/state"
)

// Collection is one named set of documents.
type Collection struct {
	store *Store
	name  string
}

var _ readmodel.Collection = (*Collection)(nil)

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// FindByID returns the document stored for id.
func (c *Collection) FindByID(ctx context.Context, id string) (state.Object, bool, error) {
	return c.find(ctx, c.store.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Collection) find(ctx context.Context, q queryRower, id string) (state.Object, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = ? AND id = ?
	`, c.name, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find %s/%s: %w", c.name, id, err)
	}
	doc, err := state.ObjectFromJSON([]byte(raw))
	if err != nil {
		return nil, false, fmt.Errorf("find %s/%s: %w", c.name, id, err)
	}
	return doc, true, nil
}

// FindByIDAndUpdate merges fields into the existing document in one
// transaction. Missing documents are not created.
func (c *Collection) FindByIDAndUpdate(ctx context.Context, id string, fields state.Object) (state.Object, bool, error) {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("update %s/%s: begin: %w", c.name, id, err)
	}
	defer tx.Rollback()

	current, ok, err := c.find(ctx, tx, id)
	if err != nil || !ok {
		return nil, false, err
	}

	updated := state.Merge(current, fields)
	data, err := readmodel.MarshalDoc(updated)
	if err != nil {
		return nil, false, fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET doc = ?, updated_at = ? WHERE collection = ? AND id = ?
	`, string(data), c.store.timestamp(), c.name, id)
	if err != nil {
		return nil, false, fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("update %s/%s: commit: %w", c.name, id, err)
	}
	return updated, true, nil
}

// Put replaces the whole document for id, creating it if needed.
func (c *Collection) Put(ctx context.Context, id string, doc state.Object) error {
	data, err := readmodel.MarshalDoc(doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.name, id, err)
	}
	ts := c.store.timestamp()
	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`, c.name, id, string(data), ts, ts)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Delete removes the document for id. Deleting a missing id is not an error.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if _, err := c.store.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, c.name, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// AllIDs lists every id in the collection in ascending order.
func (c *Collection) AllIDs(ctx context.Context) ([]string, error) {
	return c.queryIDs(ctx, `
		SELECT id FROM documents WHERE collection = ? ORDER BY id COLLATE BINARY ASC
	`, c.name)
}

// IDsByFilter lists ids whose documents match every filter condition.
func (c *Collection) IDsByFilter(ctx context.Context, filter readmodel.Filter) ([]string, error) {
	conds, err := filter.Conditions()
	if err != nil {
		return nil, err
	}

	var (
		where strings.Builder
		args  = []any{c.name}
	)
	where.WriteString("collection = ?")
	for _, cond := range conds {
		if strings.ContainsAny(cond.Field, `"\`) {
			return nil, apperrors.InvalidInput("filter field %q contains quotes or backslashes", cond.Field)
		}
		path := `$."` + cond.Field + `"`
		switch v := cond.Value.(type) {
		case state.Null:
			where.WriteString(" AND json_type(doc, ?) = 'null'")
			args = append(args, path)
		case state.Bool:
			where.WriteString(" AND json_type(doc, ?) = ?")
			if v {
				args = append(args, path, "true")
			} else {
				args = append(args, path, "false")
			}
		case state.String:
			where.WriteString(" AND json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?")
			args = append(args, path, path, string(v))
		case state.Int:
			where.WriteString(" AND json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) = ?")
			args = append(args, path, path, int64(v))
		case state.Float:
			where.WriteString(" AND json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) = ?")
			args = append(args, path, path, float64(v))
		}
	}

	query := "SELECT id FROM documents WHERE " + where.String() + " ORDER BY id COLLATE BINARY ASC"
	return c.queryIDs(ctx, query, args...)
}

// IDsByDateRange lists ids whose documents were last written within
// [start, end].
func (c *Collection) IDsByDateRange(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := readmodel.ValidateRange(start, end); err != nil {
		return nil, err
	}
	return c.queryIDs(ctx, `
		SELECT id FROM documents
		WHERE collection = ? AND updated_at >= ? AND updated_at <= ?
		ORDER BY id COLLATE BINARY ASC
	`, c.name, formatTime(start), formatTime(end))
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE collection = ?
	`, c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

func (c *Collection) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", c.name, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", c.name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s ids: %w", c.name, err)
	}
	return ids, nil
}
