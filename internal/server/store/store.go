// Package store is the query layer over the lexkey database. It follows
// the Queries-over-DBTX convention so the same methods run against a bare
// connection or inside a transaction.
package store

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries exposes all database operations.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// List is a named ordered collection.
type List struct {
	ID        string
	Slug      string
	Title     string
	CreatedAt string
}

// Item is an entry in a list, ordered by its Position key.
type Item struct {
	ID        string
	ListID    string
	Payload   string
	Position  string
	CreatedAt string
	UpdatedAt string
}

// CreateListParams holds the arguments for CreateList.
type CreateListParams struct {
	ID    string
	Slug  string
	Title string
}

func (q *Queries) CreateList(ctx context.Context, arg CreateListParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO lists (id, slug, title) VALUES (?, ?, ?)`,
		arg.ID, arg.Slug, arg.Title)
	return err
}

func (q *Queries) GetListBySlug(ctx context.Context, slug string) (List, error) {
	var l List
	err := q.db.QueryRowContext(ctx,
		`SELECT id, slug, title, created_at FROM lists WHERE slug = ?`, slug).
		Scan(&l.ID, &l.Slug, &l.Title, &l.CreatedAt)
	return l, err
}

func (q *Queries) GetListByID(ctx context.Context, id string) (List, error) {
	var l List
	err := q.db.QueryRowContext(ctx,
		`SELECT id, slug, title, created_at FROM lists WHERE id = ?`, id).
		Scan(&l.ID, &l.Slug, &l.Title, &l.CreatedAt)
	return l, err
}

func (q *Queries) ListLists(ctx context.Context) ([]List, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, slug, title, created_at FROM lists ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.Slug, &l.Title, &l.CreatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (q *Queries) DeleteList(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	return err
}

// CreateItemParams holds the arguments for CreateItem.
type CreateItemParams struct {
	ID       string
	ListID   string
	Payload  string
	Position string
}

func (q *Queries) CreateItem(ctx context.Context, arg CreateItemParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO items (id, list_id, payload, position) VALUES (?, ?, ?, ?)`,
		arg.ID, arg.ListID, arg.Payload, arg.Position)
	return err
}

func (q *Queries) GetItem(ctx context.Context, id string) (Item, error) {
	var it Item
	err := q.db.QueryRowContext(ctx,
		`SELECT id, list_id, payload, position, created_at, updated_at
		 FROM items WHERE id = ?`, id).
		Scan(&it.ID, &it.ListID, &it.Payload, &it.Position, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// ListItemsByList returns the list's items in key order.
func (q *Queries) ListItemsByList(ctx context.Context, listID string) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, list_id, payload, position, created_at, updated_at
		 FROM items WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ListID, &it.Payload, &it.Position, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// FirstPosition returns the smallest position key in the list, or "" when
// the list is empty.
func (q *Queries) FirstPosition(ctx context.Context, listID string) (string, error) {
	var pos string
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(position), '') FROM items WHERE list_id = ?`, listID).
		Scan(&pos)
	return pos, err
}

// LastPosition returns the largest position key in the list, or "" when
// the list is empty.
func (q *Queries) LastPosition(ctx context.Context, listID string) (string, error) {
	var pos string
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), '') FROM items WHERE list_id = ?`, listID).
		Scan(&pos)
	return pos, err
}

// PrevPosition returns the largest position key strictly below position,
// or "" when none exists.
func (q *Queries) PrevPosition(ctx context.Context, listID, position string) (string, error) {
	var pos string
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), '') FROM items WHERE list_id = ? AND position < ?`,
		listID, position).
		Scan(&pos)
	return pos, err
}

// NextPosition returns the smallest position key strictly above position,
// or "" when none exists.
func (q *Queries) NextPosition(ctx context.Context, listID, position string) (string, error) {
	var pos string
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(position), '') FROM items WHERE list_id = ? AND position > ?`,
		listID, position).
		Scan(&pos)
	return pos, err
}

// UpdateItemPositionParams holds the arguments for UpdateItemPosition.
type UpdateItemPositionParams struct {
	ID       string
	Position string
}

func (q *Queries) UpdateItemPosition(ctx context.Context, arg UpdateItemPositionParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE items SET position = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, arg.Position, arg.ID)
	return err
}

// UpdateItemPayloadParams holds the arguments for UpdateItemPayload.
type UpdateItemPayloadParams struct {
	ID      string
	Payload string
}

func (q *Queries) UpdateItemPayload(ctx context.Context, arg UpdateItemPayloadParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE items SET payload = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, arg.Payload, arg.ID)
	return err
}

func (q *Queries) DeleteItem(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

func (q *Queries) CountItems(ctx context.Context, listID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT count(*) FROM items WHERE list_id = ?`, listID).
		Scan(&n)
	return n, err
}

// MaxPositionLength returns the length of the longest position key in the
// list, 0 when empty. Used to decide whether a list needs compaction.
func (q *Queries) MaxPositionLength(ctx context.Context, listID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(LENGTH(position)), 0) FROM items WHERE list_id = ?`, listID).
		Scan(&n)
	return n, err
}
