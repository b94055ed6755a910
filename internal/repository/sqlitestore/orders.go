// Package sqlitestore provides a SQLite-backed OrderRepository.
//
// Each order is stored as a JSON document next to the columns it is queried by
// (user id, status, creation time), so the user and status indexes serve the
// customer order history and the staff work queues.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medicart/internal/domain"
	"medicart/internal/repository"

	// pure-Go driver, registers "sqlite"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    order_number    TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    status          TEXT NOT NULL,
    payment_status  TEXT NOT NULL,
    emergency       INTEGER NOT NULL DEFAULT 0,
    document        TEXT NOT NULL,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_order_number ON orders(order_number);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_at);
`

// fixed width so TEXT ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Orders is the SQLite implementation of repository.OrderRepository.
type Orders struct {
	db *sql.DB
}

var _ repository.OrderRepository = (*Orders)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Orders, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Orders{db: db}, nil
}

func (r *Orders) Close() error {
	return r.db.Close()
}

func (r *Orders) Create(ctx context.Context, o *domain.Order) error {
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("sqlite: encode order %q: %w", o.ID, err)
	}
	const q = `
		INSERT INTO orders
			(id, order_number, user_id, status, payment_status, emergency, document, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		o.ID,
		o.OrderNumber,
		o.UserID,
		string(o.Status),
		string(o.PaymentStatus),
		o.Emergency,
		string(doc),
		o.CreatedAt.Format(timeLayout),
		o.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert order %q: %w", o.ID, err)
	}
	return nil
}

func (r *Orders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document FROM orders WHERE id = ?`, id)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get order %q: %w", id, err)
	}
	return decode(doc)
}

func (r *Orders) Update(ctx context.Context, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("sqlite: encode order %q: %w", o.ID, err)
	}
	const q = `
		UPDATE orders
		SET    status = ?, payment_status = ?, document = ?, updated_at = ?
		WHERE  id = ?`
	res, err := r.db.ExecContext(ctx, q,
		string(o.Status),
		string(o.PaymentStatus),
		string(doc),
		o.UpdatedAt.Format(timeLayout),
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update order %q: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update order %q: %w", o.ID, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Orders) ListByUser(ctx context.Context, userID string, f repository.OrderFilter) ([]domain.Order, error) {
	q := `SELECT document FROM orders WHERE user_id = ?`
	args := []any{userID}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limitArg(f.Limit), f.Offset)
	return r.query(ctx, q, args...)
}

func (r *Orders) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error) {
	const q = `SELECT document FROM orders WHERE status = ? ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`
	return r.query(ctx, q, string(status), limitArg(limit), offset)
}

func (r *Orders) query(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		o, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	return out, nil
}

func decode(doc string) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal([]byte(doc), &o); err != nil {
		return nil, fmt.Errorf("sqlite: decode order: %w", err)
	}
	return &o, nil
}

// SQLite treats a negative LIMIT as unbounded.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
