package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresOrderStore stores orders and their items in PostgreSQL
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InTx runs fn in one transaction
func (s *PostgresOrderStore) InTx(ctx context.Context, fn func(tx OrderTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresOrderTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

type postgresOrderTx struct {
	tx *sql.Tx
}

func (t *postgresOrderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	id := uuid.NewString()
	var createdAt time.Time
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, user_id, email, total, status) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		id, o.UserID, o.Email, o.Total, string(o.Status),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID = id
	o.CreatedAt = createdAt
	return nil
}

func (t *postgresOrderTx) InsertItems(ctx context.Context, orderID string, items []order.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ")
	args := make([]any, 0, len(items)*4)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, orderID, item.ProductID, item.Quantity, item.Price)
	}
	b.WriteString(" RETURNING id")

	rows, err := t.tx.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if i >= len(items) {
			break
		}
		if err := rows.Scan(&items[i].ID); err != nil {
			return fmt.Errorf("scan order item id: %w", err)
		}
		items[i].OrderID = orderID
		i++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	if i != len(items) {
		return fmt.Errorf("insert order items: %d of %d rows returned", i, len(items))
	}
	return nil
}

func (t *postgresOrderTx) ScheduleReconcile(ctx context.Context, job ReconcileJob) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reconcile_jobs (order_id, payload, run_at, state)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id) DO NOTHING`,
		job.OrderID, string(job.Payload), job.RunAt, string(JobScheduled),
	)
	if err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, email, total, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Email, &o.Total, &status, &o.CreatedAt); err != nil {
		return order.Order{}, err
	}
	s, err := order.ParseStatus(status)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = s
	o.Items = []order.OrderItem{}
	return o, nil
}

func (s *PostgresOrderStore) queryOrders(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return orders, nil
}

// ListByUser returns the orders of userID ordered by creation time
func (s *PostgresOrderStore) ListByUser(ctx context.Context, userID string, sort order.SortOrder) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	if sort == order.SortAsc {
		query = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at ASC, id ASC`
	}
	return s.queryOrders(ctx, query, userID)
}

func (s *PostgresOrderStore) ListAll(ctx context.Context) ([]order.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at ASC, id ASC`)
}

// ItemsForOrders returns the items of orderIDs joined with product names
func (s *PostgresOrderStore) ItemsForOrders(ctx context.Context, orderIDs []string) ([]order.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []order.OrderItem{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.price
		 FROM order_items oi
		 LEFT JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.id ASC`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := []order.OrderItem{}
	for rows.Next() {
		var item order.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return items, nil
}

func (s *PostgresOrderStore) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &o, nil
}

func (s *PostgresOrderStore) TransitionStatus(ctx context.Context, orderID string, from, to order.Status) (bool, error) {
	return transitionStatus(ctx, s.db, orderID, from, to)
}

// transitionStatus is the guarded status update shared by the admin path and the worker.
func transitionStatus(ctx context.Context, db execer, orderID string, from, to order.Status) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		orderID, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("update order %s status: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order %s status: %w", orderID, err)
	}
	return n == 1, nil
}
