package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	invdomain "github.com/nmalhotra/orderflow/internal/inventory/domain"
	"github.com/nmalhotra/orderflow/internal/order/application"
	"github.com/nmalhotra/orderflow/internal/order/domain"
)

// UnitOfWork wraps one placement in a single pgx transaction. The store
// handed to fn is bound to that transaction, so stock locks taken by
// LockAndDecrement live exactly as long as the unit of work.
type UnitOfWork struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewUnitOfWork(log *slog.Logger, pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{log: log, pool: pool}
}

func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, store application.PlacementStore) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txStore{log: u.log, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txStore struct {
	log *slog.Logger
	tx  pgx.Tx
}

func (s *txStore) SaveOrder(ctx context.Context, o domain.Order, isUpdate bool) error {
	now := time.Now().UTC()
	_, err := s.tx.Exec(ctx, `INSERT INTO orders (id, branch_id, customer, total, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET branch_id=$2, customer=$3, total=$4, updated_at=$6`,
		o.ID, o.BranchID, o.Customer, o.Total, o.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}

	// Updates replace the whole line-item set; no diffing.
	if isUpdate {
		if _, err := s.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
			return fmt.Errorf("clear items for order %s: %w", o.ID, err)
		}
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice)
	}
	if err := s.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert items for order %s: %w", o.ID, err)
	}
	return nil
}

// LockAndDecrement takes FOR UPDATE locks on the demanded stock rows in
// ascending product-id order (so overlapping placements cannot deadlock),
// validates every entry under those locks, and decrements in one statement.
// Validation and decrement share the same lock scope; no interleaved writer
// can act on the quantities read here.
func (s *txStore) LockAndDecrement(ctx context.Context, demand invdomain.Demand) ([]invdomain.Violation, error) {
	ids := demand.ProductIDs()
	sort.Strings(ids)

	rows, err := s.tx.Query(ctx, `SELECT id, available_quantity FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock stock rows: %w", err)
	}
	available := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		available[id] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stock rows: %w", err)
	}

	var violations []invdomain.Violation
	for _, id := range ids {
		have, found := available[id]
		want := demand[id]
		switch {
		case !found:
			violations = append(violations, invdomain.Violation{ProductID: id, Reason: invdomain.ReasonNotFound, Requested: want})
		case have < want:
			violations = append(violations, invdomain.Violation{ProductID: id, Reason: invdomain.ReasonInsufficientStock, Available: have, Requested: want})
		}
	}
	if len(violations) > 0 {
		return violations, nil
	}

	qtys := make([]int32, len(ids))
	for i, id := range ids {
		qtys[i] = int32(demand[id])
	}
	ct, err := s.tx.Exec(ctx, `UPDATE products p
		SET available_quantity = GREATEST(p.available_quantity - d.qty, 0)
		FROM (SELECT unnest($1::text[]) AS id, unnest($2::int[]) AS qty) d
		WHERE p.id = d.id`, ids, qtys)
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}
	if int(ct.RowsAffected()) != len(ids) {
		return nil, fmt.Errorf("decrement stock: updated %d of %d rows", ct.RowsAffected(), len(ids))
	}
	return nil, nil
}

func (s *txStore) QueueEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')`,
		aggregateID, eventType, payload, traceparent)
	if err != nil {
		return fmt.Errorf("queue %s event: %w", eventType, err)
	}
	return nil
}

// Reader serves fully-materialized order aggregates outside any placement
// transaction.
type Reader struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewReader(log *slog.Logger, pool *pgxpool.Pool) *Reader {
	return &Reader{log: log, pool: pool}
}

func (r *Reader) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, customer, total, created_at, updated_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.BranchID, &o.Customer, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity, unit_price FROM order_items WHERE order_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load items for order %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ProductID, &li.Quantity, &li.UnitPrice); err != nil {
			return domain.Order{}, fmt.Errorf("scan item for order %s: %w", id, err)
		}
		o.Items = append(o.Items, li)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("read items for order %s: %w", id, err)
	}
	return o, nil
}
