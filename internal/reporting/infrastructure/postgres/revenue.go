package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RevenueReader sums committed line items over a window. It runs against
// committed rows only and takes no locks, so it never contends with
// placements on the stock ledger.
type RevenueReader struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRevenueReader(log *slog.Logger, pool *pgxpool.Pool) *RevenueReader {
	return &RevenueReader{log: log, pool: pool}
}

func (r *RevenueReader) Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(oi.quantity * oi.unit_price), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2
	`, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}
