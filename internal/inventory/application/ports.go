package application

import (
	"context"

	"github.com/nmalhotra/orderflow/internal/inventory/domain"
)

// StockLedger validates and decrements stock for a batch of demands inside
// the caller's transaction. Implementations must lock the affected rows
// before reading them and keep the lock until the transaction ends, so the
// check and the decrement happen in one lock scope.
type StockLedger interface {
	LockAndDecrement(ctx context.Context, demand domain.Demand) ([]domain.Violation, error)
}
