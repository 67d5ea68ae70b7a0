package application

import (
	"context"
	"log/slog"

	"github.com/nmalhotra/orderflow/internal/inventory/domain"
)

// Manager applies a stock demand batch against a ledger. It owns the batch
// hygiene rules; the ledger owns locking and the actual decrement.
type Manager struct {
	log *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{log: log}
}

// DecrementBatch drops malformed entries, then asks the ledger to validate
// and decrement the rest within the caller's transaction.
//
// A malformed entry (empty product id or non-positive quantity) is a caller
// bug in that one entry; it is logged and skipped, never failing the batch.
// An empty demand after cleanup is a no-op success. A non-nil violation
// list means the ledger refused the batch and nothing was decremented.
func (m *Manager) DecrementBatch(ctx context.Context, ledger StockLedger, demand domain.Demand) ([]domain.Violation, error) {
	clean := make(domain.Demand, len(demand))
	for id, qty := range demand {
		if id == "" || qty <= 0 {
			m.log.Warn("discarding malformed demand entry", "product_id", id, "quantity", qty)
			continue
		}
		clean[id] = qty
	}
	if len(clean) == 0 {
		return nil, nil
	}
	return ledger.LockAndDecrement(ctx, clean)
}
