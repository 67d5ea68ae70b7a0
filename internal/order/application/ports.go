package application

import (
	"context"

	"github.com/shopspring/decimal"

	invapp "github.com/nmalhotra/orderflow/internal/inventory/application"
	"github.com/nmalhotra/orderflow/internal/order/domain"
	paydomain "github.com/nmalhotra/orderflow/internal/payment/domain"
)

// PlacementStore is the transaction-scoped persistence surface one
// placement works against. Every call shares the same underlying
// transaction; nothing becomes visible until the unit of work commits.
type PlacementStore interface {
	invapp.StockLedger

	// SaveOrder inserts the order, or on update replaces it together with
	// its full line-item set (delete and recreate, never a diff).
	SaveOrder(ctx context.Context, o domain.Order, isUpdate bool) error

	// QueueEvent stages an outbox row in the same transaction, so the event
	// exists exactly when the order does.
	QueueEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error
}

// UnitOfWork runs fn inside one transaction: commit when fn returns nil,
// roll back otherwise.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context, store PlacementStore) error) error
}

// PaymentGateway abstracts the external payment provider. Authorize returns
// a structured result, never an error; Void is the compensating reversal
// for an authorization whose placement did not commit.
type PaymentGateway interface {
	Authorize(ctx context.Context, amount decimal.Decimal) paydomain.Result
	Void(ctx context.Context, transactionID string) error
}

// OrderReader serves the read path with fully-materialized aggregates.
type OrderReader interface {
	Get(ctx context.Context, id string) (domain.Order, error)
}
