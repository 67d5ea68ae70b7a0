package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	invapp "github.com/nmalhotra/orderflow/internal/inventory/application"
	invdomain "github.com/nmalhotra/orderflow/internal/inventory/domain"
	"github.com/nmalhotra/orderflow/internal/order/domain"
)

// PlaceRequest is a fully-materialized draft order plus the flags that
// steer update semantics. Any client-supplied total on the draft is
// ignored; the orchestrator recomputes it from the line items.
type PlaceRequest struct {
	Order    domain.Order
	IsUpdate bool
	// ItemsChanged tells an update whether the line-item set differs from
	// the persisted one. When false, payment and inventory are skipped so
	// re-submitting an unchanged order never re-decrements stock.
	ItemsChanged bool
	Traceparent  string
}

// Placer runs the placement transaction: price, authorize, decrement,
// persist — all or nothing. It is the only component with cross-cutting
// rollback responsibility.
type Placer struct {
	log       *slog.Logger
	uow       UnitOfWork
	gateway   PaymentGateway
	inventory *invapp.Manager
	tracer    trace.Tracer
}

func NewPlacer(log *slog.Logger, uow UnitOfWork, gateway PaymentGateway, inventory *invapp.Manager) *Placer {
	return &Placer{
		log:       log,
		uow:       uow,
		gateway:   gateway,
		inventory: inventory,
		tracer:    otel.Tracer("order-placer"),
	}
}

// declinedErr and stockErr carry business refusals out of the unit of work
// so it rolls back; Place converts them into typed outcomes at the edge.
type declinedErr struct{ reason string }

func (e *declinedErr) Error() string { return "payment declined: " + e.reason }

type stockErr struct{ violations []invdomain.Violation }

func (e *stockErr) Error() string {
	return fmt.Sprintf("insufficient stock for %d product(s)", len(e.violations))
}

func (p *Placer) Place(ctx context.Context, req PlaceRequest) domain.Outcome {
	ctx, span := p.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	o := req.Order
	o.Total = domain.TotalOf(o.Items)

	// A zero-value order is valid and moves no money and no stock. An
	// update with an untouched item set is stock-idempotent by the same
	// route: persistence only.
	skipSideEffects := len(o.Items) == 0 || o.Total.IsZero() || (req.IsUpdate && !req.ItemsChanged)

	var transactionID string
	err := p.uow.Run(ctx, func(ctx context.Context, store PlacementStore) error {
		if !skipSideEffects {
			res := p.gateway.Authorize(ctx, o.Total)
			if !res.Success {
				return &declinedErr{reason: res.Message}
			}
			transactionID = res.TransactionID

			violations, err := p.inventory.DecrementBatch(ctx, store, o.StockDemand())
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if len(violations) > 0 {
				return &stockErr{violations: violations}
			}
		}

		if err := store.SaveOrder(ctx, o, req.IsUpdate); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		payload, err := json.Marshal(domain.OrderPlaced{
			OrderID:       o.ID,
			BranchID:      o.BranchID,
			Customer:      o.Customer,
			Total:         o.Total,
			Items:         o.Items,
			TransactionID: transactionID,
			IsUpdate:      req.IsUpdate,
		})
		if err != nil {
			return fmt.Errorf("encode placement event: %w", err)
		}
		return store.QueueEvent(ctx, o.ID, "OrderPlaced", payload, req.Traceparent)
	})
	if err == nil {
		p.log.Info("order placed", "order_id", o.ID, "total", o.Total, "update", req.IsUpdate)
		return domain.Committed(o)
	}

	var de *declinedErr
	if errors.As(err, &de) {
		p.log.Info("order declined", "order_id", o.ID, "reason", de.reason)
		return domain.Declined(de.reason)
	}

	var se *stockErr
	if errors.As(err, &se) {
		// The database effects rolled back with the transaction, but the
		// authorization already happened outside it. Reverse it so no
		// money stays held for an order that never existed.
		p.compensate(ctx, o.ID, transactionID)
		p.log.Info("order rejected, insufficient stock", "order_id", o.ID, "violations", len(se.violations))
		return domain.InsufficientStock(se.violations)
	}

	if transactionID != "" {
		p.compensate(ctx, o.ID, transactionID)
	}
	p.log.Error("order placement failed", "order_id", o.ID, "err", err)
	return domain.Failed(err)
}

func (p *Placer) compensate(ctx context.Context, orderID, transactionID string) {
	if transactionID == "" {
		return
	}
	if err := p.gateway.Void(ctx, transactionID); err != nil {
		// Nothing more we can do inline; reconciliation picks this up by
		// transaction id.
		p.log.Error("payment void failed", "order_id", orderID, "transaction_id", transactionID, "err", err)
		return
	}
	p.log.Info("payment voided", "order_id", orderID, "transaction_id", transactionID)
}
