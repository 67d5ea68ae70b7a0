package domain

import (
	"time"

	"github.com/shopspring/decimal"

	invdomain "github.com/nmalhotra/orderflow/internal/inventory/domain"
)

// LineItem is one priced position of an order. An order may carry several
// line items for the same product; they are aggregated only when stock
// demand is built.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID        string
	BranchID  string
	Customer  string
	Items     []LineItem
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalOf recomputes an order total from its line items, rounded to
// 2 decimal places, half away from zero. Client-supplied totals are never
// trusted; this is the only way a total is produced.
func TotalOf(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Subtotal())
	}
	return total.Round(2)
}

// StockDemand aggregates the order's line items into per-product demand.
// Duplicate product references across line items are summed so the stock
// ledger performs exactly one decrement per product.
func (o Order) StockDemand() invdomain.Demand {
	d := make(invdomain.Demand, len(o.Items))
	for _, li := range o.Items {
		d.Add(li.ProductID, li.Quantity)
	}
	return d
}

func NewOrder(id, branchID, customer string, items []LineItem) Order {
	now := time.Now().UTC()
	return Order{
		ID:        id,
		BranchID:  branchID,
		Customer:  customer,
		Items:     items,
		Total:     TotalOf(items),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
