package domain

import "fmt"

// Demand maps product ids to the quantity one placement wants to take from
// the stock ledger. It is ephemeral, scoped to a single placement attempt.
type Demand map[string]int

// Add folds a requirement into the demand. Several line items referencing
// the same product accumulate into one entry, so the ledger sees a single
// decrement per product.
func (d Demand) Add(productID string, quantity int) {
	d[productID] += quantity
}

// ProductIDs returns the demanded products in no particular order.
func (d Demand) ProductIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	return ids
}

const (
	ReasonNotFound          = "not found"
	ReasonInsufficientStock = "insufficient stock"
)

// Violation describes one product that cannot satisfy its demand. A batch
// reports every violation it finds, not just the first.
type Violation struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func (v Violation) String() string {
	if v.Reason == ReasonNotFound {
		return fmt.Sprintf("product %s: not found", v.ProductID)
	}
	return fmt.Sprintf("product %s: requested %d, available %d", v.ProductID, v.Requested, v.Available)
}
