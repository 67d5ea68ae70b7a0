package domain

import "github.com/shopspring/decimal"

type OrderPlaced struct {
	OrderID       string          `json:"order_id"`
	BranchID      string          `json:"branch_id"`
	Customer      string          `json:"customer"`
	Total         decimal.Decimal `json:"total"`
	Items         []LineItem      `json:"items"`
	TransactionID string          `json:"transaction_id,omitempty"`
	IsUpdate      bool            `json:"is_update"`
}
