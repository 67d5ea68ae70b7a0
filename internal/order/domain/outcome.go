package domain

import (
	invdomain "github.com/nmalhotra/orderflow/internal/inventory/domain"
)

type OutcomeKind string

const (
	OutcomeCommitted         OutcomeKind = "committed"
	OutcomeDeclined          OutcomeKind = "declined"
	OutcomeInsufficientStock OutcomeKind = "insufficient_stock"
	OutcomeFailed            OutcomeKind = "failed"
)

// Outcome is the result of one placement attempt. Business refusals
// (Declined, InsufficientStock) are values the caller can branch on;
// only infrastructure problems carry an error.
type Outcome struct {
	Kind       OutcomeKind
	Order      Order
	Reason     string
	Violations []invdomain.Violation
	Err        error
}

func Committed(o Order) Outcome {
	return Outcome{Kind: OutcomeCommitted, Order: o}
}

func Declined(reason string) Outcome {
	return Outcome{Kind: OutcomeDeclined, Reason: reason}
}

func InsufficientStock(violations []invdomain.Violation) Outcome {
	return Outcome{Kind: OutcomeInsufficientStock, Violations: violations}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
