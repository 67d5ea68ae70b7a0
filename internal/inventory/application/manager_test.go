package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmalhotra/orderflow/internal/inventory/domain"
)

type fakeLedger struct {
	got        domain.Demand
	calls      int
	violations []domain.Violation
	err        error
}

func (f *fakeLedger) LockAndDecrement(_ context.Context, demand domain.Demand) ([]domain.Violation, error) {
	f.calls++
	f.got = demand
	return f.violations, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecrementBatchDropsMalformedEntries(t *testing.T) {
	ledger := &fakeLedger{}
	m := NewManager(discardLogger())

	violations, err := m.DecrementBatch(context.Background(), ledger, domain.Demand{
		"p1": 3,
		"p2": 0,
		"":   4,
		"p3": -1,
	})
	require.NoError(t, err)
	assert.Empty(t, violations)
	require.Equal(t, 1, ledger.calls)
	assert.Equal(t, domain.Demand{"p1": 3}, ledger.got)
}

func TestDecrementBatchEmptyDemandIsNoop(t *testing.T) {
	ledger := &fakeLedger{}
	m := NewManager(discardLogger())

	violations, err := m.DecrementBatch(context.Background(), ledger, domain.Demand{"p1": 0})
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Zero(t, ledger.calls, "ledger must not be touched for an all-malformed batch")
}

func TestDecrementBatchReportsAllViolations(t *testing.T) {
	ledger := &fakeLedger{violations: []domain.Violation{
		{ProductID: "p1", Reason: domain.ReasonInsufficientStock, Available: 1, Requested: 5},
		{ProductID: "p2", Reason: domain.ReasonNotFound, Requested: 2},
	}}
	m := NewManager(discardLogger())

	violations, err := m.DecrementBatch(context.Background(), ledger, domain.Demand{"p1": 5, "p2": 2})
	require.NoError(t, err)
	assert.Len(t, violations, 2)
}

func TestDecrementBatchPropagatesStorageError(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("connection reset")}
	m := NewManager(discardLogger())

	_, err := m.DecrementBatch(context.Background(), ledger, domain.Demand{"p1": 1})
	require.Error(t, err)
}
