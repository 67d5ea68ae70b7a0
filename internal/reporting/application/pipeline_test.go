package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

type fakeRevenue struct {
	total decimal.Decimal
	calls int
}

func (r *fakeRevenue) Revenue(_ context.Context, _, _ time.Time) (decimal.Decimal, error) {
	r.calls++
	return r.total, nil
}

type fakeClient struct {
	submitFailures  int
	confirmFailures int
	submits         int
	confirms        int
	submitted       []Report
	confirmed       []string
}

func (c *fakeClient) Submit(_ context.Context, rep Report) (string, error) {
	c.submits++
	if c.submits <= c.submitFailures {
		return "", errors.New("report endpoint unavailable")
	}
	c.submitted = append(c.submitted, rep)
	return "ver-1", nil
}

func (c *fakeClient) Confirm(_ context.Context, verificationID string) error {
	c.confirms++
	if c.confirms <= c.confirmFailures {
		return errors.New("confirm endpoint unavailable")
	}
	c.confirmed = append(c.confirmed, verificationID)
	return nil
}

// passCache forwards every read to compute; cacheByKey remembers results.
type passCache struct{}

func (passCache) GetOrCompute(ctx context.Context, _ string, _ time.Duration, compute func(context.Context) (string, error)) (string, error) {
	return compute(ctx)
}

type memCache struct {
	values   map[string]string
	computes int
}

func (c *memCache) GetOrCompute(ctx context.Context, key string, _ time.Duration, compute func(context.Context) (string, error)) (string, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	c.computes++
	v, err := compute(ctx)
	if err != nil {
		return "", err
	}
	if c.values == nil {
		c.values = map[string]string{}
	}
	c.values[key] = v
	return v, nil
}

type memLedger struct {
	done map[string]bool
}

func (l *memLedger) Done(_ context.Context, period string) (bool, error) {
	return l.done[period], nil
}

func (l *memLedger) MarkDone(_ context.Context, period string) error {
	if l.done == nil {
		l.done = map[string]bool{}
	}
	l.done[period] = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pipelineWith(clk *fakeClock, client *fakeClient, cache Cache, ledger *memLedger, revenue *fakeRevenue) *Pipeline {
	return NewPipeline(discardLogger(), clk, revenue, client, cache, ledger, time.Hour, 10*time.Minute)
}

func mustTime(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	require.NoError(t, err)
	return ts
}

func TestTickSubmitsConfirmsAndMarksPeriod(t *testing.T) {
	clk := &fakeClock{now: mustTime(t, "2024-03-02T09:30:00Z")}
	client := &fakeClient{}
	ledger := &memLedger{}
	revenue := &fakeRevenue{total: decimal.RequireFromString("1234.50")}
	p := pipelineWith(clk, client, passCache{}, ledger, revenue)

	require.NoError(t, p.Tick(context.Background()))

	require.Len(t, client.submitted, 1)
	rep := client.submitted[0]
	assert.Equal(t, "daily_revenue", rep.Type)
	assert.NotEmpty(t, rep.ReportID)
	assert.Equal(t, mustTime(t, "2024-03-01T00:00:00Z"), rep.From)
	assert.Equal(t, mustTime(t, "2024-03-02T00:00:00Z"), rep.To)
	assert.True(t, rep.Total.Equal(decimal.RequireFromString("1234.50")))

	assert.Equal(t, []string{"ver-1"}, client.confirmed, "confirmation chained after submit")
	assert.True(t, ledger.done["2024-03-01"], "period marked only after confirmation")
}

func TestTickSkipsAlreadyReportedPeriod(t *testing.T) {
	clk := &fakeClock{now: mustTime(t, "2024-03-02T09:30:00Z")}
	client := &fakeClient{}
	ledger := &memLedger{done: map[string]bool{"2024-03-01": true}}
	p := pipelineWith(clk, client, passCache{}, ledger, &fakeRevenue{})

	require.NoError(t, p.Tick(context.Background()))
	assert.Zero(t, client.submits)
}

func TestTickRetriesSubmitWithBackoff(t *testing.T) {
	clk := &fakeClock{now: mustTime(t, "2024-03-02T09:30:00Z")}
	client := &fakeClient{submitFailures: 3}
	ledger := &memLedger{}
	p := pipelineWith(clk, client, passCache{}, ledger, &fakeRevenue{total: decimal.NewFromInt(10)})

	require.NoError(t, p.Tick(context.Background()))

	assert.Equal(t, 4, client.submits)
	require.Len(t, clk.sleeps, 3)
	for i := 1; i < len(clk.sleeps); i++ {
		assert.Greater(t, clk.sleeps[i], clk.sleeps[i-1]/2, "backoff grows with attempts")
	}
	assert.True(t, ledger.done["2024-03-01"])
}

func TestTickGivesUpAfterMaxAttempts(t *testing.T) {
	clk := &fakeClock{now: mustTime(t, "2024-03-02T09:30:00Z")}
	client := &fakeClient{submitFailures: maxAttempts}
	ledger := &memLedger{}
	p := pipelineWith(clk, client, passCache{}, ledger, &fakeRevenue{total: decimal.NewFromInt(10)})

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, maxAttempts, client.submits)
	assert.Zero(t, client.confirms, "no confirmation without a submitted report")
	assert.False(t, ledger.done["2024-03-01"], "failed period stays unreported for retry")
}

func TestTickConfirmFailureLeavesPeriodOpen(t *testing.T) {
	clk := &fakeClock{now: mustTime(t, "2024-03-02T09:30:00Z")}
	client := &fakeClient{confirmFailures: maxAttempts}
	ledger := &memLedger{}
	p := pipelineWith(clk, client, passCache{}, ledger, &fakeRevenue{total: decimal.NewFromInt(10)})

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.False(t, ledger.done["2024-03-01"])
}

func TestRevenueReadGoesThroughCache(t *testing.T) {
	clk := &fakeClock{now: mustTime(t, "2024-03-02T09:30:00Z")}
	ledger := &memLedger{}
	revenue := &fakeRevenue{total: decimal.NewFromInt(77)}
	cache := &memCache{}
	// confirm always fails so the same period is retried next tick
	client := &fakeClient{confirmFailures: 1 << 30}
	p := pipelineWith(clk, client, cache, ledger, revenue)

	_ = p.Tick(context.Background())
	_ = p.Tick(context.Background())

	assert.Equal(t, 1, revenue.calls, "second tick served from cache")
	assert.Equal(t, 1, cache.computes)
}
