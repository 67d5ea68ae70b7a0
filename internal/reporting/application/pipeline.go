package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nmalhotra/orderflow/pkg/clock"
)

const (
	maxAttempts = 5
	baseBackoff = 200 * time.Millisecond
)

// Pipeline publishes daily revenue to the external reporting endpoint. Each
// tick it looks at the previous UTC day: read the (cached) revenue sum,
// submit with bounded exponential backoff, confirm with the returned
// verification id, then mark the period done.
type Pipeline struct {
	log      *slog.Logger
	clk      clock.Clock
	revenue  RevenueReader
	client   ReportClient
	cache    Cache
	ledger   PeriodLedger
	interval time.Duration
	cacheTTL time.Duration
}

func NewPipeline(log *slog.Logger, clk clock.Clock, revenue RevenueReader, client ReportClient, cache Cache, ledger PeriodLedger, interval, cacheTTL time.Duration) *Pipeline {
	return &Pipeline{
		log:      log,
		clk:      clk,
		revenue:  revenue,
		client:   client,
		cache:    cache,
		ledger:   ledger,
		interval: interval,
		cacheTTL: cacheTTL,
	}
}

func (p *Pipeline) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("reporting pipeline stopping")
			return nil
		case <-t.C:
			if err := p.Tick(ctx); err != nil {
				p.log.Error("reporting tick failed", "err", err)
			}
		}
	}
}

// Tick processes the period ending at the last UTC midnight. Exported so
// tests drive the pipeline without the ticker.
func (p *Pipeline) Tick(ctx context.Context) error {
	to := p.clk.Now().UTC().Truncate(24 * time.Hour)
	from := to.Add(-24 * time.Hour)
	period := from.Format("2006-01-02")

	done, err := p.ledger.Done(ctx, period)
	if err != nil {
		return fmt.Errorf("check period %s: %w", period, err)
	}
	if done {
		return nil
	}

	total, err := p.cachedRevenue(ctx, from, to)
	if err != nil {
		return fmt.Errorf("read revenue for %s: %w", period, err)
	}

	rep := Report{
		ReportID: uuid.NewString(),
		Type:     "daily_revenue",
		From:     from,
		To:       to,
		Total:    total,
	}

	verificationID, err := p.submitWithRetry(ctx, rep)
	if err != nil {
		return fmt.Errorf("submit report for %s: %w", period, err)
	}
	if err := p.confirmWithRetry(ctx, verificationID); err != nil {
		return fmt.Errorf("confirm report for %s: %w", period, err)
	}
	if err := p.ledger.MarkDone(ctx, period); err != nil {
		return fmt.Errorf("mark period %s done: %w", period, err)
	}
	p.log.Info("revenue report confirmed", "period", period, "total", total, "verification_id", verificationID)
	return nil
}

func (p *Pipeline) cachedRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	key := fmt.Sprintf("revenue:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	raw, err := p.cache.GetOrCompute(ctx, key, p.cacheTTL, func(ctx context.Context) (string, error) {
		total, err := p.revenue.Revenue(ctx, from, to)
		if err != nil {
			return "", err
		}
		return total.String(), nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (p *Pipeline) submitWithRetry(ctx context.Context, rep Report) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.clk.Sleep(ctx, backoff(attempt)); err != nil {
				return "", err
			}
		}
		verificationID, err := p.client.Submit(ctx, rep)
		if err == nil {
			return verificationID, nil
		}
		lastErr = err
		p.log.Warn("report submit attempt failed", "report_id", rep.ReportID, "attempt", attempt+1, "err", err)
	}
	return "", fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (p *Pipeline) confirmWithRetry(ctx context.Context, verificationID string) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.clk.Sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
		err := p.client.Confirm(ctx, verificationID)
		if err == nil {
			return nil
		}
		lastErr = err
		p.log.Warn("report confirm attempt failed", "verification_id", verificationID, "attempt", attempt+1, "err", err)
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func backoff(attempt int) time.Duration {
	exp := baseBackoff * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(exp / 2)))
	return exp + jitter
}
