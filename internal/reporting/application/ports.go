package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RevenueReader aggregates committed order totals over a date window. It
// only reads committed rows, so it neither blocks nor is blocked by
// in-flight placements.
type RevenueReader interface {
	Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

type Report struct {
	ReportID string          `json:"report_id"`
	Type     string          `json:"type"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Total    decimal.Decimal `json:"total"`
}

// ReportClient submits a report to the external reporting endpoint and then
// confirms it with the verification id the submission returned.
type ReportClient interface {
	Submit(ctx context.Context, rep Report) (verificationID string, err error)
	Confirm(ctx context.Context, verificationID string) error
}

// Cache fronts expensive reads with a keyed TTL entry. The compute function
// runs only on a miss; its result is stored for ttl.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (string, error)) (string, error)
}

// PeriodLedger remembers which reporting periods were already confirmed so
// a restart never submits a period twice.
type PeriodLedger interface {
	Done(ctx context.Context, period string) (bool, error)
	MarkDone(ctx context.Context, period string) error
}
