// Package aggregation rolls performance records into immutable hourly and daily aggregates.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ads-stream-alerts/internal/kpi"
	"ads-stream-alerts/internal/storage"
)

// Store is the persistence surface the engine needs.
type Store interface {
	ListCampaignKeys(ctx context.Context, from, to time.Time) ([]storage.CampaignKey, error)
	ListPerformanceWithin(ctx context.Context, key storage.CampaignKey, from, to time.Time) ([]storage.PerformanceRecord, error)
	FindAggregate(ctx context.Context, campaignID string, period storage.PeriodType, start time.Time) (*storage.Aggregate, error)
	InsertAggregate(ctx context.Context, agg storage.Aggregate) (storage.Aggregate, error)
}

// Default lookbacks of the two jobs.
const (
	DefaultHourlyLookback = 24 * time.Hour
	DefaultDailyLookback  = 7 * 24 * time.Hour
)

// Report summarises one aggregation run.
type Report struct {
	Period      storage.PeriodType
	WindowStart time.Time
	WindowEnd   time.Time
	Created     int
	Existing    int
	Aggregates  []storage.Aggregate
}

// Engine computes aggregates over closed buckets.
type Engine struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to close the window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an aggregation Engine.
func New(store Store, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger.With().Str("component", "aggregation").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunHourly aggregates the hourly buckets of the lookback ending at the top of the current hour.
func (e *Engine) RunHourly(ctx context.Context, lookback time.Duration) (Report, error) {
	if lookback <= 0 {
		lookback = DefaultHourlyLookback
	}
	return e.Run(ctx, storage.PeriodHourly, lookback)
}

// RunDaily aggregates the daily buckets of the lookback ending at midnight UTC.
func (e *Engine) RunDaily(ctx context.Context, lookback time.Duration) (Report, error) {
	if lookback <= 0 {
		lookback = DefaultDailyLookback
	}
	return e.Run(ctx, storage.PeriodDaily, lookback)
}

// Run aggregates every bucket of the given period inside the lookback window.
func (e *Engine) Run(ctx context.Context, period storage.PeriodType, lookback time.Duration) (Report, error) {
	unit := period.Duration()
	end := e.now().UTC().Truncate(unit)
	start := end.Add(-lookback).Truncate(unit)
	report := Report{Period: period, WindowStart: start, WindowEnd: end}

	keys, err := e.store.ListCampaignKeys(ctx, start, end)
	if err != nil {
		return report, fmt.Errorf("list campaign keys: %w", err)
	}

	for _, key := range keys {
		for bucket := start; bucket.Before(end); bucket = bucket.Add(unit) {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			agg, created, err := e.aggregateBucket(ctx, key, period, bucket, bucket.Add(unit))
			if err != nil {
				return report, err
			}
			if agg == nil {
				continue
			}
			if created {
				report.Created++
			} else {
				report.Existing++
			}
			report.Aggregates = append(report.Aggregates, *agg)
		}
	}

	e.logger.Info().
		Str("period", string(period)).
		Time("window_start", start).
		Time("window_end", end).
		Int("campaigns", len(keys)).
		Int("created", report.Created).
		Int("existing", report.Existing).
		Msg("aggregation run complete")
	return report, nil
}

func (e *Engine) aggregateBucket(ctx context.Context, key storage.CampaignKey, period storage.PeriodType, from, to time.Time) (*storage.Aggregate, bool, error) {
	records, err := e.store.ListPerformanceWithin(ctx, key, from, to)
	if err != nil {
		return nil, false, fmt.Errorf("list records for %s %s: %w", key.CampaignID, from.Format(time.RFC3339), err)
	}
	if len(records) == 0 {
		return nil, false, nil
	}

	existing, err := e.store.FindAggregate(ctx, key.CampaignID, period, from)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("find aggregate: %w", err)
	}

	agg := Summarize(key, period, from, to, records)
	saved, err := e.store.InsertAggregate(ctx, agg)
	if errors.Is(err, storage.ErrDuplicate) {
		stored, findErr := e.store.FindAggregate(ctx, key.CampaignID, period, from)
		if findErr != nil {
			return nil, false, fmt.Errorf("reload concurrent aggregate: %w", findErr)
		}
		return stored, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert aggregate: %w", err)
	}
	return &saved, true, nil
}

// Summarize sums the counters of the records and averages each ratio over the
// records where it is non-null.
func Summarize(key storage.CampaignKey, period storage.PeriodType, from, to time.Time, records []storage.PerformanceRecord) storage.Aggregate {
	agg := storage.Aggregate{
		CampaignID:  key.CampaignID,
		Category:    key.Category,
		ProfileID:   key.ProfileID,
		PeriodType:  period,
		PeriodStart: from,
		PeriodEnd:   to,
		RecordCount: len(records),
		TotalCost:   decimal.Zero,
		TotalSales:  decimal.Zero,
	}

	ctr := make([]decimal.NullDecimal, 0, len(records))
	cpc := make([]decimal.NullDecimal, 0, len(records))
	acos := make([]decimal.NullDecimal, 0, len(records))
	roas := make([]decimal.NullDecimal, 0, len(records))
	conversion := make([]decimal.NullDecimal, 0, len(records))
	for _, r := range records {
		agg.TotalImpressions += r.Impressions
		agg.TotalClicks += r.Clicks
		agg.TotalCost = agg.TotalCost.Add(r.Cost)
		agg.TotalSales = agg.TotalSales.Add(r.Sales)
		agg.TotalOrders += r.Orders
		agg.TotalUnitsSold += r.UnitsSold

		ctr = append(ctr, r.CTR)
		cpc = append(cpc, r.CPC)
		acos = append(acos, r.ACOS)
		roas = append(roas, r.ROAS)
		conversion = append(conversion, r.ConversionRate)
	}

	agg.AvgCTR = kpi.Mean(ctr)
	agg.AvgCPC = kpi.Mean(cpc)
	agg.AvgACOS = kpi.Mean(acos)
	agg.AvgROAS = kpi.Mean(roas)
	agg.AvgConversionRate = kpi.Mean(conversion)
	return agg
}
