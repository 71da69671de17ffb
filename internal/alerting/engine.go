// Package alerting evaluates performance records against thresholds and delivers
// the resulting alerts.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ads-stream-alerts/internal/config"
	"ads-stream-alerts/internal/storage"
)

// Lookback is the comparison window preceding a record's start.
const Lookback = 24 * time.Hour

// Severity escalation points.
var (
	ctrDropHighChange   = decimal.RequireFromString("0.4")
	spendSpikeHighRatio = decimal.RequireFromString("2.0")
	acosHigh            = decimal.RequireFromString("0.5")
	roasHigh            = decimal.RequireFromString("1.0")
	hundred             = decimal.NewFromInt(100)
)

// Store is the persistence surface the engine needs.
type Store interface {
	LatestPerformanceBetween(ctx context.Context, campaignID string, from, to time.Time) (*storage.PerformanceRecord, error)
	SumCostBetween(ctx context.Context, campaignID string, from, to time.Time) (decimal.Decimal, error)
	InsertAlert(ctx context.Context, alert storage.Alert) (storage.Alert, error)
	MarkAlertSent(ctx context.Context, id int64, sentAt time.Time) error
}

// Thresholds configures the four checks.
type Thresholds struct {
	CTRDrop    decimal.Decimal
	SpendSpike decimal.Decimal
	ACOS       decimal.Decimal
	ROAS       decimal.Decimal
}

// DefaultThresholds mirrors the configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CTRDrop:    decimal.RequireFromString("0.2"),
		SpendSpike: decimal.RequireFromString("1.5"),
		ACOS:       decimal.RequireFromString("0.3"),
		ROAS:       decimal.RequireFromString("2.0"),
	}
}

// ThresholdsFromConfig converts configured thresholds to decimals.
func ThresholdsFromConfig(cfg config.AlertingConfig) Thresholds {
	return Thresholds{
		CTRDrop:    decimal.NewFromFloat(cfg.CTRDropThreshold),
		SpendSpike: decimal.NewFromFloat(cfg.SpendSpikeThreshold),
		ACOS:       decimal.NewFromFloat(cfg.ACOSThreshold),
		ROAS:       decimal.NewFromFloat(cfg.ROASThreshold),
	}
}

// Engine raises and delivers alerts for new performance records.
type Engine struct {
	store      Store
	notifier   Notifier
	thresholds Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for delivery timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an alert Engine.
func NewEngine(store Store, notifier Notifier, thresholds Thresholds, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		notifier:   notifier,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "alert_engine").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type check func(ctx context.Context, rec storage.PerformanceRecord) (*storage.Alert, error)

// Evaluate runs every check against the record, persisting and delivering each alert
// that fires. Delivery failures leave the alert unsent and are not errors; store
// failures are joined into the returned error.
func (e *Engine) Evaluate(ctx context.Context, rec storage.PerformanceRecord) ([]storage.Alert, error) {
	checks := []check{e.checkCTRDrop, e.checkSpendSpike, e.checkHighACOS, e.checkLowROAS}

	var (
		alerts []storage.Alert
		errs   []error
	)
	for _, c := range checks {
		candidate, err := c(ctx, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if candidate == nil {
			continue
		}
		alert, err := e.raise(ctx, *candidate)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, errors.Join(errs...)
}

func (e *Engine) raise(ctx context.Context, candidate storage.Alert) (storage.Alert, error) {
	alert, err := e.store.InsertAlert(ctx, candidate)
	if err != nil {
		return storage.Alert{}, fmt.Errorf("persist %s alert: %w", candidate.Type, err)
	}

	log := e.logger.With().
		Int64("alert_id", alert.ID).
		Str("alert_type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("campaign_id", alert.CampaignID).
		Logger()

	if err := e.notifier.Notify(ctx, NotificationFromAlert(alert)); err != nil {
		log.Warn().Err(err).Msg("alert delivery failed")
		return alert, nil
	}

	sentAt := e.now().UTC()
	if err := e.store.MarkAlertSent(ctx, alert.ID, sentAt); err != nil {
		return alert, fmt.Errorf("mark %s alert sent: %w", alert.Type, err)
	}
	alert.Sent = true
	alert.SentAt = &sentAt
	log.Info().Msg("alert delivered")
	return alert, nil
}

func (e *Engine) checkCTRDrop(ctx context.Context, rec storage.PerformanceRecord) (*storage.Alert, error) {
	if !rec.CTR.Valid {
		return nil, nil
	}
	prev, err := e.store.LatestPerformanceBetween(ctx, rec.CampaignID, rec.StartDate.Add(-Lookback), rec.StartDate)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ctr_drop lookback: %w", err)
	}
	if !prev.CTR.Valid || prev.CTR.Decimal.IsZero() {
		return nil, nil
	}

	change := rec.CTR.Decimal.Sub(prev.CTR.Decimal).Div(prev.CTR.Decimal)
	if change.GreaterThan(e.thresholds.CTRDrop.Neg()) {
		return nil, nil
	}

	severity := storage.SeverityMedium
	if change.Abs().GreaterThan(ctrDropHighChange) {
		severity = storage.SeverityHigh
	}
	alert := newAlert(rec, storage.AlertCTRDrop, severity,
		fmt.Sprintf("CTR dropped by %s%% (from %s%% to %s%%)",
			change.Abs().Mul(hundred).StringFixed(1),
			prev.CTR.Decimal.Mul(hundred).StringFixed(2),
			rec.CTR.Decimal.Mul(hundred).StringFixed(2)),
		rec.CTR.Decimal, e.thresholds.CTRDrop)
	alert.PreviousValue = prev.CTR
	return &alert, nil
}

func (e *Engine) checkSpendSpike(ctx context.Context, rec storage.PerformanceRecord) (*storage.Alert, error) {
	if rec.Cost.IsZero() {
		return nil, nil
	}
	previous, err := e.store.SumCostBetween(ctx, rec.CampaignID, rec.StartDate.Add(-Lookback), rec.StartDate)
	if err != nil {
		return nil, fmt.Errorf("spend_spike lookback: %w", err)
	}
	if previous.IsZero() {
		return nil, nil
	}

	ratio := rec.Cost.Div(previous)
	if ratio.LessThan(e.thresholds.SpendSpike) {
		return nil, nil
	}

	severity := storage.SeverityMedium
	if ratio.GreaterThan(spendSpikeHighRatio) {
		severity = storage.SeverityHigh
	}
	alert := newAlert(rec, storage.AlertSpendSpike, severity,
		fmt.Sprintf("Spend increased by %s%% (from $%s to $%s)",
			ratio.Sub(decimal.NewFromInt(1)).Mul(hundred).StringFixed(1),
			previous.StringFixed(2),
			rec.Cost.StringFixed(2)),
		rec.Cost, e.thresholds.SpendSpike)
	alert.PreviousValue = decimal.NewNullDecimal(previous)
	return &alert, nil
}

func (e *Engine) checkHighACOS(_ context.Context, rec storage.PerformanceRecord) (*storage.Alert, error) {
	if !rec.ACOS.Valid || rec.ACOS.Decimal.LessThan(e.thresholds.ACOS) {
		return nil, nil
	}
	severity := storage.SeverityMedium
	if rec.ACOS.Decimal.GreaterThan(acosHigh) {
		severity = storage.SeverityHigh
	}
	alert := newAlert(rec, storage.AlertHighACOS, severity,
		fmt.Sprintf("ACOS is %s%%, exceeding threshold of %s%%",
			rec.ACOS.Decimal.Mul(hundred).StringFixed(2),
			e.thresholds.ACOS.Mul(hundred).StringFixed(2)),
		rec.ACOS.Decimal, e.thresholds.ACOS)
	return &alert, nil
}

func (e *Engine) checkLowROAS(_ context.Context, rec storage.PerformanceRecord) (*storage.Alert, error) {
	if !rec.ROAS.Valid || !rec.ROAS.Decimal.LessThan(e.thresholds.ROAS) {
		return nil, nil
	}
	severity := storage.SeverityMedium
	if rec.ROAS.Decimal.LessThan(roasHigh) {
		severity = storage.SeverityHigh
	}
	alert := newAlert(rec, storage.AlertLowROAS, severity,
		fmt.Sprintf("ROAS is %s, below threshold of %s",
			rec.ROAS.Decimal.StringFixed(2),
			e.thresholds.ROAS.StringFixed(2)),
		rec.ROAS.Decimal, e.thresholds.ROAS)
	return &alert, nil
}

func newAlert(rec storage.PerformanceRecord, typ storage.AlertType, severity storage.Severity, message string, metric, threshold decimal.Decimal) storage.Alert {
	return storage.Alert{
		Type:           typ,
		Severity:       severity,
		CampaignID:     rec.CampaignID,
		CampaignName:   rec.CampaignName,
		ProfileID:      rec.ProfileID,
		Message:        message,
		MetricValue:    decimal.NewNullDecimal(metric),
		ThresholdValue: decimal.NewNullDecimal(threshold),
	}
}
