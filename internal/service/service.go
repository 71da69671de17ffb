// Package service wires the queue, normalizer, alert engine and aggregation engine into
// the long-running worker.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ads-stream-alerts/internal/aggregation"
	"ads-stream-alerts/internal/config"
	"ads-stream-alerts/internal/normalizer"
	"ads-stream-alerts/internal/queue"
	"ads-stream-alerts/internal/scheduler"
	"ads-stream-alerts/internal/storage"
	"ads-stream-alerts/internal/telemetry"
)

// MessageProcessor turns one message body into a normalizer Result.
type MessageProcessor interface {
	Process(ctx context.Context, body []byte) normalizer.Result
}

// AlertEvaluator raises alerts for a freshly persisted performance record.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, rec storage.PerformanceRecord) ([]storage.Alert, error)
}

// Aggregator runs the hourly and daily rollups.
type Aggregator interface {
	RunHourly(ctx context.Context, lookback time.Duration) (aggregation.Report, error)
	RunDaily(ctx context.Context, lookback time.Duration) (aggregation.Report, error)
}

// BatchReport summarises one poll iteration.
type BatchReport struct {
	Received     int
	Acknowledged int
	Outcomes     map[normalizer.Outcome]int
	Alerts       int
}

// Orchestrator polls the queue and runs the aggregation jobs.
type Orchestrator struct {
	queue      queue.Queue
	normalizer MessageProcessor
	alerts     AlertEvaluator
	aggregator Aggregator
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger

	worker      config.WorkerConfig
	aggregation config.AggregationConfig
}

// New constructs the orchestrator. alerts may be nil when alerting is disabled; locker
// is picked up from store when the backend supports advisory locks.
func New(cfg *config.Config, q queue.Queue, proc MessageProcessor, alerts AlertEvaluator, agg Aggregator, store any, logger zerolog.Logger) *Orchestrator {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Orchestrator{
		queue:       q,
		normalizer:  proc,
		alerts:      alerts,
		aggregator:  agg,
		locker:      locker,
		logger:      logger.With().Str("component", "service").Logger(),
		worker:      cfg.Worker,
		aggregation: cfg.Aggregation,
	}
}

// Run starts the poll, hourly and daily jobs and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.worker.Enabled {
		poll := scheduler.New(scheduler.Options{
			Name:           "poll",
			Interval:       o.worker.PollInterval,
			RunImmediately: true,
		}, o.logger)
		g.Go(func() error {
			return poll.Run(ctx, func(ctx context.Context, _ time.Time) error {
				_, err := o.ProcessBatch(ctx)
				return err
			})
		})
	}

	if o.aggregation.HourlyEnabled {
		hourly := scheduler.New(scheduler.Options{
			Name:         "hourly",
			Interval:     time.Hour,
			AlignToStart: true,
			StartupDelay: o.aggregation.StartupDelay,
		}, o.logger)
		g.Go(func() error {
			return hourly.Run(ctx, func(ctx context.Context, _ time.Time) error {
				return o.RunHourly(ctx)
			})
		})
	}

	if o.aggregation.DailyEnabled {
		daily := scheduler.New(scheduler.Options{
			Name:         "daily",
			Interval:     24 * time.Hour,
			AlignToStart: true,
			StartupDelay: o.aggregation.StartupDelay,
		}, o.logger)
		g.Go(func() error {
			return daily.Run(ctx, func(ctx context.Context, _ time.Time) error {
				return o.RunDaily(ctx)
			})
		})
	}

	o.logger.Info().
		Bool("worker", o.worker.Enabled).
		Bool("hourly", o.aggregation.HourlyEnabled).
		Bool("daily", o.aggregation.DailyEnabled).
		Msg("orchestrator started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ProcessBatch receives up to one batch and handles every message in it. Once messages
// are received the batch runs to completion even if ctx is cancelled.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (BatchReport, error) {
	start := time.Now()
	defer func() { telemetry.JobDuration.WithLabelValues("poll").Observe(time.Since(start).Seconds()) }()

	report := BatchReport{Outcomes: make(map[normalizer.Outcome]int)}

	msgs, err := o.queue.Receive(ctx, o.worker.BatchSize, o.worker.WaitTime)
	if err != nil {
		if ctx.Err() != nil {
			return report, nil
		}
		telemetry.PollErrorsTotal.WithLabelValues("receive").Inc()
		return report, fmt.Errorf("receive batch: %w", err)
	}
	report.Received = len(msgs)
	telemetry.BatchSize.Observe(float64(len(msgs)))
	if len(msgs) == 0 {
		return report, nil
	}

	batchCtx := context.WithoutCancel(ctx)
	for _, msg := range msgs {
		result, raised, ack := o.handle(batchCtx, msg)
		report.Outcomes[result.Outcome]++
		report.Alerts += raised
		telemetry.MessagesTotal.WithLabelValues(string(result.Outcome)).Inc()

		if !ack {
			continue
		}
		if err := o.queue.Delete(batchCtx, msg.Receipt); err != nil {
			telemetry.PollErrorsTotal.WithLabelValues("delete").Inc()
			o.logger.Error().Err(err).Str("queue_message_id", msg.ID).Msg("failed to acknowledge message")
			continue
		}
		report.Acknowledged++
		telemetry.AcknowledgedTotal.Inc()
	}

	o.logger.Info().
		Int("received", report.Received).
		Int("acknowledged", report.Acknowledged).
		Int("alerts", report.Alerts).
		Msg("batch processed")
	return report, nil
}

func (o *Orchestrator) handle(ctx context.Context, msg queue.Message) (normalizer.Result, int, bool) {
	result := o.normalizer.Process(ctx, msg.Body)
	log := o.logger.With().
		Str("queue_message_id", msg.ID).
		Str("message_id", result.MessageID).
		Str("outcome", string(result.Outcome)).
		Logger()

	if !result.Acknowledge() {
		log.Warn().Err(result.Err).Msg("message left for redelivery")
		return result, 0, false
	}
	if result.Outcome != normalizer.OutcomeProcessed || result.Performance == nil || o.alerts == nil {
		return result, 0, true
	}

	alerts, err := o.alerts.Evaluate(ctx, *result.Performance)
	for _, a := range alerts {
		telemetry.AlertsTotal.WithLabelValues(string(a.Type), string(a.Severity), fmt.Sprint(a.Sent)).Inc()
	}
	if err != nil {
		log.Error().Err(err).Str("campaign_id", result.Performance.CampaignID).Msg("alert evaluation failed")
		return result, len(alerts), false
	}
	return result, len(alerts), true
}

// RunHourly executes one hourly aggregation under the advisory lock.
func (o *Orchestrator) RunHourly(ctx context.Context) error {
	return o.aggregate(ctx, storage.PeriodHourly, func(ctx context.Context) (aggregation.Report, error) {
		return o.aggregator.RunHourly(ctx, o.aggregation.HourlyLookback)
	})
}

// RunDaily executes one daily aggregation under the advisory lock.
func (o *Orchestrator) RunDaily(ctx context.Context) error {
	return o.aggregate(ctx, storage.PeriodDaily, func(ctx context.Context) (aggregation.Report, error) {
		return o.aggregator.RunDaily(ctx, o.aggregation.DailyLookback)
	})
}

func (o *Orchestrator) aggregate(ctx context.Context, period storage.PeriodType, run func(context.Context) (aggregation.Report, error)) error {
	start := time.Now()
	defer func() {
		telemetry.JobDuration.WithLabelValues(string(period)).Observe(time.Since(start).Seconds())
	}()

	unlock, proceed, err := o.acquireLock(ctx, period)
	if err != nil {
		return err
	}
	if !proceed {
		o.logger.Debug().Str("period", string(period)).Msg("skip aggregation because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	report, err := run(ctx)
	telemetry.AggregatesTotal.WithLabelValues(string(period)).Add(float64(report.Created))
	if err != nil {
		return fmt.Errorf("%s aggregation: %w", period, err)
	}
	return nil
}

// acquireLock takes the period's advisory lock. Hourly and daily use distinct keys so
// they never block each other.
func (o *Orchestrator) acquireLock(ctx context.Context, period storage.PeriodType) (func(), bool, error) {
	if o.aggregation.AdvisoryLockKey == 0 || o.locker == nil {
		return nil, true, nil
	}
	key := o.aggregation.AdvisoryLockKey
	if period == storage.PeriodDaily {
		key++
	}
	unlock, acquired, err := o.locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
