package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ads-stream-alerts/internal/aggregation"
	"ads-stream-alerts/internal/alerting"
	"ads-stream-alerts/internal/config"
	"ads-stream-alerts/internal/normalizer"
	"ads-stream-alerts/internal/queue"
	"ads-stream-alerts/internal/service"
	"ads-stream-alerts/internal/storage"
	"ads-stream-alerts/internal/telemetry"
)

const notifierTimeout = 10 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newNotifier builds the channels listed in alerting.channels that are enabled. With no
// usable channel alerts are written to the log.
func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	var notifiers []alerting.Notifier

	if slices.Contains(cfg.Channels, "slack") && cfg.Slack.Enabled {
		notifiers = append(notifiers, alerting.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel, cfg.Slack.RatePerSecond, notifierTimeout, a.Logger))
	}
	if slices.Contains(cfg.Channels, "telegram") && cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, notifierTimeout, a.Logger))
	}
	if slices.Contains(cfg.Channels, "log") || len(notifiers) == 0 {
		if len(notifiers) == 0 {
			a.Logger.Warn().Msg("no alert channel configured; alerts are logged only")
		}
		notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
	}
	return alerting.NewMultiNotifier(notifiers...)
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.Config.Database.Driver, err)
	}
	return store, nil
}

func (a *App) openQueue(ctx context.Context) (queue.Queue, error) {
	q, err := queue.Open(ctx, a.Config.Queue, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open %s queue: %w", a.Config.Queue.Driver, err)
	}
	return q, nil
}

// RunOptions configure the long-running worker.
type RunOptions struct {
	// SeedFile preloads fixture messages into the queue before polling starts.
	SeedFile string
}

// Run executes the worker until SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := a.openQueue(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := q.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close queue")
		}
	}()

	if opts.SeedFile != "" {
		if _, err := a.seedInto(ctx, q, opts.SeedFile); err != nil {
			return err
		}
	}

	orch := a.newOrchestrator(store, q)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	if a.Config.Metrics.Enabled {
		g.Go(func() error {
			return telemetry.Serve(ctx, a.Config.Metrics.ListenAddr, store.Ping, a.Logger)
		})
	}

	a.Logger.Info().
		Str("database", a.Config.Database.Driver).
		Str("queue", a.Config.Queue.Driver).
		Msg("starting worker")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("worker terminated with error")
		return err
	}

	a.Logger.Info().Msg("worker stopped")
	return nil
}

func (a *App) newOrchestrator(store storage.Store, q queue.Queue) *service.Orchestrator {
	norm := normalizer.New(store, a.Logger)
	agg := aggregation.New(store, a.Logger)

	var alerts service.AlertEvaluator
	if a.Config.Alerting.Enabled {
		alerts = alerting.NewEngine(store, a.newNotifier(), alerting.ThresholdsFromConfig(a.Config.Alerting), a.Logger)
	} else {
		a.Logger.Warn().Msg("alerting disabled")
	}

	return service.New(a.Config, q, norm, alerts, agg, store, a.Logger)
}

// Aggregate runs one aggregation pass for the period outside the scheduler.
func (a *App) Aggregate(ctx context.Context, period storage.PeriodType) (aggregation.Report, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return aggregation.Report{}, err
	}
	defer store.Close()

	engine := aggregation.New(store, a.Logger)
	switch period {
	case storage.PeriodHourly:
		return engine.RunHourly(ctx, a.Config.Aggregation.HourlyLookback)
	case storage.PeriodDaily:
		return engine.RunDaily(ctx, a.Config.Aggregation.DailyLookback)
	default:
		return aggregation.Report{}, fmt.Errorf("unknown period %q", period)
	}
}

// ExportOptions hold parameters for exporting an aggregate series.
type ExportOptions struct {
	CampaignID string
	Period     storage.PeriodType
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	What  string
	Limit int
}
