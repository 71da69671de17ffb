package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ads-stream-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrNotFound is returned by single-row lookups without a match.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate reports an insert rejected by a uniqueness constraint.
	ErrDuplicate = errors.New("storage: duplicate key")
)

// MessageStore persists raw messages together with their derived record.
type MessageStore interface {
	FindRawMessage(ctx context.Context, messageID string) (*RawMessage, error)
	// SaveIngest inserts the raw message unprocessed, the derived record, and flips the
	// message to processed in a single transaction. A message_id conflict yields ErrDuplicate.
	SaveIngest(ctx context.Context, in Ingest) (Ingest, error)
}

// PerformanceStore answers lookback and aggregation queries over performance records.
type PerformanceStore interface {
	LatestPerformanceBetween(ctx context.Context, campaignID string, from, to time.Time) (*PerformanceRecord, error)
	SumCostBetween(ctx context.Context, campaignID string, from, to time.Time) (decimal.Decimal, error)
	ListCampaignKeys(ctx context.Context, from, to time.Time) ([]CampaignKey, error)
	ListPerformanceWithin(ctx context.Context, key CampaignKey, from, to time.Time) ([]PerformanceRecord, error)
}

// AggregateStore persists immutable aggregates.
type AggregateStore interface {
	FindAggregate(ctx context.Context, campaignID string, period PeriodType, start time.Time) (*Aggregate, error)
	InsertAggregate(ctx context.Context, agg Aggregate) (Aggregate, error)
	ListAggregates(ctx context.Context, campaignID string, period PeriodType, from, to time.Time) ([]Aggregate, error)
	ListRecentAggregates(ctx context.Context, limit int) ([]Aggregate, error)
}

// AlertStore persists alerts and their delivery status.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	MarkAlertSent(ctx context.Context, id int64, sentAt time.Time) error
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// AdvisoryLocker exposes cross-process lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the full persistence surface used by the pipeline.
type Store interface {
	MessageStore
	PerformanceStore
	AggregateStore
	AlertStore
	Ping(ctx context.Context) error
	Close()
}

// Open builds the backend selected by database.driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "postgres":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
