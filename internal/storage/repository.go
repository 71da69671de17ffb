package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	performanceColumns = `id, raw_message_id, dataset_category, dataset_name, profile_id,
        campaign_id, campaign_name, ad_group_id, ad_group_name, keyword_id, keyword_text, asin,
        impressions, clicks, cost, sales, orders, units_sold,
        ctr, cpc, acos, roas, conversion_rate,
        start_date, end_date, created_at`

	aggregateColumns = `id, campaign_id, dataset_category, profile_id, period_type, period_start, period_end,
        record_count, total_impressions, total_clicks, total_cost, total_sales, total_orders, total_units_sold,
        avg_ctr, avg_cpc, avg_acos, avg_roas, avg_conversion_rate, created_at`

	alertColumns = `id, alert_type, severity, campaign_id, campaign_name, profile_id, message,
        metric_value, threshold_value, previous_value, sent, sent_at, created_at`

	pgFindRawMessageSQL = `SELECT id, message_id, dataset_category, dataset_name, profile_id, raw_data,
        processed, created_at, processed_at
    FROM raw_messages
    WHERE message_id = $1;`

	pgInsertRawMessageSQL = `INSERT INTO raw_messages (
        message_id, dataset_category, dataset_name, profile_id, raw_data, processed
    ) VALUES ($1,$2,$3,$4,$5,FALSE)
    ON CONFLICT (message_id) DO NOTHING
    RETURNING id, created_at;`

	pgMarkProcessedSQL = `UPDATE raw_messages SET processed = TRUE, processed_at = $2 WHERE id = $1;`

	pgInsertPerformanceSQL = `INSERT INTO performance_records (
        raw_message_id, dataset_category, dataset_name, profile_id,
        campaign_id, campaign_name, ad_group_id, ad_group_name, keyword_id, keyword_text, asin,
        impressions, clicks, cost, sales, orders, units_sold,
        ctr, cpc, acos, roas, conversion_rate,
        start_date, end_date
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24
    )
    RETURNING id, created_at;`

	pgInsertBudgetSQL = `INSERT INTO budget_usage_events (
        raw_message_id, dataset_category, dataset_name, profile_id, campaign_id,
        budget_type, budget_name, budget_status, daily_budget, budget_consumed, currency,
        start_date, end_date, details
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    RETURNING id, created_at;`

	pgLatestPerformanceSQL = `SELECT ` + performanceColumns + `
    FROM performance_records
    WHERE campaign_id = $1
      AND start_date >= $2
      AND start_date < $3
    ORDER BY start_date DESC, id DESC
    LIMIT 1;`

	pgSumCostSQL = `SELECT COALESCE(SUM(cost), 0)::text
    FROM performance_records
    WHERE campaign_id = $1
      AND start_date >= $2
      AND start_date < $3;`

	pgListCampaignKeysSQL = `SELECT DISTINCT campaign_id, dataset_category, profile_id
    FROM performance_records
    WHERE start_date < $2
      AND end_date >= $1
    ORDER BY campaign_id, dataset_category, profile_id;`

	pgListPerformanceWithinSQL = `SELECT ` + performanceColumns + `
    FROM performance_records
    WHERE campaign_id = $1
      AND dataset_category = $2
      AND profile_id = $3
      AND start_date >= $4
      AND start_date < $5
      AND end_date <= $5
    ORDER BY start_date, id;`

	pgFindAggregateSQL = `SELECT ` + aggregateColumns + `
    FROM performance_aggregates
    WHERE campaign_id = $1
      AND period_type = $2
      AND period_start = $3;`

	pgInsertAggregateSQL = `INSERT INTO performance_aggregates (
        campaign_id, dataset_category, profile_id, period_type, period_start, period_end,
        record_count, total_impressions, total_clicks, total_cost, total_sales, total_orders, total_units_sold,
        avg_ctr, avg_cpc, avg_acos, avg_roas, avg_conversion_rate
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
    )
    ON CONFLICT (campaign_id, period_type, period_start) DO NOTHING
    RETURNING id, created_at;`

	pgListAggregatesSQL = `SELECT ` + aggregateColumns + `
    FROM performance_aggregates
    WHERE campaign_id = $1
      AND period_type = $2
      AND period_start >= $3
      AND period_start < $4
    ORDER BY period_start;`

	pgListRecentAggregatesSQL = `SELECT ` + aggregateColumns + `
    FROM performance_aggregates
    ORDER BY period_start DESC, id DESC
    LIMIT $1;`

	pgInsertAlertSQL = `INSERT INTO alerts (
        alert_type, severity, campaign_id, campaign_name, profile_id, message,
        metric_value, threshold_value, previous_value, sent
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE
    )
    RETURNING id, created_at;`

	pgMarkAlertSentSQL = `UPDATE alerts SET sent = TRUE, sent_at = $2 WHERE id = $1;`

	pgListRecentAlertsSQL = `SELECT ` + alertColumns + `
    FROM alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Postgres) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock dies with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// FindRawMessage looks up a raw message by its dedup key.
func (s *Postgres) FindRawMessage(ctx context.Context, messageID string) (*RawMessage, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		msg      RawMessage
		category string
		raw      []byte
	)
	err = pool.QueryRow(ctx, pgFindRawMessageSQL, messageID).Scan(
		&msg.ID,
		&msg.MessageID,
		&category,
		&msg.DatasetName,
		&msg.ProfileID,
		&raw,
		&msg.Processed,
		&msg.CreatedAt,
		&msg.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find raw message: %w", err)
	}
	msg.Category = DatasetCategory(category)
	msg.RawData = json.RawMessage(raw)
	return &msg, nil
}

// SaveIngest persists a message and its derived record atomically.
func (s *Postgres) SaveIngest(ctx context.Context, in Ingest) (Ingest, error) {
	pool, err := s.getPool()
	if err != nil {
		return Ingest{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return Ingest{}, fmt.Errorf("begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	msg := in.Message
	err = tx.QueryRow(ctx, pgInsertRawMessageSQL,
		msg.MessageID,
		string(msg.Category),
		msg.DatasetName,
		msg.ProfileID,
		[]byte(msg.RawData),
	).Scan(&msg.ID, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingest{}, ErrDuplicate
	}
	if err != nil {
		return Ingest{}, fmt.Errorf("insert raw message: %w", err)
	}

	out := Ingest{Message: msg}
	switch {
	case in.Performance != nil:
		rec := *in.Performance
		rec.RawMessageID = msg.ID
		if err := tx.QueryRow(ctx, pgInsertPerformanceSQL,
			rec.RawMessageID,
			string(rec.Category),
			rec.DatasetName,
			rec.ProfileID,
			rec.CampaignID,
			optStringArg(rec.CampaignName),
			optStringArg(rec.AdGroupID),
			optStringArg(rec.AdGroupName),
			optStringArg(rec.KeywordID),
			optStringArg(rec.KeywordText),
			optStringArg(rec.ASIN),
			rec.Impressions,
			rec.Clicks,
			rec.Cost.String(),
			rec.Sales.String(),
			rec.Orders,
			rec.UnitsSold,
			nullDecimalArg(rec.CTR),
			nullDecimalArg(rec.CPC),
			nullDecimalArg(rec.ACOS),
			nullDecimalArg(rec.ROAS),
			nullDecimalArg(rec.ConversionRate),
			rec.StartDate.UTC(),
			rec.EndDate.UTC(),
		).Scan(&rec.ID, &rec.CreatedAt); err != nil {
			return Ingest{}, fmt.Errorf("insert performance record: %w", err)
		}
		out.Performance = &rec
	case in.Budget != nil:
		ev := *in.Budget
		ev.RawMessageID = msg.ID
		if err := tx.QueryRow(ctx, pgInsertBudgetSQL,
			ev.RawMessageID,
			string(ev.Category),
			ev.DatasetName,
			ev.ProfileID,
			optStringArg(ev.CampaignID),
			optStringArg(ev.BudgetType),
			optStringArg(ev.BudgetName),
			optStringArg(ev.BudgetStatus),
			ev.DailyBudget.String(),
			ev.BudgetConsumed.String(),
			optStringArg(ev.Currency),
			ev.StartDate.UTC(),
			ev.EndDate.UTC(),
			[]byte(ev.Details),
		).Scan(&ev.ID, &ev.CreatedAt); err != nil {
			return Ingest{}, fmt.Errorf("insert budget usage event: %w", err)
		}
		out.Budget = &ev
	default:
		return Ingest{}, errors.New("ingest carries no derived record")
	}

	processedAt := time.Now().UTC()
	if msg.ProcessedAt != nil {
		processedAt = msg.ProcessedAt.UTC()
	}
	if _, err := tx.Exec(ctx, pgMarkProcessedSQL, msg.ID, processedAt); err != nil {
		return Ingest{}, fmt.Errorf("mark raw message processed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Ingest{}, fmt.Errorf("commit ingest: %w", err)
	}

	out.Message.Processed = true
	out.Message.ProcessedAt = &processedAt
	return out, nil
}

// LatestPerformanceBetween returns the newest record of a campaign starting in [from, to).
func (s *Postgres) LatestPerformanceBetween(ctx context.Context, campaignID string, from, to time.Time) (*PerformanceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rec, err := scanPgPerformance(pool.QueryRow(ctx, pgLatestPerformanceSQL, campaignID, from.UTC(), to.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest performance: %w", err)
	}
	return &rec, nil
}

// SumCostBetween sums the cost of campaign records starting in [from, to).
func (s *Postgres) SumCostBetween(ctx context.Context, campaignID string, from, to time.Time) (decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Zero, err
	}
	var total string
	if err := pool.QueryRow(ctx, pgSumCostSQL, campaignID, from.UTC(), to.UTC()).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum cost: %w", err)
	}
	return parseDecimal("cost sum", total)
}

// ListCampaignKeys lists the campaign grains with records overlapping [from, to).
func (s *Postgres) ListCampaignKeys(ctx context.Context, from, to time.Time) ([]CampaignKey, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, pgListCampaignKeysSQL, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list campaign keys: %w", err)
	}
	defer rows.Close()

	keys := make([]CampaignKey, 0)
	for rows.Next() {
		var key CampaignKey
		var category string
		if err := rows.Scan(&key.CampaignID, &category, &key.ProfileID); err != nil {
			return nil, err
		}
		key.Category = DatasetCategory(category)
		keys = append(keys, key)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

// ListPerformanceWithin lists records of a grain fully contained in [from, to).
func (s *Postgres) ListPerformanceWithin(ctx context.Context, key CampaignKey, from, to time.Time) ([]PerformanceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, pgListPerformanceWithinSQL,
		key.CampaignID, string(key.Category), key.ProfileID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list performance within: %w", err)
	}
	defer rows.Close()

	records := make([]PerformanceRecord, 0)
	for rows.Next() {
		rec, err := scanPgPerformance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// FindAggregate looks up the aggregate for a campaign bucket.
func (s *Postgres) FindAggregate(ctx context.Context, campaignID string, period PeriodType, start time.Time) (*Aggregate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	agg, err := scanPgAggregate(pool.QueryRow(ctx, pgFindAggregateSQL, campaignID, string(period), start.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find aggregate: %w", err)
	}
	return &agg, nil
}

// InsertAggregate persists a new aggregate; a key conflict yields ErrDuplicate.
func (s *Postgres) InsertAggregate(ctx context.Context, agg Aggregate) (Aggregate, error) {
	pool, err := s.getPool()
	if err != nil {
		return Aggregate{}, err
	}

	err = pool.QueryRow(ctx, pgInsertAggregateSQL,
		agg.CampaignID,
		string(agg.Category),
		agg.ProfileID,
		string(agg.PeriodType),
		agg.PeriodStart.UTC(),
		agg.PeriodEnd.UTC(),
		agg.RecordCount,
		agg.TotalImpressions,
		agg.TotalClicks,
		agg.TotalCost.String(),
		agg.TotalSales.String(),
		agg.TotalOrders,
		agg.TotalUnitsSold,
		nullDecimalArg(agg.AvgCTR),
		nullDecimalArg(agg.AvgCPC),
		nullDecimalArg(agg.AvgACOS),
		nullDecimalArg(agg.AvgROAS),
		nullDecimalArg(agg.AvgConversionRate),
	).Scan(&agg.ID, &agg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Aggregate{}, ErrDuplicate
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("insert aggregate: %w", err)
	}
	return agg, nil
}

// ListAggregates lists a campaign's aggregates with period_start in [from, to).
func (s *Postgres) ListAggregates(ctx context.Context, campaignID string, period PeriodType, from, to time.Time) ([]Aggregate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, pgListAggregatesSQL, campaignID, string(period), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	return collectPgAggregates(rows)
}

// ListRecentAggregates lists the newest aggregates.
func (s *Postgres) ListRecentAggregates(ctx context.Context, limit int) ([]Aggregate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, pgListRecentAggregatesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent aggregates: %w", err)
	}
	return collectPgAggregates(rows)
}

// InsertAlert persists an unsent alert.
func (s *Postgres) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}
	if err := pool.QueryRow(ctx, pgInsertAlertSQL,
		string(alert.Type),
		string(alert.Severity),
		alert.CampaignID,
		optStringArg(alert.CampaignName),
		alert.ProfileID,
		alert.Message,
		nullDecimalArg(alert.MetricValue),
		nullDecimalArg(alert.ThresholdValue),
		nullDecimalArg(alert.PreviousValue),
	).Scan(&alert.ID, &alert.CreatedAt); err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	alert.Sent = false
	alert.SentAt = nil
	return alert, nil
}

// MarkAlertSent records a successful delivery.
func (s *Postgres) MarkAlertSent(ctx context.Context, id int64, sentAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, pgMarkAlertSentSQL, id, sentAt.UTC())
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Postgres) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, pgListRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0, limit)
	for rows.Next() {
		var (
			a                           Alert
			alertType, severity         string
			metric, threshold, previous *string
		)
		if err := rows.Scan(
			&a.ID,
			&alertType,
			&severity,
			&a.CampaignID,
			&a.CampaignName,
			&a.ProfileID,
			&a.Message,
			&metric,
			&threshold,
			&previous,
			&a.Sent,
			&a.SentAt,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.Type = AlertType(alertType)
		a.Severity = Severity(severity)
		if err := applyAlertValues(&a, metric, threshold, previous); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func applyAlertValues(a *Alert, metric, threshold, previous *string) error {
	var err error
	if a.MetricValue, err = parseNullDecimal("metric_value", metric); err != nil {
		return err
	}
	if a.ThresholdValue, err = parseNullDecimal("threshold_value", threshold); err != nil {
		return err
	}
	if a.PreviousValue, err = parseNullDecimal("previous_value", previous); err != nil {
		return err
	}
	return nil
}

func scanPgPerformance(row rowScanner) (PerformanceRecord, error) {
	var (
		rec            PerformanceRecord
		category       string
		costStr, sales string
		ratios         ratioTexts
	)
	if err := row.Scan(
		&rec.ID,
		&rec.RawMessageID,
		&category,
		&rec.DatasetName,
		&rec.ProfileID,
		&rec.CampaignID,
		&rec.CampaignName,
		&rec.AdGroupID,
		&rec.AdGroupName,
		&rec.KeywordID,
		&rec.KeywordText,
		&rec.ASIN,
		&rec.Impressions,
		&rec.Clicks,
		&costStr,
		&sales,
		&rec.Orders,
		&rec.UnitsSold,
		&ratios.ctr,
		&ratios.cpc,
		&ratios.acos,
		&ratios.roas,
		&ratios.conversion,
		&rec.StartDate,
		&rec.EndDate,
		&rec.CreatedAt,
	); err != nil {
		return PerformanceRecord{}, err
	}
	return finishPerformance(rec, category, costStr, sales, ratios)
}

func finishPerformance(rec PerformanceRecord, category, cost, sales string, ratios ratioTexts) (PerformanceRecord, error) {
	var err error
	rec.Category = DatasetCategory(category)
	if rec.Cost, err = parseDecimal("cost", cost); err != nil {
		return PerformanceRecord{}, err
	}
	if rec.Sales, err = parseDecimal("sales", sales); err != nil {
		return PerformanceRecord{}, err
	}
	if err := ratios.apply(&rec.CTR, &rec.CPC, &rec.ACOS, &rec.ROAS, &rec.ConversionRate); err != nil {
		return PerformanceRecord{}, err
	}
	return rec, nil
}

func scanPgAggregate(row rowScanner) (Aggregate, error) {
	var (
		agg                 Aggregate
		category, period    string
		totalCost, totalSum string
		ratios              ratioTexts
	)
	if err := row.Scan(
		&agg.ID,
		&agg.CampaignID,
		&category,
		&agg.ProfileID,
		&period,
		&agg.PeriodStart,
		&agg.PeriodEnd,
		&agg.RecordCount,
		&agg.TotalImpressions,
		&agg.TotalClicks,
		&totalCost,
		&totalSum,
		&agg.TotalOrders,
		&agg.TotalUnitsSold,
		&ratios.ctr,
		&ratios.cpc,
		&ratios.acos,
		&ratios.roas,
		&ratios.conversion,
		&agg.CreatedAt,
	); err != nil {
		return Aggregate{}, err
	}
	return finishAggregate(agg, category, period, totalCost, totalSum, ratios)
}

func finishAggregate(agg Aggregate, category, period, cost, sales string, ratios ratioTexts) (Aggregate, error) {
	var err error
	agg.Category = DatasetCategory(category)
	agg.PeriodType = PeriodType(period)
	if agg.TotalCost, err = parseDecimal("total_cost", cost); err != nil {
		return Aggregate{}, err
	}
	if agg.TotalSales, err = parseDecimal("total_sales", sales); err != nil {
		return Aggregate{}, err
	}
	if err := ratios.apply(&agg.AvgCTR, &agg.AvgCPC, &agg.AvgACOS, &agg.AvgROAS, &agg.AvgConversionRate); err != nil {
		return Aggregate{}, err
	}
	return agg, nil
}

func collectPgAggregates(rows pgx.Rows) ([]Aggregate, error) {
	defer rows.Close()
	aggs := make([]Aggregate, 0)
	for rows.Next() {
		agg, err := scanPgAggregate(rows)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return aggs, nil
}

var (
	_ Store          = (*Postgres)(nil)
	_ AdvisoryLocker = (*Postgres)(nil)
)
