package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// SQLite implements Store on an embedded database, used for local runs and tests.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database.sqlite_path is required")
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single writer connection serialises transactions the way the unique constraints expect
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) timestamp() string {
	return encodeTime(s.now())
}

// FindRawMessage looks up a raw message by its dedup key.
func (s *SQLite) FindRawMessage(ctx context.Context, messageID string) (*RawMessage, error) {
	var (
		msg         RawMessage
		category    string
		raw         string
		createdAt   string
		processedAt *string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, dataset_category, dataset_name, profile_id, raw_data, processed, created_at, processed_at
		 FROM raw_messages WHERE message_id = ?`, messageID,
	).Scan(&msg.ID, &msg.MessageID, &category, &msg.DatasetName, &msg.ProfileID, &raw, &msg.Processed, &createdAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find raw message: %w", err)
	}

	msg.Category = DatasetCategory(category)
	msg.RawData = json.RawMessage(raw)
	if msg.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if msg.ProcessedAt, err = decodeOptTime(processedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SaveIngest persists a message and its derived record atomically.
func (s *SQLite) SaveIngest(ctx context.Context, in Ingest) (Ingest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ingest{}, fmt.Errorf("begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	msg := in.Message
	createdAt := s.timestamp()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO raw_messages (message_id, dataset_category, dataset_name, profile_id, raw_data, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT (message_id) DO NOTHING
		 RETURNING id`,
		msg.MessageID, string(msg.Category), msg.DatasetName, msg.ProfileID, string(msg.RawData), createdAt,
	).Scan(&msg.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ingest{}, ErrDuplicate
	}
	if err != nil {
		return Ingest{}, fmt.Errorf("insert raw message: %w", err)
	}
	if msg.CreatedAt, err = decodeTime(createdAt); err != nil {
		return Ingest{}, err
	}

	out := Ingest{Message: msg}
	switch {
	case in.Performance != nil:
		rec := *in.Performance
		rec.RawMessageID = msg.ID
		recCreated := s.timestamp()
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO performance_records (
				raw_message_id, dataset_category, dataset_name, profile_id,
				campaign_id, campaign_name, ad_group_id, ad_group_name, keyword_id, keyword_text, asin,
				impressions, clicks, cost, sales, orders, units_sold,
				ctr, cpc, acos, roas, conversion_rate,
				start_date, end_date, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			rec.RawMessageID, string(rec.Category), rec.DatasetName, rec.ProfileID,
			rec.CampaignID, optStringArg(rec.CampaignName), optStringArg(rec.AdGroupID), optStringArg(rec.AdGroupName),
			optStringArg(rec.KeywordID), optStringArg(rec.KeywordText), optStringArg(rec.ASIN),
			rec.Impressions, rec.Clicks, rec.Cost.String(), rec.Sales.String(), rec.Orders, rec.UnitsSold,
			nullDecimalArg(rec.CTR), nullDecimalArg(rec.CPC), nullDecimalArg(rec.ACOS), nullDecimalArg(rec.ROAS),
			nullDecimalArg(rec.ConversionRate),
			encodeTime(rec.StartDate), encodeTime(rec.EndDate), recCreated,
		).Scan(&rec.ID); err != nil {
			return Ingest{}, fmt.Errorf("insert performance record: %w", err)
		}
		if rec.CreatedAt, err = decodeTime(recCreated); err != nil {
			return Ingest{}, err
		}
		out.Performance = &rec
	case in.Budget != nil:
		ev := *in.Budget
		ev.RawMessageID = msg.ID
		evCreated := s.timestamp()
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO budget_usage_events (
				raw_message_id, dataset_category, dataset_name, profile_id, campaign_id,
				budget_type, budget_name, budget_status, daily_budget, budget_consumed, currency,
				start_date, end_date, details, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			ev.RawMessageID, string(ev.Category), ev.DatasetName, ev.ProfileID, optStringArg(ev.CampaignID),
			optStringArg(ev.BudgetType), optStringArg(ev.BudgetName), optStringArg(ev.BudgetStatus),
			ev.DailyBudget.String(), ev.BudgetConsumed.String(), optStringArg(ev.Currency),
			encodeTime(ev.StartDate), encodeTime(ev.EndDate), string(ev.Details), evCreated,
		).Scan(&ev.ID); err != nil {
			return Ingest{}, fmt.Errorf("insert budget usage event: %w", err)
		}
		if ev.CreatedAt, err = decodeTime(evCreated); err != nil {
			return Ingest{}, err
		}
		out.Budget = &ev
	default:
		return Ingest{}, errors.New("ingest carries no derived record")
	}

	processedAt := s.now().UTC()
	if msg.ProcessedAt != nil {
		processedAt = msg.ProcessedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE raw_messages SET processed = 1, processed_at = ? WHERE id = ?`,
		encodeTime(processedAt), msg.ID,
	); err != nil {
		return Ingest{}, fmt.Errorf("mark raw message processed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Ingest{}, fmt.Errorf("commit ingest: %w", err)
	}

	out.Message.Processed = true
	out.Message.ProcessedAt = &processedAt
	return out, nil
}

const sqlitePerformanceSelect = `SELECT ` + performanceColumns + ` FROM performance_records`

// LatestPerformanceBetween returns the newest record of a campaign starting in [from, to).
func (s *SQLite) LatestPerformanceBetween(ctx context.Context, campaignID string, from, to time.Time) (*PerformanceRecord, error) {
	rec, err := scanSQLitePerformance(s.db.QueryRowContext(ctx,
		sqlitePerformanceSelect+`
		 WHERE campaign_id = ? AND start_date >= ? AND start_date < ?
		 ORDER BY start_date DESC, id DESC
		 LIMIT 1`,
		campaignID, encodeTime(from), encodeTime(to),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest performance: %w", err)
	}
	return &rec, nil
}

// SumCostBetween sums the cost of campaign records starting in [from, to). Costs are summed
// in decimal arithmetic because SQLite would coerce the text column to floating point.
func (s *SQLite) SumCostBetween(ctx context.Context, campaignID string, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cost FROM performance_records WHERE campaign_id = ? AND start_date >= ? AND start_date < ?`,
		campaignID, encodeTime(from), encodeTime(to),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum cost: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, fmt.Errorf("scan cost: %w", err)
		}
		cost, err := parseDecimal("cost", v)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return total, rows.Err()
}

// ListCampaignKeys lists the campaign grains with records overlapping [from, to).
func (s *SQLite) ListCampaignKeys(ctx context.Context, from, to time.Time) ([]CampaignKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT campaign_id, dataset_category, profile_id
		 FROM performance_records
		 WHERE start_date < ? AND end_date >= ?
		 ORDER BY campaign_id, dataset_category, profile_id`,
		encodeTime(to), encodeTime(from),
	)
	if err != nil {
		return nil, fmt.Errorf("list campaign keys: %w", err)
	}
	defer rows.Close()

	keys := make([]CampaignKey, 0)
	for rows.Next() {
		var key CampaignKey
		var category string
		if err := rows.Scan(&key.CampaignID, &category, &key.ProfileID); err != nil {
			return nil, fmt.Errorf("scan campaign key: %w", err)
		}
		key.Category = DatasetCategory(category)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListPerformanceWithin lists records of a grain fully contained in [from, to).
func (s *SQLite) ListPerformanceWithin(ctx context.Context, key CampaignKey, from, to time.Time) ([]PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		sqlitePerformanceSelect+`
		 WHERE campaign_id = ? AND dataset_category = ? AND profile_id = ?
		   AND start_date >= ? AND start_date < ? AND end_date <= ?
		 ORDER BY start_date, id`,
		key.CampaignID, string(key.Category), key.ProfileID, encodeTime(from), encodeTime(to), encodeTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list performance within: %w", err)
	}
	defer rows.Close()

	records := make([]PerformanceRecord, 0)
	for rows.Next() {
		rec, err := scanSQLitePerformance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const sqliteAggregateSelect = `SELECT ` + aggregateColumns + ` FROM performance_aggregates`

// FindAggregate looks up the aggregate for a campaign bucket.
func (s *SQLite) FindAggregate(ctx context.Context, campaignID string, period PeriodType, start time.Time) (*Aggregate, error) {
	agg, err := scanSQLiteAggregate(s.db.QueryRowContext(ctx,
		sqliteAggregateSelect+` WHERE campaign_id = ? AND period_type = ? AND period_start = ?`,
		campaignID, string(period), encodeTime(start),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find aggregate: %w", err)
	}
	return &agg, nil
}

// InsertAggregate persists a new aggregate; a key conflict yields ErrDuplicate.
func (s *SQLite) InsertAggregate(ctx context.Context, agg Aggregate) (Aggregate, error) {
	createdAt := s.timestamp()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO performance_aggregates (
			campaign_id, dataset_category, profile_id, period_type, period_start, period_end,
			record_count, total_impressions, total_clicks, total_cost, total_sales, total_orders, total_units_sold,
			avg_ctr, avg_cpc, avg_acos, avg_roas, avg_conversion_rate, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, period_type, period_start) DO NOTHING
		RETURNING id`,
		agg.CampaignID, string(agg.Category), agg.ProfileID, string(agg.PeriodType),
		encodeTime(agg.PeriodStart), encodeTime(agg.PeriodEnd),
		agg.RecordCount, agg.TotalImpressions, agg.TotalClicks, agg.TotalCost.String(), agg.TotalSales.String(),
		agg.TotalOrders, agg.TotalUnitsSold,
		nullDecimalArg(agg.AvgCTR), nullDecimalArg(agg.AvgCPC), nullDecimalArg(agg.AvgACOS),
		nullDecimalArg(agg.AvgROAS), nullDecimalArg(agg.AvgConversionRate),
		createdAt,
	).Scan(&agg.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Aggregate{}, ErrDuplicate
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("insert aggregate: %w", err)
	}
	if agg.CreatedAt, err = decodeTime(createdAt); err != nil {
		return Aggregate{}, err
	}
	return agg, nil
}

// ListAggregates lists a campaign's aggregates with period_start in [from, to).
func (s *SQLite) ListAggregates(ctx context.Context, campaignID string, period PeriodType, from, to time.Time) ([]Aggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteAggregateSelect+`
		 WHERE campaign_id = ? AND period_type = ? AND period_start >= ? AND period_start < ?
		 ORDER BY period_start`,
		campaignID, string(period), encodeTime(from), encodeTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	return collectSQLiteAggregates(rows)
}

// ListRecentAggregates lists the newest aggregates.
func (s *SQLite) ListRecentAggregates(ctx context.Context, limit int) ([]Aggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteAggregateSelect+` ORDER BY period_start DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent aggregates: %w", err)
	}
	return collectSQLiteAggregates(rows)
}

// InsertAlert persists an unsent alert.
func (s *SQLite) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	createdAt := s.timestamp()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO alerts (
			alert_type, severity, campaign_id, campaign_name, profile_id, message,
			metric_value, threshold_value, previous_value, sent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		RETURNING id`,
		string(alert.Type), string(alert.Severity), alert.CampaignID, optStringArg(alert.CampaignName),
		alert.ProfileID, alert.Message,
		nullDecimalArg(alert.MetricValue), nullDecimalArg(alert.ThresholdValue), nullDecimalArg(alert.PreviousValue),
		createdAt,
	).Scan(&alert.ID)
	if err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	if alert.CreatedAt, err = decodeTime(createdAt); err != nil {
		return Alert{}, err
	}
	alert.Sent = false
	alert.SentAt = nil
	return alert, nil
}

// MarkAlertSent records a successful delivery.
func (s *SQLite) MarkAlertSent(ctx context.Context, id int64, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET sent = 1, sent_at = ? WHERE id = ?`, encodeTime(sentAt), id)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLite) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
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
			sentAt                      *string
			createdAt                   string
		)
		if err := rows.Scan(
			&a.ID, &alertType, &severity, &a.CampaignID, &a.CampaignName, &a.ProfileID, &a.Message,
			&metric, &threshold, &previous, &a.Sent, &sentAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = AlertType(alertType)
		a.Severity = Severity(severity)
		if err := applyAlertValues(&a, metric, threshold, previous); err != nil {
			return nil, err
		}
		if a.SentAt, err = decodeOptTime(sentAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanSQLitePerformance(row rowScanner) (PerformanceRecord, error) {
	var (
		rec                 PerformanceRecord
		category            string
		cost, sales         string
		ratios              ratioTexts
		start, end, created string
	)
	if err := row.Scan(
		&rec.ID, &rec.RawMessageID, &category, &rec.DatasetName, &rec.ProfileID,
		&rec.CampaignID, &rec.CampaignName, &rec.AdGroupID, &rec.AdGroupName, &rec.KeywordID, &rec.KeywordText, &rec.ASIN,
		&rec.Impressions, &rec.Clicks, &cost, &sales, &rec.Orders, &rec.UnitsSold,
		&ratios.ctr, &ratios.cpc, &ratios.acos, &ratios.roas, &ratios.conversion,
		&start, &end, &created,
	); err != nil {
		return PerformanceRecord{}, err
	}

	var err error
	if rec.StartDate, err = decodeTime(start); err != nil {
		return PerformanceRecord{}, err
	}
	if rec.EndDate, err = decodeTime(end); err != nil {
		return PerformanceRecord{}, err
	}
	if rec.CreatedAt, err = decodeTime(created); err != nil {
		return PerformanceRecord{}, err
	}
	return finishPerformance(rec, category, cost, sales, ratios)
}

func scanSQLiteAggregate(row rowScanner) (Aggregate, error) {
	var (
		agg                 Aggregate
		category, period    string
		cost, sales         string
		ratios              ratioTexts
		start, end, created string
	)
	if err := row.Scan(
		&agg.ID, &agg.CampaignID, &category, &agg.ProfileID, &period, &start, &end,
		&agg.RecordCount, &agg.TotalImpressions, &agg.TotalClicks, &cost, &sales, &agg.TotalOrders, &agg.TotalUnitsSold,
		&ratios.ctr, &ratios.cpc, &ratios.acos, &ratios.roas, &ratios.conversion,
		&created,
	); err != nil {
		return Aggregate{}, err
	}

	var err error
	if agg.PeriodStart, err = decodeTime(start); err != nil {
		return Aggregate{}, err
	}
	if agg.PeriodEnd, err = decodeTime(end); err != nil {
		return Aggregate{}, err
	}
	if agg.CreatedAt, err = decodeTime(created); err != nil {
		return Aggregate{}, err
	}
	return finishAggregate(agg, category, period, cost, sales, ratios)
}

func collectSQLiteAggregates(rows *sql.Rows) ([]Aggregate, error) {
	defer rows.Close()
	aggs := make([]Aggregate, 0)
	for rows.Next() {
		agg, err := scanSQLiteAggregate(rows)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}
	return aggs, rows.Err()
}

var _ Store = (*SQLite)(nil)
