package storage

import (
	"database/sql"
	"fmt"
)

// sqliteMigrations mirror migrations/*.sql for the embedded backend. Times are stored as
// fixed-width UTC text and decimals as text so ordering and precision survive the round trip.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS raw_messages (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id       TEXT NOT NULL UNIQUE,
		dataset_category TEXT NOT NULL CHECK(dataset_category IN ('SP', 'SB', 'SD')),
		dataset_name     TEXT NOT NULL DEFAULT '',
		profile_id       TEXT NOT NULL,
		raw_data         TEXT NOT NULL,
		processed        INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		processed_at     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_raw_messages_processed ON raw_messages(processed);

	CREATE TABLE IF NOT EXISTS performance_records (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		raw_message_id   INTEGER NOT NULL REFERENCES raw_messages(id),
		dataset_category TEXT NOT NULL,
		dataset_name     TEXT NOT NULL DEFAULT '',
		profile_id       TEXT NOT NULL,
		campaign_id      TEXT NOT NULL,
		campaign_name    TEXT,
		ad_group_id      TEXT,
		ad_group_name    TEXT,
		keyword_id       TEXT,
		keyword_text     TEXT,
		asin             TEXT,
		impressions      INTEGER NOT NULL DEFAULT 0,
		clicks           INTEGER NOT NULL DEFAULT 0,
		cost             TEXT NOT NULL DEFAULT '0',
		sales            TEXT NOT NULL DEFAULT '0',
		orders           INTEGER NOT NULL DEFAULT 0,
		units_sold       INTEGER NOT NULL DEFAULT 0,
		ctr              TEXT,
		cpc              TEXT,
		acos             TEXT,
		roas             TEXT,
		conversion_rate  TEXT,
		start_date       TEXT NOT NULL,
		end_date         TEXT NOT NULL,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_performance_campaign_date ON performance_records(campaign_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_performance_profile_date ON performance_records(profile_id, start_date);

	CREATE TABLE IF NOT EXISTS performance_aggregates (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id         TEXT NOT NULL,
		dataset_category    TEXT NOT NULL,
		profile_id          TEXT NOT NULL,
		period_type         TEXT NOT NULL CHECK(period_type IN ('hourly', 'daily')),
		period_start        TEXT NOT NULL,
		period_end          TEXT NOT NULL,
		record_count        INTEGER NOT NULL DEFAULT 0,
		total_impressions   INTEGER NOT NULL DEFAULT 0,
		total_clicks        INTEGER NOT NULL DEFAULT 0,
		total_cost          TEXT NOT NULL DEFAULT '0',
		total_sales         TEXT NOT NULL DEFAULT '0',
		total_orders        INTEGER NOT NULL DEFAULT 0,
		total_units_sold    INTEGER NOT NULL DEFAULT 0,
		avg_ctr             TEXT,
		avg_cpc             TEXT,
		avg_acos            TEXT,
		avg_roas            TEXT,
		avg_conversion_rate TEXT,
		created_at          TEXT NOT NULL,
		UNIQUE (campaign_id, period_type, period_start)
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_type      TEXT NOT NULL,
		severity        TEXT NOT NULL,
		campaign_id     TEXT NOT NULL,
		campaign_name   TEXT,
		profile_id      TEXT NOT NULL,
		message         TEXT NOT NULL,
		metric_value    TEXT,
		threshold_value TEXT,
		previous_value  TEXT,
		sent            INTEGER NOT NULL DEFAULT 0,
		sent_at         TEXT,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_campaign ON alerts(campaign_id, created_at);`,

	`CREATE TABLE IF NOT EXISTS budget_usage_events (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		raw_message_id   INTEGER NOT NULL REFERENCES raw_messages(id),
		dataset_category TEXT NOT NULL,
		dataset_name     TEXT NOT NULL DEFAULT '',
		profile_id       TEXT NOT NULL,
		campaign_id      TEXT,
		budget_type      TEXT,
		budget_name      TEXT,
		budget_status    TEXT,
		daily_budget     TEXT NOT NULL DEFAULT '0',
		budget_consumed  TEXT NOT NULL DEFAULT '0',
		currency         TEXT,
		start_date       TEXT NOT NULL,
		end_date         TEXT NOT NULL,
		details          TEXT,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_budget_usage_campaign ON budget_usage_events(campaign_id, start_date);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(sqliteMigrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(sqliteMigrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
