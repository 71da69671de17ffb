package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ads-stream-alerts/internal/config"
	"ads-stream-alerts/internal/normalizer"
	"ads-stream-alerts/internal/storage"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "app.db"),
		},
		Queue:       config.QueueConfig{Driver: "memory"},
		Aggregation: config.AggregationConfig{HourlyLookback: 24 * time.Hour, DailyLookback: 7 * 24 * time.Hour},
		Alerting:    config.AlertingConfig{Enabled: true, Channels: []string{"log"}},
		Export:      config.ExportConfig{MaxDataPoints: 100},
	}
	return NewApp(cfg, zerolog.Nop())
}

func TestParseFixturesAssignsMissingIDs(t *testing.T) {
	raw := []byte(`
messages:
  - messageId: fixed-1
    datasetType: sp-traffic
    profileId: p-1
    data:
      campaignId: c-1
      impressions: 100
  - datasetType: sb-budget-usage
    profileId: p-2
`)
	bodies, err := parseFixtures(raw)
	require.NoError(t, err)
	require.Len(t, bodies, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &first))
	assert.Equal(t, "fixed-1", first["messageId"])
	data, ok := first["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "c-1", data["campaignId"])

	var second map[string]any
	require.NoError(t, json.Unmarshal(bodies[1], &second))
	assert.NotEmpty(t, second["messageId"])
}

func TestParseFixturesRejectsInvalidYAML(t *testing.T) {
	_, err := parseFixtures([]byte("messages: [unterminated"))
	assert.Error(t, err)
}

func TestSampleMessagesAreProcessable(t *testing.T) {
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "sample.db"))
	require.NoError(t, err)
	defer store.Close()

	norm := normalizer.New(store, zerolog.Nop())
	for _, body := range sampleMessages(3, time.Now().UTC()) {
		res := norm.Process(context.Background(), body)
		assert.Equal(t, normalizer.OutcomeProcessed, res.Outcome, res.Reason)
	}
}

func TestSampleAlertCoversEveryType(t *testing.T) {
	for _, typ := range []storage.AlertType{storage.AlertCTRDrop, storage.AlertSpendSpike, storage.AlertHighACOS, storage.AlertLowROAS} {
		alert, err := sampleAlert(typ, time.Now())
		require.NoError(t, err, typ)
		assert.NotEmpty(t, alert.Message)
		assert.True(t, alert.MetricValue.Valid)
	}

	_, err := sampleAlert("bogus", time.Now())
	assert.Error(t, err)
}

func TestSimulateAlertUsesLogFallback(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.SimulateAlert(context.Background(), storage.AlertLowROAS))

	a.Config.Alerting.Enabled = false
	assert.Error(t, a.SimulateAlert(context.Background(), storage.AlertLowROAS))
}

func TestDownsampleAggregates(t *testing.T) {
	aggs := make([]storage.Aggregate, 10)
	for i := range aggs {
		aggs[i].RecordCount = i
	}

	out := downsampleAggregates(aggs, 4)
	require.Len(t, out, 4)
	assert.Equal(t, 0, out[0].RecordCount)
	assert.Equal(t, 9, out[3].RecordCount)

	assert.Len(t, downsampleAggregates(aggs, 20), 10)
	assert.Equal(t, 9, downsampleAggregates(aggs, 1)[0].RecordCount)
}

func TestWriteAlertsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAlerts(&buf, nil))
	assert.Equal(t, "no alerts found\n", buf.String())

	buf.Reset()
	require.NoError(t, writeAlerts(&buf, []storage.Alert{{
		Type:       storage.AlertHighACOS,
		Severity:   storage.SeverityHigh,
		CampaignID: "c-1",
		Message:    "ACOS is 62.50%,\nexceeding threshold",
		CreatedAt:  time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC),
	}}))
	out := buf.String()
	assert.Contains(t, out, "high_acos")
	assert.Contains(t, out, "2024-05-10T10:00:00Z")
	assert.Contains(t, out, "ACOS is 62.50%, exceeding threshold")
}

func TestAggregateAndExportCSV(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	store, err := storage.NewSQLite(a.Config.Database.SQLitePath)
	require.NoError(t, err)
	norm := normalizer.New(store, zerolog.Nop())
	for _, body := range sampleMessages(3, time.Now().UTC()) {
		require.Equal(t, normalizer.OutcomeProcessed, norm.Process(ctx, body).Outcome)
	}
	store.Close()

	report, err := a.Aggregate(ctx, storage.PeriodHourly)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Created)

	again, err := a.Aggregate(ctx, storage.PeriodHourly)
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 3, again.Existing)

	csvPath := filepath.Join(t.TempDir(), "out", "demo.csv")
	require.NoError(t, a.Export(ctx, ExportOptions{
		CampaignID: "demo-campaign",
		Period:     storage.PeriodHourly,
		CSVPath:    csvPath,
	}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "period_start", rows[0][0])
	assert.Equal(t, "demo-campaign", rows[1][3])
	assert.True(t, decimal.RequireFromString(rows[1][9]).IsPositive())
}

func TestAggregateRejectsUnknownPeriod(t *testing.T) {
	_, err := newTestApp(t).Aggregate(context.Background(), "weekly")
	assert.Error(t, err)
}

func TestExportRequiresOutput(t *testing.T) {
	err := newTestApp(t).Export(context.Background(), ExportOptions{CampaignID: "c-1"})
	assert.Error(t, err)
}
