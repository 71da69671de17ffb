package normalizer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ads-stream-alerts/internal/storage"
)

var fixedNow = time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "normalizer.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newTestNormalizer(store storage.MessageStore) *Normalizer {
	return New(store, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
}

const performanceMessage = `{
	"messageId": "msg-1",
	"datasetType": "sp-traffic",
	"profileId": "profile-9",
	"data": {
		"campaignId": 12345,
		"campaignName": "Spring Sale",
		"impressions": 200,
		"clicks": 5,
		"cost": "12.50",
		"attributed_sales_7d": 40,
		"orders": 2,
		"time_window_start": "2024-05-10T10:00:00Z",
		"time_window_end": "2024-05-10T11:00:00Z"
	}
}`

func TestProcessPerformanceMessage(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)
	ctx := context.Background()

	res := n.Process(ctx, []byte(performanceMessage))
	require.Equal(t, OutcomeProcessed, res.Outcome, res.Reason)
	require.NotNil(t, res.Performance)
	assert.Nil(t, res.Budget)
	assert.True(t, res.Acknowledge())

	rec := res.Performance
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "12345", rec.CampaignID)
	assert.Equal(t, storage.CategorySP, rec.Category)
	assert.Equal(t, "sp-traffic", rec.DatasetName)
	assert.Equal(t, "profile-9", rec.ProfileID)
	require.NotNil(t, rec.CampaignName)
	assert.Equal(t, "Spring Sale", *rec.CampaignName)
	assert.Equal(t, int64(200), rec.Impressions)
	assert.Equal(t, "40", rec.Sales.String())
	assert.Equal(t, "0.0250", rec.CTR.Decimal.StringFixed(4))
	assert.Equal(t, "3.2", rec.ROAS.Decimal.String())
	assert.True(t, rec.StartDate.Equal(time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)))
	assert.True(t, rec.EndDate.Equal(time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)))

	raw, err := store.FindRawMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, raw.Processed)
	require.NotNil(t, raw.ProcessedAt)
	assert.True(t, raw.ProcessedAt.Equal(fixedNow))
	assert.JSONEq(t, performanceMessage, string(raw.RawData))
}

func TestProcessIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)
	ctx := context.Background()

	first := n.Process(ctx, []byte(performanceMessage))
	require.Equal(t, OutcomeProcessed, first.Outcome)

	second := n.Process(ctx, []byte(performanceMessage))
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.True(t, second.Acknowledge())
	assert.Nil(t, second.Performance)

	key := storage.CampaignKey{CampaignID: "12345", Category: storage.CategorySP, ProfileID: "profile-9"}
	records, err := store.ListPerformanceWithin(ctx, key, fixedNow.Add(-24*time.Hour), fixedNow)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestProcessRejectsUnknownDataset(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)
	ctx := context.Background()

	res := n.Process(ctx, []byte(`{"messageId":"msg-xx","datasetType":"XX","profileId":"p","data":{"campaignId":"c"}}`))
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.True(t, res.Acknowledge())

	_, err := store.FindRawMessage(ctx, "msg-xx")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessRejectsInvalidMessages(t *testing.T) {
	cases := map[string]string{
		"malformed json":     `{"messageId":`,
		"not an object":      `["a","b"]`,
		"missing message id": `{"datasetType":"sp-traffic","profileId":"p"}`,
		"missing profile":    `{"messageId":"m","datasetType":"sp-traffic"}`,
		"empty dataset":      `{"messageId":"m","datasetType":"  ","profileId":"p"}`,
		"missing campaign":   `{"messageId":"m","datasetType":"sp-traffic","profileId":"p","data":{"clicks":3}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t)
			res := newTestNormalizer(store).Process(context.Background(), []byte(body))
			assert.Equal(t, OutcomeRejected, res.Outcome)

			_, err := store.FindRawMessage(context.Background(), "m")
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestProcessBudgetMessage(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)

	body := `{
		"idempotency_id": "budget-1",
		"dataset_id": "SD-Budget-Usage",
		"advertiser_id": 42,
		"payload": {
			"campaign_id": "c-7",
			"budgetType": "daily",
			"status": "ACTIVE",
			"dailyBudget": "50.00",
			"amountSpent": 12.25,
			"currencyCode": "USD"
		}
	}`
	res := n.Process(context.Background(), []byte(body))
	require.Equal(t, OutcomeProcessed, res.Outcome, res.Reason)
	assert.Nil(t, res.Performance)
	require.NotNil(t, res.Budget)

	ev := res.Budget
	assert.Equal(t, storage.CategorySD, ev.Category)
	assert.Equal(t, "sd-budget-usage", ev.DatasetName)
	assert.Equal(t, "42", ev.ProfileID)
	require.NotNil(t, ev.CampaignID)
	assert.Equal(t, "c-7", *ev.CampaignID)
	require.NotNil(t, ev.BudgetStatus)
	assert.Equal(t, "ACTIVE", *ev.BudgetStatus)
	require.NotNil(t, ev.Currency)
	assert.Equal(t, "USD", *ev.Currency)
	assert.Equal(t, "50", ev.DailyBudget.String())
	assert.Equal(t, "12.25", ev.BudgetConsumed.String())
	assert.True(t, ev.StartDate.Equal(fixedNow))
	assert.True(t, ev.EndDate.Equal(fixedNow))
	assert.Contains(t, string(ev.Details), `"budgetType":"daily"`)
}

func TestProcessNestedPathsAndDateDefaults(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)

	body := `{
		"id": "msg-nested",
		"dataset_type": "sb-conversion",
		"profile_id": "p-1",
		"data": {},
		"payload": {
			"campaign": {"id": "c-9", "name": "Brand"},
			"ad_group": {"id": "ag-1"},
			"product": {"asin": "B000TEST"},
			"spend": 3.5,
			"revenue": "7",
			"period": {"start": "2024-05-09"},
			"end_date": "not-a-date"
		}
	}`
	res := n.Process(context.Background(), []byte(body))
	require.Equal(t, OutcomeProcessed, res.Outcome, res.Reason)

	rec := res.Performance
	assert.Equal(t, storage.CategorySB, rec.Category)
	assert.Equal(t, "c-9", rec.CampaignID)
	require.NotNil(t, rec.CampaignName)
	assert.Equal(t, "Brand", *rec.CampaignName)
	require.NotNil(t, rec.AdGroupID)
	assert.Equal(t, "ag-1", *rec.AdGroupID)
	require.NotNil(t, rec.ASIN)
	assert.Equal(t, "B000TEST", *rec.ASIN)
	assert.Nil(t, rec.KeywordID)
	assert.Equal(t, "3.5", rec.Cost.String())
	assert.Equal(t, "7", rec.Sales.String())
	assert.Zero(t, rec.Impressions)
	assert.False(t, rec.CTR.Valid)
	assert.True(t, rec.StartDate.Equal(time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)))
	assert.True(t, rec.EndDate.Equal(fixedNow))
}

func TestProcessNonNumericCounterIsTransient(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)

	body := `{"messageId":"msg-bad","datasetType":"sp-traffic","profileId":"p","data":{"campaignId":"c","clicks":"many"}}`
	res := n.Process(context.Background(), []byte(body))
	assert.Equal(t, OutcomeTransient, res.Outcome)
	assert.False(t, res.Acknowledge())
	assert.Error(t, res.Err)

	_, err := store.FindRawMessage(context.Background(), "msg-bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessNegativeValuesAreRejected(t *testing.T) {
	store := newTestStore(t)
	n := newTestNormalizer(store)

	bodies := map[string]string{
		"neg-clicks": `{"messageId":"neg-clicks","datasetType":"sp-traffic","profileId":"p","data":{"campaignId":"c","clicks":-3}}`,
		"neg-cost":   `{"messageId":"neg-cost","datasetType":"sp-traffic","profileId":"p","data":{"campaignId":"c","cost":"-1.50"}}`,
	}
	for id, body := range bodies {
		res := n.Process(context.Background(), []byte(body))
		assert.Equal(t, OutcomeRejected, res.Outcome, id)
		assert.True(t, res.Acknowledge(), id)

		_, err := store.FindRawMessage(context.Background(), id)
		assert.ErrorIs(t, err, storage.ErrNotFound, id)
	}
}

type failingStore struct {
	findErr error
	saveErr error
}

func (f failingStore) FindRawMessage(context.Context, string) (*storage.RawMessage, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return nil, storage.ErrNotFound
}

func (f failingStore) SaveIngest(_ context.Context, in storage.Ingest) (storage.Ingest, error) {
	if f.saveErr != nil {
		return storage.Ingest{}, f.saveErr
	}
	return in, nil
}

func TestProcessStoreFailuresAreTransient(t *testing.T) {
	outage := errors.New("connection refused")

	res := newTestNormalizer(failingStore{findErr: outage}).Process(context.Background(), []byte(performanceMessage))
	assert.Equal(t, OutcomeTransient, res.Outcome)
	assert.ErrorIs(t, res.Err, outage)

	res = newTestNormalizer(failingStore{saveErr: outage}).Process(context.Background(), []byte(performanceMessage))
	assert.Equal(t, OutcomeTransient, res.Outcome)
	assert.ErrorIs(t, res.Err, outage)
}

func TestProcessLostInsertRaceIsDuplicate(t *testing.T) {
	res := newTestNormalizer(failingStore{saveErr: storage.ErrDuplicate}).Process(context.Background(), []byte(performanceMessage))
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.True(t, res.Acknowledge())
}
