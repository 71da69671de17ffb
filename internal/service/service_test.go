package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ads-stream-alerts/internal/aggregation"
	"ads-stream-alerts/internal/alerting"
	"ads-stream-alerts/internal/config"
	"ads-stream-alerts/internal/normalizer"
	"ads-stream-alerts/internal/queue"
	"ads-stream-alerts/internal/storage"
)

const trafficMessage = `{
	"messageId": "msg-1",
	"datasetType": "sp-traffic",
	"profileId": "profile-1",
	"data": {
		"campaignId": "c-1",
		"impressions": 200,
		"clicks": 5,
		"cost": "12.50",
		"sales": "40",
		"time_window_start": "2024-05-10T10:00:00Z",
		"time_window_end": "2024-05-10T11:00:00Z"
	}
}`

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

type stubProcessor struct {
	result normalizer.Result
}

func (s stubProcessor) Process(context.Context, []byte) normalizer.Result {
	return s.result
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(context.Context, storage.PerformanceRecord) ([]storage.Alert, error) {
	return nil, errors.New("lookback query failed")
}

type fakeAggregator struct {
	mu      sync.Mutex
	hourly  []time.Duration
	daily   []time.Duration
	created int
}

func (f *fakeAggregator) RunHourly(_ context.Context, lookback time.Duration) (aggregation.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hourly = append(f.hourly, lookback)
	return aggregation.Report{Period: storage.PeriodHourly, Created: f.created}, nil
}

func (f *fakeAggregator) RunDaily(_ context.Context, lookback time.Duration) (aggregation.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily = append(f.daily, lookback)
	return aggregation.Report{Period: storage.PeriodDaily, Created: f.created}, nil
}

type fakeLocker struct {
	acquired bool
	keys     []int64
	unlocked int
}

func (f *fakeLocker) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	f.keys = append(f.keys, key)
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.unlocked++ }, true, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{
			Enabled:      true,
			PollInterval: time.Hour,
			BatchSize:    10,
		},
		Aggregation: config.AggregationConfig{
			HourlyLookback:  24 * time.Hour,
			DailyLookback:   7 * 24 * time.Hour,
			AdvisoryLockKey: 100,
		},
	}
}

func newSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestProcessBatchAcknowledgesHandledMessages(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	q := queue.NewMemory()
	notifier := &recordingNotifier{}

	norm := normalizer.New(store, zerolog.Nop())
	alerts := alerting.NewEngine(store, notifier, alerting.DefaultThresholds(), zerolog.Nop())
	orch := New(testConfig(), q, norm, alerts, &fakeAggregator{}, store, zerolog.Nop())

	require.NoError(t, q.Send(ctx, []byte(trafficMessage)))
	require.NoError(t, q.Send(ctx, []byte(trafficMessage)))
	require.NoError(t, q.Send(ctx, []byte(`{"messageId":"msg-2","datasetType":"XX","profileId":"p"}`)))

	report, err := orch.ProcessBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Received)
	assert.Equal(t, 3, report.Acknowledged)
	assert.Equal(t, 1, report.Outcomes[normalizer.OutcomeProcessed])
	assert.Equal(t, 1, report.Outcomes[normalizer.OutcomeDuplicate])
	assert.Equal(t, 1, report.Outcomes[normalizer.OutcomeRejected])

	ready, inflight := q.Len()
	assert.Zero(t, ready)
	assert.Zero(t, inflight)

	// acos 12.50/40 = 0.3125 crosses the 0.3 threshold; nothing else fires without history.
	assert.Equal(t, 1, report.Alerts)
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, storage.AlertHighACOS, notifier.notes[0].Type)

	sent, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Sent)

	_, err = store.FindRawMessage(ctx, "msg-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessBatchLeavesTransientMessages(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	proc := stubProcessor{result: normalizer.Result{
		Outcome:   normalizer.OutcomeTransient,
		MessageID: "msg-1",
		Err:       errors.New("database unavailable"),
	}}
	orch := New(testConfig(), q, proc, nil, &fakeAggregator{}, nil, zerolog.Nop())

	require.NoError(t, q.Send(ctx, []byte(trafficMessage)))

	report, err := orch.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Zero(t, report.Acknowledged)
	assert.Equal(t, 1, report.Outcomes[normalizer.OutcomeTransient])

	_, inflight := q.Len()
	assert.Equal(t, 1, inflight)
}

func TestProcessBatchLeavesMessageWhenAlertStoreFails(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	proc := stubProcessor{result: normalizer.Result{
		Outcome:     normalizer.OutcomeProcessed,
		MessageID:   "msg-1",
		Performance: &storage.PerformanceRecord{CampaignID: "c-1"},
	}}
	orch := New(testConfig(), q, proc, failingEvaluator{}, &fakeAggregator{}, nil, zerolog.Nop())

	require.NoError(t, q.Send(ctx, []byte(trafficMessage)))

	report, err := orch.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Acknowledged)

	_, inflight := q.Len()
	assert.Equal(t, 1, inflight)
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	orch := New(testConfig(), queue.NewMemory(), stubProcessor{}, nil, &fakeAggregator{}, nil, zerolog.Nop())

	report, err := orch.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Received)
}

func TestAggregationJobsUseConfiguredLookback(t *testing.T) {
	agg := &fakeAggregator{}
	orch := New(testConfig(), queue.NewMemory(), stubProcessor{}, nil, agg, nil, zerolog.Nop())

	require.NoError(t, orch.RunHourly(context.Background()))
	require.NoError(t, orch.RunDaily(context.Background()))

	assert.Equal(t, []time.Duration{24 * time.Hour}, agg.hourly)
	assert.Equal(t, []time.Duration{7 * 24 * time.Hour}, agg.daily)
}

func TestAggregationSkippedWhenLockHeld(t *testing.T) {
	agg := &fakeAggregator{}
	locker := &fakeLocker{acquired: false}
	orch := New(testConfig(), queue.NewMemory(), stubProcessor{}, nil, agg, locker, zerolog.Nop())

	require.NoError(t, orch.RunHourly(context.Background()))
	require.NoError(t, orch.RunDaily(context.Background()))

	assert.Empty(t, agg.hourly)
	assert.Empty(t, agg.daily)
	assert.Equal(t, []int64{100, 101}, locker.keys)
}

func TestAggregationReleasesLock(t *testing.T) {
	agg := &fakeAggregator{}
	locker := &fakeLocker{acquired: true}
	orch := New(testConfig(), queue.NewMemory(), stubProcessor{}, nil, agg, locker, zerolog.Nop())

	require.NoError(t, orch.RunHourly(context.Background()))

	assert.Len(t, agg.hourly, 1)
	assert.Equal(t, 1, locker.unlocked)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := queue.NewMemory()
	proc := stubProcessor{result: normalizer.Result{Outcome: normalizer.OutcomeRejected}}
	orch := New(testConfig(), q, proc, nil, &fakeAggregator{}, nil, zerolog.Nop())

	require.NoError(t, q.Send(ctx, []byte(`{}`)))

	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		ready, inflight := q.Len()
		return ready == 0 && inflight == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after cancel")
	}
}
