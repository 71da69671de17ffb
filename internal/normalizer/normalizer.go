// Package normalizer turns loosely structured stream messages into persisted
// performance records or budget usage events.
package normalizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ads-stream-alerts/internal/kpi"
	"ads-stream-alerts/internal/storage"
)

// Outcome classifies how a message was handled.
type Outcome string

const (
	// OutcomeProcessed means a new record was persisted.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the message_id was already known.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected means the message can never be processed.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTransient means nothing was persisted and the message should be redelivered.
	OutcomeTransient Outcome = "transient"
)

// Result reports the handling of one message.
type Result struct {
	Outcome     Outcome
	MessageID   string
	Reason      string
	Err         error
	Performance *storage.PerformanceRecord
	Budget      *storage.BudgetUsageEvent
}

// Acknowledge reports whether the message may be removed from the queue.
func (r Result) Acknowledge() bool {
	return r.Outcome != OutcomeTransient
}

var errMissingCampaign = errors.New("no campaign id found in payload")

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the ingestion clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// Normalizer deduplicates and extracts stream messages.
type Normalizer struct {
	store  storage.MessageStore
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Normalizer.
func New(store storage.MessageStore, logger zerolog.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		store:  store,
		logger: logger.With().Str("component", "normalizer").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Process handles one message body. It never returns an error; the Result outcome
// drives acknowledgement.
func (n *Normalizer) Process(ctx context.Context, body []byte) Result {
	root, err := decodeObject(body)
	if err != nil {
		return n.reject("", fmt.Sprintf("malformed message: %v", err))
	}

	messageID, okID := stringValue(messageIDRules, root)
	datasetType, okType := stringValue(datasetTypeRules, root)
	profileID, okProfile := stringValue(profileIDRules, root)
	if !okID || !okType || !okProfile {
		return n.reject(messageID, "missing required fields")
	}

	category, err := Classify(datasetType)
	if err != nil {
		return n.reject(messageID, fmt.Sprintf("unknown dataset type %q", datasetType))
	}

	if _, err := n.store.FindRawMessage(ctx, messageID); err == nil {
		n.logger.Debug().Str("message_id", messageID).Msg("message already processed")
		return Result{Outcome: OutcomeDuplicate, MessageID: messageID}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return n.transient(messageID, "lookup raw message", err)
	}

	now := n.now().UTC()
	datasetName := NormalizeDatasetName(datasetType)
	payload := payloadOf(root)

	in := storage.Ingest{Message: storage.RawMessage{
		MessageID:   messageID,
		Category:    category,
		DatasetName: datasetName,
		ProfileID:   profileID,
		RawData:     json.RawMessage(bytes.TrimSpace(body)),
		ProcessedAt: &now,
	}}

	if IsBudgetDataset(datasetName) {
		ev, err := extractBudget(payload, now)
		if err != nil {
			return n.transient(messageID, "extract budget usage", err)
		}
		ev.Category, ev.DatasetName, ev.ProfileID = category, datasetName, profileID
		in.Budget = &ev
	} else {
		rec, err := extractPerformance(payload, now)
		if errors.Is(err, errMissingCampaign) || errors.Is(err, errNegativeValue) {
			return n.reject(messageID, err.Error())
		}
		if err != nil {
			return n.transient(messageID, "extract performance", err)
		}
		rec.Category, rec.DatasetName, rec.ProfileID = category, datasetName, profileID
		kpi.Apply(&rec)
		in.Performance = &rec
	}

	saved, err := n.store.SaveIngest(ctx, in)
	if errors.Is(err, storage.ErrDuplicate) {
		n.logger.Debug().Str("message_id", messageID).Msg("message stored concurrently")
		return Result{Outcome: OutcomeDuplicate, MessageID: messageID}
	}
	if err != nil {
		return n.transient(messageID, "persist message", err)
	}

	n.logger.Info().
		Str("message_id", messageID).
		Str("dataset", datasetName).
		Str("category", string(category)).
		Msg("processed message")
	return Result{
		Outcome:     OutcomeProcessed,
		MessageID:   messageID,
		Performance: saved.Performance,
		Budget:      saved.Budget,
	}
}

func (n *Normalizer) reject(messageID, reason string) Result {
	n.logger.Warn().Str("message_id", messageID).Str("reason", reason).Msg("message rejected")
	return Result{Outcome: OutcomeRejected, MessageID: messageID, Reason: reason}
}

func (n *Normalizer) transient(messageID, stage string, err error) Result {
	n.logger.Error().Err(err).Str("message_id", messageID).Str("stage", stage).Msg("message processing failed")
	return Result{Outcome: OutcomeTransient, MessageID: messageID, Reason: stage, Err: err}
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("message body is not an object")
	}
	return root, nil
}

// payloadOf picks the non-empty "data" object, else "payload", else the root.
func payloadOf(root map[string]any) map[string]any {
	for _, key := range []string{"data", "payload"} {
		if m, ok := root[key].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return root
}

func extractPerformance(data map[string]any, now time.Time) (storage.PerformanceRecord, error) {
	campaignID, ok := stringValue(campaignIDRules, data)
	if !ok {
		return storage.PerformanceRecord{}, errMissingCampaign
	}

	rec := storage.PerformanceRecord{
		CampaignID:   campaignID,
		CampaignName: optionalString(campaignNameRules, data),
		AdGroupID:    optionalString(adGroupIDRules, data),
		AdGroupName:  optionalString(adGroupNameRules, data),
		KeywordID:    optionalString(keywordIDRules, data),
		KeywordText:  optionalString(keywordTextRules, data),
		ASIN:         optionalString(asinRules, data),
		StartDate:    timeValue(startDateRules, data, now),
		EndDate:      timeValue(endDateRules, data, now),
	}

	var err error
	if rec.Impressions, err = counterValue("impressions", impressionsRules, data); err != nil {
		return storage.PerformanceRecord{}, err
	}
	if rec.Clicks, err = counterValue("clicks", clicksRules, data); err != nil {
		return storage.PerformanceRecord{}, err
	}
	if rec.Orders, err = counterValue("orders", ordersRules, data); err != nil {
		return storage.PerformanceRecord{}, err
	}
	if rec.UnitsSold, err = counterValue("units_sold", unitsSoldRules, data); err != nil {
		return storage.PerformanceRecord{}, err
	}
	if rec.Cost, err = decimalValue("cost", costRules, data); err != nil {
		return storage.PerformanceRecord{}, err
	}
	if rec.Sales, err = decimalValue("sales", salesRules, data); err != nil {
		return storage.PerformanceRecord{}, err
	}
	if rec.Cost.IsNegative() || rec.Sales.IsNegative() {
		return storage.PerformanceRecord{}, fmt.Errorf("cost or sales: %w", errNegativeValue)
	}
	return rec, nil
}

func extractBudget(data map[string]any, now time.Time) (storage.BudgetUsageEvent, error) {
	ev := storage.BudgetUsageEvent{
		CampaignID:   optionalString(campaignIDRules, data),
		BudgetType:   optionalString(budgetTypeRules, data),
		BudgetName:   optionalString(budgetNameRules, data),
		BudgetStatus: optionalString(budgetStatusRules, data),
		Currency:     optionalString(currencyRules, data),
		StartDate:    timeValue(startDateRules, data, now),
		EndDate:      timeValue(endDateRules, data, now),
	}

	var err error
	if ev.DailyBudget, err = decimalValue("daily_budget", dailyBudgetRules, data); err != nil {
		return storage.BudgetUsageEvent{}, err
	}
	if ev.BudgetConsumed, err = decimalValue("budget_consumed", budgetConsumedRules, data); err != nil {
		return storage.BudgetUsageEvent{}, err
	}

	details, err := json.Marshal(data)
	if err != nil {
		return storage.BudgetUsageEvent{}, fmt.Errorf("encode budget details: %w", err)
	}
	ev.Details = details
	return ev, nil
}
