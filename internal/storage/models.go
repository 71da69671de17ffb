package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DatasetCategory is the advertising product family a stream dataset belongs to.
type DatasetCategory string

const (
	CategorySP DatasetCategory = "SP"
	CategorySB DatasetCategory = "SB"
	CategorySD DatasetCategory = "SD"
)

// ParseDatasetCategory accepts the exact category names only.
func ParseDatasetCategory(v string) (DatasetCategory, error) {
	switch DatasetCategory(strings.ToUpper(strings.TrimSpace(v))) {
	case CategorySP:
		return CategorySP, nil
	case CategorySB:
		return CategorySB, nil
	case CategorySD:
		return CategorySD, nil
	}
	return "", fmt.Errorf("unknown dataset category %q", v)
}

// PeriodType selects the bucket size of an aggregate.
type PeriodType string

const (
	PeriodHourly PeriodType = "hourly"
	PeriodDaily  PeriodType = "daily"
)

// Duration is the bucket width of the period.
func (p PeriodType) Duration() time.Duration {
	if p == PeriodDaily {
		return 24 * time.Hour
	}
	return time.Hour
}

// AlertType names the check that produced an alert.
type AlertType string

const (
	AlertCTRDrop    AlertType = "ctr_drop"
	AlertSpendSpike AlertType = "spend_spike"
	AlertHighACOS   AlertType = "high_acos"
	AlertLowROAS    AlertType = "low_roas"
)

// Severity of an alert.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RawMessage is the deduplication record of a queue message.
type RawMessage struct {
	ID          int64
	MessageID   string
	Category    DatasetCategory
	DatasetName string
	ProfileID   string
	RawData     json.RawMessage
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// PerformanceRecord is a normalized performance observation for a campaign window.
type PerformanceRecord struct {
	ID             int64
	RawMessageID   int64
	Category       DatasetCategory
	DatasetName    string
	ProfileID      string
	CampaignID     string
	CampaignName   *string
	AdGroupID      *string
	AdGroupName    *string
	KeywordID      *string
	KeywordText    *string
	ASIN           *string
	Impressions    int64
	Clicks         int64
	Cost           decimal.Decimal
	Sales          decimal.Decimal
	Orders         int64
	UnitsSold      int64
	CTR            decimal.NullDecimal
	CPC            decimal.NullDecimal
	ACOS           decimal.NullDecimal
	ROAS           decimal.NullDecimal
	ConversionRate decimal.NullDecimal
	StartDate      time.Time
	EndDate        time.Time
	CreatedAt      time.Time
}

// BudgetUsageEvent captures a budget monitoring message.
type BudgetUsageEvent struct {
	ID             int64
	RawMessageID   int64
	Category       DatasetCategory
	DatasetName    string
	ProfileID      string
	CampaignID     *string
	BudgetType     *string
	BudgetName     *string
	BudgetStatus   *string
	DailyBudget    decimal.Decimal
	BudgetConsumed decimal.Decimal
	Currency       *string
	StartDate      time.Time
	EndDate        time.Time
	Details        json.RawMessage
	CreatedAt      time.Time
}

// CampaignKey identifies the aggregation grain.
type CampaignKey struct {
	CampaignID string
	Category   DatasetCategory
	ProfileID  string
}

// Aggregate is an immutable time-bucketed summary for one campaign.
type Aggregate struct {
	ID                int64
	CampaignID        string
	Category          DatasetCategory
	ProfileID         string
	PeriodType        PeriodType
	PeriodStart       time.Time
	PeriodEnd         time.Time
	RecordCount       int
	TotalImpressions  int64
	TotalClicks       int64
	TotalCost         decimal.Decimal
	TotalSales        decimal.Decimal
	TotalOrders       int64
	TotalUnitsSold    int64
	AvgCTR            decimal.NullDecimal
	AvgCPC            decimal.NullDecimal
	AvgACOS           decimal.NullDecimal
	AvgROAS           decimal.NullDecimal
	AvgConversionRate decimal.NullDecimal
	CreatedAt         time.Time
}

// Alert is a persisted threshold breach.
type Alert struct {
	ID             int64
	Type           AlertType
	Severity       Severity
	CampaignID     string
	CampaignName   *string
	ProfileID      string
	Message        string
	MetricValue    decimal.NullDecimal
	ThresholdValue decimal.NullDecimal
	PreviousValue  decimal.NullDecimal
	Sent           bool
	SentAt         *time.Time
	CreatedAt      time.Time
}

// Ingest bundles what the normalizer persists for one message.
// Exactly one of Performance or Budget is set.
type Ingest struct {
	Message     RawMessage
	Performance *PerformanceRecord
	Budget      *BudgetUsageEvent
}
