package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rule locates a value in a payload, either by a flat key or by a nested path.
type Rule struct {
	Path []string
}

// Key is a flat lookup.
func Key(name string) Rule { return Rule{Path: []string{name}} }

// Path is a nested lookup through successive objects.
func Path(parts ...string) Rule { return Rule{Path: parts} }

func (r Rule) lookup(obj map[string]any) (any, bool) {
	var current any = obj
	for _, part := range r.Path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// Rules is an ordered candidate list; the first rule producing a non-null value wins.
type Rules []Rule

// First returns the first non-null value.
func (rs Rules) First(obj map[string]any) (any, bool) {
	for _, r := range rs {
		if v, ok := r.lookup(obj); ok {
			return v, true
		}
	}
	return nil, false
}

// Envelope fields, read from the message root.
var (
	messageIDRules   = Rules{Key("messageId"), Key("id"), Key("idempotency_id"), Key("idempotencyId")}
	datasetTypeRules = Rules{Key("datasetType"), Key("dataset_type"), Key("dataset_id")}
	profileIDRules   = Rules{Key("profileId"), Key("profile_id"), Key("advertiser_id")}
)

// Shared payload fields.
var (
	campaignIDRules = Rules{Key("campaignId"), Key("campaign_id"), Path("campaign", "id")}
	startDateRules  = Rules{Key("time_window_start"), Key("startDate"), Key("start_date"), Key("date"), Path("period", "start")}
	endDateRules    = Rules{Key("time_window_end"), Key("endDate"), Key("end_date"), Path("period", "end")}
)

// Performance payload fields.
var (
	campaignNameRules = Rules{Key("campaignName"), Key("campaign_name"), Path("campaign", "name")}
	adGroupIDRules    = Rules{Key("adGroupId"), Key("ad_group_id"), Path("ad_group", "id")}
	adGroupNameRules  = Rules{Key("adGroupName"), Key("ad_group_name"), Path("ad_group", "name")}
	keywordIDRules    = Rules{Key("keywordId"), Key("keyword_id")}
	keywordTextRules  = Rules{Key("keywordText"), Key("keyword_text"), Key("search_term")}
	asinRules         = Rules{Key("asin"), Key("ASIN"), Path("product", "asin")}
	impressionsRules  = Rules{Key("impressions")}
	clicksRules       = Rules{Key("clicks")}
	costRules         = Rules{Key("cost"), Key("spend"), Key("ad_cost")}
	salesRules        = Rules{Key("sales"), Key("revenue"), Key("attributed_sales_1d"), Key("attributed_sales_7d")}
	ordersRules       = Rules{Key("orders"), Key("conversions"), Key("attributed_conversions_1d")}
	unitsSoldRules    = Rules{Key("unitsSold"), Key("units_sold"), Key("attributed_units_ordered_1d")}
)

// Budget payload fields.
var (
	budgetTypeRules     = Rules{Key("budgetType"), Key("budget_type")}
	budgetNameRules     = Rules{Key("budgetName"), Key("budget_name")}
	budgetStatusRules   = Rules{Key("budgetStatus"), Key("budget_status"), Key("status")}
	currencyRules       = Rules{Key("currency"), Key("currencyCode"), Key("currency_code")}
	dailyBudgetRules    = Rules{Key("dailyBudget"), Key("budget"), Key("budgetLimit"), Key("budget_limit"), Key("maxBudget"), Key("max_budget")}
	budgetConsumedRules = Rules{Key("budgetConsumed"), Key("budget_consumed"), Key("amountSpent"), Key("amount_spent"), Key("spend")}
)

// SupportedTimestampFormats lists the layouts accepted for window boundaries.
// Layouts without a zone are read as UTC.
var SupportedTimestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var (
	errNotNumeric    = errors.New("value is not numeric")
	errNegativeValue = errors.New("value is negative")
)

// stringValue renders an identifier; empty strings count as absent.
func stringValue(rs Rules, obj map[string]any) (string, bool) {
	v, ok := rs.First(obj)
	if !ok {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	return s, s != ""
}

func optionalString(rs Rules, obj map[string]any) *string {
	s, ok := stringValue(rs, obj)
	if !ok {
		return nil
	}
	return &s
}

// decimalValue reads a money amount; absent or empty values are zero.
func decimalValue(field string, rs Rules, obj map[string]any) (decimal.Decimal, error) {
	v, ok := rs.First(obj)
	if !ok {
		return decimal.Zero, nil
	}
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(t)
		if raw == "" {
			return decimal.Zero, nil
		}
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("%s: %w", field, errNotNumeric)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, errNotNumeric)
	}
	return d, nil
}

// counterValue reads a non-negative integer counter, truncating fractions.
func counterValue(field string, rs Rules, obj map[string]any) (int64, error) {
	d, err := decimalValue(field, rs, obj)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%s %s: %w", field, d.String(), errNegativeValue)
	}
	return d.IntPart(), nil
}

// timeValue reads a window boundary, falling back to now when absent or unparsable.
func timeValue(rs Rules, obj map[string]any, now time.Time) time.Time {
	v, ok := rs.First(obj)
	if !ok {
		return now
	}
	s, ok := v.(string)
	if !ok {
		return now
	}
	if t, err := ParseTimestamp(s); err == nil {
		return t
	}
	return now
}

// ParseTimestamp parses an ISO-8601 timestamp into UTC.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", ts)
}
