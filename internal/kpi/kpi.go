// Package kpi derives the standard advertising ratios from raw counters.
package kpi

import (
	"github.com/shopspring/decimal"

	"ads-stream-alerts/internal/storage"
)

// Precision is the number of decimal places kept for every ratio.
const Precision int32 = 4

// Ratios holds the derived metrics; a ratio with a zero denominator is null.
type Ratios struct {
	CTR            decimal.NullDecimal
	CPC            decimal.NullDecimal
	ACOS           decimal.NullDecimal
	ROAS           decimal.NullDecimal
	ConversionRate decimal.NullDecimal
}

// Compute derives the ratios from counters.
func Compute(impressions, clicks int64, cost, sales decimal.Decimal, orders int64) Ratios {
	imp := decimal.NewFromInt(impressions)
	clk := decimal.NewFromInt(clicks)
	ord := decimal.NewFromInt(orders)

	return Ratios{
		CTR:            Ratio(clk, imp),
		CPC:            Ratio(cost, clk),
		ACOS:           Ratio(cost, sales),
		ROAS:           Ratio(sales, cost),
		ConversionRate: Ratio(ord, clk),
	}
}

// Apply fills the ratio fields of a performance record from its counters.
func Apply(rec *storage.PerformanceRecord) {
	r := Compute(rec.Impressions, rec.Clicks, rec.Cost, rec.Sales, rec.Orders)
	rec.CTR = r.CTR
	rec.CPC = r.CPC
	rec.ACOS = r.ACOS
	rec.ROAS = r.ROAS
	rec.ConversionRate = r.ConversionRate
}

// Ratio divides num by den rounding half away from zero; a zero denominator yields null.
func Ratio(num, den decimal.Decimal) decimal.NullDecimal {
	if den.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(num.DivRound(den, Precision))
}

// Mean averages the non-null values, or returns null when none are present.
func Mean(values []decimal.NullDecimal) decimal.NullDecimal {
	sum := decimal.Zero
	n := int64(0)
	for _, v := range values {
		if !v.Valid {
			continue
		}
		sum = sum.Add(v.Decimal)
		n++
	}
	if n == 0 {
		return decimal.NullDecimal{}
	}
	return Ratio(sum, decimal.NewFromInt(n))
}
