package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"ads-stream-alerts/internal/storage"
)

// Export renders a campaign's aggregate series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.CampaignID == "" {
		return errors.New("--campaign is required")
	}
	if opts.Period == "" {
		opts.Period = storage.PeriodHourly
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	aggs, err := store.ListAggregates(ctx, opts.CampaignID, opts.Period, from, to)
	if err != nil {
		return err
	}
	if len(aggs) == 0 {
		a.Logger.Info().Str("campaign_id", opts.CampaignID).Msg("no aggregates found for export window")
		return nil
	}

	downsampled := downsampleAggregates(aggs, opts.MaxPoints)
	a.Logger.Info().Int("total", len(aggs)).Int("exported", len(downsampled)).Msg("exporting aggregates")

	if opts.CSVPath != "" {
		if err := writeAggregatesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeAggregatesPNG(opts.PNGPath, opts.CampaignID, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsampleAggregates(aggs []storage.Aggregate, max int) []storage.Aggregate {
	if max <= 0 || len(aggs) <= max {
		return aggs
	}
	if max == 1 {
		return aggs[len(aggs)-1:]
	}

	result := make([]storage.Aggregate, 0, max)
	step := float64(len(aggs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(aggs) {
			idx = len(aggs) - 1
		}
		result = append(result, aggs[idx])
	}
	return result
}

func writeAggregatesCSV(path string, aggs []storage.Aggregate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{
		"period_start", "period_end", "period_type", "campaign_id", "dataset_category", "profile_id",
		"record_count", "total_impressions", "total_clicks", "total_cost", "total_sales", "total_orders",
		"total_units_sold", "avg_ctr", "avg_cpc", "avg_acos", "avg_roas", "avg_conversion_rate",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, agg := range aggs {
		record := []string{
			agg.PeriodStart.UTC().Format(time.RFC3339),
			agg.PeriodEnd.UTC().Format(time.RFC3339),
			string(agg.PeriodType),
			agg.CampaignID,
			string(agg.Category),
			agg.ProfileID,
			strconv.Itoa(agg.RecordCount),
			strconv.FormatInt(agg.TotalImpressions, 10),
			strconv.FormatInt(agg.TotalClicks, 10),
			agg.TotalCost.String(),
			agg.TotalSales.String(),
			strconv.FormatInt(agg.TotalOrders, 10),
			strconv.FormatInt(agg.TotalUnitsSold, 10),
			csvNullDecimal(agg.AvgCTR),
			csvNullDecimal(agg.AvgCPC),
			csvNullDecimal(agg.AvgACOS),
			csvNullDecimal(agg.AvgROAS),
			csvNullDecimal(agg.AvgConversionRate),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeAggregatesPNG(path, campaignID string, aggs []storage.Aggregate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(aggs))
	cost := make([]float64, len(aggs))
	sales := make([]float64, len(aggs))
	acos := make([]float64, len(aggs))

	for i, agg := range aggs {
		x[i] = agg.PeriodStart
		cost[i] = agg.TotalCost.InexactFloat64()
		sales[i] = agg.TotalSales.InexactFloat64()
		if agg.AvgACOS.Valid {
			acos[i] = agg.AvgACOS.Decimal.InexactFloat64() * 100
		}
	}

	moneyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  "Campaign " + campaignID,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Amount",
			ValueFormatter: moneyFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "ACOS (%)",
			ValueFormatter: moneyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Cost",
				XValues: x,
				YValues: cost,
			},
			chart.TimeSeries{
				Name:    "Sales",
				XValues: x,
				YValues: sales,
			},
			chart.TimeSeries{
				Name:    "ACOS %",
				XValues: x,
				YValues: acos,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func csvNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
