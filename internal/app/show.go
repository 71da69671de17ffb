package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"ads-stream-alerts/internal/storage"
)

// Show prints recent alerts or aggregates.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	switch opts.What {
	case "", "alerts":
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return writeAlerts(os.Stdout, alerts)
	case "aggregates":
		aggs, err := store.ListRecentAggregates(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return writeAggregates(os.Stdout, aggs)
	default:
		return fmt.Errorf("unknown --what %q (alerts|aggregates)", opts.What)
	}
}

func writeAlerts(out io.Writer, alerts []storage.Alert) error {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tType\tSeverity\tCampaign\tSent\tMessage")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Type,
			alert.Severity,
			alert.CampaignID,
			alert.Sent,
			sanitizeInline(alert.Message),
		)
	}
	return writer.Flush()
}

func writeAggregates(out io.Writer, aggs []storage.Aggregate) error {
	if len(aggs) == 0 {
		fmt.Fprintln(out, "no aggregates found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Period Start (UTC)\tPeriod\tCampaign\tRecords\tImpressions\tClicks\tCost\tSales\tCTR\tACOS\tROAS")
	for _, agg := range aggs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			agg.PeriodStart.UTC().Format(time.RFC3339),
			agg.PeriodType,
			agg.CampaignID,
			agg.RecordCount,
			agg.TotalImpressions,
			agg.TotalClicks,
			agg.TotalCost.StringFixed(2),
			agg.TotalSales.StringFixed(2),
			formatNullDecimal(agg.AvgCTR, 4),
			formatNullDecimal(agg.AvgACOS, 4),
			formatNullDecimal(agg.AvgROAS, 2),
		)
	}
	return writer.Flush()
}

func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
