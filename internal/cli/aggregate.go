package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ads-stream-alerts/internal/storage"
)

var aggregatePeriod string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one hourly or daily aggregation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		period := storage.PeriodType(aggregatePeriod)
		if period != storage.PeriodHourly && period != storage.PeriodDaily {
			return fmt.Errorf("--period must be hourly or daily")
		}

		report, err := getApp().Aggregate(cmd.Context(), period)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s window %s - %s: %d created, %d existing\n",
			report.Period,
			report.WindowStart.Format("2006-01-02T15:04Z"),
			report.WindowEnd.Format("2006-01-02T15:04Z"),
			report.Created,
			report.Existing,
		)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregatePeriod, "period", "hourly", "Aggregation period (hourly|daily)")
}
