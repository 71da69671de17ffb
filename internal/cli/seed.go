package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ads-stream-alerts/internal/app"
)

var (
	seedFile  string
	seedCount int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish fixture or generated messages to the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := getApp().Seed(cmd.Context(), app.SeedOptions{File: seedFile, Count: seedCount})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d messages\n", n)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML fixture file with a messages list")
	seedCmd.Flags().IntVar(&seedCount, "count", 24, "Number of generated hourly messages when no file is given")
}
