package cli

import (
	"github.com/spf13/cobra"

	"ads-stream-alerts/internal/app"
)

var runSeedFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stream worker and aggregation jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{SeedFile: runSeedFile})
	},
}

func init() {
	runCmd.Flags().StringVar(&runSeedFile, "seed", "", "Fixture file to enqueue before polling starts")
}
