package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ads-stream-alerts/internal/app"
)

var (
	showWhat  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts or aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			What:  showWhat,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showWhat, "what", "alerts", "What to display (alerts|aggregates)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
}
