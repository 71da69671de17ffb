package cli

import (
	"github.com/spf13/cobra"

	"ads-stream-alerts/internal/storage"
)

var simulateType string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a sample alert through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), storage.AlertType(simulateType))
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateType, "type", string(storage.AlertCTRDrop), "Alert type (ctr_drop|spend_spike|high_acos|low_roas)")
}
