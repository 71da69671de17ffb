package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ads-stream-alerts/internal/alerting"
	"ads-stream-alerts/internal/storage"
)

// SimulateAlert sends a sample alert of the given type through the configured channels
// without touching the datastore.
func (a *App) SimulateAlert(ctx context.Context, alertType storage.AlertType) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	alert, err := sampleAlert(alertType, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := a.newNotifier().Notify(ctx, alerting.NotificationFromAlert(alert)); err != nil {
		return fmt.Errorf("deliver simulated alert: %w", err)
	}
	a.Logger.Info().Str("alert_type", string(alertType)).Msg("simulated alert delivered")
	return nil
}

func sampleAlert(alertType storage.AlertType, now time.Time) (storage.Alert, error) {
	name := "Simulated Campaign"
	alert := storage.Alert{
		Type:         alertType,
		Severity:     storage.SeverityMedium,
		CampaignID:   "simulated-campaign",
		CampaignName: &name,
		ProfileID:    "simulated-profile",
		CreatedAt:    now,
	}

	switch alertType {
	case storage.AlertCTRDrop:
		alert.Message = "CTR dropped by 40.0% (from 5.00% to 3.00%)"
		alert.MetricValue = decimal.NewNullDecimal(decimal.RequireFromString("0.03"))
		alert.PreviousValue = decimal.NewNullDecimal(decimal.RequireFromString("0.05"))
		alert.ThresholdValue = decimal.NewNullDecimal(decimal.RequireFromString("0.2"))
	case storage.AlertSpendSpike:
		alert.Message = "Spend increased by 60.0% (from $100.00 to $160.00)"
		alert.MetricValue = decimal.NewNullDecimal(decimal.NewFromInt(160))
		alert.PreviousValue = decimal.NewNullDecimal(decimal.NewFromInt(100))
		alert.ThresholdValue = decimal.NewNullDecimal(decimal.RequireFromString("1.5"))
	case storage.AlertHighACOS:
		alert.Severity = storage.SeverityHigh
		alert.Message = "ACOS is 62.50%, exceeding threshold of 30.00%"
		alert.MetricValue = decimal.NewNullDecimal(decimal.RequireFromString("0.625"))
		alert.ThresholdValue = decimal.NewNullDecimal(decimal.RequireFromString("0.3"))
	case storage.AlertLowROAS:
		alert.Message = "ROAS is 1.60, below threshold of 2.00"
		alert.MetricValue = decimal.NewNullDecimal(decimal.RequireFromString("1.6"))
		alert.ThresholdValue = decimal.NewNullDecimal(decimal.RequireFromString("2.0"))
	default:
		return storage.Alert{}, fmt.Errorf("unknown alert type %q", alertType)
	}
	return alert, nil
}
