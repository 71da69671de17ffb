package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ads-stream-alerts/internal/storage"
)

// Metric is a labelled value shown alongside an alert.
type Metric struct {
	Label string
	Value string
}

// Notification carries a persisted alert to a delivery channel.
type Notification struct {
	AlertID      int64
	Type         storage.AlertType
	Severity     storage.Severity
	CampaignID   string
	CampaignName string
	ProfileID    string
	Message      string
	Metrics      []Metric
	CreatedAt    time.Time
}

// NotificationFromAlert renders an alert into its delivery form.
func NotificationFromAlert(a storage.Alert) Notification {
	note := Notification{
		AlertID:    a.ID,
		Type:       a.Type,
		Severity:   a.Severity,
		CampaignID: a.CampaignID,
		ProfileID:  a.ProfileID,
		Message:    a.Message,
		CreatedAt:  a.CreatedAt,
	}
	if a.CampaignName != nil {
		note.CampaignName = *a.CampaignName
	}
	if a.MetricValue.Valid {
		note.Metrics = append(note.Metrics, Metric{Label: "Current Value", Value: a.MetricValue.Decimal.String()})
	}
	if a.PreviousValue.Valid {
		note.Metrics = append(note.Metrics, Metric{Label: "Previous Value", Value: a.PreviousValue.Decimal.String()})
	}
	if a.ThresholdValue.Valid {
		note.Metrics = append(note.Metrics, Metric{Label: "Threshold", Value: a.ThresholdValue.Decimal.String()})
	}
	return note
}

// Notifier delivers alerts; a nil error means the alert was delivered.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes alerts to the log. It is used when no channel is configured
// and always reports success.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered alert.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().
		Int64("alert_id", note.AlertID).
		Str("alert_type", string(note.Type)).
		Str("severity", string(note.Severity)).
		Str("campaign_id", note.CampaignID).
		Msg(renderMessage(note))
	return nil
}

// MultiNotifier fans a notification out to several channels. Delivery succeeds
// only when every channel succeeds.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines channels; with a single channel it returns that channel.
func NewMultiNotifier(notifiers ...Notifier) Notifier {
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return &MultiNotifier{notifiers: notifiers}
}

// Notify delivers to every channel and joins the failures.
func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Campaign Alert: %s]\n", strings.ToUpper(string(note.Type))))
	builder.WriteString(fmt.Sprintf("Severity: %s\n", strings.ToUpper(string(note.Severity))))
	builder.WriteString(fmt.Sprintf("Campaign ID: %s\n", note.CampaignID))
	if note.CampaignName != "" {
		builder.WriteString(fmt.Sprintf("Campaign: %s\n", note.CampaignName))
	}
	if note.ProfileID != "" {
		builder.WriteString(fmt.Sprintf("Profile: %s\n", note.ProfileID))
	}
	builder.WriteString(note.Message)
	for _, m := range note.Metrics {
		builder.WriteString(fmt.Sprintf("\n%s: %s", m.Label, m.Value))
	}
	return builder.String()
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
)
