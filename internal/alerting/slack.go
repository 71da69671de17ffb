package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ads-stream-alerts/internal/storage"
	"ads-stream-alerts/internal/version"
)

var severityColors = map[storage.Severity]string{
	storage.SeverityMedium: "#ff9900",
	storage.SeverityHigh:   "#ff0000",
}

const defaultSeverityColor = "#808080"

// SlackNotifier posts alerts to an incoming webhook. Posts are rate limited to stay
// under the webhook's per-channel limit.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewSlackNotifier constructs a Slack channel. A non-positive rate disables limiting.
func NewSlackNotifier(webhookURL, channel string, perSecond float64, timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With().Str("component", "alert_slack").Logger(),
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackAttachment struct {
	Color string `json:"color"`
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Blocks      []slackBlock      `json:"blocks"`
	Attachments []slackAttachment `json:"attachments"`
}

// Notify posts the alert as a block message.
func (n *SlackNotifier) Notify(ctx context.Context, note Notification) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack rate limiter: %w", err)
	}

	body, err := json.Marshal(buildSlackPayload(note, n.channel))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack unexpected status: %d", resp.StatusCode)
	}

	n.logger.Info().
		Int64("alert_id", note.AlertID).
		Str("alert_type", string(note.Type)).
		Str("campaign_id", note.CampaignID).
		Msg("alert delivered (slack)")
	return nil
}

func buildSlackPayload(note Notification, channel string) slackPayload {
	color, ok := severityColors[note.Severity]
	if !ok {
		color = defaultSeverityColor
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "🚨 Campaign Alert: " + strings.ToUpper(string(note.Type))},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Severity:*\n" + strings.ToUpper(string(note.Severity))},
				{Type: "mrkdwn", Text: "*Campaign ID:*\n`" + note.CampaignID + "`"},
			},
		},
	}
	if note.CampaignName != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Campaign:* " + note.CampaignName},
		})
	}
	blocks = append(blocks, slackBlock{
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: "*Message:*\n" + note.Message},
	})
	if len(note.Metrics) > 0 {
		lines := make([]string, 0, len(note.Metrics))
		for _, m := range note.Metrics {
			lines = append(lines, fmt.Sprintf("• *%s:* %s", m.Label, m.Value))
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Metrics:*\n" + strings.Join(lines, "\n")},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})

	return slackPayload{
		Channel:     channel,
		Text:        "Campaign Alert: " + string(note.Type),
		Blocks:      blocks,
		Attachments: []slackAttachment{{Color: color}},
	}
}

var _ Notifier = (*SlackNotifier)(nil)
