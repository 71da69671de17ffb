package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"ads-stream-alerts/internal/queue"
)

// SeedOptions configure the seed command.
type SeedOptions struct {
	File  string
	Count int
}

type fixtureFile struct {
	Messages []map[string]any `yaml:"messages"`
}

var messageIDKeys = []string{"messageId", "id", "idempotency_id", "idempotencyId"}

// Seed publishes fixture messages, or generated sample traffic when no file is given.
func (a *App) Seed(ctx context.Context, opts SeedOptions) (int, error) {
	q, err := a.openQueue(ctx)
	if err != nil {
		return 0, err
	}
	defer q.Close()

	if opts.File != "" {
		return a.seedInto(ctx, q, opts.File)
	}
	return a.publish(ctx, q, sampleMessages(opts.Count, time.Now().UTC()))
}

func (a *App) seedInto(ctx context.Context, q queue.Queue, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	bodies, err := parseFixtures(raw)
	if err != nil {
		return 0, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return a.publish(ctx, q, bodies)
}

func (a *App) publish(ctx context.Context, q queue.Queue, bodies [][]byte) (int, error) {
	for i, body := range bodies {
		if err := q.Send(ctx, body); err != nil {
			return i, fmt.Errorf("send message %d: %w", i, err)
		}
	}
	a.Logger.Info().Int("messages", len(bodies)).Str("queue", a.Config.Queue.Driver).Msg("seeded queue")
	return len(bodies), nil
}

// parseFixtures converts each YAML message into a JSON body, assigning a message id
// where the fixture has none.
func parseFixtures(raw []byte) ([][]byte, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}

	bodies := make([][]byte, 0, len(file.Messages))
	for i, msg := range file.Messages {
		if msg == nil {
			return nil, fmt.Errorf("message %d is empty", i)
		}
		if !hasMessageID(msg) {
			msg["messageId"] = uuid.NewString()
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode message %d: %w", i, err)
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

func hasMessageID(msg map[string]any) bool {
	for _, key := range messageIDKeys {
		if v, ok := msg[key]; ok && v != nil && fmt.Sprint(v) != "" {
			return true
		}
	}
	return false
}

// sampleMessages generates hourly sp-traffic messages for one demo campaign ending at now.
func sampleMessages(count int, now time.Time) [][]byte {
	if count <= 0 {
		count = 1
	}
	end := now.Truncate(time.Hour)
	bodies := make([][]byte, 0, count)
	for i := count; i > 0; i-- {
		start := end.Add(-time.Duration(i) * time.Hour)
		impressions := 1000 + 50*i
		msg := map[string]any{
			"messageId":   uuid.NewString(),
			"datasetType": "sp-traffic",
			"profileId":   "demo-profile",
			"data": map[string]any{
				"campaignId":        "demo-campaign",
				"campaignName":      "Demo Campaign",
				"impressions":       impressions,
				"clicks":            impressions / 40,
				"cost":              fmt.Sprintf("%d.50", 10+i),
				"sales":             fmt.Sprintf("%d.00", 40+2*i),
				"orders":            2,
				"time_window_start": start.Format(time.RFC3339),
				"time_window_end":   start.Add(time.Hour).Format(time.RFC3339),
			},
		}
		body, _ := json.Marshal(msg)
		bodies = append(bodies, body)
	}
	return bodies
}
