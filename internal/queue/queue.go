// Package queue abstracts the at-least-once stream source the worker polls.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ads-stream-alerts/internal/config"
)

// ErrUnknownReceipt is returned when deleting a receipt the queue does not hold.
var ErrUnknownReceipt = errors.New("queue: unknown receipt")

// Message is one delivery of a queued message.
type Message struct {
	ID      string
	Receipt string
	Body    []byte
}

// Queue is an at-least-once message source. A received message that is not deleted
// becomes visible again and is redelivered.
type Queue interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, receipt string) error
	Send(ctx context.Context, body []byte) error
	Close() error
}

// Open builds the queue selected by queue.driver.
func Open(ctx context.Context, cfg config.QueueConfig, logger zerolog.Logger) (Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Warn().Msg("using in-memory queue; messages do not survive restarts")
		return NewMemory(), nil
	case "sqs":
		return NewSQS(ctx, cfg.SQS)
	case "kafka":
		return NewKafka(cfg.Kafka, logger)
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}
