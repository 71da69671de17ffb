package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ads-stream-alerts/internal/config"
)

// kafkaReader is the subset of *kafka.Reader the driver uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// partitionLog tracks fetched offsets of one partition in fetch order. Only the
// acknowledged prefix is ever committed.
type partitionLog struct {
	fetched []kafka.Message
	acked   map[int64]bool
}

// Kafka consumes the stream from a topic with a consumer group. Deleting a message
// commits its offset once every earlier fetched offset of its partition has been
// deleted too. A Receive that finds messages still unacknowledged from the previous
// batch reopens the reader so the group resumes from the committed offsets and the
// skipped messages are delivered again.
type Kafka struct {
	newReader func() kafkaReader
	writer    *kafka.Writer
	logger    zerolog.Logger

	mu         sync.Mutex
	reader     kafkaReader
	pending    map[string]kafka.Message
	partitions map[int]*partitionLog
	rewind     bool
}

// NewKafka builds a consumer-group reader and a writer on the configured topic.
func NewKafka(cfg config.KafkaConfig, logger zerolog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return newKafka(func() kafkaReader { return kafka.NewReader(readerConfig) }, writer, logger), nil
}

func newKafka(newReader func() kafkaReader, writer *kafka.Writer, logger zerolog.Logger) *Kafka {
	return &Kafka{
		newReader:  newReader,
		writer:     writer,
		logger:     logger.With().Str("component", "queue_kafka").Logger(),
		reader:     newReader(),
		pending:    make(map[string]kafka.Message),
		partitions: make(map[int]*partitionLog),
	}
}

// Receive fetches up to max messages, waiting up to wait for the batch.
func (q *Kafka) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.rewindLocked()

	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msgs := make([]Message, 0, max)
	for len(msgs) < max {
		m, err := q.reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return msgs, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return msgs, fmt.Errorf("fetch kafka message: %w", err)
		}

		receipt := kafkaReceipt(m)
		q.pending[receipt] = m
		part := q.partitions[m.Partition]
		if part == nil {
			part = &partitionLog{acked: make(map[int64]bool)}
			q.partitions[m.Partition] = part
		}
		part.fetched = append(part.fetched, m)
		msgs = append(msgs, Message{ID: receipt, Receipt: receipt, Body: m.Value})
	}
	if len(msgs) > 0 {
		q.logger.Debug().Int("count", len(msgs)).Msg("fetched kafka batch")
	}
	return msgs, nil
}

// rewindLocked reopens the reader when messages from the previous batch were left
// unacknowledged or a commit failed.
func (q *Kafka) rewindLocked() {
	if !q.rewind && len(q.pending) == 0 {
		return
	}

	q.logger.Warn().
		Int("unacknowledged", len(q.pending)).
		Msg("reopening kafka reader to redeliver from committed offsets")
	if err := q.reader.Close(); err != nil {
		q.logger.Error().Err(err).Msg("failed to close kafka reader")
	}
	q.reader = q.newReader()
	q.pending = make(map[string]kafka.Message)
	q.partitions = make(map[int]*partitionLog)
	q.rewind = false
}

// Delete acknowledges a received message and commits the partition's acknowledged prefix.
func (q *Kafka) Delete(ctx context.Context, receipt string) error {
	q.mu.Lock()
	m, ok := q.pending[receipt]
	if !ok {
		q.mu.Unlock()
		return ErrUnknownReceipt
	}
	delete(q.pending, receipt)

	part := q.partitions[m.Partition]
	part.acked[m.Offset] = true
	var commit *kafka.Message
	for len(part.fetched) > 0 && part.acked[part.fetched[0].Offset] {
		head := part.fetched[0]
		delete(part.acked, head.Offset)
		part.fetched = part.fetched[1:]
		commit = &head
	}
	reader := q.reader
	q.mu.Unlock()

	if commit == nil {
		return nil
	}
	if err := reader.CommitMessages(ctx, *commit); err != nil {
		q.mu.Lock()
		q.rewind = true
		q.mu.Unlock()
		return fmt.Errorf("commit kafka offset: %w", err)
	}
	return nil
}

// Send produces a message to the topic.
func (q *Kafka) Send(ctx context.Context, body []byte) error {
	if q.writer == nil {
		return errors.New("kafka writer not configured")
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close shuts down the reader and writer.
func (q *Kafka) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.reader.Close()
	if q.writer != nil {
		err = errors.Join(err, q.writer.Close())
	}
	return err
}

func kafkaReceipt(m kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

var _ Queue = (*Kafka)(nil)
