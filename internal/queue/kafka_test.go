package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker holds partition logs and committed offsets shared by every reader of the group.
type fakeBroker struct {
	mu        sync.Mutex
	logs      map[int][]kafka.Message
	committed map[int]int64
	opened    int
	commitErr error
}

func newFakeBroker(partitions map[int][]string) *fakeBroker {
	b := &fakeBroker{logs: make(map[int][]kafka.Message), committed: make(map[int]int64)}
	for p, bodies := range partitions {
		for i, body := range bodies {
			b.logs[p] = append(b.logs[p], kafka.Message{Topic: "ads", Partition: p, Offset: int64(i), Value: []byte(body)})
		}
	}
	return b
}

func (b *fakeBroker) reader() kafkaReader {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	next := make(map[int]int64, len(b.committed))
	for p, off := range b.committed {
		next[p] = off
	}
	return &fakeReader{broker: b, next: next}
}

func (b *fakeBroker) committedOffset(partition int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed[partition]
}

// fakeReader reads partitions in ascending order starting at the committed offsets.
type fakeReader struct {
	broker *fakeBroker
	next   map[int]int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.broker.mu.Lock()
	for p := 0; p < len(r.broker.logs); p++ {
		log := r.broker.logs[p]
		if off := r.next[p]; off < int64(len(log)) {
			r.next[p] = off + 1
			r.broker.mu.Unlock()
			return log[off], nil
		}
	}
	r.broker.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.broker.mu.Lock()
	defer r.broker.mu.Unlock()
	if r.broker.commitErr != nil {
		return r.broker.commitErr
	}
	for _, m := range msgs {
		r.broker.committed[m.Partition] = m.Offset + 1
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func bodies(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Body))
	}
	return out
}

func TestKafkaRedeliversUnacknowledgedMessage(t *testing.T) {
	broker := newFakeBroker(map[int][]string{0: {"a", "b", "c"}})
	q := newKafka(broker.reader, nil, zerolog.Nop())
	ctx := context.Background()

	msgs, err := q.Receive(ctx, 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, bodies(msgs))

	// "b" is left for redelivery; acknowledging "c" must not commit past it
	require.NoError(t, q.Delete(ctx, msgs[0].Receipt))
	require.NoError(t, q.Delete(ctx, msgs[2].Receipt))
	assert.Equal(t, int64(1), broker.committedOffset(0))

	again, err := q.Receive(ctx, 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, bodies(again))
	assert.Equal(t, 2, broker.opened)

	for _, m := range again {
		require.NoError(t, q.Delete(ctx, m.Receipt))
	}
	assert.Equal(t, int64(3), broker.committedOffset(0))
}

func TestKafkaCommitsOutOfOrderAcknowledgements(t *testing.T) {
	broker := newFakeBroker(map[int][]string{0: {"a", "b"}, 1: {"x"}})
	q := newKafka(broker.reader, nil, zerolog.Nop())
	ctx := context.Background()

	msgs, err := q.Receive(ctx, 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "x"}, bodies(msgs))

	require.NoError(t, q.Delete(ctx, msgs[1].Receipt))
	assert.Equal(t, int64(0), broker.committedOffset(0))
	require.NoError(t, q.Delete(ctx, msgs[2].Receipt))
	assert.Equal(t, int64(1), broker.committedOffset(1))
	require.NoError(t, q.Delete(ctx, msgs[0].Receipt))
	assert.Equal(t, int64(2), broker.committedOffset(0))

	empty, err := q.Receive(ctx, 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 1, broker.opened)

	assert.ErrorIs(t, q.Delete(ctx, msgs[0].Receipt), ErrUnknownReceipt)
}

func TestKafkaReopensAfterCommitFailure(t *testing.T) {
	broker := newFakeBroker(map[int][]string{0: {"a"}})
	q := newKafka(broker.reader, nil, zerolog.Nop())
	ctx := context.Background()

	msgs, err := q.Receive(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	broker.commitErr = errors.New("coordinator not available")
	assert.Error(t, q.Delete(ctx, msgs[0].Receipt))
	broker.commitErr = nil

	again, err := q.Receive(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, bodies(again))
	assert.Equal(t, 2, broker.opened)
}
