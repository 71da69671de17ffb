package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySendReceiveDelete(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte(`{"messageId":"a"}`)))
	require.NoError(t, q.Send(ctx, []byte(`{"messageId":"b"}`)))
	require.NoError(t, q.Send(ctx, []byte(`{"messageId":"c"}`)))

	msgs, err := q.Receive(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"messageId":"a"}`, string(msgs[0].Body))
	assert.NotEqual(t, msgs[0].Receipt, msgs[1].Receipt)
	assert.NotEmpty(t, msgs[0].ID)

	ready, inflight := q.Len()
	assert.Equal(t, 1, ready)
	assert.Equal(t, 2, inflight)

	require.NoError(t, q.Delete(ctx, msgs[0].Receipt))
	assert.ErrorIs(t, q.Delete(ctx, msgs[0].Receipt), ErrUnknownReceipt)

	ready, inflight = q.Len()
	assert.Equal(t, 1, ready)
	assert.Equal(t, 1, inflight)
}

func TestMemoryRedeliversAfterVisibilityTimeout(t *testing.T) {
	q := NewMemory(WithVisibilityTimeout(time.Minute))
	current := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("payload")))
	first, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	hidden, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	current = current.Add(time.Minute)
	again, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.NotEqual(t, first[0].Receipt, again[0].Receipt)
	assert.ErrorIs(t, q.Delete(ctx, first[0].Receipt), ErrUnknownReceipt)
}

func TestMemoryReceiveWaitsForMessages(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Send(ctx, []byte("late"))
	}()

	msgs, err := q.Receive(ctx, 1, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", string(msgs[0].Body))
}

func TestMemoryReceiveHonoursCancellation(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
