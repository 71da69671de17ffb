package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Name: "hourly", Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, 3, 1, 10, 25, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), s.nextTick(now))

	onBoundary := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), s.nextTick(onBoundary))
}

func TestBucketStartIsClosedBucket(t *testing.T) {
	s := New(Options{Interval: 24 * time.Hour, AlignToStart: true}, zerolog.Nop())

	tick := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), s.bucketStart(tick))
}

func TestNextTickFreeRunning(t *testing.T) {
	s := New(Options{Interval: 5 * time.Second}, zerolog.Nop())

	now := time.Date(2024, 3, 1, 10, 25, 3, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Second), s.nextTick(now))
	assert.Equal(t, now, s.bucketStart(now))
}

func TestRunImmediatelyAndStopsOnCancel(t *testing.T) {
	s := New(Options{Name: "poll", Interval: time.Hour, RunImmediately: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			calls.Add(1)
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
