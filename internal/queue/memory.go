package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultVisibilityTimeout = 30 * time.Second
	memoryPollStep           = 50 * time.Millisecond
)

type memoryEntry struct {
	id   string
	body []byte
}

type inflightEntry struct {
	entry    memoryEntry
	deadline time.Time
}

// Memory is an in-process queue for local runs and tests. Received messages stay
// in flight until deleted or until the visibility timeout returns them to the queue.
type Memory struct {
	mu         sync.Mutex
	ready      []memoryEntry
	inflight   map[string]inflightEntry
	visibility time.Duration
	now        func() time.Time
}

// MemoryOption customises a Memory queue.
type MemoryOption func(*Memory)

// WithVisibilityTimeout sets how long a received message stays hidden.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) { m.visibility = d }
}

// NewMemory constructs an empty in-memory queue.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		inflight:   make(map[string]inflightEntry),
		visibility: defaultVisibilityTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send enqueues a message body.
func (m *Memory) Send(_ context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, memoryEntry{id: uuid.NewString(), body: append([]byte(nil), body...)})
	return nil
}

// Receive returns up to max messages, waiting up to wait for the first one.
func (m *Memory) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		if msgs := m.take(max); len(msgs) > 0 {
			return msgs, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		step := memoryPollStep
		if remaining < step {
			step = remaining
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Memory) take(max int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for receipt, in := range m.inflight {
		if !now.Before(in.deadline) {
			m.ready = append(m.ready, in.entry)
			delete(m.inflight, receipt)
		}
	}

	n := min(max, len(m.ready))
	if n == 0 {
		return nil
	}
	msgs := make([]Message, 0, n)
	for _, entry := range m.ready[:n] {
		receipt := uuid.NewString()
		m.inflight[receipt] = inflightEntry{entry: entry, deadline: now.Add(m.visibility)}
		msgs = append(msgs, Message{ID: entry.id, Receipt: receipt, Body: entry.body})
	}
	m.ready = append([]memoryEntry(nil), m.ready[n:]...)
	return msgs
}

// Delete acknowledges a received message.
func (m *Memory) Delete(_ context.Context, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[receipt]; !ok {
		return ErrUnknownReceipt
	}
	delete(m.inflight, receipt)
	return nil
}

// Len reports the number of visible and in-flight messages.
func (m *Memory) Len() (ready, inflight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready), len(m.inflight)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var _ Queue = (*Memory)(nil)
