package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (s *memSink) InsertUsage(ctx context.Context, e Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRecorder_WritesEvents(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink, Config{QueueSize: 8, Workers: 2}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Record(ctx, Event{KeyID: 1, Method: "GET", Path: "/v1/tokens", Status: 501, Latency: 3 * time.Millisecond})
	r.Record(ctx, Event{KeyID: 2, Method: "POST", Path: "/v1/swap/quote", Status: 429})

	require.Eventually(t, func() bool { return len(sink.Events()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRecorder_FlushesOnShutdown(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink, Config{QueueSize: 16, Workers: 1}, zap.NewNop())

	// Queue before the writers start, then stop immediately.
	for i := range 10 {
		r.Record(context.Background(), Event{KeyID: int64(i)})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	assert.Len(t, sink.Events(), 10)
	assert.Zero(t, r.Saturation())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	r := NewRecorder(&memSink{}, Config{QueueSize: 2}, zap.NewNop())

	ctx := context.Background()
	for range 5 {
		r.Record(ctx, Event{KeyID: 1})
	}

	assert.Equal(t, uint64(3), r.Dropped())
	assert.Equal(t, 1.0, r.Saturation())
}

func TestRecorder_SinkFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := &memSink{err: errors.New("disk full")}
	r := NewRecorder(sink, Config{QueueSize: 4, Workers: 1}, zap.New(core))

	r.Record(context.Background(), Event{KeyID: 7, Method: "GET", Path: "/v1/tokens", RequestID: "req-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	entries := logs.FilterMessage("Failed to record usage").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["api_key_id"])
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestRecorder_WriteTimeout(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := &memSink{block: make(chan struct{})}
	r := NewRecorder(sink, Config{QueueSize: 1, Workers: 1, WriteTimeout: 10 * time.Millisecond}, zap.New(core))

	r.Record(context.Background(), Event{KeyID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, 1, logs.FilterMessage("Failed to record usage").Len())
}

func TestEvent_LatencyMillis(t *testing.T) {
	assert.InDelta(t, 12.9, Event{Latency: 12*time.Millisecond + 900*time.Microsecond}.LatencyMillis(), 1e-9)
}
