// Package usage records per-request API key usage in the background.
package usage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Event describes one completed request made by an authenticated key.
type Event struct {
	KeyID     int64
	Method    string
	Path      string
	Status    int
	Latency   time.Duration
	RequestID string
}

// LatencyMillis returns the latency in fractional milliseconds.
func (e Event) LatencyMillis() float64 {
	return float64(e.Latency) / float64(time.Millisecond)
}

// Sink persists usage events.
type Sink interface {
	InsertUsage(ctx context.Context, e Event) error
}

// Config controls the recorder queue.
type Config struct {
	QueueSize    int           `default:"4096"`
	Workers      int           `default:"2"`
	WriteTimeout time.Duration `default:"5s"`
}

// Recorder hands events off to background writers. Record never blocks the
// caller and persistence failures only reach the logs.
type Recorder struct {
	sink    Sink
	cfg     Config
	lg      *zap.Logger
	queue   chan Event
	dropped atomic.Uint64
	dropLog *rate.Limiter
}

// NewRecorder creates a Recorder writing to sink. Call Run to start writers.
func NewRecorder(sink Sink, cfg Config, lg *zap.Logger) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Recorder{
		sink:    sink,
		cfg:     cfg,
		lg:      lg,
		queue:   make(chan Event, cfg.QueueSize),
		dropLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Record enqueues e. When the queue is full the event is dropped.
func (r *Recorder) Record(ctx context.Context, e Event) {
	select {
	case r.queue <- e:
	default:
		n := r.dropped.Add(1)
		if r.dropLog.Allow() {
			zctx.From(ctx).Warn("Usage queue full, dropping events",
				zap.Int("queue_size", r.cfg.QueueSize),
				zap.Uint64("dropped_total", n),
			)
		}
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Saturation returns the queue fill ratio in [0, 1].
func (r *Recorder) Saturation() float64 {
	return float64(len(r.queue)) / float64(cap(r.queue))
}

// Run starts the writers and blocks until ctx is done. Events still queued at
// that point are flushed before Run returns.
func (r *Recorder) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for range r.cfg.Workers {
		g.Go(func() error {
			r.work(gCtx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.drain(context.WithoutCancel(ctx))
	return nil
}

func (r *Recorder) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.queue:
			r.write(ctx, e)
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	n := 0
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
			n++
		default:
			if n > 0 {
				r.lg.Info("Flushed usage queue", zap.Int("events", n))
			}
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.sink.InsertUsage(ctx, e); err != nil {
		r.lg.Error("Failed to record usage",
			zap.Int64("api_key_id", e.KeyID),
			zap.String("request_id", e.RequestID),
			zap.String("method", e.Method),
			zap.String("path", e.Path),
			zap.Error(err),
		)
	}
}
